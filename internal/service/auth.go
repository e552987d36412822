package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
)

// RegisterParams is the input of a password registration.
type RegisterParams struct {
	Email    string
	Password string
	Name     string
}

// Auth implements registration, password login, token refresh and federated
// sign-in with account linking.
type Auth struct {
	userStore    model.UserStore
	hasher       model.PasswordHasher
	tokenService *TokenService
	logger       *logger.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuth(
	userStore model.UserStore,
	hasher model.PasswordHasher,
	tokenService *TokenService,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		userStore:    userStore,
		hasher:       hasher,
		tokenService: tokenService,
		logger:       logger,
	}
}

// Register creates a password account with the editor role and signs it in.
func (a *Auth) Register(ctx context.Context, params RegisterParams) (model.TokenPair, error) {
	email := normalizeEmail(params.Email)

	a.logger.Debug("Auth service: starting user registration",
		"email", email)

	_, err := a.userStore.GetByEmail(ctx, email)
	if err == nil {
		a.logger.Info("Auth service: email already registered",
			"email", email)
		return model.TokenPair{}, fmt.Errorf("%w: email already registered", model.ErrConflict)
	}
	if !errors.Is(err, model.ErrNotFound) {
		a.logger.Error("Auth service: failed to get user by email",
			"email", email,
			"error", err.Error())
		return model.TokenPair{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	hash, err := a.hasher.Hash(params.Password)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         params.Name,
		PasswordHash: &hash,
		Role:         model.RoleEditor,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A concurrent registration may have won the race since the lookup above;
	// the store's unique constraint reports it as ErrConflict.
	created, err := a.userStore.Create(ctx, user)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			a.logger.Info("Auth service: registration lost uniqueness race",
				"email", email)
			return model.TokenPair{}, fmt.Errorf("%w: email already registered", model.ErrConflict)
		}
		a.logger.Error("Auth service: failed to create user",
			"email", email,
			"error", err.Error())
		return model.TokenPair{}, fmt.Errorf("failed to create user: %w", err)
	}

	pair, err := a.tokenService.Issue(created)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to issue tokens: %w", err)
	}

	a.logger.Info("Auth service: user registration completed successfully",
		"email", email,
		"user_id", created.ID.String())

	return pair, nil
}

// Login checks a password and signs the user in. Unknown email, federated-only
// account and wrong password all fail with the same ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, email, password string) (model.TokenPair, error) {
	email = normalizeEmail(email)

	a.logger.Debug("Auth service: starting user login",
		"email", email)

	user, err := a.userStore.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		a.logger.Error("Auth service: failed to get user by email",
			"email", email,
			"error", err.Error())
		return model.TokenPair{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err != nil || !user.HasPassword() {
		a.burnVerify(password)
		a.logger.Info("Auth service: login rejected",
			"email", email)
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if !a.hasher.Verify(password, *user.PasswordHash) {
		a.logger.Info("Auth service: login rejected",
			"email", email)
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if !user.IsActive {
		a.logger.Info("Auth service: login to disabled account",
			"user_id", user.ID.String())
		return model.TokenPair{}, model.ErrAccountDisabled
	}

	pair, err := a.tokenService.Issue(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to issue tokens: %w", err)
	}

	a.logger.Info("Auth service: login completed successfully",
		"user_id", user.ID.String())

	return pair, nil
}

// Refresh exchanges a refresh token for a new pair carrying the user's current role.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := a.tokenService.ParseRefresh(refreshToken)
	if err != nil {
		a.logger.Debug("Auth service: refresh token rejected",
			"error", err.Error())
		return model.TokenPair{}, err
	}

	user, err := a.userStore.GetByID(ctx, claims.Subject)
	if errors.Is(err, model.ErrNotFound) {
		return model.TokenPair{}, fmt.Errorf("%w: user no longer exists", model.ErrInvalidToken)
	}
	if err != nil {
		a.logger.Error("Auth service: failed to get user by id",
			"user_id", claims.Subject.String(),
			"error", err.Error())
		return model.TokenPair{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	if !user.IsActive {
		a.logger.Info("Auth service: refresh for disabled account",
			"user_id", user.ID.String())
		return model.TokenPair{}, fmt.Errorf("%w: account is disabled", model.ErrInvalidToken)
	}

	pair, err := a.tokenService.Issue(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to issue tokens: %w", err)
	}

	a.logger.Info("Auth service: token refresh completed",
		"user_id", user.ID.String())

	return pair, nil
}

// ResolveFederatedIdentity finds or creates the local user for an external
// identity. An existing account with the same email gets the identity linked
// onto it instead of a second account being created.
func (a *Auth) ResolveFederatedIdentity(ctx context.Context, profile model.FederatedProfile) (model.User, model.TokenPair, error) {
	profile.Email = normalizeEmail(profile.Email)
	if profile.Provider == "" || profile.FederatedID == "" || profile.Email == "" {
		return model.User{}, model.TokenPair{}, fmt.Errorf("%w: provider, federated id and email are required", model.ErrValidation)
	}

	a.logger.Debug("Auth service: resolving federated identity",
		"provider", profile.Provider,
		"email", profile.Email)

	user, err := a.resolveFederated(ctx, profile)
	if errors.Is(err, model.ErrConflict) {
		// Lost a race with a concurrent first sign-in; the winner's row is
		// visible now, so one more pass links to it.
		a.logger.Info("Auth service: federated sign-in conflict, retrying",
			"provider", profile.Provider,
			"email", profile.Email)
		user, err = a.resolveFederated(ctx, profile)
	}
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}

	if !user.IsActive {
		a.logger.Info("Auth service: federated sign-in to disabled account",
			"user_id", user.ID.String())
		return model.User{}, model.TokenPair{}, model.ErrAccountDisabled
	}

	pair, err := a.tokenService.Issue(user)
	if err != nil {
		return model.User{}, model.TokenPair{}, fmt.Errorf("failed to issue tokens: %w", err)
	}

	a.logger.Info("Auth service: federated sign-in completed",
		"user_id", user.ID.String(),
		"provider", profile.Provider)

	return user, pair, nil
}

func (a *Auth) resolveFederated(ctx context.Context, profile model.FederatedProfile) (model.User, error) {
	user, err := a.userStore.GetByFederatedID(ctx, profile.Provider, profile.FederatedID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by federated id: %w", err)
	}

	now := time.Now().UTC()
	identity := &model.FederatedIdentity{Provider: profile.Provider, ID: profile.FederatedID}

	user, err = a.userStore.GetByEmail(ctx, profile.Email)
	if err == nil {
		user.Federated = identity
		user.UpdatedAt = now
		linked, err := a.userStore.Update(ctx, user)
		if err != nil {
			return model.User{}, fmt.Errorf("failed to link federated identity: %w", err)
		}
		a.logger.Info("Auth service: linked federated identity to existing account",
			"user_id", linked.ID.String(),
			"provider", profile.Provider)
		return linked, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	name := profile.DisplayName
	if name == "" {
		name = profile.Email
	}
	created, err := a.userStore.Create(ctx, model.User{
		ID:        uuid.New(),
		Email:     profile.Email,
		Name:      name,
		Role:      model.RoleEditor,
		Federated: identity,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create federated user: %w", err)
	}
	return created, nil
}

// burnVerify spends the same work as a real password check so that response
// time does not reveal whether an account exists.
func (a *Auth) burnVerify(password string) {
	a.dummyOnce.Do(func() {
		h, err := a.hasher.Hash("dummy-password-for-timing")
		if err == nil {
			a.dummyHash = h
		}
	})
	if a.dummyHash != "" {
		a.hasher.Verify(password, a.dummyHash)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
