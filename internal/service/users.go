package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
)

// InviteParams is the input for creating an account on someone's behalf.
type InviteParams struct {
	Email    string
	Name     string
	Password string
	Role     model.Role
}

// Users is the admin-facing account management service.
type Users struct {
	userStore model.UserStore
	hasher    model.PasswordHasher
	logger    *logger.Logger
}

func NewUsers(userStore model.UserStore, hasher model.PasswordHasher, logger *logger.Logger) *Users {
	return &Users{userStore: userStore, hasher: hasher, logger: logger}
}

// List returns all accounts, newest first.
func (s *Users) List(ctx context.Context) ([]model.User, error) {
	users, err := s.userStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Get returns a single account.
func (s *Users) Get(ctx context.Context, id uuid.UUID) (model.User, error) {
	user, err := s.userStore.GetByID(ctx, id)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Invite creates a password account with the requested role.
func (s *Users) Invite(ctx context.Context, params InviteParams) (model.User, error) {
	email := normalizeEmail(params.Email)
	role := params.Role
	if role == "" {
		role = model.RoleEditor
	}
	if !role.Valid() {
		return model.User{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, role)
	}

	_, err := s.userStore.GetByEmail(ctx, email)
	if err == nil {
		return model.User{}, fmt.Errorf("%w: email already registered", model.ErrConflict)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	created, err := s.userStore.Create(ctx, model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         params.Name,
		PasswordHash: &hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Users service: user invited",
		"user_id", created.ID.String(),
		"role", string(role))

	return created, nil
}

// ChangeRole sets a user's role. Existing access tokens keep the old role claim
// until they expire; refresh picks up the new one.
func (s *Users) ChangeRole(ctx context.Context, id uuid.UUID, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, fmt.Errorf("%w: unknown role %q", model.ErrValidation, role)
	}

	return s.mutate(ctx, id, func(u *model.User) { u.Role = role })
}

// SetActive enables or disables an account without deleting it.
func (s *Users) SetActive(ctx context.Context, id uuid.UUID, active bool) (model.User, error) {
	return s.mutate(ctx, id, func(u *model.User) { u.IsActive = active })
}

func (s *Users) mutate(ctx context.Context, id uuid.UUID, apply func(*model.User)) (model.User, error) {
	user, err := s.userStore.GetByID(ctx, id)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	apply(&user)
	user.UpdatedAt = time.Now().UTC()

	updated, err := s.userStore.Update(ctx, user)
	if err != nil {
		s.logger.Error("Users service: failed to update user",
			"user_id", id.String(),
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("Users service: user updated",
		"user_id", id.String(),
		"role", string(updated.Role),
		"is_active", updated.IsActive)

	return updated, nil
}
