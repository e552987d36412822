package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
)

// Guard authorizes requests carrying an access token.
type Guard struct {
	userStore    model.UserStore
	tokenService *TokenService
	logger       *logger.Logger
}

func NewGuard(userStore model.UserStore, tokenService *TokenService, logger *logger.Logger) *Guard {
	return &Guard{userStore: userStore, tokenService: tokenService, logger: logger}
}

// Authenticate resolves an access token to its live user record.
// Refresh tokens are rejected here just like malformed or expired ones.
func (g *Guard) Authenticate(ctx context.Context, rawToken string) (model.User, error) {
	if rawToken == "" {
		return model.User{}, fmt.Errorf("%w: missing token", model.ErrUnauthenticated)
	}

	claims, err := g.tokenService.ParseAccess(rawToken)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}

	user, err := g.userStore.GetByID(ctx, claims.Subject)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("%w: user not found", model.ErrUnauthenticated)
	}
	if err != nil {
		g.logger.Error("Guard: failed to get user by id",
			"user_id", claims.Subject.String(),
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	if !user.IsActive {
		return model.User{}, fmt.Errorf("%w: account is disabled", model.ErrForbidden)
	}

	return user, nil
}

// RequireRole passes user through when it holds exactly the required role.
func (g *Guard) RequireRole(user model.User, role model.Role) (model.User, error) {
	if user.Role != role {
		return model.User{}, fmt.Errorf("%w: %s role required", model.ErrForbidden, role)
	}
	return user, nil
}
