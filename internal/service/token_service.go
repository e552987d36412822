package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService issues access/refresh pairs and parses tokens of a required kind.
type TokenService struct {
	manager    model.TokenManager
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *logger.Logger
}

// NewTokenService creates a TokenService. Zero TTLs are replaced by the defaults.
func NewTokenService(manager model.TokenManager, accessTTL, refreshTTL time.Duration, logger *logger.Logger) *TokenService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		manager:    manager,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// Issue signs a fresh pair. Only the access token carries the role.
func (s *TokenService) Issue(user model.User) (model.TokenPair, error) {
	access, err := s.manager.Issue(user.ID, user.Role, model.TokenKindAccess, s.accessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access: %w", err)
	}

	refresh, err := s.manager.Issue(user.ID, "", model.TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue refresh: %w", err)
	}

	s.logger.Debug("Token service: issued token pair",
		"user_id", user.ID.String(),
		"role", string(user.Role))

	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccess verifies token and requires it to be an access token.
func (s *TokenService) ParseAccess(token string) (model.AccessClaims, error) {
	claims, err := s.manager.Verify(token)
	if err != nil {
		return model.AccessClaims{}, ensureInvalidToken(err)
	}

	access, ok := claims.(model.AccessClaims)
	if !ok {
		return model.AccessClaims{}, fmt.Errorf("%w: expected access token, got %s", model.ErrInvalidToken, claims.Kind())
	}
	return access, nil
}

// ParseRefresh verifies token and requires it to be a refresh token.
func (s *TokenService) ParseRefresh(token string) (model.RefreshClaims, error) {
	claims, err := s.manager.Verify(token)
	if err != nil {
		return model.RefreshClaims{}, ensureInvalidToken(err)
	}

	refresh, ok := claims.(model.RefreshClaims)
	if !ok {
		return model.RefreshClaims{}, fmt.Errorf("%w: expected refresh token, got %s", model.ErrInvalidToken, claims.Kind())
	}
	return refresh, nil
}

func ensureInvalidToken(err error) error {
	if errors.Is(err, model.ErrInvalidToken) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
}
