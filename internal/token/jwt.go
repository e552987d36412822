package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ndrama/panel-server/internal/model"
)

// Config holds the signing material for JWT. It is immutable once passed to NewJWT.
type Config struct {
	Secret string
}

// Claims is the wire representation of a token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
	Type string `json:"type"`
}

var _ model.TokenManager = (*JWT)(nil)

// JWT implements TokenManager backed by HMAC-SHA256.
type JWT struct {
	secret []byte
	now    func() time.Time
}

// Option customises a JWT manager.
type Option func(*JWT)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(j *JWT) { j.now = now }
}

// NewJWT creates a token manager signing with cfg.Secret.
func NewJWT(cfg Config, opts ...Option) (*JWT, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	j := &JWT{
		secret: []byte(cfg.Secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Issue signs a token of the given kind for subject. A non-positive ttl yields
// an already expired token.
func (j *JWT) Issue(subject uuid.UUID, role model.Role, kind model.TokenKind, ttl time.Duration) (string, error) {
	if kind != model.TokenKindAccess && kind != model.TokenKindRefresh {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: string(kind),
	}
	// Refresh tokens identify the user only.
	if kind == model.TokenKindAccess {
		claims.Role = string(role)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return tokenString, nil
}

// Verify checks signature and expiry and decodes the payload into
// model.AccessClaims or model.RefreshClaims. Every failure wraps model.ErrInvalidToken.
func (j *JWT) Verify(tokenString string) (model.Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", model.ErrInvalidToken)
	}
	expiresAt := claims.ExpiresAt.Time

	switch model.TokenKind(claims.Type) {
	case model.TokenKindAccess:
		role := model.Role(claims.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: bad role claim", model.ErrInvalidToken)
		}
		return model.AccessClaims{Subject: subject, Role: role, ExpiresAt: expiresAt}, nil
	case model.TokenKindRefresh:
		return model.RefreshClaims{Subject: subject, ExpiresAt: expiresAt}, nil
	default:
		return nil, fmt.Errorf("%w: token type %q", model.ErrInvalidToken, claims.Type)
	}
}
