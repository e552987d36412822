package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens on the wire.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims is the verified payload of a token. It is either AccessClaims or
// RefreshClaims; callers switch on the concrete type.
type Claims interface {
	Kind() TokenKind
	sealedClaims()
}

// AccessClaims are carried by short-lived access tokens.
type AccessClaims struct {
	Subject   uuid.UUID
	Role      Role
	ExpiresAt time.Time
}

// Kind implements Claims.
func (AccessClaims) Kind() TokenKind { return TokenKindAccess }
func (AccessClaims) sealedClaims()   {}

// RefreshClaims are carried by long-lived refresh tokens. They name the user
// and nothing else; refresh re-reads the user for the role.
type RefreshClaims struct {
	Subject   uuid.UUID
	ExpiresAt time.Time
}

// Kind implements Claims.
func (RefreshClaims) Kind() TokenKind { return TokenKindRefresh }
func (RefreshClaims) sealedClaims()   {}

// TokenManager issues and verifies signed tokens.
type TokenManager interface {
	Issue(subject uuid.UUID, role Role, kind TokenKind, ttl time.Duration) (string, error)
	Verify(token string) (Claims, error)
}

// TokenPair is the result of every successful authentication.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
