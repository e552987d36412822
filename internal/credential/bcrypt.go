package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ndrama/panel-server/internal/model"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

var (
	ErrEmptyPassword   = fmt.Errorf("%w: password must not be empty", model.ErrValidation)
	ErrPasswordTooLong = fmt.Errorf("%w: password must not exceed %d bytes", model.ErrValidation, maxPasswordBytes)
)

var _ model.PasswordHasher = (*Bcrypt)(nil)

// Bcrypt hashes passwords with a per-call random salt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a hasher with the given work factor. Out of range values
// fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt digest of plaintext.
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Verify reports whether plaintext matches digest. Malformed digests never match.
func (b *Bcrypt) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
