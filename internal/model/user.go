package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is a closed set of panel roles.
type Role string

const (
	// RoleAdmin manages users and every catalog resource.
	RoleAdmin Role = "admin"
	// RoleEditor edits catalog content. Default for new accounts.
	RoleEditor Role = "editor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor
}

// ParseRole converts a raw string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
	return r, nil
}

// UserStore defines persistence operations for users.
// Create and Update return ErrConflict when a uniqueness constraint is violated.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByFederatedID(ctx context.Context, provider, federatedID string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, user User) (User, error)
	List(ctx context.Context) ([]User, error)
}

// FederatedIdentity links a user to an account at an external identity provider.
type FederatedIdentity struct {
	Provider string
	ID       string
}

// User represents a panel account.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash *string
	Role         Role
	Federated    *FederatedIdentity
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the user can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Validate checks the invariants every stored user must hold.
func (u User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, u.Role)
	}
	if u.Federated != nil && (u.Federated.Provider == "" || u.Federated.ID == "") {
		return fmt.Errorf("%w: federated provider and id must both be set", ErrValidation)
	}
	if !u.HasPassword() && u.Federated == nil {
		return fmt.Errorf("%w: user needs a password or a federated identity", ErrValidation)
	}
	return nil
}

// FederatedProfile is what an identity provider tells us about a signed-in person.
type FederatedProfile struct {
	Provider    string
	FederatedID string
	Email       string
	DisplayName string
}
