package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ndrama/panel-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

const userColumns = `id, email, name, password_hash, role, oauth_provider, oauth_id, is_active, created_at, updated_at`

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return model.User{}, translateError("get user by email", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return model.User{}, translateError("get user by id", err)
	}
	return user, nil
}

func (r *UserRepository) GetByFederatedID(ctx context.Context, provider, federatedID string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oauth_provider = $1 AND oauth_id = $2`

	user, err := scanUser(r.db.QueryRow(ctx, query, provider, federatedID))
	if err != nil {
		return model.User{}, translateError("get user by federated id", err)
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	if err := user.Validate(); err != nil {
		return model.User{}, err
	}

	query := `INSERT INTO users (id, email, name, password_hash, role, oauth_provider, oauth_id, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING ` + userColumns

	provider, federatedID := federatedColumns(user)
	saved, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role),
		provider, federatedID, user.IsActive, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return model.User{}, translateError("create user", err)
	}
	return saved, nil
}

func (r *UserRepository) Update(ctx context.Context, user model.User) (model.User, error) {
	if err := user.Validate(); err != nil {
		return model.User{}, err
	}

	query := `UPDATE users
			  SET email = $2, name = $3, password_hash = $4, role = $5,
			      oauth_provider = $6, oauth_id = $7, is_active = $8, updated_at = NOW()
			  WHERE id = $1
			  RETURNING ` + userColumns

	provider, federatedID := federatedColumns(user)
	saved, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role),
		provider, federatedID, user.IsActive,
	))
	if err != nil {
		return model.User{}, translateError("update user", err)
	}
	return saved, nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, translateError("list users", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, translateError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("list users", err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var (
		user        model.User
		role        string
		provider    *string
		federatedID *string
	)

	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &role,
		&provider, &federatedID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}

	user.Role, err = model.ParseRole(role)
	if err != nil {
		return model.User{}, fmt.Errorf("corrupt user row %s: %w", user.ID, err)
	}
	if provider != nil && federatedID != nil {
		user.Federated = &model.FederatedIdentity{Provider: *provider, ID: *federatedID}
	}
	return user, nil
}

func federatedColumns(user model.User) (*string, *string) {
	if user.Federated == nil {
		return nil, nil
	}
	return &user.Federated.Provider, &user.Federated.ID
}
