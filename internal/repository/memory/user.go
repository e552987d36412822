package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ndrama/panel-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

// UserRepository is a process-local UserStore. It enforces the same uniqueness
// rules as the Postgres schema, atomically under one lock.
type UserRepository struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]model.User
	byEmail   map[string]uuid.UUID
	federated map[model.FederatedIdentity]uuid.UUID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:     make(map[uuid.UUID]model.User),
		byEmail:   make(map[string]uuid.UUID),
		federated: make(map[model.FederatedIdentity]uuid.UUID),
	}
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return clone(r.users[id]), nil
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return clone(u), nil
}

func (r *UserRepository) GetByFederatedID(_ context.Context, provider, federatedID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.federated[model.FederatedIdentity{Provider: provider, ID: federatedID}]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return clone(r.users[id]), nil
}

func (r *UserRepository) Create(_ context.Context, user model.User) (model.User, error) {
	if err := user.Validate(); err != nil {
		return model.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return model.User{}, model.ErrConflict
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return model.User{}, model.ErrConflict
	}
	if user.Federated != nil {
		if _, ok := r.federated[*user.Federated]; ok {
			return model.User{}, model.ErrConflict
		}
	}

	r.store(clone(user))
	return clone(user), nil
}

func (r *UserRepository) Update(_ context.Context, user model.User) (model.User, error) {
	if err := user.Validate(); err != nil {
		return model.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.users[user.ID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	if id, ok := r.byEmail[user.Email]; ok && id != user.ID {
		return model.User{}, model.ErrConflict
	}
	if user.Federated != nil {
		if id, ok := r.federated[*user.Federated]; ok && id != user.ID {
			return model.User{}, model.ErrConflict
		}
	}

	delete(r.byEmail, prev.Email)
	if prev.Federated != nil {
		delete(r.federated, *prev.Federated)
	}
	user.CreatedAt = prev.CreatedAt
	r.store(clone(user))
	return clone(user), nil
}

func (r *UserRepository) List(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, clone(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *UserRepository) store(user model.User) {
	r.users[user.ID] = user
	r.byEmail[user.Email] = user.ID
	if user.Federated != nil {
		r.federated[*user.Federated] = user.ID
	}
}

// clone copies pointer fields so callers cannot mutate stored state.
func clone(u model.User) model.User {
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		u.PasswordHash = &h
	}
	if u.Federated != nil {
		f := *u.Federated
		u.Federated = &f
	}
	return u
}
