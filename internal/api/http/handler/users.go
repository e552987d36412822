package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
	"github.com/ndrama/panel-server/internal/service"
)

// UserService defines account administration operations.
type UserService interface {
	List(ctx context.Context) ([]model.User, error)
	Get(ctx context.Context, id uuid.UUID) (model.User, error)
	Invite(ctx context.Context, params service.InviteParams) (model.User, error)
	ChangeRole(ctx context.Context, id uuid.UUID, role model.Role) (model.User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (model.User, error)
}

// Users handles the admin-only /api/users endpoints.
type Users struct {
	userService UserService
	logger      *logger.Logger
}

// NewUsers creates a new Users handler.
func NewUsers(userService UserService, logger *logger.Logger) *Users {
	return &Users{userService: userService, logger: logger}
}

// List returns every account, newest first.
func (h *Users) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserListResponse(users))
}

// Get returns the user in the path.
func (h *Users) Get(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	user, err := h.userService.Get(r.Context(), id)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// Invite creates an account with a password chosen by the admin.
func (h *Users) Invite(w http.ResponseWriter, r *http.Request) {
	var req InviteUserRequest
	if err := bind(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	user, err := h.userService.Invite(r.Context(), service.InviteParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     model.Role(req.Role),
	})
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("Users handler: user invited",
		"user_id", user.ID.String())

	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

// ChangeRole sets the role of the user in the path.
func (h *Users) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	var req ChangeRoleRequest
	if err := bind(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	user, err := h.userService.ChangeRole(r.Context(), id, role)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// SetActive enables or disables the user in the path.
func (h *Users) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	var req ChangeActiveRequest
	if err := bind(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	user, err := h.userService.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid user id", model.ErrValidation)
	}
	return id, nil
}
