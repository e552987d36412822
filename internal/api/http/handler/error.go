package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{model.ErrValidation, http.StatusUnprocessableEntity, "validation_error", ""},
	{model.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{model.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "Invalid or expired token"},
	{model.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Not authenticated"},
	{model.ErrAccountDisabled, http.StatusForbidden, "account_disabled", "Account is disabled"},
	{model.ErrForbidden, http.StatusForbidden, "forbidden", "Insufficient permissions"},
	{model.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found"},
	{model.ErrConflict, http.StatusConflict, "conflict", "Resource already exists"},
}

// WriteError translates err into a status code and error body. Errors with
// no domain meaning become a 500 and are logged.
func WriteError(w http.ResponseWriter, log *logger.Logger, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		writeJSON(w, m.status, ErrorResponse{Code: m.code, Message: message})
		return
	}

	log.Error("HTTP handler: unhandled error",
		"error", err.Error())
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    "internal_error",
		Message: "internal server error",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", model.ErrValidation)
	}
	return nil
}
