package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ndrama/panel-server/internal/api/http/handler"
	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
)

// Guard resolves bearer tokens to users and checks roles.
type Guard interface {
	Authenticate(ctx context.Context, rawToken string) (model.User, error)
	RequireRole(user model.User, role model.Role) (model.User, error)
}

// Authenticate validates bearer tokens and injects the user into context.
type Authenticate struct {
	guard          Guard
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(guard Guard, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{guard: guard, contextManager: contextManager, logger: logger}
}

// Handle rejects requests without a valid access token.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.guard.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			m.logger.Debug("Authenticate middleware: request rejected",
				"path", r.URL.Path,
				"error", err.Error())
			handler.WriteError(w, m.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(m.contextManager.SetUserToContext(r.Context(), user)))
	})
}

// RequireRole lets through only users holding role. It must run after Handle.
func (m *Authenticate) RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := m.contextManager.GetUserFromContext(r.Context())
			if !ok {
				handler.WriteError(w, m.logger, model.ErrUnauthenticated)
				return
			}

			if _, err := m.guard.RequireRole(user, role); err != nil {
				m.logger.Info("Authenticate middleware: role check failed",
					"user_id", user.ID.String(),
					"required_role", string(role))
				handler.WriteError(w, m.logger, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
