package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ndrama/panel-server/internal/api/http/handler"
	"github.com/ndrama/panel-server/internal/logger"
)

// NewRecovery turns a handler panic into a 500 reply.
func NewRecovery(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("Recovery middleware: panic recovered",
					"panic", fmt.Sprint(rec),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()))
				handler.WriteError(w, log, fmt.Errorf("panic: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
