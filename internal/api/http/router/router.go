package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ndrama/panel-server/internal/api/http/handler"
	"github.com/ndrama/panel-server/internal/api/http/middleware"
	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/model"
)

// Deps collects everything the router wires into handlers and middleware.
// TrustProxyHeaders enables chi's RealIP, which rewrites RemoteAddr from
// client-supplied forwarding headers; rate limiting keys on RemoteAddr.
type Deps struct {
	AuthService       handler.AuthService
	UserService       handler.UserService
	Guard             middleware.Guard
	Google            handler.OAuthProvider
	ContextManager    model.ContextManager
	Pinger            handler.Pinger
	Metrics           Metrics
	MetricsHandler    http.Handler
	RateLimiter       *middleware.RateLimiter
	AuthConfig        handler.AuthConfig
	AllowedOrigin     string
	TrustProxyHeaders bool
	Logger            *logger.Logger
}

// Metrics is satisfied by the Prometheus collector.
type Metrics interface {
	middleware.RequestRecorder
	handler.AuthRecorder
}

// Router builds the HTTP API.
type Router struct {
	deps Deps
}

// New creates new HTTP Router instance.
func New(deps Deps) *Router {
	return &Router{deps: deps}
}

// Register builds the chi mux with the full middleware chain and all routes.
func (rt *Router) Register() http.Handler {
	d := rt.deps

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if d.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecovery(d.Logger))
	r.Use(middleware.NewLogging(d.Logger).Handle)
	if d.Metrics != nil {
		r.Use(middleware.NewMetrics(d.Metrics))
	}
	r.Use(middleware.NewCORS(d.AllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		handler.WriteError(w, d.Logger, model.ErrNotFound)
	})

	health := handler.NewHealth(d.Pinger, d.Logger)
	r.Get("/health", health.Check)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	var recorder handler.AuthRecorder
	if d.Metrics != nil {
		recorder = d.Metrics
	}
	authHandler := handler.NewAuth(d.AuthService, d.Google, d.ContextManager, recorder, d.AuthConfig, d.Logger)
	usersHandler := handler.NewUsers(d.UserService, d.Logger)
	authenticate := middleware.NewAuthenticate(d.Guard, d.ContextManager, d.Logger)

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.RateLimiter != nil {
				r.Use(d.RateLimiter.Handle)
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		r.With(authenticate.Handle).Get("/me", authHandler.Me)

		r.Get("/google", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(authenticate.Handle)
		r.Use(authenticate.RequireRole(model.RoleAdmin))

		r.Get("/", usersHandler.List)
		r.Get("/{id}", usersHandler.Get)
		r.Post("/invite", usersHandler.Invite)
		r.Patch("/{id}/role", usersHandler.ChangeRole)
		r.Patch("/{id}/active", usersHandler.SetActive)
	})

	return r
}
