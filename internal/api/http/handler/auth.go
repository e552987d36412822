package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/metrics"
	"github.com/ndrama/panel-server/internal/model"
	"github.com/ndrama/panel-server/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthService defines the authentication workflows exposed over HTTP.
type AuthService interface {
	Register(ctx context.Context, params service.RegisterParams) (model.TokenPair, error)
	Login(ctx context.Context, email, password string) (model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
	ResolveFederatedIdentity(ctx context.Context, profile model.FederatedProfile) (model.User, model.TokenPair, error)
}

// OAuthProvider runs the authorization code flow of an identity provider.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (model.FederatedProfile, error)
}

// AuthRecorder counts authentication outcomes.
type AuthRecorder interface {
	RecordAuthEvent(operation, outcome string)
}

// AuthConfig configures the browser-facing parts of the auth handler.
type AuthConfig struct {
	FrontendURL  string
	SecureCookie bool
	NewState     func() (string, error)
}

// Auth handles the /api/auth endpoints.
type Auth struct {
	authService    AuthService
	google         OAuthProvider
	contextManager model.ContextManager
	recorder       AuthRecorder
	config         AuthConfig
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler. google may be nil, in which case the
// Google endpoints answer 404.
func NewAuth(
	authService AuthService,
	google OAuthProvider,
	contextManager model.ContextManager,
	recorder AuthRecorder,
	config AuthConfig,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		authService:    authService,
		google:         google,
		contextManager: contextManager,
		recorder:       recorder,
		config:         config,
		logger:         logger,
	}
}

// Register creates a password account and returns its first token pair.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := bind(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	pair, err := h.authService.Register(r.Context(), service.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	h.record("register", err)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTokenResponse(pair))
}

// Login exchanges email and password for a token pair.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := bind(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	pair, err := h.authService.Login(r.Context(), req.Email, req.Password)
	h.record("login", err)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

// Refresh exchanges a refresh token for a new pair.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := bind(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	h.record("refresh", err)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

// Me returns the authenticated user.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.contextManager.GetUserFromContext(r.Context())
	if !ok {
		WriteError(w, h.logger, model.ErrUnauthenticated)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// GoogleLogin redirects the browser to Google's consent page.
func (h *Auth) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		WriteError(w, h.logger, model.ErrNotFound)
		return
	}

	state, err := h.config.NewState()
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback finishes Google sign-in and hands the token pair to the
// frontend through a redirect.
func (h *Auth) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		WriteError(w, h.logger, model.ErrNotFound)
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || cookie.Value != state {
		h.logger.Info("Auth handler: oauth state mismatch")
		WriteError(w, h.logger, fmt.Errorf("%w: invalid oauth state", model.ErrValidation))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/auth/google", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		WriteError(w, h.logger, fmt.Errorf("%w: missing authorization code", model.ErrValidation))
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("Auth handler: google code exchange failed",
			"error", err.Error())
		h.record("google", err)
		WriteError(w, h.logger, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err))
		return
	}

	_, pair, err := h.authService.ResolveFederatedIdentity(r.Context(), profile)
	h.record("google", err)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	target, err := url.Parse(h.config.FrontendURL)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	target = target.JoinPath("auth", "callback")
	q := target.Query()
	q.Set("access_token", pair.AccessToken)
	q.Set("refresh_token", pair.RefreshToken)
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *Auth) record(operation string, err error) {
	if h.recorder == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	h.recorder.RecordAuthEvent(operation, outcome)
}
