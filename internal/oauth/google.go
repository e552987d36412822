// Package oauth signs users in through external identity providers.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ndrama/panel-server/internal/model"
)

// ProviderGoogle is the provider name stored on federated identities.
const ProviderGoogle = "google"

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var ErrMissingProfile = errors.New("provider returned an incomplete profile")

// Config holds OAuth client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Google implements the authorization code flow against Google.
type Google struct {
	conf        *oauth2.Config
	userInfoURL string
}

type Option func(*Google)

// WithEndpoint points the provider at alternative token and userinfo
// endpoints.
func WithEndpoint(endpoint oauth2.Endpoint, userInfoURL string) Option {
	return func(g *Google) {
		g.conf.Endpoint = endpoint
		g.userInfoURL = userInfoURL
	}
}

func NewGoogle(cfg Config, opts ...Option) *Google {
	g := &Google{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthCodeURL returns the consent page URL carrying state.
func (g *Google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state)
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

// Exchange trades an authorization code for the signed-in user's profile.
func (g *Google) Exchange(ctx context.Context, code string) (model.FederatedProfile, error) {
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return model.FederatedProfile{}, fmt.Errorf("failed to exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return model.FederatedProfile{}, fmt.Errorf("failed to build userinfo request: %w", err)
	}

	resp, err := g.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return model.FederatedProfile{}, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.FederatedProfile{}, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return model.FederatedProfile{}, fmt.Errorf("failed to decode userinfo: %w", err)
	}

	if info.Sub == "" || info.Email == "" {
		return model.FederatedProfile{}, ErrMissingProfile
	}
	// Linking trusts the email, so an unverified one is not accepted.
	if info.EmailVerified == nil || !*info.EmailVerified {
		return model.FederatedProfile{}, fmt.Errorf("%w: email not verified", ErrMissingProfile)
	}

	return model.FederatedProfile{
		Provider:    ProviderGoogle,
		FederatedID: info.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
	}, nil
}

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
