package handler

import (
	"context"

	"github.com/ndrama/panel-server/internal/model"
	"github.com/ndrama/panel-server/internal/service"
)

type fakeAuthService struct {
	register func(ctx context.Context, params service.RegisterParams) (model.TokenPair, error)
	login    func(ctx context.Context, email, password string) (model.TokenPair, error)
	refresh  func(ctx context.Context, refreshToken string) (model.TokenPair, error)
	resolve  func(ctx context.Context, profile model.FederatedProfile) (model.User, model.TokenPair, error)
}

func (f *fakeAuthService) Register(ctx context.Context, params service.RegisterParams) (model.TokenPair, error) {
	return f.register(ctx, params)
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (model.TokenPair, error) {
	return f.login(ctx, email, password)
}

func (f *fakeAuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	return f.refresh(ctx, refreshToken)
}

func (f *fakeAuthService) ResolveFederatedIdentity(ctx context.Context, profile model.FederatedProfile) (model.User, model.TokenPair, error) {
	return f.resolve(ctx, profile)
}

type fakeProvider struct {
	profile model.FederatedProfile
	err     error
	codes   []string
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (model.FederatedProfile, error) {
	f.codes = append(f.codes, code)
	return f.profile, f.err
}

type fakeRecorder struct {
	events map[string]int
}

func (f *fakeRecorder) RecordAuthEvent(operation, outcome string) {
	if f.events == nil {
		f.events = map[string]int{}
	}
	f.events[operation+"/"+outcome]++
}
