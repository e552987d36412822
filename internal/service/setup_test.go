package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ndrama/panel-server/internal/credential"
	"github.com/ndrama/panel-server/internal/model"
	"github.com/ndrama/panel-server/internal/repository/memory"
	"github.com/ndrama/panel-server/internal/testutil"
	"github.com/ndrama/panel-server/internal/token"
)

type testEnv struct {
	store  *memory.UserRepository
	codec  *token.JWT
	tokens *TokenService
	auth   *Auth
	guard  *Guard
	users  *Users
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	codec, err := token.NewJWT(token.Config{Secret: "test-secret"})
	require.NoError(t, err)

	log := testutil.MakeNoopLogger()
	store := memory.NewUserRepository()
	hasher := credential.NewBcrypt(bcrypt.MinCost)
	tokens := NewTokenService(codec, time.Minute, time.Hour, log)

	return &testEnv{
		store:  store,
		codec:  codec,
		tokens: tokens,
		auth:   NewAuth(store, hasher, tokens, log),
		guard:  NewGuard(store, tokens, log),
		users:  NewUsers(store, hasher, log),
	}
}

func (e *testEnv) decode(t *testing.T, raw string) model.Claims {
	t.Helper()

	claims, err := e.codec.Verify(raw)
	require.NoError(t, err)
	return claims
}
