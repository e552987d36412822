package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndrama/panel-server/internal/model"
)

func newTestJWT(t *testing.T, opts ...Option) *JWT {
	t.Helper()
	j, err := NewJWT(Config{Secret: "secret"}, opts...)
	require.NoError(t, err)
	return j
}

func TestNewJWT_EmptySecret(t *testing.T) {
	_, err := NewJWT(Config{})
	require.Error(t, err)
}

func TestJWT_AccessToken_Roundtrip(t *testing.T) {
	j := newTestJWT(t)
	u := uuid.New()

	access, err := j.Issue(u, model.RoleAdmin, model.TokenKindAccess, 15*time.Minute)
	require.NoError(t, err)

	claims, err := j.Verify(access)
	require.NoError(t, err)
	got, ok := claims.(model.AccessClaims)
	require.True(t, ok)
	assert.Equal(t, u, got.Subject)
	assert.Equal(t, model.RoleAdmin, got.Role)
	assert.Equal(t, model.TokenKindAccess, got.Kind())
}

func TestJWT_RefreshToken_Roundtrip(t *testing.T) {
	j := newTestJWT(t)
	u := uuid.New()

	refresh, err := j.Issue(u, model.RoleEditor, model.TokenKindRefresh, 7*24*time.Hour)
	require.NoError(t, err)

	claims, err := j.Verify(refresh)
	require.NoError(t, err)
	got, ok := claims.(model.RefreshClaims)
	require.True(t, ok)
	assert.Equal(t, u, got.Subject)
	assert.Equal(t, model.TokenKindRefresh, got.Kind())

	raw := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(refresh, raw)
	require.NoError(t, err)
	assert.NotContains(t, raw, "role")
	assert.ElementsMatch(t, []string{"sub", "exp", "iat", "type"}, mapKeys(raw))
}

func mapKeys(m jwt.MapClaims) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestJWT_IssueTwice_BothVerify(t *testing.T) {
	j := newTestJWT(t)
	u := uuid.New()

	first, err := j.Issue(u, model.RoleEditor, model.TokenKindAccess, time.Minute)
	require.NoError(t, err)
	second, err := j.Issue(u, model.RoleEditor, model.TokenKindAccess, 2*time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = j.Verify(first)
	require.NoError(t, err)
	_, err = j.Verify(second)
	require.NoError(t, err)
}

func TestJWT_Expired(t *testing.T) {
	j := newTestJWT(t)

	tok, err := j.Issue(uuid.New(), model.RoleEditor, model.TokenKindAccess, -1)
	require.NoError(t, err)

	_, err = j.Verify(tok)
	require.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestJWT_ExpiresWithClock(t *testing.T) {
	now := time.Now()
	issuer := newTestJWT(t, WithClock(func() time.Time { return now }))
	tok, err := issuer.Issue(uuid.New(), model.RoleEditor, model.TokenKindAccess, 15*time.Minute)
	require.NoError(t, err)

	later := newTestJWT(t, WithClock(func() time.Time { return now.Add(16 * time.Minute) }))
	_, err = later.Verify(tok)
	require.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestJWT_Verify_Rejects(t *testing.T) {
	j := newTestJWT(t)
	u := uuid.New()

	valid, err := j.Issue(u, model.RoleEditor, model.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	otherKey := newTestJWTWithSecret(t, "other")
	foreign, err := otherKey.Issue(u, model.RoleAdmin, model.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.String(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		Role:             "admin",
		Type:             "access",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	unknownType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.String(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		Type:             "session",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		Role:             "editor",
		Type:             "access",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.String()},
		Role:             "editor",
		Type:             "access",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "not.a.jwt"},
		{name: "tampered", token: valid[:len(valid)-2] + "xx"},
		{name: "foreign secret", token: foreign},
		{name: "alg none", token: none},
		{name: "unknown type", token: unknownType},
		{name: "non uuid subject", token: badSubject},
		{name: "missing exp", token: noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := j.Verify(tt.token)
			require.ErrorIs(t, err, model.ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWT_Issue_UnknownKind(t *testing.T) {
	j := newTestJWT(t)
	_, err := j.Issue(uuid.New(), model.RoleEditor, model.TokenKind("session"), time.Minute)
	require.Error(t, err)
}

func newTestJWTWithSecret(t *testing.T, secret string) *JWT {
	t.Helper()
	j, err := NewJWT(Config{Secret: secret})
	require.NoError(t, err)
	return j
}
