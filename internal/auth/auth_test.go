package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ovpn-issuer/internal/settings"
)

func init() {
	// bcrypt.MinCost == 4; use minimum cost in tests for speed.
	bcryptCost = 4
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	sm := settings.NewManager(filepath.Join(t.TempDir(), "state.json"))
	return NewManager(sm)
}

func TestEnsureToken_CreatesOnce(t *testing.T) {
	m := newTestManager(t)
	token, created, err := m.EnsureToken()
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, token, 64)

	s, err := m.settings.Get()
	require.NoError(t, err)
	require.NotEmpty(t, s.AuthTokenHash)
	require.NotContains(t, s.AuthTokenHash, token)
	require.False(t, s.AuthTokenRotated.IsZero())

	again, created, err := m.EnsureToken()
	require.NoError(t, err)
	require.False(t, created)
	require.Empty(t, again)
	require.True(t, m.ValidateToken(token))
}

func TestValidateToken(t *testing.T) {
	m := newTestManager(t)
	require.False(t, m.ValidateToken("anything"), "no token configured")

	require.NoError(t, m.SetToken("secret"))
	require.True(t, m.ValidateToken("secret"))
	require.False(t, m.ValidateToken("Secret"))
	require.False(t, m.ValidateToken(""))
}

func TestRotateTokenInvalidatesOld(t *testing.T) {
	m := newTestManager(t)
	first, err := m.RotateToken()
	require.NoError(t, err)
	second, err := m.RotateToken()
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.False(t, m.ValidateToken(first))
	require.True(t, m.ValidateToken(second))
}

func TestRotationFromAnotherProcessTakesEffect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	serve := NewManager(settings.NewManager(path))
	cli := NewManager(settings.NewManager(path))

	old, created, err := serve.EnsureToken()
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, serve.ValidateToken(old))

	rotated, err := cli.RotateToken()
	require.NoError(t, err)
	require.False(t, serve.ValidateToken(old))
	require.True(t, serve.ValidateToken(rotated))
}

func TestSetTokenRejectsEmpty(t *testing.T) {
	m := newTestManager(t)
	require.Error(t, m.SetToken(""))
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetToken("secret"))
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "health is public", path: "/api/health", want: http.StatusNoContent},
		{name: "missing token", path: "/api/clients", want: http.StatusUnauthorized},
		{name: "wrong token", path: "/api/clients", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/api/clients", header: "Basic secret", want: http.StatusUnauthorized},
		{name: "valid token", path: "/api/clients", header: "Bearer secret", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}
