package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpsolver/internal/auth"
	"cvrpsolver/internal/config"
)

func bearer(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	input := enc(map[string]string{"alg": "HS256"}) + "." + enc(claims)
	return "Bearer " + input + "." + base64.RawURLEncoding.EncodeToString(auth.SignHS256([]byte(secret), []byte(input)))
}

func TestHeaderPrincipal(t *testing.T) {
	s := &Server{}
	r := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	assert.Equal(t, Principal{Tenant: defaultTenant, Role: "admin"}, s.getPrincipal(r))

	r.Header.Set("X-Tenant-Id", " t1 ")
	r.Header.Set("X-Role", "User")
	p := s.getPrincipal(r)
	assert.Equal(t, Principal{Tenant: "t1", Role: "user"}, p)
	assert.False(t, p.IsAdmin())
}

func TestAuthenticateBearer(t *testing.T) {
	cfg := config.Default()
	cfg.Workers.PoolSize = 1
	cfg.Auth.Mode = "hmac"
	cfg.Auth.HMACSecret = "s3cret"
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(time.Second) })
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil, nil).Code)

	rr := do(t, h, http.MethodGet, "/v1/runs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	forged := map[string]string{"Authorization": bearer(t, "wrong", map[string]any{"tenant": "t1"})}
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/runs", nil, forged).Code)

	// headers are ignored once a token is verified
	user := map[string]string{
		"Authorization": bearer(t, "s3cret", map[string]any{"tenant": "t1", "role": "user"}),
		"X-Role":        "admin",
	}
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/runs", nil, user).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/v1/admin/optimizer/config", nil, user).Code)
}
