package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpsolver/internal/config"
)

func segment(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(b)
}

func hsToken(t *testing.T, secret string, claims map[string]any) string {
	input := segment(t, map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + segment(t, claims)
	return input + "." + base64.RawURLEncoding.EncodeToString(SignHS256([]byte(secret), []byte(input)))
}

func hmacVerifier() *Verifier {
	cfg := config.Default().Auth
	cfg.Mode = "hmac"
	cfg.HMACSecret = "s3cret"
	v := NewVerifier(cfg)
	v.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return v
}

func TestHeaderModeHasNoVerifier(t *testing.T) {
	assert.Nil(t, NewVerifier(config.Default().Auth))
}

func TestVerifyHMAC(t *testing.T) {
	v := hmacVerifier()

	p, err := v.Verify(context.Background(), hsToken(t, "s3cret", map[string]any{"tenant": "t1", "role": "Admin", "exp": 1_700_000_100}))
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t1", Role: "admin"}, p)

	p, err = v.Verify(context.Background(), hsToken(t, "s3cret", map[string]any{"tenant": "t1"}))
	require.NoError(t, err)
	assert.Equal(t, "user", p.Role)
}

func TestVerifyHMACRejects(t *testing.T) {
	v := hmacVerifier()
	cases := map[string]string{
		"wrong secret":   hsToken(t, "other", map[string]any{"tenant": "t1"}),
		"expired":        hsToken(t, "s3cret", map[string]any{"tenant": "t1", "exp": 1_699_999_999}),
		"not yet valid":  hsToken(t, "s3cret", map[string]any{"tenant": "t1", "nbf": 1_700_000_500}),
		"missing tenant": hsToken(t, "s3cret", map[string]any{"role": "admin"}),
		"malformed":      "abc.def",
		"bad json":       "e30.bm90IGpzb24.c2ln",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVerifyJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	cfg := config.Default().Auth
	cfg.Mode = "jwks"
	cfg.JWKSURL = srv.URL
	v := NewVerifier(cfg)

	sign := func(kid string) string {
		input := segment(t, map[string]string{"alg": "RS256", "kid": kid}) + "." + segment(t, map[string]any{"tenant": "t9", "role": "user"})
		h := sha256.Sum256([]byte(input))
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
		require.NoError(t, err)
		return input + "." + base64.RawURLEncoding.EncodeToString(sig)
	}

	p, err := v.Verify(context.Background(), sign("k1"))
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t9", Role: "user"}, p)
	_, err = v.Verify(context.Background(), sign("k1"))
	require.NoError(t, err)
	assert.Equal(t, 1, fetches, "key set is cached")

	_, err = v.Verify(context.Background(), sign("k2"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = v.Verify(context.Background(), hsToken(t, "x", map[string]any{"tenant": "t9"}))
	assert.ErrorIs(t, err, ErrUnauthorized, "HS256 is refused in jwks mode")
}
