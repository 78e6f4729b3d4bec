// Package auth verifies bearer JWTs and extracts the tenant and role claims.
package auth

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"cvrpsolver/internal/config"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Verifier validates HS256 tokens against a shared secret or RS256 tokens
// against keys from a JWKS URL.
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	JWKSURL     string
	TenantClaim string
	RoleClaim   string
	Now         func() time.Time

	http      *http.Client
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // kid -> key
	lastFetch time.Time
	cacheTTL  time.Duration
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type Principal struct {
	Tenant string
	Role   string
}

// NewVerifier returns nil in header mode, where no token is checked.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	if cfg.Mode == "" || cfg.Mode == "header" {
		return nil
	}
	return &Verifier{
		Mode:        cfg.Mode,
		HMACSecret:  []byte(cfg.HMACSecret),
		JWKSURL:     cfg.JWKSURL,
		TenantClaim: cfg.TenantClaim,
		RoleClaim:   cfg.RoleClaim,
		Now:         time.Now,
		http:        &http.Client{Timeout: 5 * time.Second},
		cacheTTL:    10 * time.Minute,
	}
}

// Verify checks the signature and time claims of token and returns its principal.
func (v *Verifier) Verify(ctx context.Context, token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, fmt.Errorf("%w: malformed token", ErrUnauthorized)
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature encoding", ErrUnauthorized)
	}
	signingInput := []byte(segs[0] + "." + segs[1])
	switch v.Mode {
	case "hmac":
		if hdr.Alg != "HS256" {
			return Principal{}, fmt.Errorf("%w: alg %q not allowed", ErrUnauthorized, hdr.Alg)
		}
		if !hmac.Equal(SignHS256(v.HMACSecret, signingInput), sig) {
			return Principal{}, fmt.Errorf("%w: bad signature", ErrUnauthorized)
		}
	case "jwks":
		if hdr.Alg != "RS256" {
			return Principal{}, fmt.Errorf("%w: alg %q not allowed", ErrUnauthorized, hdr.Alg)
		}
		pub, err := v.publicKey(ctx, hdr.Kid)
		if err != nil {
			return Principal{}, err
		}
		h := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return Principal{}, fmt.Errorf("%w: bad signature", ErrUnauthorized)
		}
	default:
		return Principal{}, fmt.Errorf("%w: unsupported mode %q", ErrUnauthorized, v.Mode)
	}
	now := v.Now().Unix()
	if exp, ok := claims["exp"].(float64); ok && now >= int64(exp) {
		return Principal{}, fmt.Errorf("%w: token expired", ErrUnauthorized)
	}
	if nbf, ok := claims["nbf"].(float64); ok && now < int64(nbf) {
		return Principal{}, fmt.Errorf("%w: token not yet valid", ErrUnauthorized)
	}
	tenant, _ := claims[v.TenantClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if tenant == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrUnauthorized, v.TenantClaim)
	}
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

// SignHS256 returns the HS256 MAC of a JWT signing input.
func SignHS256(secret, signingInput []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(signingInput)
	return mac.Sum(nil)
}

func decodeSegment(seg string, v any) error {
	b, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return fmt.Errorf("%w: segment encoding", ErrUnauthorized)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: segment json", ErrUnauthorized)
	}
	return nil
}

// publicKey looks kid up in the cached key set, refetching when stale or unknown.
func (v *Verifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if ok && !stale {
		return key, nil
	}
	if err := v.fetchJWKS(ctx); err != nil {
		klog.FromContext(ctx).Error(err, "refresh JWKS", "url", v.JWKSURL)
		if ok {
			return key, nil
		}
		return nil, fmt.Errorf("%w: key set unavailable", ErrUnauthorized)
	}
	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: kid %q not found", ErrUnauthorized, kid)
	}
	return key, nil
}

func (v *Verifier) fetchJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: HTTP %d", resp.StatusCode)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return fmt.Errorf("jwks: key %s: %w", k.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return fmt.Errorf("jwks: key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
