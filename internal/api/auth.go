// Package api implements HTTP handlers and helpers for the solver service.
package api

import (
	"context"
	"net/http"
	"strings"
)

const defaultTenant = "t_demo"

type Principal struct {
	Tenant string
	Role   string // admin, user
}

type principalKey struct{}

// getPrincipal returns the principal of a verified bearer token. In header
// mode it reads the tenant and role headers set by the fronting gateway;
// missing headers fall back to the demo tenant with the admin role.
func (s *Server) getPrincipal(r *http.Request) Principal {
	if p, ok := r.Context().Value(principalKey{}).(Principal); ok {
		return p
	}
	tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
	if tenant == "" {
		tenant = defaultTenant
	}
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// publicPaths skip token verification.
var publicPaths = map[string]bool{
	"/healthz":      true,
	"/readyz":       true,
	"/metrics":      true,
	"/openapi.yaml": true,
	"/openapi.json": true,
}

// Authenticate requires a valid bearer token when a verifier is configured.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	if s.Verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token", r.URL.Path)
			return
		}
		p, err := s.Verifier.Verify(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, Principal{Tenant: p.Tenant, Role: p.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
