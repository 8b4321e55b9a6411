// Package api implements the tenantdesk REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// UserHeader names the acting user recorded on approvals. It is honoured
// only for credentials that do not carry a user of their own.
const UserHeader = "X-User-ID"

// Credential is what a bearer token grants. An empty TenantID grants every
// tenant; a non-empty UserID is the acting user of every write made with it.
type Credential struct {
	TenantID string
	UserID   string
}

// Auth configures AuthMiddleware. Token is the shared operator token and
// grants every tenant; Tenants maps tenant-bound tokens to their credential.
type Auth struct {
	Enabled bool
	Token   string
	Tenants map[string]Credential
}

func (a Auth) lookup(token string) (Credential, bool) {
	if token == "" {
		return Credential{}, false
	}
	if a.Token != "" && token == a.Token {
		return Credential{}, true
	}
	c, ok := a.Tenants[token]
	return c, ok
}

type credentialKey struct{}

func credentialFrom(ctx context.Context) Credential {
	c, _ := ctx.Value(credentialKey{}).(Credential)
	return c
}

// AuthMiddleware returns middleware that validates a Bearer token and stores
// its credential in the request context. If auth is disabled, all requests
// pass through with an unrestricted credential.
func AuthMiddleware(auth Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			cred, ok := auth.lookup(strings.TrimPrefix(header, "Bearer "))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), credentialKey{}, cred)))
		})
	}
}

// TenantScope rejects requests for a {tenantID} the credential is not bound to.
func TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := credentialFrom(r.Context())
		if cred.TenantID != "" && cred.TenantID != chi.URLParam(r, "tenantID") {
			writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets the browser hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// userID is the acting user: the credential's own user when it has one,
// otherwise the X-User-ID header.
func userID(r *http.Request) string {
	if u := credentialFrom(r.Context()).UserID; u != "" {
		return u
	}
	return strings.TrimSpace(r.Header.Get(UserHeader))
}
