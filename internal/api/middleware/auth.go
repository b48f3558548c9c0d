package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/2029ijones-sudo/os-lab/internal/identity"
)

type ctxKeyUser struct{}

// Auth resolves the bearer token to a user id and rejects requests
// without a valid one.
func Auth(verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, "missing bearer token")
				return
			}
			uid, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUser{}, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the authenticated user id, or "" outside Auth.
func GetUser(r *http.Request) string {
	if uid, ok := r.Context().Value(ctxKeyUser{}).(string); ok {
		return uid
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	// Browser clients (WebSocket, EventSource) cannot set headers.
	return r.URL.Query().Get("token")
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    "OSLAB_PERMISSION_DENIED",
		"message": msg,
	})
}
