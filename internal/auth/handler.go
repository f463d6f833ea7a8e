package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/medmentor/backend/internal/models"
)

type ctxKey struct{}

// WithPrincipal stores the caller in ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// UserID returns the authenticated user id, or "" outside the middleware.
func UserID(ctx context.Context) string {
	p, _ := ctx.Value(ctxKey{}).(models.Principal)
	return p.UserID
}

// Middleware rejects requests without a valid "Authorization: Bearer" token.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Missing bearer token"})
				return
			}

			p, err := ParseToken(secret, strings.TrimSpace(raw))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// GetCurrentUser echoes the token's identity.
func GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := r.Context().Value(ctxKey{}).(models.Principal)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
