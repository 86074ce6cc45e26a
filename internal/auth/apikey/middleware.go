package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/logger"
)

type contextKey struct{}

// Auth returns middleware that requires a valid API key, read from
// "Authorization: Bearer <key>" or the X-API-Key header.
func Auth(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := validator.Validate(r.Context(), extractAPIKey(r))
			if err != nil {
				switch {
				case errors.Is(err, ErrMissingKey):
					writeError(w, http.StatusUnauthorized, "missing api key")
				case errors.Is(err, ErrInvalidKey):
					logger.FromContext(r.Context()).Warn("rejected api key", "path", r.URL.Path)
					writeError(w, http.StatusUnauthorized, "invalid api key")
				default:
					logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
					writeError(w, http.StatusInternalServerError, "authentication error")
				}
				return
			}
			logger.FromContext(r.Context()).Info("admin request", "key", info.Name, "path", r.URL.Path)
			ctx := context.WithValue(r.Context(), contextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyInfoFrom returns the key that authenticated the request, if any.
func KeyInfoFrom(ctx context.Context) *KeyInfo {
	info, _ := ctx.Value(contextKey{}).(*KeyInfo)
	return info
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="portal-admin"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
