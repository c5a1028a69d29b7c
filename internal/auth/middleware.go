package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tmail/internal/biz"
)

// ProfileLookup resolves an API token to its user.
type ProfileLookup interface {
	Profile(ctx context.Context, token string) (*biz.UserProfile, error)
}

// BearerMiddleware rejects requests without a known `Authorization: Bearer <token>`
// and puts the token's user into the request context.
func BearerMiddleware(lookup ProfileLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}

			user, err := lookup.Profile(r.Context(), token)
			if errors.Is(err, biz.ErrUnauthorized) {
				writeUnauthorized(w)
				return
			}
			if err != nil {
				// 令牌存储故障
				slog.Error("token lookup failed", "component", "auth", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// ExtractBearerToken returns the token of a "Bearer <token>" header, or "".
func ExtractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, biz.ErrUnauthorized.Error())
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
