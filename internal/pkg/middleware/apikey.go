package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

// APIKeyAuth returns a middleware that requires the configured API key
// on every request. The key is read from the X-API-Key header or an
// Authorization bearer token. Paths listed in exempt skip the check so
// health and metrics scrapes keep working.
func APIKeyAuth(key string, exempt []string, next http.Handler) http.Handler {
	exemptSet := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		exemptSet[p] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptSet[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if subtle.ConstantTimeCompare([]byte(requestKey(r)), []byte(key)) != 1 {
			apperrors.WriteError(w, apperrors.UnauthorizedError())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestKey extracts the presented API key from the request.
func requestKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
