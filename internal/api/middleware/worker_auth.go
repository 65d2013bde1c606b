package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/edvin/batchctl/internal/api/response"
)

// WorkerAuth returns a middleware guarding the worker event endpoint with a
// shared bearer token. An empty configured token disables the check, for
// local development only.
func WorkerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				response.WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				response.WriteError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
