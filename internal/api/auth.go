package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the conversation, message, interaction and tutor
// routes. /health and /metrics are mounted outside it. Requests whose
// Authorization header does not carry token get a 401 in the API's error
// envelope.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
