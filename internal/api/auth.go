package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/sequence-engine/internal/pkg/httputil"
)

// ErrUnauthorized is reported when the bearer secret does not match.
var ErrUnauthorized = errors.New("unauthorized")

// bearerAuth rejects requests whose Authorization header is not
// "Bearer <secret>". An empty secret rejects everything.
func bearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r, secret) {
				httputil.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
