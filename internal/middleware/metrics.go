package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
)

// BasicAuthMiddleware guards operator endpoints such as /metrics with HTTP
// basic authentication.
type BasicAuthMiddleware struct {
	realm    string
	username []byte
	password []byte
}

// NewBasicAuthMiddleware creates a basic auth guard for realm. With both
// username and password empty the guard is a pass-through.
func NewBasicAuthMiddleware(realm, username, password string) *BasicAuthMiddleware {
	return &BasicAuthMiddleware{
		realm:    realm,
		username: []byte(username),
		password: []byte(password),
	}
}

// Enabled reports whether credentials are required.
func (m *BasicAuthMiddleware) Enabled() bool {
	return len(m.username) > 0 || len(m.password) > 0
}

// Handler returns middleware that requires the configured credentials.
func (m *BasicAuthMiddleware) Handler(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}

	challenge := fmt.Sprintf("Basic realm=%q", m.realm)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()

		// Both comparisons always run so timing does not reveal which failed
		userOK := subtle.ConstantTimeCompare([]byte(user), m.username)
		passOK := subtle.ConstantTimeCompare([]byte(pass), m.password)

		if !ok || userOK&passOK != 1 {
			w.Header().Set("WWW-Authenticate", challenge)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
