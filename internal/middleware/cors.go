package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware adds permissive cross-origin headers to every response and
// answers preflight requests.
type CORSMiddleware struct {
	headers map[string]string
}

// NewCORSMiddleware creates a new CORS middleware.
func NewCORSMiddleware() *CORSMiddleware {
	return &CORSMiddleware{
		headers: map[string]string{
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
			"Access-Control-Allow-Headers": strings.Join([]string{
				"Content-Type",
				"Authorization",
				HeaderAPIKey,
				HeaderAPIHost,
				HeaderProxySecret,
			}, ", "),
			"Access-Control-Expose-Headers": "x-ratelimit-requests-limit, x-ratelimit-requests-remaining, x-rapidapi-region",
		},
	}
}

// Handler returns middleware that sets the CORS headers. OPTIONS on any path
// short-circuits with 200 and an empty body, before authentication.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range m.headers {
			w.Header().Set(k, v)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
