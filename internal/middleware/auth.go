// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/genapi/internal/auth"
	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/handler"
)

// Reseller gateway headers.
const (
	HeaderAPIKey      = "X-RapidAPI-Key"
	HeaderAPIHost     = "X-RapidAPI-Host"
	HeaderProxySecret = "X-RapidAPI-Proxy-Secret"
)

// =============================================================================
// RapidAPI Caller Authentication
// =============================================================================

// RapidAPIAuth authenticates callers by the headers the RapidAPI gateway
// forwards. The key identifies the caller; it is never validated against a
// key store, the gateway has already done that.
type RapidAPIAuth struct {
	proxySecret string
	logger      *slog.Logger
}

// NewRapidAPIAuth creates a new RapidAPIAuth. When proxySecret is non-empty
// every request must also carry a matching X-RapidAPI-Proxy-Secret.
func NewRapidAPIAuth(proxySecret string, logger *slog.Logger) *RapidAPIAuth {
	return &RapidAPIAuth{
		proxySecret: proxySecret,
		logger:      logger,
	}
}

// RequireCaller is middleware that rejects requests without reseller headers
// and stores the caller in the request context.
//
// Checks run in order: key, host, proxy secret. The caller can be retrieved
// in handlers using:
//
//	caller := auth.GetCallerFromRequest(r)
func (m *RapidAPIAuth) RequireCaller(next http.Handler) http.Handler {
	const op = "auth.require_caller"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
		if key == "" {
			handler.ErrorResponse(w, r, m.logger,
				domain.Unauthorized(op, domain.ReasonMissingAPIKey, "Missing X-RapidAPI-Key header").
					WithDetails("This API requires a valid RapidAPI key"))
			return
		}

		host := strings.TrimSpace(r.Header.Get(HeaderAPIHost))
		if host == "" {
			handler.ErrorResponse(w, r, m.logger,
				domain.Unauthorized(op, domain.ReasonMissingAPIHost, "Missing X-RapidAPI-Host header").
					WithDetails("This API requires a valid RapidAPI host header"))
			return
		}

		if m.proxySecret != "" {
			got := r.Header.Get(HeaderProxySecret)
			// Use constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(got), []byte(m.proxySecret)) != 1 {
				m.logger.Warn("proxy secret mismatch",
					"ip", getClientIP(r),
					"path", r.URL.Path,
				)
				handler.ErrorResponse(w, r, m.logger,
					domain.Unauthorized(op, domain.ReasonInvalidProxySecret, "Invalid proxy secret").
						WithDetails("Requests must be routed through RapidAPI"))
				return
			}
		}

		caller := &auth.Caller{
			ID:   auth.Fingerprint(key),
			Host: host,
		}
		next.ServeHTTP(w, r.WithContext(auth.SetCaller(r.Context(), caller)))
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(recoverMw, metrics.Middleware, loggingMw.Handler, cors.Handler)
//	server.Handler = stack(mux)
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&RapidAPIAuth{}).RequireCaller
	_ func(http.Handler) http.Handler = (&CORSMiddleware{}).Handler
	_ func(http.Handler) http.Handler = (&RecoverMiddleware{}).Handler
)
