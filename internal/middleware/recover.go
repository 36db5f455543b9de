package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/handler"
)

// RecoverMiddleware turns a handler panic into a 500 error envelope.
type RecoverMiddleware struct {
	logger *slog.Logger
}

// NewRecoverMiddleware creates a new recover middleware.
func NewRecoverMiddleware(logger *slog.Logger) *RecoverMiddleware {
	return &RecoverMiddleware{logger: logger}
}

// Handler returns middleware that recovers panics from next.
func (m *RecoverMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// Let net/http abort the connection as it would without us.
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			m.logger.Error("panic recovered",
				"panic", fmt.Sprint(rec),
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			err := domain.Wrap(fmt.Errorf("panic: %v", rec), domain.EUPSTREAM, domain.ReasonInternal,
				"router", "An unexpected error occurred").
				WithDetails("Please try again later")
			handler.ErrorResponse(w, r, m.logger, err)
		}()

		next.ServeHTTP(w, r)
	})
}
