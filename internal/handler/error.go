package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/genapi/internal/domain"
)

// ErrorResponse writes an error envelope to the client.
// It maps domain error classes to HTTP status codes and merges the error's
// details and attributes into the envelope's error object.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	// Extract structured info from error
	code := domain.ErrorCode(err)
	reason := domain.ErrorReason(err)
	op := domain.ErrorOp(err)

	// Map to HTTP status
	status := ErrorCodeToHTTPStatus(code)

	// Log error with context
	logError(logger, r, err, code, reason, op, status)

	body := map[string]any{
		"code":    reason,
		"message": domain.ErrorMessage(err),
	}
	if details := domain.ErrorDetails(err); details != "" {
		body["details"] = details
	}
	for k, v := range domain.ErrorAttrs(err) {
		if _, reserved := body[k]; reserved || k == "details" {
			continue
		}
		body[k] = v
	}

	if secs, ok := retryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	writeJSON(w, status, Envelope{Success: false, Error: body})
}

// ErrorCodeToHTTPStatus maps domain error classes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EUPSTREAM, domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// NotFoundResponse answers a request no route handles.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.NotFound("router", domain.ReasonEndpointNotFound, "Endpoint not found").
		WithDetails("%s %s is not available", r.Method, r.URL.Path)
	ErrorResponse(w, r, logger, err)
}

// InternalErrorResponse logs the error and returns a generic 500 response.
// The underlying error details are hidden from the user.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	wrappedErr := domain.Internal(err, "", "An unexpected error occurred")
	ErrorResponse(w, r, logger, wrappedErr)
}

// retryAfter extracts the retry_after attribute in whole seconds.
func retryAfter(err error) (int, bool) {
	v, ok := domain.ErrorAttrs(err)["retry_after"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		secs, convErr := strconv.Atoi(fmt.Sprint(n))
		return secs, convErr == nil
	}
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, reason, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"reason", reason,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	// Add operation if present
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// 5xx are server-side issues, 4xx are expected client errors
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}
