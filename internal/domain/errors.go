package domain

import (
	"errors"
	"fmt"
)

// Application error classes
const (
	EINVALID      = "invalid"      // Malformed or missing input
	EUNAUTHORIZED = "unauthorized" // Missing or invalid caller credentials
	ENOTFOUND     = "not_found"    // Unknown route or resource
	ERATELIMIT    = "rate_limit"   // Quota or attempt limit exceeded
	EUPSTREAM     = "upstream"     // Generation collaborator failed
	EINTERNAL     = "internal"     // Internal server error
)

// Stable API reason codes carried in the error envelope.
const (
	ReasonMissingAPIKey        = "MISSING_RAPIDAPI_KEY"
	ReasonMissingAPIHost       = "MISSING_RAPIDAPI_HOST"
	ReasonInvalidProxySecret   = "INVALID_PROXY_SECRET"
	ReasonDailyLimitExceeded   = "DAILY_LIMIT_EXCEEDED"
	ReasonTotalLimitExceeded   = "TOTAL_LIMIT_EXCEEDED"
	ReasonMissingPrompt        = "MISSING_PROMPT"
	ReasonPromptTooLong        = "PROMPT_TOO_LONG"
	ReasonInvalidParameter     = "INVALID_PARAMETER"
	ReasonGenerationFailed     = "GENERATION_FAILED"
	ReasonTextGenerationFailed = "TEXT_GENERATION_FAILED"
	ReasonInvalidGiftCode      = "INVALID_GIFT_CODE"
	ReasonGiftCodeNotFound     = "GIFT_CODE_NOT_FOUND"
	ReasonGiftAttemptsExceeded = "GIFT_ATTEMPTS_EXCEEDED"
	ReasonInvalidRequestBody   = "INVALID_REQUEST_BODY"
	ReasonRedemptionFailed     = "REDEMPTION_FAILED"
	ReasonEndpointNotFound     = "ENDPOINT_NOT_FOUND"
	ReasonArchiveNotFound      = "ARCHIVE_NOT_FOUND"
	ReasonUnknownTier          = "UNKNOWN_TIER"
	ReasonInternal             = "INTERNAL_ERROR"
)

// Error represents an application error with structured information.
type Error struct {
	Code    string         // Error class, mapped to an HTTP status
	Reason  string         // Stable machine-readable code for API clients
	Op      string         // Operation that failed (e.g., "quota.check")
	Message string         // Human-readable message
	Details string         // Optional human-readable hint
	Attrs   map[string]any // Extra fields merged into the error envelope
	Err     error          // Underlying error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails sets the details hint and returns the error for chaining.
func (e *Error) WithDetails(format string, args ...any) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// WithAttr adds an extra envelope field and returns the error for chaining.
func (e *Error) WithAttr(key string, value any) *Error {
	if e.Attrs == nil {
		e.Attrs = make(map[string]any)
	}
	e.Attrs[key] = value
	return e
}

// Errorf creates a new Error with the given class, reason, operation, and formatted message.
func Errorf(code, reason, op, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Reason:  reason,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, reason, op, message string) *Error {
	return &Error{
		Code:    code,
		Reason:  reason,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the class of the outermost *Error in the chain, or
// EINTERNAL if there is none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorReason returns the API reason code, or INTERNAL_ERROR if none.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return ReasonInternal
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// Internal errors without a client-facing reason stay generic
		if e.Code == EINTERNAL && (e.Reason == "" || e.Reason == ReasonInternal) {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorDetails returns the details hint of the error, if any.
func ErrorDetails(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return ""
}

// ErrorAttrs returns the extra envelope fields of the error, if any.
func ErrorAttrs(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Attrs
	}
	return nil
}

// ErrorOp returns the operation of the outermost *Error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, reason, message string) *Error {
	return &Error{Code: ENOTFOUND, Reason: reason, Op: op, Message: message}
}

// Invalid creates a validation error.
func Invalid(op, reason, message string) *Error {
	return &Error{Code: EINVALID, Reason: reason, Op: op, Message: message}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, reason, message string) *Error {
	return &Error{Code: EUNAUTHORIZED, Reason: reason, Op: op, Message: message}
}

// RateLimit creates a rate limit error.
func RateLimit(op, reason, message string) *Error {
	return &Error{Code: ERATELIMIT, Reason: reason, Op: op, Message: message}
}

// Upstream creates an upstream failure error, wrapping the underlying error.
func Upstream(err error, op, reason, message string) *Error {
	return &Error{Code: EUPSTREAM, Reason: reason, Op: op, Message: message, Err: err}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{Code: EINTERNAL, Reason: ReasonInternal, Op: op, Message: message, Err: err}
}
