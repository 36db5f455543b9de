// Package generation defines the upstream content-generation gateway: the
// image and text provider interfaces, their parameter bags, and the error
// classification and retry policy shared by every provider.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/genapi/internal/metrics"
)

// Default parameter values applied by the HTTP layer.
const (
	DefaultImageModel  = "flux"
	DefaultTextModel   = "openai"
	DefaultWidth       = 1024
	DefaultHeight      = 1024
	DefaultTemperature = 0.7
)

// ImageProvider generates images from text prompts.
type ImageProvider interface {
	GenerateImage(ctx context.Context, params ImageParams) (*Image, error)
}

// TextProvider generates text from prompts.
type TextProvider interface {
	GenerateText(ctx context.Context, params TextParams) (string, error)
}

// ImageParams is the parameter bag for image generation.
// Pointer fields are optional and omitted upstream when nil.
type ImageParams struct {
	Prompt            string
	Model             string
	Width             int
	Height            int
	Seed              *int64
	Enhance           bool
	Safe              bool
	GuidanceScale     *float64
	NumInferenceSteps *int
}

// TextParams is the parameter bag for text generation.
type TextParams struct {
	Prompt      string
	Model       string
	Temperature float64
	Seed        *int64
}

// Image is a generated image.
type Image struct {
	Data        []byte
	ContentType string
}

// ProviderConfig contains common configuration for upstream providers
type ProviderConfig struct {
	MaxRetries     int           // Total attempts; 1 disables retries
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// WithDefaults fills zero values.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

// Error codes for upstream provider operations
var (
	// ERateLimit indicates the upstream rate limit has been exceeded
	ERateLimit = errors.New("upstream rate limit exceeded")

	// EContentPolicy indicates the prompt was refused by the upstream filter
	EContentPolicy = errors.New("prompt violates upstream content policy")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("upstream request timed out")

	// EUnavailable indicates the upstream service is temporarily unavailable
	EUnavailable = errors.New("upstream service temporarily unavailable")

	// EUnauthorized indicates invalid upstream credentials
	EUnauthorized = errors.New("upstream authentication failed")

	// EEmptyResponse indicates the upstream returned no content
	EEmptyResponse = errors.New("upstream returned empty response")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with context about the upstream operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("generation %s: %w", operation, err)
}

// Retry runs fn up to cfg.MaxRetries times with exponential backoff, retrying
// only transient errors. provider labels log lines and metrics.
func Retry(ctx context.Context, cfg ProviderConfig, logger *slog.Logger, provider string, fn func(ctx context.Context) error) error {
	cfg = cfg.WithDefaults()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		// Only retry on retryable errors
		if !IsRetryable(err) {
			return err
		}

		// Don't retry if we've exhausted attempts
		if attempt >= cfg.MaxRetries {
			break
		}

		// Exponential: base * 2^(attempt-1)
		delay := cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
		logger.Info("retrying upstream request", "provider", provider, "attempt", attempt, "delay", delay, "error", err)
		metrics.UpstreamRetried(provider)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
