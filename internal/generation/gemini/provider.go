// Package gemini implements generation.TextProvider on Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/DukeRupert/genapi/internal/generation"
)

const (
	// DefaultModel is the Gemini model used when none is configured
	DefaultModel = "gemini-1.5-flash"

	providerName = "gemini"
)

// Config contains configuration for the Gemini provider
type Config struct {
	APIKey         string
	Model          string
	ProviderConfig generation.ProviderConfig
}

// Provider implements generation.TextProvider. The request's model name is
// a catalog id for the public API and is ignored; Config.Model is used.
type Provider struct {
	config Config
	client *genai.Client
	logger *slog.Logger
}

// New creates a new Gemini text provider
func New(ctx context.Context, config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("genai client init failed: %w", err)
	}

	return &Provider{
		config: config,
		client: client,
		logger: logger.With("component", "gemini"),
	}, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// GenerateText generates a completion for params.Prompt.
func (p *Provider) GenerateText(ctx context.Context, params generation.TextParams) (string, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return "", generation.WrapError("generate text", errors.New("prompt is required"))
	}

	// SetTemperature mutates the handle, so each call gets its own.
	model := p.client.GenerativeModel(p.config.Model)
	if params.Temperature != 0 {
		model.SetTemperature(float32(params.Temperature))
	}

	var text string
	err := generation.Retry(ctx, p.config.ProviderConfig, p.logger, providerName, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.config.ProviderConfig.RequestTimeout)
		defer cancel()

		resp, err := model.GenerateContent(callCtx, genai.Text(params.Prompt))
		if err != nil {
			return mapError(err)
		}

		out, err := extractText(resp)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", generation.WrapError("generate text", err)
	}

	return text, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", generation.EEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return "", generation.EContentPolicy
		}
		return "", generation.EEmptyResponse
	}
	return b.String(), nil
}

// mapError maps Gemini transport errors to generation errors
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", generation.ETimeout, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return generation.EUnauthorized
		case http.StatusTooManyRequests:
			return generation.ERateLimit
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusInternalServerError:
			return generation.EUnavailable
		case http.StatusGatewayTimeout:
			return generation.ETimeout
		}
		return err
	}

	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return generation.EUnauthorized
	case codes.ResourceExhausted:
		return generation.ERateLimit
	case codes.Unavailable, codes.Internal:
		return generation.EUnavailable
	case codes.DeadlineExceeded:
		return generation.ETimeout
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return generation.EContentPolicy
	}

	return err
}
