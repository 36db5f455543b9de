// Package pollinations implements the image and text providers against the
// Pollinations HTTP endpoints.
package pollinations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/DukeRupert/genapi/internal/generation"
)

const (
	// DefaultImageURL is the base URL for image generation
	DefaultImageURL = "https://image.pollinations.ai"

	// DefaultTextURL is the base URL for text generation
	DefaultTextURL = "https://text.pollinations.ai"

	// UserAgent is sent with every upstream request
	UserAgent = "Pollination-AI-Pro/1.0"

	// MaxResponseSize caps the body read from the upstream (32MB)
	MaxResponseSize = 32 * 1024 * 1024

	providerName = "pollinations"
)

// Config contains configuration for the Pollinations provider
type Config struct {
	ImageURL       string
	TextURL        string
	ProviderConfig generation.ProviderConfig
}

// Provider implements generation.ImageProvider and generation.TextProvider
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Pollinations provider
func New(config Config, logger *slog.Logger) *Provider {
	if config.ImageURL == "" {
		config.ImageURL = DefaultImageURL
	}
	if config.TextURL == "" {
		config.TextURL = DefaultTextURL
	}
	config.ImageURL = strings.TrimRight(config.ImageURL, "/")
	config.TextURL = strings.TrimRight(config.TextURL, "/")
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger.With("component", "pollinations"),
	}
}

// GenerateImage fetches a generated image for params.Prompt.
func (p *Provider) GenerateImage(ctx context.Context, params generation.ImageParams) (*generation.Image, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, generation.WrapError("generate image", errors.New("prompt is required"))
	}

	endpoint := p.ImageURL(params)

	var img *generation.Image
	err := generation.Retry(ctx, p.config.ProviderConfig, p.logger, providerName, func(ctx context.Context) error {
		body, contentType, err := p.fetch(ctx, endpoint, "image/*")
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return generation.EEmptyResponse
		}
		img = &generation.Image{Data: body, ContentType: contentType}
		return nil
	})
	if err != nil {
		return nil, generation.WrapError("generate image", err)
	}

	return img, nil
}

// GenerateText fetches generated text for params.Prompt.
func (p *Provider) GenerateText(ctx context.Context, params generation.TextParams) (string, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return "", generation.WrapError("generate text", errors.New("prompt is required"))
	}

	endpoint := p.TextURL(params)

	var text string
	err := generation.Retry(ctx, p.config.ProviderConfig, p.logger, providerName, func(ctx context.Context) error {
		body, _, err := p.fetch(ctx, endpoint, "text/plain")
		if err != nil {
			return err
		}
		text = string(body)
		return nil
	})
	if err != nil {
		return "", generation.WrapError("generate text", err)
	}

	return text, nil
}

// ImageURL builds the upstream image URL for params.
func (p *Provider) ImageURL(params generation.ImageParams) string {
	q := url.Values{}
	if params.Model != "" {
		q.Set("model", params.Model)
	}
	if params.Width > 0 {
		q.Set("width", strconv.Itoa(params.Width))
	}
	if params.Height > 0 {
		q.Set("height", strconv.Itoa(params.Height))
	}
	if params.Seed != nil {
		q.Set("seed", strconv.FormatInt(*params.Seed, 10))
	}
	if params.Enhance {
		q.Set("enhance", "true")
	}
	if params.Safe {
		q.Set("safe", "true")
	}
	if params.GuidanceScale != nil {
		q.Set("guidance_scale", strconv.FormatFloat(*params.GuidanceScale, 'f', -1, 64))
	}
	if params.NumInferenceSteps != nil {
		q.Set("num_inference_steps", strconv.Itoa(*params.NumInferenceSteps))
	}
	q.Set("nologo", "true")

	return p.config.ImageURL + "/prompt/" + url.PathEscape(params.Prompt) + "?" + q.Encode()
}

// TextURL builds the upstream text URL for params.
func (p *Provider) TextURL(params generation.TextParams) string {
	q := url.Values{}
	if params.Model != "" {
		q.Set("model", params.Model)
	}
	if params.Seed != nil {
		q.Set("seed", strconv.FormatInt(*params.Seed, 10))
	}
	if params.Temperature != 0 {
		q.Set("temperature", strconv.FormatFloat(params.Temperature, 'f', -1, 64))
	}

	u := p.config.TextURL + "/" + url.PathEscape(params.Prompt)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// fetch performs a single GET and returns the body and content type.
func (p *Provider) fetch(ctx context.Context, endpoint, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("%w: %v", generation.ETimeout, ctx.Err())
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, "", generation.ETimeout
		}
		return nil, "", fmt.Errorf("%w: %v", generation.EUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", mapHTTPError(resp.StatusCode, body)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// mapHTTPError maps upstream status codes to generation errors
func mapHTTPError(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return generation.EUnauthorized
	case http.StatusTooManyRequests:
		return generation.ERateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return generation.ETimeout
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return generation.EUnavailable
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(string(body)), "content policy") {
			return generation.EContentPolicy
		}
		return fmt.Errorf("bad request: %s", truncate(body, 200))
	default:
		return fmt.Errorf("upstream error (status %d): %s", statusCode, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
