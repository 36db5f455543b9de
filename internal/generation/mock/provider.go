// Package mock provides an in-process generation provider for tests and
// local development.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/DukeRupert/genapi/internal/generation"
)

// Provider is a mock generation provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	ImageResponse *generation.Image
	ImageError    error
	TextResponse  string
	TextError     error

	// Call tracking for testing
	imageCalls int
	textCalls  int
	lastImage  generation.ImageParams
	lastText   generation.TextParams
}

// New creates a new mock provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// GenerateImage returns a solid-colour PNG of the requested size.
func (p *Provider) GenerateImage(ctx context.Context, params generation.ImageParams) (*generation.Image, error) {
	p.mu.Lock()
	p.imageCalls++
	p.lastImage = params
	resp, respErr := p.ImageResponse, p.ImageError
	p.mu.Unlock()

	if respErr != nil {
		return nil, respErr
	}
	if resp != nil {
		return resp, nil
	}

	width, height := params.Width, params.Height
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 64
	}

	img := imaging.New(width, height, color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode mock image: %w", err)
	}

	p.logger.Debug("mock image generated", "width", width, "height", height)

	return &generation.Image{Data: buf.Bytes(), ContentType: "image/png"}, nil
}

// GenerateText echoes the prompt unless a canned response is set.
func (p *Provider) GenerateText(ctx context.Context, params generation.TextParams) (string, error) {
	p.mu.Lock()
	p.textCalls++
	p.lastText = params
	resp, respErr := p.TextResponse, p.TextError
	p.mu.Unlock()

	if respErr != nil {
		return "", respErr
	}
	if resp != "" {
		return resp, nil
	}
	return fmt.Sprintf("Mock response to: %s", params.Prompt), nil
}

// ImageCalls returns how many times GenerateImage was called.
func (p *Provider) ImageCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.imageCalls
}

// TextCalls returns how many times GenerateText was called.
func (p *Provider) TextCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textCalls
}

// LastImageParams returns the parameters of the most recent image call.
func (p *Provider) LastImageParams() generation.ImageParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastImage
}

// LastTextParams returns the parameters of the most recent text call.
func (p *Provider) LastTextParams() generation.TextParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastText
}

// SetImageError configures the error returned by GenerateImage.
func (p *Provider) SetImageError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ImageError = err
}

// SetTextError configures the error returned by GenerateText.
func (p *Provider) SetTextError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TextError = err
}
