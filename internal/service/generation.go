package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/generation"
	"github.com/DukeRupert/genapi/internal/metrics"
)

// Generation kinds used as metric labels.
const (
	KindImage = "image"
	KindText  = "text"
)

// ImageResult is a successful image generation.
type ImageResult struct {
	RequestID   uuid.UUID
	Data        []byte
	ContentType string
	ArchiveKey  string
	ArchiveURL  string
	GeneratedAt time.Time
	Duration    time.Duration
}

// TextResult is a successful text generation.
type TextResult struct {
	Text        string
	GeneratedAt time.Time
	Duration    time.Duration
}

// GenerationService calls the upstream providers under a deadline.
type GenerationService struct {
	images   generation.ImageProvider
	texts    generation.TextProvider
	archiver *Archiver
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGenerationService creates a GenerationService. archiver may be nil.
func NewGenerationService(images generation.ImageProvider, texts generation.TextProvider, archiver *Archiver, timeout time.Duration, logger *slog.Logger) *GenerationService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GenerationService{
		images:   images,
		texts:    texts,
		archiver: archiver,
		timeout:  timeout,
		logger:   logger.With("component", "generation"),
	}
}

// GenerateImage produces an image for params.
func (s *GenerationService) GenerateImage(ctx context.Context, params generation.ImageParams) (*ImageResult, error) {
	const op = "generation.image"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	img, err := s.images.GenerateImage(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		metrics.GenerationFailed(KindImage, elapsed)
		s.logger.Error("image generation failed", "model", params.Model, "duration", elapsed, "error", err)
		return nil, domain.Upstream(err, op, domain.ReasonGenerationFailed, "Failed to generate image").
			WithDetails("Failed to generate image. Please try again later.")
	}
	metrics.GenerationCompleted(KindImage, elapsed)

	res := &ImageResult{
		RequestID:   uuid.New(),
		Data:        img.Data,
		ContentType: img.ContentType,
		GeneratedAt: time.Now().UTC(),
		Duration:    elapsed,
	}
	if s.archiver != nil {
		res.ArchiveKey, res.ArchiveURL = s.archiver.Save(ctx, res.RequestID, res.GeneratedAt, img.Data, img.ContentType)
	}

	s.logger.Debug("image generated", "model", params.Model, "bytes", len(img.Data), "duration", elapsed)
	return res, nil
}

// GenerateText produces text for params.
func (s *GenerationService) GenerateText(ctx context.Context, params generation.TextParams) (*TextResult, error) {
	const op = "generation.text"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.texts.GenerateText(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		metrics.GenerationFailed(KindText, elapsed)
		s.logger.Error("text generation failed", "model", params.Model, "duration", elapsed, "error", err)
		return nil, domain.Upstream(err, op, domain.ReasonTextGenerationFailed, "Failed to generate text").
			WithDetails("Failed to generate text. Please try again later.")
	}
	metrics.GenerationCompleted(KindText, elapsed)

	return &TextResult{
		Text:        text,
		GeneratedAt: time.Now().UTC(),
		Duration:    elapsed,
	}, nil
}
