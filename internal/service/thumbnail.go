package service

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Thumbnail settings for archived images.
const (
	ThumbnailMaxSize     = 256
	ThumbnailJPEGQuality = 85
)

// ThumbnailProcessor renders preview images.
type ThumbnailProcessor interface {
	// GenerateThumbnail returns a JPEG fitting within maxWidth x maxHeight and
	// the source image's dimensions.
	GenerateThumbnail(data []byte, maxWidth, maxHeight int) ([]byte, int, int, error)
}

type imagingProcessor struct{}

// NewImagingProcessor creates a ThumbnailProcessor backed by imaging.
func NewImagingProcessor() ThumbnailProcessor {
	return imagingProcessor{}
}

func (imagingProcessor) GenerateThumbnail(data []byte, maxWidth, maxHeight int) ([]byte, int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	thumb := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailJPEGQuality)); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}
