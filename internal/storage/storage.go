// Package storage archives generated images to the local filesystem or to
// Cloudflare R2. Archiving is optional and never on the request's critical
// path.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage is a write-mostly object store for generated images.
type Storage interface {
	// Put stores data at key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the object at key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, ObjectInfo, error)

	// URL returns an address the object can be fetched from.
	URL(ctx context.Context, key string) (string, error)
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./archive".
	BasePath string

	// BaseURL prefixes returned URLs, e.g. "http://localhost:8080/archive".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's public domain. When empty URL presigns.
	PublicURL string

	// Endpoint overrides the account endpoint (S3-compatible test servers).
	Endpoint string

	// Region defaults to "auto".
	Region string
}

// Archive providers
const (
	ProviderNone  = "none"
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

const generatedPrefix = "generated"

// GeneratedKey returns the archive key for a generated image.
// Format: generated/{yyyy}/{mm}/{dd}/{requestID}{ext}
func GeneratedKey(at time.Time, requestID uuid.UUID, contentType string) string {
	return fmt.Sprintf("%s/%s/%s%s", generatedPrefix, at.UTC().Format("2006/01/02"), requestID, extensionForContentType(contentType))
}

// ThumbnailKey returns the thumbnail key paired with an image key.
// Format: thumbnails/{yyyy}/{mm}/{dd}/{requestID}.jpg
func ThumbnailKey(imageKey string) string {
	rest := strings.TrimPrefix(imageKey, generatedPrefix+"/")
	ext := path.Ext(rest)
	return "thumbnails/" + strings.TrimSuffix(rest, ext) + ".jpg"
}

// validateKey rejects empty keys and path traversal.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return ErrInvalidKey
		}
	}
	return nil
}
