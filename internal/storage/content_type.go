package storage

import (
	"mime"
	"net/http"
	"strings"
)

// DetectContentType returns the image MIME type for data. A provided type is
// trusted only when it names an image; otherwise the bytes are sniffed.
func DetectContentType(provided string, data []byte) string {
	if IsImage(provided) {
		return baseType(provided)
	}
	return http.DetectContentType(data)
}

// IsImage returns true if the content type is any image format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(baseType(contentType), "image/")
}

func baseType(contentType string) string {
	return strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
}

// extensionForContentType returns a file extension for a MIME type.
func extensionForContentType(contentType string) string {
	switch baseType(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}

	if exts, err := mime.ExtensionsByType(baseType(contentType)); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// contentTypeForKey guesses a content type from a key's extension.
func contentTypeForKey(key string) string {
	i := strings.LastIndex(key, ".")
	if i < 0 {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(key[i:]); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
