package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGeneratedKey(t *testing.T) {
	id := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)

	key := GeneratedKey(at, id, "image/png")
	assert.Equal(t, "generated/2024/03/09/123e4567-e89b-12d3-a456-426614174000.png", key)
	assert.Equal(t, "thumbnails/2024/03/09/123e4567-e89b-12d3-a456-426614174000.jpg", ThumbnailKey(key))

	assert.True(t, strings.HasSuffix(GeneratedKey(at, id, "image/jpeg; q=1"), ".jpg"))
}

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	assert.Equal(t, "image/png", DetectContentType("", png))
	assert.Equal(t, "image/png", DetectContentType("text/plain", png))
	assert.Equal(t, "image/webp", DetectContentType("Image/WebP", png))
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir(), BaseURL: "http://localhost:8080/archive/"}, testLogger())
	require.NoError(t, err)

	key := "generated/2024/01/01/a.png"
	require.NoError(t, s.Put(ctx, key, []byte("abc"), "image/png"))

	data, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "image/png", info.ContentType)

	url, err := s.URL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/archive/generated/2024/01/01/a.png", url)

	_, _, err = s.Get(ctx, "generated/2024/01/01/missing.png")
	assert.True(t, IsNotFound(err))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()}, testLogger())
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "a/../../b", "/abs", "./x"} {
		err := s.Put(context.Background(), key, []byte("x"), "image/png")
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

// fakeS3 is a minimal path-style S3 endpoint.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestR2Storage_AgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := NewR2Storage(R2Config{
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		BucketName:      "archive",
		Endpoint:        srv.URL,
		PublicURL:       "https://cdn.example.com/",
	}, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	key := "generated/2024/01/01/b.png"

	require.NoError(t, s.Put(ctx, key, []byte("img"), "image/png"))
	assert.Contains(t, fake.objects, "/archive/"+key)
	assert.Equal(t, "image/png", fake.types["/archive/"+key])

	data, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
	assert.Equal(t, "image/png", info.ContentType)

	url, err := s.URL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/"+key, url)

	_, _, err = s.Get(ctx, "generated/2024/01/01/missing.png")
	assert.True(t, IsNotFound(err))
}

func TestNewR2Storage_Validation(t *testing.T) {
	_, err := NewR2Storage(R2Config{}, testLogger())
	assert.Error(t, err)

	_, err = NewR2Storage(R2Config{BucketName: "b"}, testLogger())
	assert.Error(t, err)
}
