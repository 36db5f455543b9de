package pollinations

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/genapi/internal/generation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(srv *httptest.Server, retries int) *Provider {
	return New(Config{
		ImageURL: srv.URL,
		TextURL:  srv.URL,
		ProviderConfig: generation.ProviderConfig{
			MaxRetries:     retries,
			RetryBaseDelay: time.Millisecond,
			RequestTimeout: 5 * time.Second,
		},
	}, testLogger())
}

func TestGenerateImage_BuildsRequest(t *testing.T) {
	var gotPath, gotRawPath, gotUA, gotAccept string
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRawPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query()
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	seed := int64(42)
	steps := 30
	p := newTestProvider(srv, 1)
	img, err := p.GenerateImage(context.Background(), generation.ImageParams{
		Prompt:            "a cat/dog & friends",
		Model:             "flux",
		Width:             512,
		Height:            768,
		Seed:              &seed,
		Safe:              true,
		NumInferenceSteps: &steps,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("png-bytes"), img.Data)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "/prompt/a cat/dog & friends", gotPath)
	assert.Equal(t, "/prompt/a%20cat%2Fdog%20&%20friends", gotRawPath)
	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "image/*", gotAccept)

	assert.Equal(t, []string{"flux"}, gotQuery["model"])
	assert.Equal(t, []string{"512"}, gotQuery["width"])
	assert.Equal(t, []string{"768"}, gotQuery["height"])
	assert.Equal(t, []string{"42"}, gotQuery["seed"])
	assert.Equal(t, []string{"true"}, gotQuery["safe"])
	assert.Equal(t, []string{"30"}, gotQuery["num_inference_steps"])
	assert.Equal(t, []string{"true"}, gotQuery["nologo"])
	assert.NotContains(t, gotQuery, "enhance")
	assert.NotContains(t, gotQuery, "guidance_scale")
}

func TestGenerateText_BuildsRequest(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte("Once upon a time"))
	}))
	defer srv.Close()

	p := newTestProvider(srv, 1)
	text, err := p.GenerateText(context.Background(), generation.TextParams{
		Prompt:      "tell me a story",
		Model:       "mistral",
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Once upon a time", text)
	assert.Equal(t, "/tell me a story", gotPath)
	assert.Equal(t, []string{"mistral"}, gotQuery["model"])
	assert.Equal(t, []string{"0.7"}, gotQuery["temperature"])
	assert.NotContains(t, gotQuery, "seed")
}

func TestGenerate_NonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestProvider(srv, 1)

	_, err := p.GenerateImage(context.Background(), generation.ImageParams{Prompt: "x"})
	require.Error(t, err)

	_, err = p.GenerateText(context.Background(), generation.TextParams{Prompt: "x"})
	require.Error(t, err)
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	p := New(Config{}, testLogger())

	_, err := p.GenerateImage(context.Background(), generation.ImageParams{Prompt: "  "})
	require.Error(t, err)

	_, err = p.GenerateText(context.Background(), generation.TextParams{})
	require.Error(t, err)
}

func TestGenerateImage_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := newTestProvider(srv, 3)
	img, err := p.GenerateImage(context.Background(), generation.ImageParams{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), img.Data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateImage_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestProvider(srv, 3)
	_, err := p.GenerateImage(context.Background(), generation.ImageParams{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, generation.EUnauthorized))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, "", generation.ERateLimit},
		{http.StatusBadGateway, "", generation.EUnavailable},
		{http.StatusGatewayTimeout, "", generation.ETimeout},
		{http.StatusForbidden, "", generation.EUnauthorized},
		{http.StatusBadRequest, "Violates Content Policy", generation.EContentPolicy},
	}

	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte(tt.body))
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}

	err := mapHTTPError(http.StatusTeapot, []byte("short and stout"))
	assert.Contains(t, err.Error(), "418")
	assert.False(t, generation.IsRetryable(err))
}
