package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/DukeRupert/genapi/internal/generation"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello, "), genai.Text("world")}},
		}},
	}
	text, err := extractText(resp)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)

	_, err = extractText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, generation.EEmptyResponse)

	_, err = extractText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{},
			FinishReason: genai.FinishReasonSafety,
		}},
	})
	assert.ErrorIs(t, err, generation.EContentPolicy)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"http 429", &googleapi.Error{Code: http.StatusTooManyRequests}, generation.ERateLimit},
		{"http 403", &googleapi.Error{Code: http.StatusForbidden}, generation.EUnauthorized},
		{"http 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, generation.EUnavailable},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), generation.ERateLimit},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "key"), generation.EUnauthorized},
		{"deadline", context.DeadlineExceeded, generation.ETimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	plain := errors.New("something else")
	assert.Equal(t, plain, mapError(plain))
}
