package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/generation/mock"
	"github.com/DukeRupert/genapi/internal/ledger"
	"github.com/DukeRupert/genapi/internal/ledger/memstore"
	"github.com/DukeRupert/genapi/internal/service"
	"github.com/DukeRupert/genapi/internal/storage"
)

func newArchiveMux(t *testing.T) (*http.ServeMux, *service.Archiver) {
	t.Helper()
	logger := discardLogger()

	store, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://api.example.com/archive",
	}, logger)
	require.NoError(t, err)
	archiver := service.NewArchiver(store, nil, logger)

	l := ledger.New(memstore.New(), logger)
	registry, err := domain.NewGiftCodeRegistry(domain.DefaultGiftCodes, time.Now())
	require.NoError(t, err)
	provider := mock.New(logger)

	mux := http.NewServeMux()
	NewAPIHandler(
		service.NewEnforcer(l, logger),
		service.NewGiftService(registry, l, nil, logger),
		service.NewGenerationService(provider, provider, archiver, time.Second, logger),
		l,
		registry,
		"global",
		logger,
	).RegisterRoutes(mux, requireTestCaller)
	NewArchiveHandler(archiver, logger).RegisterRoutes(mux)

	return mux, archiver
}

func TestArchive_GeneratedImageIsServedFromArchiveURL(t *testing.T) {
	mux, archiver := newArchiveMux(t)

	req := httptest.NewRequest(http.MethodGet, "/api/image/generate?prompt=lighthouse", nil)
	req.Header.Set("X-RapidAPI-Key", testKey)
	req.Header.Set("X-RapidAPI-Host", "genapi.p.rapidapi.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decode(t, rec)
	key, _ := env.Data["archive_key"].(string)
	url, _ := env.Data["archive_url"].(string)
	require.NotEmpty(t, key)
	assert.Equal(t, "http://api.example.com/archive/"+key, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, archiver.Wait(ctx))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(url, "http://api.example.com"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", rec.Header().Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func TestArchive_MissingKey(t *testing.T) {
	mux, _ := newArchiveMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive/generated/2025/01/01/nope.png", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, domain.ReasonArchiveNotFound, env.Error["code"])
}
