package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/genapi/internal/metrics"
	"github.com/DukeRupert/genapi/internal/storage"
)

// archiveTimeout bounds a single background archive write.
const archiveTimeout = 30 * time.Second

// Archiver copies generated images to storage in the background. Archive
// failures are logged and never reach the caller.
type Archiver struct {
	store  storage.Storage
	thumbs ThumbnailProcessor
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewArchiver creates an Archiver writing to store.
func NewArchiver(store storage.Storage, thumbs ThumbnailProcessor, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		thumbs: thumbs,
		logger: logger.With("component", "archive"),
	}
}

// Save schedules data for archiving and returns the key it will be stored
// under and the URL it will be reachable at. url is empty if the store
// cannot address the key.
func (a *Archiver) Save(ctx context.Context, requestID uuid.UUID, at time.Time, data []byte, contentType string) (key, url string) {
	contentType = storage.DetectContentType(contentType, data)
	key = storage.GeneratedKey(at, requestID, contentType)

	url, err := a.store.URL(ctx, key)
	if err != nil {
		a.logger.Warn("failed to build archive url", "key", key, "error", err)
		url = ""
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.write(key, data, contentType)
	}()

	return key, url
}

// Open returns an archived object and its metadata.
func (a *Archiver) Open(ctx context.Context, key string) ([]byte, storage.ObjectInfo, error) {
	return a.store.Get(ctx, key)
}

func (a *Archiver) write(key string, data []byte, contentType string) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := a.store.Put(ctx, key, data, contentType); err != nil {
		metrics.ArchiveWrite(false)
		a.logger.Error("failed to archive image", "key", key, "error", err)
		return
	}
	metrics.ArchiveWrite(true)

	if a.thumbs == nil {
		return
	}

	thumb, width, height, err := a.thumbs.GenerateThumbnail(data, ThumbnailMaxSize, ThumbnailMaxSize)
	if err != nil {
		a.logger.Warn("failed to generate thumbnail", "key", key, "error", err)
		return
	}

	thumbKey := storage.ThumbnailKey(key)
	if err := a.store.Put(ctx, thumbKey, thumb, "image/jpeg"); err != nil {
		a.logger.Warn("failed to archive thumbnail", "key", thumbKey, "error", err)
		return
	}

	a.logger.Debug("image archived", "key", key, "width", width, "height", height, "bytes", len(data))
}

// Wait blocks until pending writes finish or ctx is done.
func (a *Archiver) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
