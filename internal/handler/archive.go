package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/service"
	"github.com/DukeRupert/genapi/internal/storage"
)

// ArchiveHandler serves archived images by key.
type ArchiveHandler struct {
	archiver *service.Archiver
	logger   *slog.Logger
}

func NewArchiveHandler(archiver *service.Archiver, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver, logger: logger}
}

// RegisterRoutes adds GET /archive/{key...}. Keys embed a random request id,
// so the route is public like the R2 public domain.
func (h *ArchiveHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /archive/{key...}", h.Get)
}

// Get handles GET /archive/{key...}
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "archive.get"

	key := r.PathValue("key")
	data, info, err := h.archiver.Open(r.Context(), key)
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrInvalidKey) {
			ErrorResponse(w, r, h.logger, domain.NotFound(op, domain.ReasonArchiveNotFound, "Archived image not found").
				WithDetails("No archived image is stored under %s", key))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to read archived image"))
		return
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
