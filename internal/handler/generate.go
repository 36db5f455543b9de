package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DukeRupert/genapi/internal/auth"
	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/generation"
	"github.com/DukeRupert/genapi/internal/service"
)

// MaxPromptLength is the longest accepted image prompt, in characters.
const MaxPromptLength = 1000

// Image response formats
const (
	FormatBase64 = "base64"
	FormatBinary = "binary"
	FormatBoth   = "both"
)

// Rate limit headers exposed to browsers by the CORS middleware.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Requests-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Requests-Remaining"
	HeaderRegion             = "X-RapidAPI-Region"
)

var errNoCaller = errors.New("handler: caller missing from authenticated route")

// GenerateImage handles GET /api/image/generate
//
// The caller is admitted before the request is validated. The admission is
// committed only when the upstream returned an image; every other exit
// releases it uncharged.
func (h *APIHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	caller := auth.GetCallerFromRequest(r)
	if caller == nil {
		InternalErrorResponse(w, r, h.logger, errNoCaller)
		return
	}

	adm, err := h.enforcer.Check(r.Context(), caller.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer adm.Release()
	h.setQuotaHeaders(w, adm)

	params, format, err := parseImageQuery(r.URL.Query())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// The upstream call outlives a disconnected client so a finished
	// generation is still charged.
	ctx := context.WithoutCancel(r.Context())

	res, err := h.generator.GenerateImage(ctx, params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if _, err := adm.Commit(ctx); err != nil {
		h.logger.Error("failed to record image consumption",
			"caller", caller.ShortID(),
			"request_id", res.RequestID,
			"error", err,
		)
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	if format == FormatBinary {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Data)
		return
	}

	processing := time.Since(start)
	data := map[string]any{
		"prompt":                  params.Prompt,
		"model":                   params.Model,
		"width":                   params.Width,
		"height":                  params.Height,
		"format":                  format,
		"image_base64":            "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(res.Data),
		"generated_at":            res.GeneratedAt,
		"generation_time_seconds": processing.Seconds(),
		"request_id":              res.RequestID.String(),
	}
	if res.ArchiveKey != "" {
		data["archive_key"] = res.ArchiveKey
	}
	if res.ArchiveURL != "" {
		data["archive_url"] = res.ArchiveURL
	}

	JSONResponse(w, http.StatusOK, "Image generated successfully", data, map[string]any{
		"processing_time_ms": processing.Milliseconds(),
		"api_version":        APIVersion,
		"endpoint":           r.Host,
	})
}

// GenerateText handles GET /api/text/generate
//
// Text generation needs quota headroom but is never charged.
func (h *APIHandler) GenerateText(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	caller := auth.GetCallerFromRequest(r)
	if caller == nil {
		InternalErrorResponse(w, r, h.logger, errNoCaller)
		return
	}

	adm, err := h.enforcer.Check(r.Context(), caller.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer adm.Release()
	h.setQuotaHeaders(w, adm)

	params, err := parseTextQuery(r.URL.Query())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.generator.GenerateText(context.WithoutCancel(r.Context()), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	processing := time.Since(start)
	JSONResponse(w, http.StatusOK, "Text generated successfully", map[string]any{
		"prompt":                  params.Prompt,
		"model":                   params.Model,
		"generated_text":          res.Text,
		"generated_at":            res.GeneratedAt,
		"generation_time_seconds": processing.Seconds(),
	}, map[string]any{
		"processing_time_ms": processing.Milliseconds(),
		"api_version":        APIVersion,
	})
}

func (h *APIHandler) setQuotaHeaders(w http.ResponseWriter, adm *service.Admission) {
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(adm.Limit()))
	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(adm.Remaining()))
	if h.region != "" {
		w.Header().Set(HeaderRegion, h.region)
	}
}

// parseImageQuery reads the image generation parameters. Missing or
// non-positive dimensions fall back to the defaults; malformed optional
// numbers are rejected.
func parseImageQuery(q url.Values) (generation.ImageParams, string, error) {
	const op = "handler.image"

	prompt := q.Get("prompt")
	if strings.TrimSpace(prompt) == "" {
		return generation.ImageParams{}, "", domain.Invalid(op, domain.ReasonMissingPrompt,
			"The prompt parameter is required and cannot be empty").
			WithDetails("Please provide a text description for image generation")
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return generation.ImageParams{}, "", domain.Invalid(op, domain.ReasonPromptTooLong,
			"Prompt must be less than 1000 characters").
			WithDetails("Your prompt is %d characters long", n)
	}

	params := generation.ImageParams{
		Prompt:  prompt,
		Model:   stringOr(q.Get("model"), generation.DefaultImageModel),
		Width:   positiveIntOr(q.Get("width"), generation.DefaultWidth),
		Height:  positiveIntOr(q.Get("height"), generation.DefaultHeight),
		Enhance: q.Get("enhance") == "true",
		Safe:    q.Get("safe") != "false",
	}

	format := stringOr(q.Get("format"), FormatBase64)
	switch format {
	case FormatBase64, FormatBinary, FormatBoth:
	default:
		return generation.ImageParams{}, "", invalidParameter(op, "format", "must be one of base64, binary, both")
	}

	var err error
	if params.Seed, err = optionalInt64(q, "seed"); err != nil {
		return generation.ImageParams{}, "", invalidParameter(op, "seed", "must be an integer")
	}
	if params.GuidanceScale, err = optionalFloat(q, "guidance_scale"); err != nil {
		return generation.ImageParams{}, "", invalidParameter(op, "guidance_scale", "must be a number")
	}
	steps, err := optionalInt64(q, "num_inference_steps")
	if err != nil {
		return generation.ImageParams{}, "", invalidParameter(op, "num_inference_steps", "must be an integer")
	}
	if steps != nil {
		n := int(*steps)
		params.NumInferenceSteps = &n
	}

	return params, format, nil
}

// parseTextQuery reads the text generation parameters.
func parseTextQuery(q url.Values) (generation.TextParams, error) {
	const op = "handler.text"

	prompt := q.Get("prompt")
	if strings.TrimSpace(prompt) == "" {
		return generation.TextParams{}, domain.Invalid(op, domain.ReasonMissingPrompt,
			"The prompt parameter is required and cannot be empty")
	}

	params := generation.TextParams{
		Prompt:      prompt,
		Model:       stringOr(q.Get("model"), generation.DefaultTextModel),
		Temperature: generation.DefaultTemperature,
	}

	temp, err := optionalFloat(q, "temperature")
	if err != nil {
		return generation.TextParams{}, invalidParameter(op, "temperature", "must be a number")
	}
	if temp != nil {
		params.Temperature = *temp
	}

	if params.Seed, err = optionalInt64(q, "seed"); err != nil {
		return generation.TextParams{}, invalidParameter(op, "seed", "must be an integer")
	}

	return params, nil
}

func invalidParameter(op, name, rule string) error {
	return domain.Invalid(op, domain.ReasonInvalidParameter, "Invalid "+name+" parameter").
		WithDetails("%s %s", name, rule).
		WithAttr("parameter", name)
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func positiveIntOr(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func optionalInt64(q url.Values, key string) (*int64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optionalFloat(q url.Values, key string) (*float64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
