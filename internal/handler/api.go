package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/generation"
	"github.com/DukeRupert/genapi/internal/ledger"
	"github.com/DukeRupert/genapi/internal/service"
)

const serviceName = "AI Generation API"

// APIHandler serves the public and caller-authenticated API endpoints.
type APIHandler struct {
	enforcer  *service.Enforcer
	gifts     *service.GiftService
	generator *service.GenerationService
	ledger    *ledger.Ledger
	registry  *domain.GiftCodeRegistry
	region    string
	logger    *slog.Logger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(
	enforcer *service.Enforcer,
	gifts *service.GiftService,
	generator *service.GenerationService,
	l *ledger.Ledger,
	registry *domain.GiftCodeRegistry,
	region string,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		enforcer:  enforcer,
		gifts:     gifts,
		generator: generator,
		ledger:    l,
		registry:  registry,
		region:    region,
		logger:    logger,
	}
}

// RegisterRoutes registers every API route on mux. requireCaller guards the
// authenticated routes; it is applied per route so the mux can still record
// the matched pattern on the request.
//
// Unknown paths under /api/ are authenticated before they are reported as
// not found.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux, requireCaller func(http.Handler) http.Handler) {
	// Public routes
	mux.HandleFunc("GET /{$}", h.Info)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/models", h.Models)
	mux.HandleFunc("GET /api/docs", h.Docs)

	// Caller routes
	mux.Handle("GET /api/image/generate", requireCaller(http.HandlerFunc(h.GenerateImage)))
	mux.Handle("GET /api/text/generate", requireCaller(http.HandlerFunc(h.GenerateText)))
	mux.Handle("POST /api/redeem-gift", requireCaller(http.HandlerFunc(h.RedeemGift)))
	mux.Handle("GET /api/usage", requireCaller(http.HandlerFunc(h.Usage)))
	mux.Handle("/api/", requireCaller(http.HandlerFunc(h.NotFound)))

	mux.HandleFunc("/", h.NotFound)
}

// NotFound handles GET/POST/... on any unrouted path.
func (h *APIHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundResponse(w, r, h.logger)
}

// Info handles GET /
func (h *APIHandler) Info(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, "AI Generation API - Powered by Pollinations.ai", map[string]any{
		"name":        serviceName,
		"version":     APIVersion,
		"description": "Generate high-quality images and text using advanced AI models",
		"endpoints": map[string]string{
			"GET /health":             "Health check",
			"GET /api/models":         "List available models",
			"GET /api/docs":           "API documentation",
			"GET /api/image/generate": "Generate images",
			"GET /api/text/generate":  "Generate text",
			"POST /api/redeem-gift":   "Redeem gift codes",
			"GET /api/usage":          "Current quota usage",
		},
		"documentation": requestOrigin(r) + "/api/docs",
		"status":        "operational",
	}, nil)
}

// HealthResponse is the data of GET /health.
type HealthResponse struct {
	Status             string                    `json:"status"`
	Timestamp          time.Time                 `json:"timestamp"`
	Version            string                    `json:"version"`
	Region             string                    `json:"region"`
	SubscriptionTiers  []domain.SubscriptionTier `json:"subscription_tiers"`
	AvailableGiftCodes int                       `json:"available_gift_codes"`
	GiftRedemptions    int                       `json:"gift_redemptions"`
	LedgerEntries      *int                      `json:"ledger_entries,omitempty"`
}

// Health handles GET /health. A ledger that cannot be counted reports
// degraded with 503.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:             "healthy",
		Timestamp:          h.ledger.Now().UTC(),
		Version:            APIVersion,
		Region:             h.region,
		SubscriptionTiers:  domain.TierNames(),
		AvailableGiftCodes: h.registry.Len(),
		GiftRedemptions:    h.registry.Redemptions(),
	}

	status := http.StatusOK
	n, err := h.ledger.Count(r.Context())
	if err != nil {
		h.logger.Error("health check: ledger count failed", "error", err)
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp.LedgerEntries = &n
	}

	JSONResponse(w, status, "Service "+resp.Status, resp, nil)
}

// Models handles GET /api/models
func (h *APIHandler) Models(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, "Available AI models for image generation", map[string]any{
		"image_models": generation.ImageModels,
		"text_models":  generation.TextModels,
	}, nil)
}

// tierView is the public JSON shape of a tier.
type tierView struct {
	Name        string  `json:"name"`
	Requests    int     `json:"requests"`
	WindowMS    int64   `json:"window"`
	DailyLimit  int     `json:"daily_limit"`
	TotalImages int     `json:"total_images"`
	Price       float64 `json:"price"`
}

func newTierView(t domain.Tier) tierView {
	return tierView{
		Name:        t.DisplayName,
		Requests:    t.RequestsPerWindow,
		WindowMS:    t.Window.Milliseconds(),
		DailyLimit:  t.DailyLimit,
		TotalImages: t.LifetimeImageCap,
		Price:       t.Price,
	}
}

type paramDoc struct {
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description"`
}

type endpointDoc struct {
	Description  string              `json:"description"`
	AuthRequired bool                `json:"auth_required"`
	RateLimited  bool                `json:"rate_limited"`
	Parameters   map[string]paramDoc `json:"parameters,omitempty"`
}

// Docs handles GET /api/docs
func (h *APIHandler) Docs(w http.ResponseWriter, r *http.Request) {
	tiers := make(map[string]tierView)
	for _, t := range domain.OrderedTiers() {
		tiers[string(t.Name)] = newTierView(t)
	}

	endpoints := map[string]endpointDoc{
		"GET /health": {
			Description: "Health check endpoint",
		},
		"GET /api/models": {
			Description: "List available AI models",
		},
		"GET /api/image/generate": {
			Description:  "Generate images from text prompts",
			AuthRequired: true,
			RateLimited:  true,
			Parameters: map[string]paramDoc{
				"prompt":              {Type: "string", Required: true, Description: "Text description of desired image"},
				"model":               {Type: "string", Default: generation.DefaultImageModel, Description: "AI model to use"},
				"width":               {Type: "integer", Default: generation.DefaultWidth, Description: "Image width in pixels"},
				"height":              {Type: "integer", Default: generation.DefaultHeight, Description: "Image height in pixels"},
				"format":              {Type: "string", Default: FormatBase64, Description: "Response format: base64, binary or both"},
				"seed":                {Type: "integer", Description: "Random seed for reproducible results"},
				"enhance":             {Type: "boolean", Default: false, Description: "Auto-enhance prompt"},
				"safe":                {Type: "boolean", Default: true, Description: "Enable NSFW filter"},
				"guidance_scale":      {Type: "number", Description: "Prompt adherence strength"},
				"num_inference_steps": {Type: "integer", Description: "Number of denoising steps"},
			},
		},
		"GET /api/text/generate": {
			Description:  "Generate text from prompts",
			AuthRequired: true,
			RateLimited:  true,
			Parameters: map[string]paramDoc{
				"prompt":      {Type: "string", Required: true, Description: "Text prompt"},
				"model":       {Type: "string", Default: generation.DefaultTextModel, Description: "Text generation model"},
				"temperature": {Type: "number", Default: generation.DefaultTemperature, Description: "Creativity level"},
				"seed":        {Type: "integer", Description: "Random seed for reproducible results"},
			},
		},
		"POST /api/redeem-gift": {
			Description:  "Redeem gift codes for premium features",
			AuthRequired: true,
		},
		"GET /api/usage": {
			Description:  "Current tier and quota usage",
			AuthRequired: true,
		},
	}

	JSONResponse(w, http.StatusOK, "AI Generation API Documentation", map[string]any{
		"name":        serviceName,
		"version":     APIVersion,
		"description": "RapidAPI-compatible AI image and text generation service",
		"base_url":    requestOrigin(r),
		"authentication": map[string]any{
			"type": "RapidAPI Headers",
			"required_headers": []string{
				"X-RapidAPI-Key: your_rapidapi_key",
				"X-RapidAPI-Host: your_rapidapi_host",
			},
		},
		"rate_limiting": tiers,
		"endpoints":     endpoints,
	}, nil)
}
