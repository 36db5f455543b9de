package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DukeRupert/genapi/internal/auth"
	"github.com/DukeRupert/genapi/internal/domain"
)

// maxRedeemBody caps the redeem request body.
const maxRedeemBody = 4 << 10

// RedeemRequest is the body of POST /api/redeem-gift.
type RedeemRequest struct {
	GiftCode string `json:"gift_code"`
}

// RedeemResponse is the data of a successful redemption.
type RedeemResponse struct {
	GiftCode    string                  `json:"gift_code"`
	Tier        domain.SubscriptionTier `json:"tier"`
	TierName    string                  `json:"tier_name"`
	DailyLimit  int                     `json:"daily_limit"`
	TotalImages int                     `json:"total_images"`
}

// RedeemGift handles POST /api/redeem-gift
func (h *APIHandler) RedeemGift(w http.ResponseWriter, r *http.Request) {
	caller := auth.GetCallerFromRequest(r)
	if caller == nil {
		InternalErrorResponse(w, r, h.logger, errNoCaller)
		return
	}

	var req RedeemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRedeemBody)).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.redeem", domain.ReasonInvalidRequestBody,
			"Request body must be a JSON object").
			WithDetails(`Expected {"gift_code": "YOUR_CODE"}`))
		return
	}

	res, err := h.gifts.Redeem(r.Context(), caller.ID, req.GiftCode)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	JSONResponse(w, http.StatusOK, "Gift code redeemed successfully!", RedeemResponse{
		GiftCode:    res.Code.Code,
		Tier:        res.Tier.Name,
		TierName:    res.Tier.DisplayName,
		DailyLimit:  res.Tier.DailyLimit,
		TotalImages: res.Tier.LifetimeImageCap,
	}, nil)
}

// UsageResponse is the data of GET /api/usage.
type UsageResponse struct {
	Tier              domain.SubscriptionTier `json:"tier"`
	TierName          string                  `json:"tier_name"`
	DailyLimit        int                     `json:"daily_limit"`
	TotalImages       int                     `json:"total_images"`
	ImagesUsedToday   int                     `json:"images_used_today"`
	TotalImagesUsed   int                     `json:"total_images_used"`
	DailyRemaining    int                     `json:"daily_remaining"`
	LifetimeRemaining *int                    `json:"lifetime_remaining"`
	ResetsAt          time.Time               `json:"resets_at"`
	MemberSince       time.Time               `json:"member_since"`
}

// Usage handles GET /api/usage
func (h *APIHandler) Usage(w http.ResponseWriter, r *http.Request) {
	caller := auth.GetCallerFromRequest(r)
	if caller == nil {
		InternalErrorResponse(w, r, h.logger, errNoCaller)
		return
	}

	u, err := h.enforcer.Usage(r.Context(), caller.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	JSONResponse(w, http.StatusOK, "Current usage", UsageResponse{
		Tier:              u.Tier.Name,
		TierName:          u.Tier.DisplayName,
		DailyLimit:        u.Tier.DailyLimit,
		TotalImages:       u.Tier.LifetimeImageCap,
		ImagesUsedToday:   u.ImagesUsedToday,
		TotalImagesUsed:   u.TotalImagesUsed,
		DailyRemaining:    u.DailyRemaining,
		LifetimeRemaining: u.LifetimeRemaining,
		ResetsAt:          u.ResetsAt.UTC(),
		MemberSince:       u.CreatedAt.UTC(),
	}, nil)
}
