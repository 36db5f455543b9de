package metrics

import (
	"time"

	"github.com/DukeRupert/genapi/internal/domain"
)

// Quota decision outcomes
const (
	OutcomeAdmitted      = "admitted"
	OutcomeDailyLimit    = "daily_limit"
	OutcomeLifetimeLimit = "lifetime_limit"
)

// QuotaDecision records the result of a quota check.
func QuotaDecision(tier domain.SubscriptionTier, outcome string) {
	QuotaDecisionsTotal.WithLabelValues(string(tier), outcome).Inc()
}

// ImageCharged records an image counted against a caller's quota.
func ImageCharged(tier domain.SubscriptionTier) {
	ImagesChargedTotal.WithLabelValues(string(tier)).Inc()
}

// GiftRedemption records a redemption attempt. status is "redeemed",
// "not_found" or "blocked".
func GiftRedemption(status string) {
	GiftRedemptionsTotal.WithLabelValues(status).Inc()
}

// LedgerPruned records entries removed by the janitor.
func LedgerPruned(n int) {
	if n > 0 {
		LedgerPrunedTotal.Add(float64(n))
	}
}

// GenerationCompleted records a successful upstream call.
func GenerationCompleted(kind string, duration time.Duration) {
	GenerationsTotal.WithLabelValues(kind, "success").Inc()
	GenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// GenerationFailed records a failed upstream call.
func GenerationFailed(kind string, duration time.Duration) {
	GenerationsTotal.WithLabelValues(kind, "failed").Inc()
	GenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// UpstreamRetried records a retry attempt against provider.
func UpstreamRetried(provider string) {
	UpstreamRetriesTotal.WithLabelValues(provider).Inc()
}

// ArchiveWrite records the outcome of archiving a generated image.
func ArchiveWrite(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	ArchiveWritesTotal.WithLabelValues(status).Inc()
}
