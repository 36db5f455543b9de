package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
	"github.com/DukeRupert/genapi/internal/metrics"
)

// AttemptLimiter counts failed attempts per key within a window.
type AttemptLimiter interface {
	// Blocked reports whether key has exhausted its attempts, and if so how
	// long until the window resets.
	Blocked(key string) (bool, time.Duration)

	// RecordFailure counts one failed attempt against key.
	RecordFailure(key string)

	// Reset clears the failed attempts of key.
	Reset(key string)
}

// Redemption is the outcome of a successful gift code redemption.
type Redemption struct {
	Code         domain.GiftCode
	Tier         domain.Tier
	Subscription *domain.Subscription
}

// GiftService redeems gift codes.
type GiftService struct {
	registry *domain.GiftCodeRegistry
	ledger   *ledger.Ledger
	attempts AttemptLimiter
	logger   *slog.Logger
}

// NewGiftService creates a GiftService. attempts may be nil to disable the
// failed-attempt limit.
func NewGiftService(registry *domain.GiftCodeRegistry, l *ledger.Ledger, attempts AttemptLimiter, logger *slog.Logger) *GiftService {
	return &GiftService{
		registry: registry,
		ledger:   l,
		attempts: attempts,
		logger:   logger.With("component", "gift"),
	}
}

// Redeem moves callerID onto the tier named by code. Usage counters are kept.
// Codes are reusable, and redeeming a lower tier is allowed.
func (s *GiftService) Redeem(ctx context.Context, callerID, code string) (*Redemption, error) {
	const op = "gift.redeem"

	if strings.TrimSpace(code) == "" {
		return nil, domain.Invalid(op, domain.ReasonInvalidGiftCode, "Gift code is required")
	}

	if s.attempts != nil {
		if blocked, wait := s.attempts.Blocked(callerID); blocked {
			metrics.GiftRedemption("blocked")
			s.logger.Warn("gift redemption blocked", "caller", ledger.ShortID(callerID))
			return nil, domain.RateLimit(op, domain.ReasonGiftAttemptsExceeded, "Too many invalid gift code attempts").
				WithDetails("Try again later").
				WithAttr("retry_after", max(int(wait.Round(time.Second)/time.Second), 1))
		}
	}

	gc, ok := s.registry.Resolve(code)
	if !ok {
		if s.attempts != nil {
			s.attempts.RecordFailure(callerID)
		}
		metrics.GiftRedemption("not_found")
		s.logger.Info("unknown gift code", "caller", ledger.ShortID(callerID))
		return nil, domain.NotFound(op, domain.ReasonGiftCodeNotFound, "Invalid gift code")
	}

	tier, ok := domain.LookupTier(gc.TargetTier)
	if !ok {
		return nil, domain.Errorf(domain.EINTERNAL, domain.ReasonUnknownTier, op, "Gift code targets unknown tier %q", gc.TargetTier)
	}

	sub, err := s.ledger.SetTier(ctx, callerID, gc.TargetTier)
	if err != nil {
		return nil, domain.Wrap(err, domain.EINTERNAL, domain.ReasonRedemptionFailed, op, "Failed to redeem gift code")
	}

	if s.attempts != nil {
		s.attempts.Reset(callerID)
	}

	count := s.registry.MarkRedeemed(gc.Code)
	metrics.GiftRedemption("redeemed")
	s.logger.Info("gift code redeemed",
		"caller", ledger.ShortID(callerID),
		"code", gc.Code,
		"tier", gc.TargetTier,
		"redemptions", count,
	)

	return &Redemption{Code: gc, Tier: tier, Subscription: sub}, nil
}
