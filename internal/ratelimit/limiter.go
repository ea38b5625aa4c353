package ratelimit

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"media-pipeline/pkg/models"
)

// periodSpec is one checked window: its duration, the admit limit and
// the cooldown applied on violation.
type periodSpec struct {
	period   models.RatePeriod
	window   time.Duration
	limit    int
	cooldown time.Duration
}

// Limiter gates actions per user across minute/hour/day windows with
// escalating cooldowns. Window and cooldown state lives in the shared
// KV store so multiple instances agree on the counts.
type Limiter struct {
	kv      models.KV
	logger  zerolog.Logger
	periods []periodSpec
}

// NewLimiter creates a limiter from the configured per-period limits
func NewLimiter(cfg *models.Config, kv models.KV) *Limiter {
	rl := cfg.RateLimit
	return &Limiter{
		kv:     kv,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "ratelimit").Logger(),
		periods: []periodSpec{
			{models.PeriodMinute, time.Minute, rl.PerMinute, time.Duration(rl.CooldownMinute) * time.Second},
			{models.PeriodHour, time.Hour, rl.PerHour, time.Duration(rl.CooldownHour) * time.Second},
			{models.PeriodDay, 24 * time.Hour, rl.PerDay, time.Duration(rl.CooldownDay) * time.Second},
		},
	}
}

func countKey(userID int64, period models.RatePeriod) string {
	return fmt.Sprintf("rl:count:%d:%s", userID, period)
}

func cooldownKey(userID int64, period models.RatePeriod) string {
	return fmt.Sprintf("rl:cooldown:%d:%s", userID, period)
}

// Admit checks all periods in order and commits one count per period
// up to the first denial. The multiplier divides effective limits for
// higher-volume contexts such as group chats.
//
// Counters incremented for periods checked before a deny stay
// committed: a denied request still consumed its slot in the windows
// it passed, so retrying during a cooldown cannot bank free usage.
func (l *Limiter) Admit(ctx context.Context, userID int64, multiplier int) error {
	if multiplier < 1 {
		multiplier = 1
	}

	for _, spec := range l.periods {
		remaining, err := l.kv.TTL(ctx, cooldownKey(userID, spec.period))
		if err != nil {
			return fmt.Errorf("cooldown lookup: %w", err)
		}
		if remaining > 0 {
			return &models.RateLimitedError{Period: spec.period, RetryAfter: remaining}
		}

		count, err := l.kv.Incr(ctx, countKey(userID, spec.period), spec.window)
		if err != nil {
			return fmt.Errorf("window increment: %w", err)
		}

		limit := spec.limit / multiplier
		if limit < 1 {
			limit = 1
		}
		if count <= int64(limit) {
			continue
		}

		// SetNX keeps an existing cooldown intact, so a freshly
		// computed shorter cooldown never trims a live longer one.
		created, err := l.kv.SetNX(ctx, cooldownKey(userID, spec.period), "1", spec.cooldown)
		if err != nil {
			return fmt.Errorf("cooldown set: %w", err)
		}

		retryAfter := spec.cooldown
		if !created {
			if remaining, err := l.kv.TTL(ctx, cooldownKey(userID, spec.period)); err == nil && remaining > 0 {
				retryAfter = remaining
			}
		}

		l.logger.Warn().
			Int64("user_id", userID).
			Str("period", string(spec.period)).
			Int64("count", count).
			Int("limit", limit).
			Msg("Rate limit exceeded")

		return &models.RateLimitedError{Period: spec.period, RetryAfter: retryAfter}
	}

	return nil
}

// Reset clears all windows and cooldowns for a user
func (l *Limiter) Reset(ctx context.Context, userID int64) error {
	for _, spec := range l.periods {
		if err := l.kv.Delete(ctx, countKey(userID, spec.period)); err != nil {
			return err
		}
		if err := l.kv.Delete(ctx, cooldownKey(userID, spec.period)); err != nil {
			return err
		}
	}
	return nil
}
