package models

import (
	"errors"
	"fmt"
	"time"
)

// Failure taxonomy for the pipeline. Policy and rate-limit refusals are
// reported through verdicts, not errors; CacheMiss is the normal
// acquisition trigger.
var (
	ErrCacheMiss = errors.New("cache miss")
	ErrNoFiles   = errors.New("no files produced")
)

// RateLimitedError carries the retry-after hint for a denied request
type RateLimitedError struct {
	Period     RatePeriod
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited for period %s, retry after %s", e.Period, e.RetryAfter)
}

// RetryAfterError signals a transient transport rate limit. The caller
// sleeps the indicated backoff and retries the same call.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("transport asked to retry after %s", e.RetryAfter)
}

// ChatGoneError marks a destination that is permanently unreachable.
// Remaining deliveries for that destination are abandoned.
type ChatGoneError struct {
	ChatID int64
}

func (e *ChatGoneError) Error() string {
	return fmt.Sprintf("chat %d is no longer reachable", e.ChatID)
}

// AsRetryAfter extracts a transient backoff hint from err, if any
func AsRetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter, true
	}
	return 0, false
}

// IsChatGone reports whether err marks a permanently lost destination
func IsChatGone(err error) bool {
	var cg *ChatGoneError
	return errors.As(err, &cg)
}
