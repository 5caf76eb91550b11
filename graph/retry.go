package graph

import (
	"strings"
	"time"
)

// MaxDelay caps the growth of linear and exponential backoff.
const MaxDelay = time.Minute

// Delay returns how long to wait before retry number attempt (0-based).
// Growing delays stop at MaxDelay, or at BaseDelay when that is larger.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if p == nil {
		return 0
	}

	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	limit := max(base, MaxDelay)
	attempt = max(attempt, 0)

	switch p.BackoffStrategy {
	case ExponentialBackoff:
		// 1x, 2x, 4x, 8x, ...
		d := base
		for i := 0; i < attempt; i++ {
			if d >= limit/2 {
				return limit
			}
			d *= 2
		}
		return d
	case LinearBackoff:
		// 1x, 2x, 3x, 4x, ...
		if int64(attempt) >= int64(limit/base) {
			return limit
		}
		return min(base*time.Duration(attempt+1), limit)
	default:
		return base
	}
}

// Retryable reports whether err should trigger another attempt.
func (p *RetryPolicy) Retryable(err error) bool {
	if p == nil || err == nil {
		return false
	}
	if len(p.RetryableErrors) == 0 {
		return true
	}

	msg := err.Error()
	for _, pattern := range p.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
