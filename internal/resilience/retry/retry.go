// Package retry decides whether a classified failure is re-delivered and
// computes the delay before the next attempt. The delay itself is enforced by
// the queue's scheduling, never a busy wait.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/resilience/taxonomy"
)

// MaxDelay caps every computed backoff.
const MaxDelay = 60 * time.Second

// jitterFraction is the upper bound of the uniform jitter added to each
// delay, as a fraction of the unjittered value.
const jitterFraction = 0.2

// Policy carries the per-code backoff parameters from the taxonomy.
type Policy struct {
	Retryable         bool
	MaxRetries        int
	BackoffBaseMs     int
	BackoffMultiplier float64
}

// For builds the retry policy for a canonical error code.
func For(code domain.ErrorCode) Policy {
	return FromEntry(taxonomy.Get(code))
}

// FromEntry builds a policy from a taxonomy entry.
func FromEntry(e taxonomy.Entry) Policy {
	return Policy{
		Retryable:         e.Retryable,
		MaxRetries:        e.MaxRetries,
		BackoffBaseMs:     e.BackoffBaseMs,
		BackoffMultiplier: e.BackoffMultiplier,
	}
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p Policy) ShouldRetry(attempt int) bool {
	if !p.Retryable {
		return false
	}
	return attempt <= p.MaxRetries
}

// NextDelay computes the backoff before the next attempt: exponential growth
// from the base, plus uniform jitter in [0, 20%) of the delay, capped at
// MaxDelay. Returns 0 for non-retryable classifications.
func (p Policy) NextDelay(attempt int) time.Duration {
	if !p.Retryable {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BackoffBaseMs) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	delay += rand.Float64() * jitterFraction * delay

	d := time.Duration(delay * float64(time.Millisecond))
	if d > MaxDelay {
		d = MaxDelay
	}
	return d
}
