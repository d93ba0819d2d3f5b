package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config tunes retries and the per-operation circuit breakers wrapped around
// the vector index, generative backend and NATS reply calls. Zero fields take
// the fallback values below.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// Retries stay short: upstream calls already run under a per-call timeout and
// a failed search branch degrades instead of failing the retrieval.
const (
	fallbackRetryAttempts   = 2
	fallbackInitialBackoff  = 50 * time.Millisecond
	fallbackMaxBackoff      = 200 * time.Millisecond
	fallbackMultiplier      = 2.0
	fallbackMinRequests     = 10
	fallbackFailureRatio    = 0.5
	fallbackOpenTimeout     = 30 * time.Second
	fallbackHalfOpenMaxCall = 2
)

func (c Config) withFallbacks() Config {
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = fallbackRetryAttempts
	}
	if c.RetryInitialBackoff <= 0 {
		c.RetryInitialBackoff = fallbackInitialBackoff
	}
	if c.RetryMaxBackoff <= 0 {
		c.RetryMaxBackoff = fallbackMaxBackoff
	}
	c.RetryMaxBackoff = max(c.RetryMaxBackoff, c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = fallbackMultiplier
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = fallbackMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = fallbackFailureRatio
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = fallbackOpenTimeout
	}
	if c.BreakerHalfOpenMaxCalls == 0 {
		c.BreakerHalfOpenMaxCalls = fallbackHalfOpenMaxCall
	}
	return c
}

// backoff is the wait after the given failed attempt (1-based): the initial
// backoff grown by the multiplier per attempt, capped at RetryMaxBackoff.
func (c Config) backoff(attempt int) time.Duration {
	wait := float64(c.RetryInitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= c.RetryMultiplier
		if wait >= float64(c.RetryMaxBackoff) {
			return c.RetryMaxBackoff
		}
	}
	return min(time.Duration(wait), c.RetryMaxBackoff)
}

// shouldTrip opens a breaker once enough calls were seen and the failure
// share reached the configured ratio.
func (c Config) shouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < c.BreakerMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.BreakerFailureRatio
}
