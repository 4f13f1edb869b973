package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"soroscan/pkg/core"
)

// Policy decides whether and when a failed HTTP operation is retried.
// Only transport-level network failures qualify; well-formed server errors
// are terminal for the attempt that produced them.
type Policy struct {
	// MaxAttempts bounds the loop, counting the initial attempt.
	MaxAttempts int
	// InitialDelay is the backoff after the first failed attempt.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier is the backoff growth factor.
	Multiplier float64
	// Jitter randomizes delays to avoid synchronized retry storms across
	// concurrently failing clients.
	Jitter bool
	// Classify reports whether an error is eligible for retry.
	Classify func(error) bool

	logger zerolog.Logger
}

// New creates a Policy with a 2.0 multiplier, jitter enabled, and the
// transport error taxonomy as its classifier.
func New(maxAttempts int, initialDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
		Jitter:       true,
		Classify:     core.IsRetryable,
		logger:       zerolog.Nop(),
	}
}

// SetLogger configures the logger for the policy.
func (p *Policy) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

// ShouldRetry reports whether the failed attempt may be followed by another.
// attempt is 1-based and names the attempt that just failed.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	if p.Classify == nil {
		return core.IsRetryable(err)
	}
	return p.Classify(err)
}

// DelayFor computes the backoff scheduled after the given 1-based failed
// attempt. Growth is exponential from InitialDelay and capped at MaxDelay.
// Jitter shortens the delay by up to a quarter, so the cap is never exceeded
// and delays for successive attempts stay strictly increasing.
func (p *Policy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
			break
		}
	}

	d := min(time.Duration(delay), p.MaxDelay)
	if p.Jitter {
		if q := d / 4; q > 0 {
			d -= rand.N(q)
		}
	}
	return d
}

// Do runs fn, retrying per the policy. Once the attempt cap is reached or a
// non-retryable error occurs, the last error is returned to the caller
// unchanged. A cancelled context stops the loop without scheduling further
// attempts.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.ShouldRetry(err, attempt) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}

		delay := p.DelayFor(attempt)
		p.logger.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retrying after network failure")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}
