package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a client-side request budget against the indexing API.
// The API throttles callers server-side; pacing requests locally keeps a
// busy dashboard from burning its quota and surfacing throttle errors.
//
// A global budget covers all traffic, and per-class budgets (keyed by
// operation class, e.g. "query" or "mutation") are created on demand so a
// burst of one class cannot starve the other.
type Limiter struct {
	global   *rate.Limiter
	classes  sync.Map
	requests int
	period   time.Duration
	metrics  *Metrics
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
	classCount      atomic.Int32
}

// New creates a Limiter allowing the specified number of requests per period.
func New(requests int, period time.Duration) *Limiter {
	rps := float64(requests) / period.Seconds()
	return &Limiter{
		global:   rate.NewLimiter(rate.Limit(rps), requests),
		requests: requests,
		period:   period,
		metrics:  &Metrics{},
	}
}

// Wait blocks until the global budget allows a request or the context is
// cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.metrics.totalRequests.Add(1)
	if err := l.global.Wait(ctx); err != nil {
		l.metrics.deniedRequests.Add(1)
		return err
	}
	l.metrics.allowedRequests.Add(1)
	return nil
}

// WaitClass blocks until the named class budget allows a request or the
// context is cancelled. Classes are created on demand with the default rate.
func (l *Limiter) WaitClass(ctx context.Context, class string) error {
	l.metrics.totalRequests.Add(1)
	if err := l.getClass(class).Wait(ctx); err != nil {
		l.metrics.deniedRequests.Add(1)
		return err
	}
	l.metrics.allowedRequests.Add(1)
	return nil
}

// Allow reports whether the global budget permits a request right now.
func (l *Limiter) Allow() bool {
	l.metrics.totalRequests.Add(1)
	allowed := l.global.Allow()
	if allowed {
		l.metrics.allowedRequests.Add(1)
	} else {
		l.metrics.deniedRequests.Add(1)
	}
	return allowed
}

// AllowClass reports whether the named class budget permits a request right
// now. Classes are created on demand with the default rate.
func (l *Limiter) AllowClass(class string) bool {
	l.metrics.totalRequests.Add(1)
	allowed := l.getClass(class).Allow()
	if allowed {
		l.metrics.allowedRequests.Add(1)
	} else {
		l.metrics.deniedRequests.Add(1)
	}
	return allowed
}

func (l *Limiter) getClass(class string) *rate.Limiter {
	if v, ok := l.classes.Load(class); ok {
		return v.(*rate.Limiter)
	}

	rps := float64(l.requests) / l.period.Seconds()
	limiter := rate.NewLimiter(rate.Limit(rps), l.requests)
	actual, loaded := l.classes.LoadOrStore(class, limiter)
	if !loaded {
		l.metrics.classCount.Add(1)
	}
	return actual.(*rate.Limiter)
}

// SetLimit updates the global budget to the specified requests per period.
// Existing class budgets keep their current rate.
func (l *Limiter) SetLimit(requests int, period time.Duration) {
	l.requests = requests
	l.period = period
	rps := float64(requests) / period.Seconds()
	l.global.SetLimit(rate.Limit(rps))
}

// Metrics returns a snapshot of the current limiter statistics.
func (l *Limiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   l.metrics.totalRequests.Load(),
		AllowedRequests: l.metrics.allowedRequests.Load(),
		DeniedRequests:  l.metrics.deniedRequests.Load(),
		ClassCount:      l.metrics.classCount.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalRequests is the total number of budget checks performed.
	TotalRequests int64
	// AllowedRequests is the number of requests that were allowed.
	AllowedRequests int64
	// DeniedRequests is the number of requests that were denied or cancelled
	// while waiting.
	DeniedRequests int64
	// ClassCount is the number of per-class budgets in use.
	ClassCount int32
}
