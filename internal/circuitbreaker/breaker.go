package circuitbreaker

import (
	"sync/atomic"
	"time"
)

// State is the breaker position. Closed passes traffic, Open refuses it,
// HalfOpen lets probes through after the cooldown.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Defaults applied when a Config field is left zero.
const (
	DefaultFailThreshold    = 5
	DefaultSuccessThreshold = 2
	DefaultCooldown         = 30 * time.Second
)

type Config struct {
	// FailThreshold is the number of consecutive failures that trips the
	// breaker open.
	FailThreshold int `json:"fail_threshold"`
	// SuccessThreshold is the number of consecutive probe successes that
	// closes a half-open breaker.
	SuccessThreshold int `json:"success_threshold"`
	// Timeout is the cooldown an open breaker waits before probing.
	Timeout time.Duration `json:"timeout"`
}

// Breaker guards the GraphQL endpoint. Repeated network failures trip it
// open so a dead or flapping API is not hammered by retries from every
// dashboard widget at once; after a cooldown, probe requests decide whether
// to close it again.
type Breaker struct {
	state            atomic.Int32
	failures         atomic.Int32
	successes        atomic.Int32
	lastFailTime     atomic.Int64
	failThreshold    int
	successThreshold int
	cooldown         time.Duration
	metrics          *Metrics
}

type Metrics struct {
	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	stateChanges    atomic.Int32
}

func New(config Config) *Breaker {
	if config.FailThreshold <= 0 {
		config.FailThreshold = DefaultFailThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultSuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCooldown
	}

	b := &Breaker{
		failThreshold:    config.FailThreshold,
		successThreshold: config.SuccessThreshold,
		cooldown:         config.Timeout,
		metrics:          &Metrics{},
	}
	b.state.Store(int32(StateClosed))
	return b
}

// Allow reports whether a request may proceed. An open breaker starts
// refusing, then flips itself half-open once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.metrics.totalRequests.Add(1)

	switch b.State() {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		lastFail := time.Unix(0, b.lastFailTime.Load())
		if time.Since(lastFail) < b.cooldown {
			return false
		}
		if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			b.successes.Store(0)
			b.metrics.stateChanges.Add(1)
		}
		return true
	}
	return false
}

// Record feeds the outcome of a completed request into the state machine.
// Only transport-level outcomes belong here; a well-formed GraphQL error
// response proves the endpoint is alive and must be recorded as a success.
func (b *Breaker) Record(success bool) {
	switch b.State() {
	case StateClosed:
		if success {
			b.failures.Store(0)
			b.metrics.successRequests.Add(1)
			return
		}
		b.metrics.failedRequests.Add(1)
		if int(b.failures.Add(1)) >= b.failThreshold {
			b.trip()
		}
	case StateHalfOpen:
		if success {
			b.metrics.successRequests.Add(1)
			if int(b.successes.Add(1)) >= b.successThreshold {
				b.transitionTo(StateClosed)
				b.failures.Store(0)
				b.successes.Store(0)
			}
			return
		}
		b.metrics.failedRequests.Add(1)
		b.successes.Store(0)
		b.trip()
	case StateOpen:
		// A request that was already in flight when the breaker tripped.
		// Its outcome is counted but recovery is probed through Allow.
		if success {
			b.metrics.successRequests.Add(1)
		} else {
			b.metrics.failedRequests.Add(1)
		}
	}
}

func (b *Breaker) trip() {
	b.lastFailTime.Store(time.Now().UnixNano())
	b.transitionTo(StateOpen)
}

func (b *Breaker) transitionTo(newState State) {
	b.state.Store(int32(newState))
	b.metrics.stateChanges.Add(1)
}

func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed and zeroes its counters.
func (b *Breaker) Reset() {
	b.state.Store(int32(StateClosed))
	b.failures.Store(0)
	b.successes.Store(0)
}

func (b *Breaker) Failures() int {
	return int(b.failures.Load())
}

func (b *Breaker) Successes() int {
	return int(b.successes.Load())
}

func (b *Breaker) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   b.metrics.totalRequests.Load(),
		SuccessRequests: b.metrics.successRequests.Load(),
		FailedRequests:  b.metrics.failedRequests.Load(),
		StateChanges:    b.metrics.stateChanges.Load(),
		CurrentState:    b.State().String(),
	}
}

type MetricsSnapshot struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	StateChanges    int32
	CurrentState    string
}
