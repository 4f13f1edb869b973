// Package transport routes GraphQL operations to the indexing API. Queries
// and mutations travel over HTTP with authentication, retry, rate limiting,
// and circuit breaking; subscriptions travel over a shared websocket channel
// that survives disconnects.
package transport

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"soroscan/internal/auth"
	"soroscan/internal/circuitbreaker"
	"soroscan/internal/gqlhttp"
	"soroscan/internal/ratelimit"
	"soroscan/internal/retry"
	"soroscan/internal/ws"
	"soroscan/pkg/core"
	"soroscan/pkg/events"
)

// ConnState re-exports the streaming connection state for callers outside
// the module.
type ConnState = ws.ConnState

const (
	StateDisconnected = ws.StateDisconnected
	StateConnecting   = ws.StateConnecting
	StateConnected    = ws.StateConnected
	StateErrored      = ws.StateErrored
	StateUnavailable  = ws.StateUnavailable
)

// RateLimitMetrics and BreakerMetrics re-export the infra counters.
type (
	RateLimitMetrics = ratelimit.MetricsSnapshot
	BreakerMetrics   = circuitbreaker.MetricsSnapshot
)

// StateChange is one transition of the streaming connection state.
type StateChange struct {
	Old ConnState
	New ConnState
}

// Metrics is a point-in-time capture of the router's infra counters.
type Metrics struct {
	RateLimit RateLimitMetrics
	// Breaker is the zero value when the circuit breaker is disabled.
	Breaker BreakerMetrics
}

// Sender executes one operation over HTTP. Exactly one request per call;
// retries happen above the sender.
type Sender interface {
	Send(ctx context.Context, op *core.Operation, accessToken string) (*core.Result, error)
	Close() error
}

// Router is the single entry point for executing GraphQL operations against
// the indexer. It owns the credential store, the HTTP pipeline, the
// websocket channel, and the live event window.
type Router struct {
	config *core.Config
	logger zerolog.Logger

	sender      Sender
	refresher   auth.Refresher
	store       *auth.Store
	interceptor *auth.Interceptor
	retry       *retry.Policy
	limiter     *ratelimit.Limiter
	breaker     *circuitbreaker.Breaker
	cache       *resultCache
	buffer      *events.Buffer

	mu      sync.Mutex
	channel *ws.Channel
	closed  bool

	stateChanges chan StateChange
	wg           sync.WaitGroup
}

// Option customizes router construction.
type Option func(*Router)

// WithLogger attaches a logger to the router and everything it builds.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithSender substitutes the HTTP sender. Intended for tests.
func WithSender(sender Sender) Option {
	return func(r *Router) { r.sender = sender }
}

// WithRefresher substitutes the session refresher.
func WithRefresher(refresher auth.Refresher) Option {
	return func(r *Router) { r.refresher = refresher }
}

// New creates a router for the given configuration.
func New(cfg *core.Config, opts ...Option) (*Router, error) {
	if cfg == nil {
		cfg = core.ConfigFromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		config:       cfg,
		logger:       zerolog.Nop(),
		stateChanges: make(chan StateChange, 16),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.sender == nil {
		hs := gqlhttp.NewSender(cfg.Endpoint, cfg.Timeout)
		hs.SetLogger(r.logger.With().Str("component", "gqlhttp").Logger())
		r.sender = hs
	}

	r.retry = retry.New(cfg.MaxAttempts, cfg.RetryWaitMin, cfg.RetryWaitMax)
	r.retry.SetLogger(r.logger.With().Str("component", "retry").Logger())

	if r.refresher == nil {
		r.refresher = newSenderRefresher(r.sender, r.retry)
	}

	r.store = auth.NewStore(cfg.Credentials)
	r.interceptor = auth.NewInterceptor(r.store, r.refresher)
	r.interceptor.SetLogger(r.logger.With().Str("component", "auth").Logger())

	r.limiter = ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitPeriod)

	if cfg.CircuitBreakerEnabled {
		r.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    cfg.CircuitBreakerFailThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}
	if cfg.CacheEnabled {
		r.cache = newResultCache(cfg.CacheTTL)
	}

	r.buffer = events.NewBuffer(cfg.EventBufferSize)
	r.channel = r.newChannel()

	return r, nil
}

// Do executes a query or mutation over HTTP and returns its single result.
// Application errors the server attached to a result with data ride inside
// the result; the error return covers everything that prevented one.
func (r *Router) Do(ctx context.Context, op *core.Operation) (*core.Result, error) {
	if r.isClosed() {
		return nil, core.WrapTransportError(core.ErrorTypeUnknown, core.ErrCodeRouterClosed, core.ErrRouterClosed).
			WithOp(op.Name)
	}
	if op.IsSubscription() {
		return nil, core.NewTransportError(core.ErrorTypeProtocol, 0, "subscriptions must be executed as streams").
			WithCode(core.ErrCodeInvalidOperation).
			WithOp(op.Name)
	}

	var cacheKey string
	if r.cache != nil && op.Kind == core.KindQuery {
		cacheKey = op.CacheKey()
		if res, ok := r.cache.Get(cacheKey); ok {
			r.logger.Debug().Str("op", op.Name).Msg("cache hit")
			return res, nil
		}
	}

	res, err := r.interceptor.Execute(ctx, op.Name, func(ctx context.Context, token string) (*core.Result, error) {
		return r.sendWithRetry(ctx, op, token)
	})
	if err != nil {
		return res, err
	}

	if cacheKey != "" && res != nil && !res.HasErrors() {
		r.cache.Set(cacheKey, res)
	}
	return res, nil
}

// Execute runs any operation as a stream. Subscriptions stream server pushes
// until ended; queries and mutations deliver exactly one result and end.
func (r *Router) Execute(ctx context.Context, op *core.Operation) (*Stream, error) {
	if op.IsSubscription() {
		return r.Subscribe(ctx, op)
	}
	if r.isClosed() {
		return nil, core.WrapTransportError(core.ErrorTypeUnknown, core.ErrCodeRouterClosed, core.ErrRouterClosed).
			WithOp(op.Name)
	}

	results := make(chan *core.Result, 1)
	cctx, cancel := context.WithCancel(ctx)

	var mu sync.Mutex
	var terminal error
	errFn := func() error {
		mu.Lock()
		defer mu.Unlock()
		return terminal
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer close(results)

		res, err := r.Do(cctx, op)
		if err != nil {
			mu.Lock()
			terminal = err
			mu.Unlock()
			return
		}
		results <- res
	}()

	return NewStream(results, errFn, cancel), nil
}

// Subscribe routes a subscription onto the websocket channel. The returned
// stream starts delivering once the channel is connected; a channel that
// cannot connect right now keeps retrying in the background while the
// subscription waits to be replayed.
func (r *Router) Subscribe(ctx context.Context, op *core.Operation) (*Stream, error) {
	if r.isClosed() {
		return nil, core.WrapTransportError(core.ErrorTypeUnknown, core.ErrCodeRouterClosed, core.ErrRouterClosed).
			WithOp(op.Name)
	}
	if !op.IsSubscription() {
		return nil, core.NewTransportError(core.ErrorTypeProtocol, 0, "operation is not a subscription").
			WithCode(core.ErrCodeInvalidOperation).
			WithOp(op.Name)
	}
	if r.config.StreamingEndpoint == "" {
		return nil, core.WrapTransportError(core.ErrorTypeProtocol, core.ErrCodeStreamingUnavailable, core.ErrStreamingUnavailable).
			WithOp(op.Name)
	}

	ch := r.ensureChannel()
	sub, err := ch.Subscribe(op)
	if err != nil {
		return nil, err
	}

	switch ch.State() {
	case StateDisconnected, StateErrored:
		if cerr := ch.Connect(ctx); cerr != nil {
			r.logger.Warn().Err(cerr).Str("op", op.Name).Msg("socket connect failed, retrying in background")
		}
	}

	cancel := func() { ch.Unsubscribe(sub.ID()) }
	return NewStream(sub.Results(), sub.Err, cancel), nil
}

// Reconnect discards the current websocket channel and dials a fresh one.
// Active subscription streams end cleanly; callers resubscribe on the new
// channel.
func (r *Router) Reconnect(ctx context.Context) error {
	if r.isClosed() {
		return core.WrapTransportError(core.ErrorTypeUnknown, core.ErrCodeRouterClosed, core.ErrRouterClosed)
	}
	if r.config.StreamingEndpoint == "" {
		return core.WrapTransportError(core.ErrorTypeProtocol, core.ErrCodeStreamingUnavailable, core.ErrStreamingUnavailable)
	}

	r.mu.Lock()
	old := r.channel
	r.channel = r.newChannel()
	ch := r.channel
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return ch.Connect(ctx)
}

// ConnectionState returns the current streaming connection state.
func (r *Router) ConnectionState() ConnState {
	r.mu.Lock()
	ch := r.channel
	r.mu.Unlock()
	if ch == nil {
		return StateUnavailable
	}
	return ch.State()
}

// StateChanges returns the feed of connection state transitions. The feed is
// never closed; transitions that find a full feed are dropped.
func (r *Router) StateChanges() <-chan StateChange {
	return r.stateChanges
}

// RecentEvents returns the live event window, newest first.
func (r *Router) RecentEvents() []events.Event {
	return r.buffer.Snapshot()
}

// ClearEvents empties the live event window.
func (r *Router) ClearEvents() {
	r.buffer.Clear()
}

// SetCredentials installs a credential pair, replacing any existing session.
func (r *Router) SetCredentials(creds core.Credentials) {
	r.store.Set(creds)
}

// Credentials returns the current credential pair, or nil when anonymous.
func (r *Router) Credentials() *core.Credentials {
	return r.store.Current()
}

// ClearCredentials drops the session. Subsequent operations run anonymously.
func (r *Router) ClearCredentials() {
	r.store.Clear()
}

// RefreshSession refreshes the credentials now instead of waiting for an
// operation to be rejected.
func (r *Router) RefreshSession(ctx context.Context) error {
	return r.interceptor.ForceRefresh(ctx)
}

// Metrics returns the router's infra counters.
func (r *Router) Metrics() Metrics {
	m := Metrics{RateLimit: r.limiter.Metrics()}
	if r.breaker != nil {
		m.Breaker = r.breaker.Metrics()
	}
	return m
}

// Close shuts down the router: the websocket channel closes, in-flight HTTP
// streams run to completion, and the HTTP client is released.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ch := r.channel
	r.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	r.wg.Wait()
	err := r.sender.Close()

	r.logger.Debug().Msg("transport router closed")
	return err
}

// sendWithRetry is the retrying section of the HTTP pipeline, run once per
// credential the interceptor tries.
func (r *Router) sendWithRetry(ctx context.Context, op *core.Operation, token string) (*core.Result, error) {
	var res *core.Result
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var serr error
		res, serr = r.send(ctx, op, token)
		return serr
	})
	return res, err
}

// send is one attempt: breaker gate, rate limit, then the wire.
func (r *Router) send(ctx context.Context, op *core.Operation, token string) (*core.Result, error) {
	if r.breaker != nil && !r.breaker.Allow() {
		return nil, core.WrapTransportError(core.ErrorTypeNetwork, core.ErrCodeCircuitOpen, core.ErrCircuitOpen).
			WithOp(op.Name)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, core.WrapTransportError(core.ErrorTypeUnknown, "", err).WithOp(op.Name)
	}

	res, err := r.sender.Send(ctx, op, token)
	if r.breaker != nil {
		r.breaker.Record(!core.IsNetworkError(err))
	}
	return res, err
}

func (r *Router) newChannel() *ws.Channel {
	ch := ws.NewChannel(ws.Config{
		URL: r.config.StreamingEndpoint,
		Token: func() string {
			if creds := r.store.Current(); creds != nil {
				return creds.AccessToken
			}
			return ""
		},
		BaseWait:         r.config.ReconnectBaseWait,
		MaxWait:          r.config.ReconnectMaxWait,
		BufferSize:       r.config.EventBufferSize,
		MaxSubscriptions: r.config.MaxSubscriptions,
		Buffer:           r.buffer,
		OnStateChange:    r.publishStateChange,
	})
	ch.SetLogger(r.logger.With().Str("component", "ws").Logger())
	return ch
}

// ensureChannel returns the live channel, replacing one that was closed by
// its last unsubscribe.
func (r *Router) ensureChannel() *ws.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel == nil || r.channel.Closed() {
		r.channel = r.newChannel()
	}
	return r.channel
}

func (r *Router) publishStateChange(old, next ConnState) {
	r.logger.Info().
		Str("from", old.String()).
		Str("to", next.String()).
		Msg("connection state changed")

	select {
	case r.stateChanges <- StateChange{Old: old, New: next}:
	default:
		r.logger.Debug().Msg("state change feed full, dropping transition")
	}
}

func (r *Router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
