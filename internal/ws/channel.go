package ws

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"soroscan/pkg/core"
	"soroscan/pkg/events"
)

// socketConn is the slice of *gws.Conn the channel writes through.
type socketConn interface {
	WriteMessage(opcode gws.Opcode, payload []byte) error
	WritePing(payload []byte) error
	NetConn() net.Conn
}

// Config holds configuration options for a socket channel.
type Config struct {
	// URL is the websocket endpoint for subscriptions. An empty URL leaves
	// the channel permanently unavailable.
	URL string
	// Token supplies the current access token for the handshake. May be nil
	// for unauthenticated endpoints.
	Token func() string
	// BaseWait is the reconnect backoff unit; the wait doubles each attempt.
	BaseWait time.Duration
	// MaxWait caps the reconnect backoff.
	MaxWait time.Duration
	// PingInterval is the duration between keepalive pings.
	PingInterval time.Duration
	// PongWait is the maximum time to wait for a pong before considering the
	// connection dead.
	PongWait time.Duration
	// HandshakeTimeout bounds one dial plus protocol handshake.
	HandshakeTimeout time.Duration
	// BufferSize is the capacity of each subscription's result channel.
	BufferSize int
	// MaxSubscriptions caps concurrent subscriptions. Zero disables the cap.
	MaxSubscriptions int
	// Buffer, when set, receives every event decoded from a streaming result.
	Buffer *events.Buffer
	// OnStateChange is invoked on every connection state transition.
	OnStateChange func(old, next ConnState)
}

// Channel multiplexes GraphQL subscriptions over a single websocket
// connection. A lost connection is re-established with exponential backoff
// and active subscriptions are replayed once the server acknowledges the new
// connection.
type Channel struct {
	config  Config
	state   *State
	handler *channelHandler
	logger  zerolog.Logger

	mu            sync.Mutex
	conn          socketConn
	subs          map[string]*Subscription
	acked         bool
	connectedChan chan struct{}
	attempts      int
	reconnecting  bool
	closeReq      bool

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Subscription is one active GraphQL subscription on a channel. Results
// arrive on Results until the subscription ends; Err reports why it ended
// once Results is closed.
type Subscription struct {
	id string
	op *core.Operation

	mu      sync.Mutex
	closed  bool
	err     error
	results chan *core.Result
}

type channelHandler struct {
	channel *Channel
}

// NewChannel creates a socket channel for the given configuration. Default
// values are applied for any zero-valued timing fields. The channel starts
// disconnected and does not dial until Connect is called.
func NewChannel(config Config) *Channel {
	if config.BaseWait == 0 {
		config.BaseWait = 1 * time.Second
	}
	if config.MaxWait == 0 {
		config.MaxWait = 30 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.PongWait == 0 {
		config.PongWait = 20 * time.Second
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.BufferSize == 0 {
		config.BufferSize = 100
	}

	c := &Channel{
		config:        config,
		subs:          make(map[string]*Subscription),
		connectedChan: make(chan struct{}),
		stopChan:      make(chan struct{}),
		logger:        zerolog.Nop(),
	}

	initial := StateDisconnected
	if config.URL == "" {
		initial = StateUnavailable
	}
	c.state = NewState(initial, config.OnStateChange)
	c.handler = &channelHandler{channel: c}
	return c
}

// SetLogger configures the logger for the channel.
func (c *Channel) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	return c.state.Load()
}

// Closed reports whether the channel has been shut down. A closed channel
// never reconnects; callers must create a new one.
func (c *Channel) Closed() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Channel) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Connect dials the websocket endpoint and waits for the server to
// acknowledge the protocol handshake. On failure the channel keeps retrying
// in the background, so a subscription registered after a failed Connect
// still starts once the endpoint comes back.
func (c *Channel) Connect(ctx context.Context) error {
	switch c.state.Load() {
	case StateUnavailable:
		return core.ErrStreamingUnavailable
	case StateConnected, StateConnecting:
		return nil
	}
	if c.Closed() {
		return core.ErrChannelClosed
	}

	if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) &&
		!c.state.CompareAndSwap(StateErrored, StateConnecting) {
		return nil
	}

	if err := c.dial(ctx); err != nil {
		c.scheduleReconnect()
		return err
	}
	return nil
}

// dial performs one connection attempt. The caller has already moved the
// state to Connecting.
func (c *Channel) dial(ctx context.Context) error {
	select {
	case <-c.stopChan:
		c.state.Store(StateDisconnected)
		return core.ErrChannelClosed
	default:
	}

	c.mu.Lock()
	connected := c.connectedChan
	c.mu.Unlock()

	socket, _, err := gws.NewClient(c.handler, &gws.ClientOption{
		Addr: c.config.URL,
		RequestHeader: http.Header{
			"Sec-WebSocket-Protocol": []string{Subprotocol},
		},
	})
	if err != nil {
		c.state.Store(StateErrored)
		return core.WrapTransportError(core.ErrorTypeNetwork, core.ErrCodeNetwork, err).WithOp("connect")
	}

	c.mu.Lock()
	c.conn = socket
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		socket.ReadLoop()
	}()

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		_ = socket.NetConn().Close()
		c.state.Store(StateErrored)
		return core.WrapTransportError(core.ErrorTypeNetwork, core.ErrCodeTimeout, ctx.Err()).WithOp("connect")
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		return core.ErrChannelClosed
	}
}

// Subscribe registers a subscription for the given operation. If the
// connection is established the subscribe frame is sent immediately;
// otherwise it is replayed when the server acknowledges the next connection.
func (c *Channel) Subscribe(op *core.Operation) (*Subscription, error) {
	if c.state.Load() == StateUnavailable {
		return nil, core.ErrStreamingUnavailable
	}
	if c.Closed() {
		return nil, core.ErrChannelClosed
	}

	c.mu.Lock()
	if c.config.MaxSubscriptions > 0 && len(c.subs) >= c.config.MaxSubscriptions {
		c.mu.Unlock()
		return nil, core.WrapTransportError(core.ErrorTypeProtocol, core.ErrCodeSubscriptionLimit, core.ErrSubscriptionLimit).
			WithOp(op.Name)
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		op:      op,
		results: make(chan *core.Result, c.config.BufferSize),
	}
	c.subs[sub.id] = sub
	var conn socketConn
	if c.acked {
		conn = c.conn
	}
	c.mu.Unlock()

	if conn != nil {
		if err := c.sendSubscribe(conn, sub); err != nil {
			c.logger.Warn().Err(err).Str("id", sub.id).Msg("subscribe frame failed, replaying on reconnect")
		}
	}

	c.logger.Debug().Str("id", sub.id).Str("operation", op.Name).Msg("subscription registered")
	return sub, nil
}

// Unsubscribe removes the subscription, notifies the server, and ends the
// result stream cleanly. Removing the last subscription closes the channel.
func (c *Channel) Unsubscribe(id string) {
	sub, remaining, conn := c.remove(id)
	if sub == nil {
		return
	}

	if conn != nil {
		if data, err := encodeComplete(id); err == nil {
			_ = conn.WriteMessage(gws.OpcodeText, data)
		}
	}
	sub.finish(nil)
	c.logger.Debug().Str("id", id).Msg("unsubscribed")

	if remaining == 0 {
		_ = c.Close()
	}
}

// Close shuts down the channel and ends all subscriptions cleanly. The
// channel cannot be reused afterwards.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReq = true
		close(c.stopChan)
		conn := c.conn
		c.conn = nil
		subs := c.subs
		c.subs = make(map[string]*Subscription)
		c.mu.Unlock()

		if conn != nil {
			_ = conn.NetConn().Close()
		}
		for _, sub := range subs {
			sub.finish(nil)
		}
		if c.state.Load() != StateUnavailable {
			c.state.Store(StateDisconnected)
		}

		c.wg.Wait()
		c.logger.Debug().Str("url", c.config.URL).Msg("socket channel closed")
	})
	return nil
}

// remove deletes a subscription from the registry and reports how many
// remain. The returned conn is nil unless the connection is acknowledged.
func (c *Channel) remove(id string) (*Subscription, int, socketConn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[id]
	if !ok {
		return nil, len(c.subs), nil
	}
	delete(c.subs, id)
	var conn socketConn
	if c.acked {
		conn = c.conn
	}
	return sub, len(c.subs), conn
}

func (c *Channel) sendSubscribe(conn socketConn, sub *Subscription) error {
	data, err := encodeSubscribe(sub.id, sub.op)
	if err != nil {
		return err
	}
	return conn.WriteMessage(gws.OpcodeText, data)
}

// scheduleReconnect starts the background reconnect loop unless one is
// already running or the channel is closing.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.reconnecting || c.closeReq {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runReconnect()
}

// runReconnect retries the connection forever with exponential backoff.
// The attempt counter is reset only by a successful handshake, so the wait
// keeps growing across failed dials until it hits MaxWait.
func (c *Channel) runReconnect() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
		c.wg.Done()
	}()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		wait := c.backoff(attempt)
		c.logger.Info().Dur("wait", wait).Int("attempt", attempt).Msg("reconnecting")

		select {
		case <-time.After(wait):
		case <-c.stopChan:
			return
		}

		if c.state.Load() == StateConnected {
			return
		}
		if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) &&
			!c.state.CompareAndSwap(StateErrored, StateConnecting) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
		err := c.dial(ctx)
		cancel()

		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		c.logger.Info().Msg("reconnected")
		return
	}
}

func (c *Channel) backoff(attempt int) time.Duration {
	if attempt > 20 {
		return c.config.MaxWait
	}
	return min(c.config.BaseWait<<uint(attempt), c.config.MaxWait)
}

// markConnected promotes the channel to Connected once the server
// acknowledges the handshake, then replays every registered subscription on
// the new connection.
func (c *Channel) markConnected(socket socketConn) {
	c.state.Store(StateConnected)

	c.mu.Lock()
	c.acked = true
	c.attempts = 0
	select {
	case <-c.connectedChan:
	default:
		close(c.connectedChan)
	}
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	c.logger.Info().Str("url", c.config.URL).Msg("socket channel connected")

	for _, sub := range subs {
		if err := c.sendSubscribe(socket, sub); err != nil {
			c.logger.Warn().Err(err).Str("id", sub.id).Msg("resubscribe failed")
			return
		}
		c.logger.Debug().Str("id", sub.id).Str("operation", sub.op.Name).Msg("subscription replayed")
	}

	c.wg.Add(1)
	go c.keepalive(socket)
}

// keepalive pings the server so the read deadline keeps moving on an
// otherwise idle connection.
func (c *Channel) keepalive(socket socketConn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != socket {
				return
			}
			if err := socket.WritePing(nil); err != nil {
				return
			}
		case <-c.stopChan:
			return
		}
	}
}

// handleFrame dispatches one protocol message from the server.
func (c *Channel) handleFrame(socket socketConn, data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed frame")
		return
	}

	switch f.Type {
	case msgConnectionAck:
		c.markConnected(socket)
	case msgPing:
		if data, err := encodePong(); err == nil {
			_ = socket.WriteMessage(gws.OpcodeText, data)
		}
	case msgPong:
	case msgNext:
		c.handleNext(f)
	case msgError:
		c.handleError(f)
	case msgComplete:
		c.finishFromServer(f.ID, nil)
	default:
		c.logger.Debug().Str("type", f.Type).Msg("ignoring unexpected frame")
	}
}

func (c *Channel) handleNext(f *frame) {
	res, err := f.result()
	if err != nil {
		c.logger.Warn().Err(err).Str("id", f.ID).Msg("discarding malformed result")
		return
	}

	c.mu.Lock()
	sub := c.subs[f.ID]
	c.mu.Unlock()
	if sub == nil {
		c.logger.Debug().Str("id", f.ID).Msg("result for unknown subscription")
		return
	}

	if c.config.Buffer != nil && res.HasData() {
		if ev, err := events.FromResult(res); err == nil {
			c.config.Buffer.Push(*ev)
		} else {
			c.logger.Debug().Err(err).Str("id", f.ID).Msg("streaming result is not an event")
		}
	}

	sub.deliver(res, c.logger)
}

func (c *Channel) handleError(f *frame) {
	errs, err := f.errors()
	if err != nil {
		c.logger.Warn().Err(err).Str("id", f.ID).Msg("discarding malformed error frame")
		errs = nil
	}

	terr := core.FromGraphQL(0, errs)
	if terr == nil {
		terr = core.NewTransportError(core.ErrorTypeProtocol, 0, "subscription terminated by server").
			WithCode(core.ErrCodeBadResponse)
	}
	c.finishFromServer(f.ID, terr)
}

// finishFromServer ends a subscription terminated by the server. Runs on the
// read loop, so a refcount close has to happen off-goroutine.
func (c *Channel) finishFromServer(id string, terr error) {
	sub, remaining, _ := c.remove(id)
	if sub == nil {
		return
	}
	sub.finish(terr)

	if terr != nil {
		c.logger.Warn().Err(terr).Str("id", id).Msg("subscription failed")
	} else {
		c.logger.Debug().Str("id", id).Msg("subscription completed by server")
	}

	if remaining == 0 {
		go func() { _ = c.Close() }()
	}
}

func (h *channelHandler) OnOpen(socket *gws.Conn) {
	c := h.channel
	_ = socket.SetDeadline(time.Now().Add(c.config.PingInterval + c.config.PongWait))

	var token string
	if c.config.Token != nil {
		token = c.config.Token()
	}
	data, err := encodeConnectionInit(token)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode connection_init")
		_ = socket.NetConn().Close()
		return
	}
	if err := socket.WriteMessage(gws.OpcodeText, data); err != nil {
		c.logger.Warn().Err(err).Msg("connection_init failed")
	}
}

func (h *channelHandler) OnClose(socket *gws.Conn, err error) {
	c := h.channel

	c.mu.Lock()
	requested := c.closeReq
	c.acked = false
	if c.conn == socket {
		c.conn = nil
	}
	c.connectedChan = make(chan struct{})
	c.mu.Unlock()

	c.state.Store(StateDisconnected)

	if requested {
		return
	}

	c.logger.Warn().Err(err).Str("url", c.config.URL).Msg("socket channel disconnected")
	c.scheduleReconnect()
}

func (h *channelHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.channel.config.PingInterval + h.channel.config.PongWait))
	_ = socket.WritePong(nil)
}

func (h *channelHandler) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.channel.config.PingInterval + h.channel.config.PongWait))
}

func (h *channelHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	_ = socket.SetDeadline(time.Now().Add(h.channel.config.PingInterval + h.channel.config.PongWait))

	data := message.Bytes()
	if len(data) == 0 {
		return
	}

	h.channel.handleFrame(socket, data)
}

// ID returns the server-facing subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Operation returns the subscription's GraphQL operation.
func (s *Subscription) Operation() *core.Operation {
	return s.op
}

// Results returns the channel streaming results for this subscription. The
// channel is closed when the subscription ends; Err reports why.
func (s *Subscription) Results() <-chan *core.Result {
	return s.results
}

// Err returns the terminal error of an ended subscription, or nil if it is
// still active or ended cleanly.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// deliver hands a result to the consumer without blocking the read loop.
// A full buffer drops the newest result.
func (s *Subscription) deliver(res *core.Result, logger zerolog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.results <- res:
	default:
		logger.Warn().Str("id", s.id).Msg("subscription buffer full, dropping result")
	}
}

// finish ends the subscription exactly once.
func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.results)
}
