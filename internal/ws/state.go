package ws

import "sync/atomic"

// ConnState represents the current connection state of the socket channel.
type ConnState int32

// Connection states for the socket channel lifecycle. The channel owns its
// state exclusively; everything else reads it.
const (
	// StateDisconnected indicates the channel holds no live connection.
	// This is the initial state, the state after any close, and the state
	// between reconnect attempts.
	StateDisconnected ConnState = iota
	// StateConnecting indicates a dial and protocol handshake are in progress.
	StateConnecting
	// StateConnected indicates the handshake completed and subscription
	// traffic is flowing.
	StateConnected
	// StateErrored indicates a transport-level failure. A reconnect attempt
	// always follows after the backoff delay.
	StateErrored
	// StateUnavailable indicates no streaming endpoint is configured.
	// The state is terminal for the channel instance.
	StateUnavailable
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	return [...]string{
		"disconnected",
		"connecting",
		"connected",
		"errored",
		"unavailable",
	}[s]
}

// State provides atomic access to a ConnState value and notifies an optional
// observer on every transition. The observer is invoked synchronously from
// whichever goroutine performed the transition, so it must not block.
type State struct {
	state    atomic.Int32
	onChange func(old, next ConnState)
}

// NewState creates a State holding initial. onChange may be nil.
func NewState(initial ConnState, onChange func(old, next ConnState)) *State {
	s := &State{onChange: onChange}
	s.state.Store(int32(initial))
	return s
}

// Load returns the current connection state.
func (s *State) Load() ConnState {
	return ConnState(s.state.Load())
}

// Store sets the connection state to the given value.
func (s *State) Store(next ConnState) {
	old := ConnState(s.state.Swap(int32(next)))
	if old != next && s.onChange != nil {
		s.onChange(old, next)
	}
}

// CompareAndSwap atomically compares the current state with old and swaps to
// next if equal. It returns true if the swap was performed.
func (s *State) CompareAndSwap(old, next ConnState) bool {
	if !s.state.CompareAndSwap(int32(old), int32(next)) {
		return false
	}
	if old != next && s.onChange != nil {
		s.onChange(old, next)
	}
	return true
}
