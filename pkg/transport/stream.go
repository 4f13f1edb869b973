package transport

import (
	"context"
	"sync"

	"soroscan/pkg/core"
)

// Stream delivers the results of one executed operation. Subscriptions
// produce a result per server push until the stream ends; HTTP operations
// produce exactly one result and then end.
//
// Results is closed when the stream ends; Err then reports why. Close
// detaches the consumer and releases the underlying subscription or request.
type Stream struct {
	results   <-chan *core.Result
	errFn     func() error
	cancel    func()
	closeOnce sync.Once
}

// NewStream assembles a stream from a result channel, an error source
// consulted after the channel closes, and a cancel hook invoked by Close.
func NewStream(results <-chan *core.Result, errFn func() error, cancel func()) *Stream {
	return &Stream{
		results: results,
		errFn:   errFn,
		cancel:  cancel,
	}
}

// Results returns the stream's result channel for select-based consumers.
func (s *Stream) Results() <-chan *core.Result {
	return s.results
}

// Next blocks until the next result, the stream ends, or ctx is done.
// Once the stream ends, Next returns the stream's terminal error, or
// core.ErrStreamClosed after a clean end.
func (s *Stream) Next(ctx context.Context) (*core.Result, error) {
	select {
	case res, ok := <-s.results:
		if !ok {
			if err := s.Err(); err != nil {
				return nil, err
			}
			return nil, core.ErrStreamClosed
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the error that ended the stream, or nil while it is live or
// after a clean end. Only meaningful once Results is closed.
func (s *Stream) Err() error {
	if s.errFn == nil {
		return nil
	}
	return s.errFn()
}

// Close ends the consumer's interest in the stream. Pending results may
// still be drained from Results afterwards.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
