package auth

import (
	"sync/atomic"

	"soroscan/pkg/core"
)

// Store is the single-writer home of the live credential pair. Readers take
// an immutable snapshot; only the refresh flow and explicit login or logout
// calls replace it. The pointer is swapped atomically, so a reader can never
// observe a torn pair.
type Store struct {
	current atomic.Pointer[core.Credentials]
}

// NewStore creates a Store seeded with initial credentials. A nil initial
// value means anonymous access until credentials are set.
func NewStore(initial *core.Credentials) *Store {
	s := &Store{}
	if initial != nil {
		cp := *initial
		s.current.Store(&cp)
	}
	return s
}

// Current returns the live credential snapshot, or nil when none is set.
// The returned value must be treated as immutable.
func (s *Store) Current() *core.Credentials {
	return s.current.Load()
}

// Set replaces the live credentials atomically.
func (s *Store) Set(creds core.Credentials) {
	s.current.Store(&creds)
}

// Clear removes the credentials on logout or irrecoverable refresh failure.
func (s *Store) Clear() {
	s.current.Store(nil)
}
