package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soroscan/pkg/core"
)

func newTestPolicy() *Policy {
	return New(3, 300*time.Millisecond, 3*time.Second)
}

func TestPolicy_DelayFor(t *testing.T) {
	policy := newTestPolicy()
	policy.Jitter = false

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 300 * time.Millisecond},
		{2, 600 * time.Millisecond},
		{3, 1200 * time.Millisecond},
		{4, 2400 * time.Millisecond},
		{5, 3000 * time.Millisecond},
		{6, 3000 * time.Millisecond},
		{10, 3000 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.DelayFor(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_DelayForJitterBounds(t *testing.T) {
	policy := newTestPolicy()

	for range 200 {
		d1 := policy.DelayFor(1)
		d2 := policy.DelayFor(2)
		d3 := policy.DelayFor(3)

		assert.Greater(t, d1, 225*time.Millisecond)
		assert.LessOrEqual(t, d1, 300*time.Millisecond)
		assert.Greater(t, d2, 450*time.Millisecond)
		assert.LessOrEqual(t, d2, 600*time.Millisecond)
		assert.Less(t, d1, d2)
		assert.Less(t, d2, d3)
		assert.LessOrEqual(t, policy.DelayFor(8), 3*time.Second, "cap holds for every attempt")
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	policy := newTestPolicy()
	networkErr := core.NewTransportError(core.ErrorTypeNetwork, 0, "connection refused")
	appErr := core.NewTransportError(core.ErrorTypeApplication, 200, "bad input")
	authErr := core.NewTransportError(core.ErrorTypeAuth, 401, "unauthorized")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"network_first_attempt", networkErr, 1, true},
		{"network_second_attempt", networkErr, 2, true},
		{"network_at_cap", networkErr, 3, false},
		{"application_error", appErr, 1, false},
		{"auth_error", authErr, 1, false},
		{"plain_error", errors.New("plain"), 1, false},
		{"nil_error", nil, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestPolicy_DoRetriesNetworkErrors(t *testing.T) {
	policy := New(3, time.Millisecond, 4*time.Millisecond)
	failure := core.NewTransportError(core.ErrorTypeNetwork, 0, "connection refused")

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	})

	assert.Equal(t, 3, calls, "three attempts total: one initial plus two retries")
	assert.Same(t, failure, err, "the last error must surface unchanged")
}

func TestPolicy_DoStopsOnApplicationError(t *testing.T) {
	policy := New(3, time.Millisecond, 4*time.Millisecond)
	failure := core.NewTransportError(core.ErrorTypeApplication, 200, "bad input")

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, failure, err)
}

func TestPolicy_DoSucceedsAfterTransientFailure(t *testing.T) {
	policy := New(3, time.Millisecond, 4*time.Millisecond)
	failure := core.NewTransportError(core.ErrorTypeNetwork, 0, "reset by peer")

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return failure
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_DoStopsWhenContextCancelled(t *testing.T) {
	policy := New(3, time.Second, 3*time.Second)
	failure := core.NewTransportError(core.ErrorTypeNetwork, 0, "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	start := time.Now()
	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		return failure
	})

	assert.Equal(t, 1, calls, "no attempt may be scheduled after cancellation")
	assert.Same(t, failure, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "cancellation must skip the backoff timer")
}
