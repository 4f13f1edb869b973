package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"soroscan/pkg/core"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	creds core.Credentials
	err   error
	delay time.Duration
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (core.Credentials, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.creds, f.err
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func unauthenticatedError() error {
	return core.FromGraphQL(200, gqlerror.List{
		{Message: "token expired", Extensions: map[string]interface{}{"code": "UNAUTHENTICATED"}},
	})
}

func okResult() *core.Result {
	return &core.Result{Data: json.RawMessage(`{"contracts":[]}`)}
}

func TestInterceptor_PassesThroughSuccess(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{}
	interceptor := NewInterceptor(store, refresher)

	var tokens []string
	res, err := interceptor.Execute(context.Background(), "GetContracts", func(ctx context.Context, token string) (*core.Result, error) {
		tokens = append(tokens, token)
		return okResult(), nil
	})

	require.NoError(t, err)
	assert.True(t, res.HasData())
	assert.Equal(t, []string{"tok1"}, tokens)
	assert.Zero(t, refresher.callCount())
}

func TestInterceptor_PassesThroughNetworkError(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{}
	interceptor := NewInterceptor(store, refresher)

	netErr := core.NewTransportError(core.ErrorTypeNetwork, 0, "connection refused")
	calls := 0
	_, err := interceptor.Execute(context.Background(), "GetContracts", func(ctx context.Context, token string) (*core.Result, error) {
		calls++
		return nil, netErr
	})

	assert.Same(t, netErr, err)
	assert.Equal(t, 1, calls, "non-auth failures must not be replayed here")
	assert.Zero(t, refresher.callCount())
}

func TestInterceptor_RefreshesAndReplaysOnce(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{creds: core.Credentials{AccessToken: "tok2"}}
	interceptor := NewInterceptor(store, refresher)

	var tokens []string
	res, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		tokens = append(tokens, token)
		if token == "tok1" {
			return nil, unauthenticatedError()
		}
		return okResult(), nil
	})

	require.NoError(t, err)
	assert.True(t, res.HasData())
	assert.Equal(t, []string{"tok1", "tok2"}, tokens)
	assert.Equal(t, 1, refresher.callCount())

	cur := store.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "tok2", cur.AccessToken)
	assert.Equal(t, "ref1", cur.RefreshToken, "an unrotated refresh token must be preserved")
}

func TestInterceptor_DetectsUnauthenticatedInResultErrors(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{creds: core.Credentials{AccessToken: "tok2", RefreshToken: "ref2"}}
	interceptor := NewInterceptor(store, refresher)

	partial := &core.Result{
		Data: json.RawMessage(`{"events":null}`),
		Errors: gqlerror.List{
			{Message: "token expired", Extensions: map[string]interface{}{"code": "UNAUTHENTICATED"}},
		},
	}

	var tokens []string
	res, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		tokens = append(tokens, token)
		if token == "tok1" {
			return partial, nil
		}
		return okResult(), nil
	})

	require.NoError(t, err)
	assert.True(t, res.HasData())
	assert.Equal(t, []string{"tok1", "tok2"}, tokens)
	assert.Equal(t, 1, refresher.callCount())
}

func TestInterceptor_SecondRejectionIsTerminal(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{creds: core.Credentials{AccessToken: "tok2"}}
	interceptor := NewInterceptor(store, refresher)

	calls := 0
	_, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		calls++
		return nil, unauthenticatedError()
	})

	require.Error(t, err)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeUnauthenticated))
	assert.Equal(t, 2, calls, "exactly one replay, never a second refresh")
	assert.Equal(t, 1, refresher.callCount())
}

func TestInterceptor_RefreshFailureExpiresSession(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{err: errors.New("refresh token revoked")}
	interceptor := NewInterceptor(store, refresher)

	calls := 0
	res, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		calls++
		return nil, unauthenticatedError()
	})

	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSessionExpired))
	assert.True(t, core.IsErrorCode(err, core.ErrCodeSessionExpired))
	assert.True(t, core.IsAuthError(err))
	assert.Equal(t, 1, calls, "a failed refresh must not be followed by a replay")
	assert.Nil(t, store.Current(), "credentials must be cleared")
}

func TestInterceptor_NoRefreshTokenExpiresSession(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1"})
	refresher := &fakeRefresher{}
	interceptor := NewInterceptor(store, refresher)

	_, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		return nil, unauthenticatedError()
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSessionExpired))
	assert.Zero(t, refresher.callCount())
	assert.Nil(t, store.Current())
}

func TestInterceptor_AnonymousRejectionPassesThrough(t *testing.T) {
	store := NewStore(nil)
	refresher := &fakeRefresher{}
	interceptor := NewInterceptor(store, refresher)

	authErr := unauthenticatedError()
	_, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		assert.Empty(t, token)
		return nil, authErr
	})

	assert.Same(t, authErr, err, "no session means nothing to refresh")
	assert.Zero(t, refresher.callCount())
}

func TestInterceptor_ReplaysWithCredentialsRefreshedElsewhere(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{err: errors.New("must not be called")}
	interceptor := NewInterceptor(store, refresher)

	var tokens []string
	res, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		tokens = append(tokens, token)
		if token == "tok1" {
			// Simulate a refresh completed by a concurrent operation while
			// this exchange was in flight.
			store.Set(core.Credentials{AccessToken: "tok2", RefreshToken: "ref2"})
			return nil, unauthenticatedError()
		}
		return okResult(), nil
	})

	require.NoError(t, err)
	assert.True(t, res.HasData())
	assert.Equal(t, []string{"tok1", "tok2"}, tokens)
	assert.Zero(t, refresher.callCount(), "the observed refresh must be reused, not repeated")
}

func TestInterceptor_UnreachableRefreshKeepsCredentials(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{
		err: core.NewTransportError(core.ErrorTypeNetwork, 0, "connection refused"),
	}
	interceptor := NewInterceptor(store, refresher)

	_, err := interceptor.Execute(context.Background(), "GetEvents", func(ctx context.Context, token string) (*core.Result, error) {
		return nil, unauthenticatedError()
	})

	require.Error(t, err)
	assert.True(t, core.IsNetworkError(err))

	cur := store.Current()
	require.NotNil(t, cur, "an unreachable auth endpoint must not destroy the session")
	assert.Equal(t, "tok1", cur.AccessToken)
}

func TestInterceptor_ForceRefresh(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{creds: core.Credentials{AccessToken: "tok2", RefreshToken: "ref2"}}
	interceptor := NewInterceptor(store, refresher)

	err := interceptor.ForceRefresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, refresher.callCount())

	cur := store.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "tok2", cur.AccessToken)
	assert.Equal(t, "ref2", cur.RefreshToken)
}

func TestInterceptor_ForceRefreshWithoutSession(t *testing.T) {
	store := NewStore(nil)
	refresher := &fakeRefresher{}
	interceptor := NewInterceptor(store, refresher)

	err := interceptor.ForceRefresh(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSessionExpired))
	assert.Zero(t, refresher.callCount())
}

func TestInterceptor_SingleRefreshSharedByConcurrentOperations(t *testing.T) {
	store := NewStore(&core.Credentials{AccessToken: "tok1", RefreshToken: "ref1"})
	refresher := &fakeRefresher{
		creds: core.Credentials{AccessToken: "tok2", RefreshToken: "ref2"},
		delay: 50 * time.Millisecond,
	}
	interceptor := NewInterceptor(store, refresher)

	send := func(ctx context.Context, token string) (*core.Result, error) {
		if token == "tok2" {
			return okResult(), nil
		}
		return nil, unauthenticatedError()
	}

	const workers = 5
	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			res, err := interceptor.Execute(context.Background(), "GetEvents", send)
			if err == nil && res.HasData() {
				succeeded.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(workers), succeeded.Load(), "every operation completes after the shared refresh")
	assert.Equal(t, 1, refresher.callCount(), "concurrent auth failures must share one refresh call")
}
