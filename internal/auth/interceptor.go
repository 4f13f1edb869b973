package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"soroscan/pkg/core"
)

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (core.Credentials, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (core.Credentials, error)

// Refresh implements Refresher.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (core.Credentials, error) {
	return f(ctx, refreshToken)
}

// SendFunc performs one exchange of an operation using the given access
// token. An empty token means the exchange is anonymous.
type SendFunc func(ctx context.Context, accessToken string) (*core.Result, error)

// Interceptor attaches bearer credentials to operations and transparently
// recovers from an expired access token: the first unauthenticated outcome
// triggers one refresh, and the operation is replayed exactly once with the
// refreshed credentials. Concurrent operations that fail while a refresh is
// pending wait on that same refresh instead of starting their own.
type Interceptor struct {
	store     *Store
	refresher Refresher
	logger    zerolog.Logger

	mu       sync.Mutex
	inflight *refreshCall
}

// refreshCall is one in-flight refresh shared by every operation that hits
// an authentication failure while it is pending.
type refreshCall struct {
	done chan struct{}
	err  error
}

// NewInterceptor creates an Interceptor reading credentials from store and
// refreshing them through refresher.
func NewInterceptor(store *Store, refresher Refresher) *Interceptor {
	return &Interceptor{
		store:     store,
		refresher: refresher,
		logger:    zerolog.Nop(),
	}
}

// SetLogger configures the logger for the interceptor.
func (i *Interceptor) SetLogger(logger zerolog.Logger) {
	i.logger = logger
}

// Execute runs send with the current access token. On an unauthenticated
// outcome it refreshes the credentials and replays send once; the replay
// outcome is returned as is, so a second rejection is terminal.
func (i *Interceptor) Execute(ctx context.Context, op string, send SendFunc) (*core.Result, error) {
	used := i.store.Current()
	res, err := send(ctx, accessToken(used))
	if !unauthenticated(res, err) {
		return res, err
	}

	// Another operation may have completed a refresh while this exchange was
	// in flight. Replay with the newer credentials instead of refreshing again.
	if cur := i.store.Current(); cur != nil && cur != used {
		i.logger.Debug().Str("op", op).Msg("replaying with refreshed credentials")
		return send(ctx, cur.AccessToken)
	}

	if used == nil {
		// Anonymous exchange was rejected; there is no session to refresh.
		return res, err
	}
	if used.RefreshToken == "" {
		i.store.Clear()
		i.logger.Warn().Str("op", op).Msg("access token rejected and no refresh token held")
		return nil, core.WrapTransportError(core.ErrorTypeAuth, core.ErrCodeSessionExpired, core.ErrSessionExpired)
	}

	if rerr := i.refresh(ctx, op, used.RefreshToken); rerr != nil {
		return nil, rerr
	}

	cur := i.store.Current()
	i.logger.Debug().Str("op", op).Msg("replaying with refreshed credentials")
	return send(ctx, accessToken(cur))
}

// ForceRefresh refreshes the session now, without waiting for an operation
// to fail. A refresh already in flight is joined instead of duplicated.
func (i *Interceptor) ForceRefresh(ctx context.Context) error {
	creds := i.store.Current()
	if creds == nil || creds.RefreshToken == "" {
		i.store.Clear()
		return core.WrapTransportError(core.ErrorTypeAuth, core.ErrCodeSessionExpired, core.ErrSessionExpired)
	}
	return i.refresh(ctx, "forceRefresh", creds.RefreshToken)
}

// refresh runs the shared single-flight refresh. The caller that finds no
// refresh pending starts one; every other caller waits on that same call and
// receives its outcome.
func (i *Interceptor) refresh(ctx context.Context, op, refreshToken string) error {
	i.mu.Lock()
	if call := i.inflight; call != nil {
		i.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	i.inflight = call
	i.mu.Unlock()

	i.logger.Info().Str("op", op).Msg("refreshing session")

	creds, err := i.refresher.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
		if creds.RefreshToken == "" {
			// The server rotates refresh tokens optionally; keep the old one
			// when no replacement was issued.
			creds.RefreshToken = refreshToken
		}
		i.store.Set(creds)
		i.logger.Info().Msg("session refreshed")
	case core.IsNetworkError(err):
		// The auth endpoint was unreachable; nothing says the session is dead.
		call.err = err
		i.logger.Warn().Err(err).Msg("session refresh unreachable, keeping credentials")
	default:
		i.store.Clear()
		call.err = core.WrapTransportError(core.ErrorTypeAuth, core.ErrCodeSessionExpired, core.ErrSessionExpired)
		i.logger.Warn().Err(err).Msg("session refresh failed, credentials cleared")
	}

	i.mu.Lock()
	i.inflight = nil
	i.mu.Unlock()
	close(call.done)

	return call.err
}

// unauthenticated reports whether an exchange outcome signals a rejected
// access token. Detection is structural, via the error code, never via
// message text.
func unauthenticated(res *core.Result, err error) bool {
	if core.IsErrorCode(err, core.ErrCodeUnauthenticated) {
		return true
	}
	return res != nil && core.HasErrorCode(res.Errors, core.ErrCodeUnauthenticated)
}

func accessToken(creds *core.Credentials) string {
	if creds == nil {
		return ""
	}
	return creds.AccessToken
}
