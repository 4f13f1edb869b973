package transport

import (
	"context"

	"soroscan/internal/retry"
	"soroscan/pkg/core"
)

// refreshDocument exchanges a refresh token for a new credential pair. The
// server may rotate the refresh token; a null refreshToken in the response
// means the old one stays valid.
const refreshDocument = `mutation RefreshSession($refreshToken: String!) {
	refreshToken(refreshToken: $refreshToken) {
		accessToken
		refreshToken
	}
}`

var refreshOperation = core.MustOperation(refreshDocument, nil)

// senderRefresher performs the session refresh through the router's HTTP
// sender. The rejected access token is deliberately not attached; the
// refresh token alone authenticates the exchange.
type senderRefresher struct {
	sender Sender
	retry  *retry.Policy
}

func newSenderRefresher(sender Sender, policy *retry.Policy) *senderRefresher {
	return &senderRefresher{sender: sender, retry: policy}
}

// Refresh implements auth.Refresher.
func (r *senderRefresher) Refresh(ctx context.Context, refreshToken string) (core.Credentials, error) {
	op := refreshOperation.WithVariables(core.Params{"refreshToken": refreshToken})

	var res *core.Result
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var serr error
		res, serr = r.sender.Send(ctx, op, "")
		return serr
	})
	if err != nil {
		return core.Credentials{}, err
	}

	var payload struct {
		RefreshToken *struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"refreshToken"`
	}
	if err := res.Decode(&payload); err != nil {
		return core.Credentials{}, err
	}
	if payload.RefreshToken == nil || payload.RefreshToken.AccessToken == "" {
		return core.Credentials{}, core.NewTransportError(core.ErrorTypeProtocol, 0, "refresh response carries no access token").
			WithCode(core.ErrCodeBadResponse).
			WithOp(op.Name)
	}

	return core.Credentials{
		AccessToken:  payload.RefreshToken.AccessToken,
		RefreshToken: payload.RefreshToken.RefreshToken,
	}, nil
}
