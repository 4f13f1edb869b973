package client

import (
	"context"
	"fmt"

	"soroscan/pkg/core"
)

// Login exchanges a username and password for a token pair and installs it as
// the client's credentials. Subsequent operations carry the access token and
// refresh it transparently when it expires.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	res, err := c.router.Do(ctx, loginOp.WithVariables(core.Params{
		"username": username,
		"password": password,
	}))
	if err != nil {
		return err
	}

	var payload struct {
		Login *struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"login"`
	}
	if err := decode(res, "Login", &payload); err != nil {
		return err
	}
	if payload.Login == nil || payload.Login.AccessToken == "" {
		return core.NewTransportError(core.ErrorTypeProtocol, 0, "login response carries no access token").
			WithCode(core.ErrCodeBadResponse)
	}

	c.router.SetCredentials(core.Credentials{
		AccessToken:  payload.Login.AccessToken,
		RefreshToken: payload.Login.RefreshToken,
	})
	c.logger.Info().Str("username", username).Msg("session established")
	return nil
}

// RefreshSession forces a credential refresh without waiting for a rejected
// operation to trigger one.
func (c *Client) RefreshSession(ctx context.Context) error {
	return c.router.RefreshSession(ctx)
}

// Logout discards the client's credentials. In-flight operations keep the
// token they already attached.
func (c *Client) Logout() {
	c.router.ClearCredentials()
	c.logger.Info().Msg("session cleared")
}

// Credentials returns a snapshot of the current token pair, or nil when the
// client is anonymous.
func (c *Client) Credentials() *core.Credentials {
	return c.router.Credentials()
}
