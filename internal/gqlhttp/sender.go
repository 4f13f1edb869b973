// Package gqlhttp posts GraphQL operations to the indexer's HTTP endpoint
// and classifies responses into the transport error taxonomy.
package gqlhttp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"soroscan/pkg/core"
)

// Sender executes queries and mutations over HTTP POST. Retries are the
// caller's concern: one Send is exactly one request on the wire.
type Sender struct {
	client *resty.Client
	url    string
	logger zerolog.Logger
}

// NewSender creates a sender for the given GraphQL endpoint.
func NewSender(endpoint string, timeout time.Duration) *Sender {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("Content-Type", "application/json")
	client.AddContentTypeEncoder("application/json", func(w io.Writer, v any) error {
		data, err := sonic.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	client.AddContentTypeDecoder("application/json", func(r io.Reader, v any) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(data, v)
	})

	s := &Sender{
		client: client,
		url:    endpoint,
		logger: zerolog.Nop(),
	}

	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		s.logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("graphql request")
		return nil
	})

	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		s.logger.Debug().
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Int("size", len(resp.Bytes())).
			Msg("graphql response")
		return nil
	})

	return s
}

// SetLogger configures the logger. Call before the first Send.
func (s *Sender) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// Send posts the operation and parses the response envelope. A result with
// data is returned as-is even when errors ride alongside it; the caller
// decides what a partial result means for the operation. A response carrying
// only errors is returned together with the classified error.
func (s *Sender) Send(ctx context.Context, op *core.Operation, accessToken string) (*core.Result, error) {
	req := s.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString()).
		SetBody(core.NewRequest(op))
	if accessToken != "" {
		req.SetHeader("Authorization", "Bearer "+accessToken)
	}

	resp, err := req.Post(s.url)
	if err != nil {
		return nil, classifySendError(op.Name, err)
	}

	body := resp.Bytes()
	var res core.Result
	if uerr := sonic.Unmarshal(body, &res); uerr != nil || (!res.HasData() && !res.HasErrors()) {
		return nil, classifyStatus(op.Name, resp.StatusCode())
	}

	if res.HasErrors() && !res.HasData() {
		return &res, core.FromGraphQL(resp.StatusCode(), res.Errors).WithOp(op.Name)
	}
	return &res, nil
}

// Close releases the underlying HTTP client.
func (s *Sender) Close() error {
	return s.client.Close()
}

// classifySendError maps a transport-level failure onto the error taxonomy.
// Only a caller-cancelled context escapes the network category, so the retry
// loop stops immediately when the caller walks away.
func classifySendError(op string, err error) *core.TransportError {
	switch {
	case errors.Is(err, context.Canceled):
		return core.WrapTransportError(core.ErrorTypeUnknown, "", err).WithOp(op)
	case errors.Is(err, context.DeadlineExceeded):
		return core.WrapTransportError(core.ErrorTypeNetwork, core.ErrCodeTimeout, err).WithOp(op)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return core.WrapTransportError(core.ErrorTypeNetwork, core.ErrCodeTimeout, err).WithOp(op)
	}
	return core.WrapTransportError(core.ErrorTypeNetwork, core.ErrCodeNetwork, err).WithOp(op)
}

// classifyStatus maps a response without a usable GraphQL envelope onto the
// error taxonomy by HTTP status alone.
func classifyStatus(op string, status int) *core.TransportError {
	msg := "endpoint returned " + http.StatusText(status)

	switch {
	case status == http.StatusUnauthorized:
		return core.NewTransportError(core.ErrorTypeAuth, status, msg).
			WithCode(core.ErrCodeUnauthenticated).WithOp(op)
	case status == http.StatusForbidden:
		return core.NewTransportError(core.ErrorTypeAuth, status, msg).
			WithCode(core.ErrCodeForbidden).WithOp(op)
	case status == http.StatusTooManyRequests:
		return core.NewTransportError(core.ErrorTypeNetwork, status, msg).
			WithCode(core.ErrCodeRateLimited).WithOp(op)
	case status >= http.StatusInternalServerError:
		return core.NewTransportError(core.ErrorTypeNetwork, status, msg).
			WithCode(core.ErrCodeServerError).WithOp(op)
	default:
		return core.NewTransportError(core.ErrorTypeProtocol, status, "response is not a GraphQL envelope").
			WithCode(core.ErrCodeBadResponse).WithOp(op)
	}
}
