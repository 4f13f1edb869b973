package ws

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"soroscan/pkg/core"
)

// Subprotocol is the websocket subprotocol the indexer speaks for
// subscriptions.
const Subprotocol = "graphql-transport-ws"

// Message types of the graphql-transport-ws protocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// frame is one protocol message. ID correlates subscribe/next/error/complete
// messages with a single subscription; connection-level messages omit it.
type frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// decodeFrame parses a raw websocket message into a frame.
func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame has no type")
	}
	return &f, nil
}

// result decodes the payload of a next frame.
func (f *frame) result() (*core.Result, error) {
	var res core.Result
	if err := sonic.Unmarshal(f.Payload, &res); err != nil {
		return nil, fmt.Errorf("decode next payload: %w", err)
	}
	return &res, nil
}

// errors decodes the payload of an error frame. The server sends the GraphQL
// error list that terminated the subscription.
func (f *frame) errors() (gqlerror.List, error) {
	var errs gqlerror.List
	if err := sonic.Unmarshal(f.Payload, &errs); err != nil {
		return nil, fmt.Errorf("decode error payload: %w", err)
	}
	return errs, nil
}

// encodeConnectionInit builds the handshake opener. A non-empty access token
// rides in the payload the same way it would in an HTTP Authorization header.
func encodeConnectionInit(accessToken string) ([]byte, error) {
	var payload json.RawMessage
	if accessToken != "" {
		p, err := sonic.Marshal(map[string]string{
			"authorization": "Bearer " + accessToken,
		})
		if err != nil {
			return nil, fmt.Errorf("encode init payload: %w", err)
		}
		payload = p
	}
	return sonic.Marshal(frame{Type: msgConnectionInit, Payload: payload})
}

// encodeSubscribe builds a subscribe frame carrying the operation document
// and its variables under the given subscription id.
func encodeSubscribe(id string, op *core.Operation) ([]byte, error) {
	payload, err := sonic.Marshal(core.NewRequest(op))
	if err != nil {
		return nil, fmt.Errorf("encode subscribe payload: %w", err)
	}
	return sonic.Marshal(frame{ID: id, Type: msgSubscribe, Payload: payload})
}

// encodeComplete builds the frame that tells the server to stop a
// subscription.
func encodeComplete(id string) ([]byte, error) {
	return sonic.Marshal(frame{ID: id, Type: msgComplete})
}

// encodePong answers a protocol-level ping.
func encodePong() ([]byte, error) {
	return sonic.Marshal(frame{Type: msgPong})
}
