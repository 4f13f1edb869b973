package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"soroscan/pkg/core"
)

// stellarDecimals is the fixed decimal scale of Stellar token amounts.
// Contract amounts arrive as raw integers (stroops for 7-decimal tokens).
const stellarDecimals = 7

// Field returns the raw JSON encoding of a single payload field.
func (e *Event) Field(name string) (json.RawMessage, error) {
	node, err := sonic.Get(e.Payload, name)
	if err != nil {
		return nil, fmt.Errorf("payload field %q: %w", name, err)
	}
	raw, err := node.Raw()
	if err != nil {
		return nil, fmt.Errorf("payload field %q: %w", name, err)
	}
	return json.RawMessage(raw), nil
}

// StringField returns a payload field decoded as a string.
func (e *Event) StringField(name string) (string, error) {
	raw, err := e.Field(name)
	if err != nil {
		return "", err
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("payload field %q is not a string: %w", name, err)
	}
	return s, nil
}

// Amount interprets a payload field as a raw token amount and scales it to
// token units. The decoder emits i128 amounts as integers or integer
// strings, so the field is parsed as a decimal rather than through float64.
func (e *Event) Amount(name string) (*apd.Decimal, error) {
	raw, err := e.Field(name)
	if err != nil {
		return nil, err
	}
	text := strings.Trim(string(raw), `"`)

	var amount apd.Decimal
	if _, _, err := apd.BaseContext.SetString(&amount, text); err != nil {
		return nil, fmt.Errorf("payload field %q is not an amount: %w", name, err)
	}
	amount.Exponent -= stellarDecimals
	return &amount, nil
}

// FromResult extracts the event carried by a single streaming result. A
// streaming payload holds exactly one root field whose value is the event
// object.
func FromResult(res *core.Result) (*Event, error) {
	if res == nil || !res.HasData() {
		return nil, fmt.Errorf("streaming result carries no data")
	}

	var root map[string]json.RawMessage
	if err := sonic.Unmarshal(res.Data, &root); err != nil {
		return nil, fmt.Errorf("decode streaming result: %w", err)
	}
	if len(root) != 1 {
		return nil, fmt.Errorf("streaming result carries %d root fields, want 1", len(root))
	}

	for _, raw := range root {
		var ev Event
		if err := sonic.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		return &ev, nil
	}
	return nil, fmt.Errorf("streaming result carries no event")
}
