package core

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

var nullData = []byte("null")

// Result is one delivery from an executed operation: the single response of a
// query or mutation, or one element of a subscription feed. Data and Errors
// may both be present when the server returns a partial result.
type Result struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors gqlerror.List   `json:"errors,omitempty"`
}

// HasData reports whether the result carries a non-null data payload.
func (r *Result) HasData() bool {
	return len(r.Data) > 0 && !bytes.Equal(r.Data, nullData)
}

// HasErrors reports whether the server attached any errors to the result.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Decode unmarshals the data payload into v.
func (r *Result) Decode(v any) error {
	if !r.HasData() {
		return NewTransportError(ErrorTypeProtocol, 0, "result has no data").
			WithCode(ErrCodeBadResponse)
	}
	if err := sonic.Unmarshal(r.Data, v); err != nil {
		return NewTransportError(ErrorTypeProtocol, 0, "decode result: "+err.Error()).
			WithCode(ErrCodeBadResponse)
	}
	return nil
}
