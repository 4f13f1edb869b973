package core

import "maps"

type Params map[string]any

// Request is the JSON envelope posted to the GraphQL HTTP endpoint.
type Request struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName,omitempty"`
	Variables     Params `json:"variables,omitempty"`
}

func NewRequest(op *Operation) *Request {
	return &Request{
		Query:         op.Document,
		OperationName: op.Name,
		Variables:     op.Variables,
	}
}

func (p Params) Set(key string, value any) Params {
	p[key] = value
	return p
}

func (p Params) Merge(other Params) Params {
	maps.Copy(p, other)
	return p
}
