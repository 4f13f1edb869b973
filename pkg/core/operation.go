package core

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// OperationKind classifies a GraphQL operation by its root operation type.
type OperationKind int

// Operation kind constants determine which transport carries an operation.
const (
	// KindQuery is a read-only fetch, carried over the HTTP path.
	KindQuery OperationKind = iota
	// KindMutation is a state-changing call, carried over the HTTP path.
	KindMutation
	// KindSubscription is a long-lived event feed, carried over the socket channel.
	KindSubscription
)

// String returns the string representation of the operation kind.
func (k OperationKind) String() string {
	return [...]string{
		"QUERY",
		"MUTATION",
		"SUBSCRIPTION",
	}[k]
}

// Operation is a single GraphQL operation ready for dispatch.
// The kind is decided once at construction and never changes mid-flight.
type Operation struct {
	// Kind selects the transport path for this operation.
	Kind OperationKind `json:"kind"`
	// Name is the operation name from the document, empty for anonymous operations.
	Name string `json:"name,omitempty"`
	// Document is the raw GraphQL source text.
	Document string `json:"document"`
	// Variables holds the values bound to the document's variable definitions.
	Variables Params `json:"variables,omitempty"`
}

// NewOperation parses document, classifies its kind, and binds variables.
// The document must contain exactly one operation definition.
func NewOperation(document string, variables Params) (*Operation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: document})
	if err != nil {
		return nil, NewTransportError(ErrorTypeProtocol, 0, "parse operation: "+err.Error()).
			WithCode(ErrCodeInvalidOperation)
	}
	if len(doc.Operations) != 1 {
		return nil, NewTransportError(ErrorTypeProtocol, 0,
			fmt.Sprintf("document must contain exactly one operation, got %d", len(doc.Operations))).
			WithCode(ErrCodeInvalidOperation)
	}

	def := doc.Operations[0]
	var kind OperationKind
	switch def.Operation {
	case ast.Query:
		kind = KindQuery
	case ast.Mutation:
		kind = KindMutation
	case ast.Subscription:
		kind = KindSubscription
	default:
		return nil, NewTransportError(ErrorTypeProtocol, 0,
			fmt.Sprintf("unsupported operation type %q", def.Operation)).
			WithCode(ErrCodeInvalidOperation)
	}

	return &Operation{
		Kind:      kind,
		Name:      def.Name,
		Document:  document,
		Variables: variables,
	}, nil
}

// MustOperation is like NewOperation but panics on a malformed document.
// It is intended for package-level operation definitions.
func MustOperation(document string, variables Params) *Operation {
	op, err := NewOperation(document, variables)
	if err != nil {
		panic(err)
	}
	return op
}

// WithVariables returns a copy of the operation with variables replaced.
// The receiver is left untouched so shared operation definitions stay immutable.
func (o *Operation) WithVariables(variables Params) *Operation {
	cp := *o
	cp.Variables = variables
	return &cp
}

// IsSubscription reports whether the operation must travel over the socket channel.
func (o *Operation) IsSubscription() bool {
	return o.Kind == KindSubscription
}

// CacheKey returns a deterministic key identifying the operation and its
// variables. Map keys are sorted during encoding so equal variable sets
// produce equal keys.
func (o *Operation) CacheKey() string {
	vars, err := sonic.ConfigStd.Marshal(o.Variables)
	if err != nil {
		vars = nil
	}
	return o.Document + "|" + string(vars)
}
