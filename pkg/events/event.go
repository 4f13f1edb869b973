package events

import (
	"encoding/json"
	"time"
)

// Validation status values reported by the indexer for each event.
const (
	// ValidationPassed means the payload matched the registered event schema,
	// or no schema was registered for the event type.
	ValidationPassed = "passed"
	// ValidationFailed means the payload violated the registered schema. The
	// event is still stored and delivered.
	ValidationFailed = "failed"
)

// Event is a single decoded contract event as served by the indexing API.
// Field names follow the GraphQL schema, so an Event unmarshals directly
// from both query responses and streaming payloads.
type Event struct {
	// ID is the server-assigned event identifier.
	ID string `json:"id"`
	// ContractID is the Stellar contract address that emitted the event.
	ContractID string `json:"contractId"`
	// ContractName is the display name the contract was registered under.
	ContractName string `json:"contractName"`
	// EventType is the decoded event name (e.g. "swap", "transfer").
	EventType string `json:"eventType"`
	// Ledger is the ledger sequence the event was recorded in.
	Ledger uint64 `json:"ledger"`
	// EventIndex is the position of the event within its ledger.
	EventIndex int `json:"eventIndex"`
	// TxHash is the hash of the transaction that emitted the event.
	TxHash string `json:"txHash"`
	// Timestamp is the ledger close time of the event.
	Timestamp time.Time `json:"timestamp"`
	// Payload is the decoded ABI payload as raw JSON.
	Payload json.RawMessage `json:"payload"`
	// PayloadHash is the SHA-256 hash of the canonical payload encoding.
	PayloadHash string `json:"payloadHash"`
	// SchemaVersion is the schema version the payload was validated
	// against, or nil when no schema applied.
	SchemaVersion *int `json:"schemaVersion"`
	// ValidationStatus is ValidationPassed or ValidationFailed.
	ValidationStatus string `json:"validationStatus"`
}
