package client

import (
	"time"

	"soroscan/pkg/core"
	"soroscan/pkg/events"
)

// Contract is a Stellar contract registered with the indexer.
type Contract struct {
	// ID is the server-assigned record identifier.
	ID string `json:"id"`
	// ContractID is the Stellar contract address (C...).
	ContractID string `json:"contractId"`
	// Name is the human-readable name the contract was registered under.
	Name string `json:"name"`
	// Description is free-form text supplied at registration.
	Description string `json:"description"`
	// IsActive reports whether the indexer is currently ingesting the contract.
	IsActive bool `json:"isActive"`
	// CreatedAt is when the contract was registered.
	CreatedAt time.Time `json:"createdAt"`
	// EventCount is the number of indexed events for the contract.
	EventCount int `json:"eventCount"`
}

// ContractStats summarizes indexed activity for a single contract.
type ContractStats struct {
	ContractID       string `json:"contractId"`
	Name             string `json:"name"`
	TotalEvents      int    `json:"totalEvents"`
	UniqueEventTypes int    `json:"uniqueEventTypes"`
	// LastActivity is nil for a contract with no indexed events yet.
	LastActivity *time.Time `json:"lastActivity"`
}

// PageInfo carries cursor pagination state for an event page.
type PageInfo struct {
	HasNextPage bool `json:"hasNextPage"`
	// EndCursor is nil on an empty page.
	EndCursor *string `json:"endCursor"`
}

// EventEdge pairs an event with the opaque cursor addressing it.
type EventEdge struct {
	Node   events.Event `json:"node"`
	Cursor string       `json:"cursor"`
}

// EventConnection is one page of a cursor-paginated event query.
type EventConnection struct {
	Edges      []EventEdge `json:"edges"`
	PageInfo   PageInfo    `json:"pageInfo"`
	TotalCount int         `json:"totalCount"`
}

// Events returns the page's events in query order.
func (c *EventConnection) Events() []events.Event {
	out := make([]events.Event, len(c.Edges))
	for i, edge := range c.Edges {
		out[i] = edge.Node
	}
	return out
}

// BucketSize is a timeline aggregation granularity.
type BucketSize string

// Bucket sizes accepted by the event timeline query.
const (
	BucketFiveMinutes   BucketSize = "FIVE_MINUTES"
	BucketThirtyMinutes BucketSize = "THIRTY_MINUTES"
	BucketOneHour       BucketSize = "ONE_HOUR"
	BucketOneDay        BucketSize = "ONE_DAY"
)

// EventTypeCount is an event-type occurrence count within a scope.
type EventTypeCount struct {
	EventType string `json:"eventType"`
	Count     int    `json:"count"`
}

// TimelineGroup is one time bucket of an event timeline.
type TimelineGroup struct {
	Start           time.Time        `json:"start"`
	End             time.Time        `json:"end"`
	EventCount      int              `json:"eventCount"`
	EventTypeCounts []EventTypeCount `json:"eventTypeCounts"`
	Events          []events.Event   `json:"events"`
}

// EventTimeline is bucketed event history for one contract.
type EventTimeline struct {
	ContractID  string          `json:"contractId"`
	BucketSize  BucketSize      `json:"bucketSize"`
	Since       time.Time       `json:"since"`
	Until       time.Time       `json:"until"`
	TotalEvents int             `json:"totalEvents"`
	Groups      []TimelineGroup `json:"groups"`
}

// EventsFilter narrows an event page query. Zero-valued fields are omitted
// and fall back to the server's defaults (page size 20, no filtering).
type EventsFilter struct {
	// ContractID restricts results to one contract address.
	ContractID string
	// EventType restricts results to one decoded event name.
	EventType string
	// LedgerMin and LedgerMax bound the ledger range, inclusive.
	LedgerMin uint64
	LedgerMax uint64
	// First is the page size. The server caps it at 100.
	First int
	// After is the opaque cursor to resume from.
	After string
	// Since and Until bound the ledger close time, inclusive.
	Since time.Time
	Until time.Time
}

func (f EventsFilter) variables() core.Params {
	vars := core.Params{}
	if f.ContractID != "" {
		vars["contractId"] = f.ContractID
	}
	if f.EventType != "" {
		vars["eventType"] = f.EventType
	}
	if f.LedgerMin > 0 {
		vars["ledgerMin"] = f.LedgerMin
	}
	if f.LedgerMax > 0 {
		vars["ledgerMax"] = f.LedgerMax
	}
	if f.First > 0 {
		vars["first"] = f.First
	}
	if f.After != "" {
		vars["after"] = f.After
	}
	if !f.Since.IsZero() {
		vars["since"] = f.Since.UTC().Format(time.RFC3339)
	}
	if !f.Until.IsZero() {
		vars["until"] = f.Until.UTC().Format(time.RFC3339)
	}
	return vars
}

// TimelineOptions selects the scope and granularity of an event timeline.
type TimelineOptions struct {
	// ContractID is the contract to build the timeline for. Required.
	ContractID string
	// Bucket is the aggregation granularity. Defaults to thirty minutes.
	Bucket BucketSize
	// EventTypes restricts the timeline to the named event types.
	EventTypes []string
	// Since and Until bound the timeline range.
	Since time.Time
	Until time.Time
}

func (o TimelineOptions) variables() core.Params {
	vars := core.Params{"contractId": o.ContractID}
	if o.Bucket != "" {
		vars["bucketSize"] = string(o.Bucket)
	}
	if len(o.EventTypes) > 0 {
		vars["eventTypes"] = o.EventTypes
	}
	if !o.Since.IsZero() {
		vars["since"] = o.Since.UTC().Format(time.RFC3339)
	}
	if !o.Until.IsZero() {
		vars["until"] = o.Until.UTC().Format(time.RFC3339)
	}
	return vars
}

// ContractUpdate holds the mutable contract fields for UpdateContract.
// Nil fields are left unchanged on the server.
type ContractUpdate struct {
	Name        *string
	Description *string
	IsActive    *bool
}

func (u ContractUpdate) variables(contractID string) core.Params {
	vars := core.Params{"contractId": contractID}
	if u.Name != nil {
		vars["name"] = *u.Name
	}
	if u.Description != nil {
		vars["description"] = *u.Description
	}
	if u.IsActive != nil {
		vars["isActive"] = *u.IsActive
	}
	return vars
}
