// Package client is the typed SoroScan API: contract registry, event queries
// with cursor pagination, aggregate statistics, and live event subscriptions,
// all carried by the transport router.
package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"soroscan/pkg/core"
	"soroscan/pkg/events"
	"soroscan/pkg/transport"
)

// Client exposes the SoroScan indexing API as typed operations.
// It is safe for concurrent use.
type Client struct {
	router *transport.Router
	logger zerolog.Logger
}

// New creates a client with its own transport router. Router options such as
// transport.WithLogger are passed through.
func New(cfg *core.Config, opts ...transport.Option) (*Client, error) {
	router, err := transport.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	return NewWithRouter(router), nil
}

// NewWithRouter wraps an existing router. The caller keeps ownership of the
// router's lifecycle only if it also skips Close on the client.
func NewWithRouter(router *transport.Router) *Client {
	return &Client{
		router: router,
		logger: zerolog.Nop(),
	}
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// Router returns the underlying transport router for direct operation
// dispatch, connection-state observation, and metrics.
func (c *Client) Router() *transport.Router {
	return c.router
}

// Close shuts down the underlying router.
func (c *Client) Close() error {
	return c.router.Close()
}

// Contracts lists registered contracts. A non-nil isActive filters by
// ingestion status.
func (c *Client) Contracts(ctx context.Context, isActive *bool) ([]Contract, error) {
	vars := core.Params{}
	if isActive != nil {
		vars["isActive"] = *isActive
	}

	res, err := c.router.Do(ctx, contractsOp.WithVariables(vars))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Contracts []Contract `json:"contracts"`
	}
	if err := decode(res, "GetContracts", &payload); err != nil {
		return nil, err
	}
	return payload.Contracts, nil
}

// Contract fetches a registered contract by its Stellar address.
// Returns nil without error when the contract is not registered.
func (c *Client) Contract(ctx context.Context, contractID string) (*Contract, error) {
	res, err := c.router.Do(ctx, contractOp.WithVariables(core.Params{"contractId": contractID}))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Contract *Contract `json:"contract"`
	}
	if err := decode(res, "GetContract", &payload); err != nil {
		return nil, err
	}
	return payload.Contract, nil
}

// Events fetches one page of indexed events matching the filter.
func (c *Client) Events(ctx context.Context, filter EventsFilter) (*EventConnection, error) {
	res, err := c.router.Do(ctx, eventsOp.WithVariables(filter.variables()))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Events *EventConnection `json:"events"`
	}
	if err := decode(res, "GetEvents", &payload); err != nil {
		return nil, err
	}
	if payload.Events == nil {
		return nil, core.NewTransportError(core.ErrorTypeProtocol, 0, "events query returned no connection").
			WithCode(core.ErrCodeBadResponse)
	}
	return payload.Events, nil
}

// AllEvents walks the cursor pagination until the last page and returns every
// matching event. The filter's After field selects the starting point; its
// First field sets the page size used for each fetch.
func (c *Client) AllEvents(ctx context.Context, filter EventsFilter) ([]events.Event, error) {
	var all []events.Event
	for {
		page, err := c.Events(ctx, filter)
		if err != nil {
			return all, err
		}
		for _, edge := range page.Edges {
			all = append(all, edge.Node)
		}
		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == nil {
			return all, nil
		}
		filter.After = *page.PageInfo.EndCursor
	}
}

// Event fetches a single event by its server-assigned identifier.
// Returns nil without error when no such event exists.
func (c *Client) Event(ctx context.Context, id int) (*events.Event, error) {
	res, err := c.router.Do(ctx, eventOp.WithVariables(core.Params{"id": id}))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Event *events.Event `json:"event"`
	}
	if err := decode(res, "GetEvent", &payload); err != nil {
		return nil, err
	}
	return payload.Event, nil
}

// ContractStats fetches aggregate statistics for a contract.
// Returns nil without error when the contract is not registered.
func (c *Client) ContractStats(ctx context.Context, contractID string) (*ContractStats, error) {
	res, err := c.router.Do(ctx, contractStatsOp.WithVariables(core.Params{"contractId": contractID}))
	if err != nil {
		return nil, err
	}

	var payload struct {
		ContractStats *ContractStats `json:"contractStats"`
	}
	if err := decode(res, "GetContractStats", &payload); err != nil {
		return nil, err
	}
	return payload.ContractStats, nil
}

// EventTypes lists the distinct decoded event names seen for a contract.
func (c *Client) EventTypes(ctx context.Context, contractID string) ([]string, error) {
	res, err := c.router.Do(ctx, eventTypesOp.WithVariables(core.Params{"contractId": contractID}))
	if err != nil {
		return nil, err
	}

	var payload struct {
		EventTypes []string `json:"eventTypes"`
	}
	if err := decode(res, "GetEventTypes", &payload); err != nil {
		return nil, err
	}
	return payload.EventTypes, nil
}

// EventTimeline fetches bucketed event history for a contract.
func (c *Client) EventTimeline(ctx context.Context, opts TimelineOptions) (*EventTimeline, error) {
	if opts.ContractID == "" {
		return nil, fmt.Errorf("contract ID is required")
	}

	res, err := c.router.Do(ctx, eventTimelineOp.WithVariables(opts.variables()))
	if err != nil {
		return nil, err
	}

	var payload struct {
		EventTimeline *EventTimeline `json:"eventTimeline"`
	}
	if err := decode(res, "GetEventTimeline", &payload); err != nil {
		return nil, err
	}
	return payload.EventTimeline, nil
}

// RegisterContract registers a contract for indexing. Requires an
// authenticated session.
func (c *Client) RegisterContract(ctx context.Context, reg *Registration) (*Contract, error) {
	if reg == nil {
		return nil, fmt.Errorf("registration is required")
	}
	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	vars := core.Params{
		"contractId": reg.ContractID,
		"name":       reg.Name,
	}
	if reg.Description != "" {
		vars["description"] = reg.Description
	}

	res, err := c.router.Do(ctx, registerContractOp.WithVariables(vars))
	if err != nil {
		return nil, err
	}

	var payload struct {
		RegisterContract *Contract `json:"registerContract"`
	}
	if err := decode(res, "RegisterContract", &payload); err != nil {
		return nil, err
	}
	return payload.RegisterContract, nil
}

// UpdateContract changes a registered contract's name, description, or
// ingestion status. Requires an authenticated session. Returns nil without
// error when the contract is not registered.
func (c *Client) UpdateContract(ctx context.Context, contractID string, update ContractUpdate) (*Contract, error) {
	if contractID == "" {
		return nil, fmt.Errorf("contract ID is required")
	}

	res, err := c.router.Do(ctx, updateContractOp.WithVariables(update.variables(contractID)))
	if err != nil {
		return nil, err
	}

	var payload struct {
		UpdateContract *Contract `json:"updateContract"`
	}
	if err := decode(res, "UpdateContract", &payload); err != nil {
		return nil, err
	}
	return payload.UpdateContract, nil
}

// SubscribeContractEvents opens a live event stream for one contract over the
// socket channel. The returned stream delivers raw results; events.FromResult
// turns each into an Event. Close the stream to release its subscription.
func (c *Client) SubscribeContractEvents(ctx context.Context, contractID string) (*transport.Stream, error) {
	if contractID == "" {
		return nil, fmt.Errorf("contract ID is required")
	}
	return c.router.Subscribe(ctx, contractEventsOp.WithVariables(core.Params{"contractId": contractID}))
}

// RecentEvents returns the router's live-event window, newest first.
func (c *Client) RecentEvents() []events.Event {
	return c.router.RecentEvents()
}

// ConnectionState reports the socket channel's current state.
func (c *Client) ConnectionState() transport.ConnState {
	return c.router.ConnectionState()
}

// StateChanges exposes the socket channel's state transition feed.
func (c *Client) StateChanges() <-chan transport.StateChange {
	return c.router.StateChanges()
}

// Reconnect tears down the socket channel and dials fresh.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.router.Reconnect(ctx)
}

// decode surfaces result errors as a typed error and unmarshals the payload.
// The router lets partial results through; at this layer a partial result for
// a single root field means the field is unusable, so errors win.
func decode(res *core.Result, op string, v any) error {
	if res.HasErrors() {
		return core.FromGraphQL(0, res.Errors).WithOp(op)
	}
	return res.Decode(v)
}
