// Package feed fans live contract event streams into one merged view for
// dashboard tickers: per-contract counters, rolling event rates, and an
// optional decimal volume summed from a nominated payload field.
package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"soroscan/pkg/events"
	"soroscan/pkg/transport"
)

// Subscriber opens live event streams. *client.Client satisfies it.
type Subscriber interface {
	SubscribeContractEvents(ctx context.Context, contractID string) (*transport.Stream, error)
}

// Defaults applied to zero-valued Config fields.
const (
	DefaultWindow       = time.Minute
	DefaultRecentEvents = 50
	DefaultMergedBuffer = 256
)

// Config holds configuration options for the monitor.
type Config struct {
	// AmountField names the payload field summed into each contract's
	// volume. Events without the field are counted but not summed.
	// Empty disables volume tracking.
	AmountField string `json:"amount_field"`
	// Window is the rolling window for the events-per-second rate.
	Window time.Duration `json:"window"`
	// RecentEvents caps each contract's recent-event window.
	RecentEvents int `json:"recent_events"`
	// MergedBuffer is the capacity of the merged event channel. When a
	// consumer falls behind, further events are dropped from the merged
	// feed; per-contract counters still see them.
	MergedBuffer int `json:"merged_buffer"`
}

// Monitor watches live event feeds for multiple contracts at once.
type Monitor struct {
	mu         sync.RWMutex
	subscriber Subscriber
	config     Config
	watches    map[string]*watch
	merged     chan events.Event
	logger     zerolog.Logger
	closed     bool
	wg         sync.WaitGroup
}

type watch struct {
	contractID string
	recent     *events.Buffer

	mu         sync.Mutex
	stream     *transport.Stream
	count      int64
	typeCounts map[string]int64
	arrivals   []time.Time
	volume     apd.Decimal
	lastEvent  time.Time
	err        error
}

// NewMonitor creates a monitor with no contracts watched.
func NewMonitor(subscriber Subscriber, config Config) *Monitor {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.RecentEvents <= 0 {
		config.RecentEvents = DefaultRecentEvents
	}
	if config.MergedBuffer <= 0 {
		config.MergedBuffer = DefaultMergedBuffer
	}

	return &Monitor{
		subscriber: subscriber,
		config:     config,
		watches:    make(map[string]*watch),
		merged:     make(chan events.Event, config.MergedBuffer),
		logger:     zerolog.Nop(),
	}
}

// NewMonitorWithLogger creates a monitor with a custom logger.
func NewMonitorWithLogger(subscriber Subscriber, config Config, logger zerolog.Logger) *Monitor {
	m := NewMonitor(subscriber, config)
	m.logger = logger
	return m
}

// Watch subscribes to a contract's live events and begins tracking them.
func (m *Monitor) Watch(ctx context.Context, contractID string) error {
	if contractID == "" {
		return fmt.Errorf("contract ID is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("monitor is closed")
	}
	if _, exists := m.watches[contractID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("already watching contract: %s", contractID)
	}
	w := &watch{
		contractID: contractID,
		recent:     events.NewBuffer(m.config.RecentEvents),
		typeCounts: make(map[string]int64),
	}
	m.watches[contractID] = w
	m.mu.Unlock()

	stream, err := m.subscriber.SubscribeContractEvents(ctx, contractID)
	if err != nil {
		m.mu.Lock()
		delete(m.watches, contractID)
		m.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", contractID, err)
	}

	w.mu.Lock()
	w.stream = stream
	w.mu.Unlock()

	m.wg.Add(1)
	go m.pump(w, stream)

	m.logger.Info().Str("contract_id", contractID).Msg("watching contract")
	return nil
}

// Unwatch stops tracking a contract and releases its subscription.
func (m *Monitor) Unwatch(contractID string) error {
	m.mu.Lock()
	w, exists := m.watches[contractID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("not watching contract: %s", contractID)
	}
	delete(m.watches, contractID)
	m.mu.Unlock()

	w.closeStream()
	m.logger.Info().Str("contract_id", contractID).Msg("stopped watching contract")
	return nil
}

// Watching returns the watched contract IDs in sorted order.
func (m *Monitor) Watching() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.watches))
	for id := range m.watches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Events returns the merged event feed across all watched contracts.
// The channel closes when the monitor is closed.
func (m *Monitor) Events() <-chan events.Event {
	return m.merged
}

// Recent returns a contract's recent events, newest first.
func (m *Monitor) Recent(contractID string) []events.Event {
	m.mu.RLock()
	w, exists := m.watches[contractID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}
	return w.recent.Snapshot()
}

// ContractActivity summarizes the live feed of a single watched contract.
type ContractActivity struct {
	// ContractID is the watched Stellar contract address.
	ContractID string `json:"contract_id"`
	// EventCount is the number of events received since Watch.
	EventCount int64 `json:"event_count"`
	// EventTypeCounts breaks the count down by decoded event name.
	EventTypeCounts map[string]int64 `json:"event_type_counts"`
	// EventsPerSecond is the arrival rate over the rolling window.
	EventsPerSecond float64 `json:"events_per_second"`
	// Volume is the running sum of the nominated amount field.
	Volume apd.Decimal `json:"volume"`
	// LastEvent is the ledger close time of the latest event.
	LastEvent time.Time `json:"last_event"`
	// Error is the stream's terminal error, if the feed has ended.
	Error error `json:"error,omitempty"`
}

// Activity returns the live summary for one watched contract.
func (m *Monitor) Activity(contractID string) (*ContractActivity, bool) {
	m.mu.RLock()
	w, exists := m.watches[contractID]
	m.mu.RUnlock()

	if !exists {
		return nil, false
	}
	activity := w.snapshot(m.config.Window)
	return &activity, true
}

// Snapshot returns live summaries for all watched contracts, sorted by
// contract ID.
func (m *Monitor) Snapshot() []ContractActivity {
	m.mu.RLock()
	watches := make([]*watch, 0, len(m.watches))
	for _, w := range m.watches {
		watches = append(watches, w)
	}
	m.mu.RUnlock()

	activities := make([]ContractActivity, 0, len(watches))
	for _, w := range watches {
		activities = append(activities, w.snapshot(m.config.Window))
	}
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].ContractID < activities[j].ContractID
	})
	return activities
}

// Close stops all watches and closes the merged feed.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	watches := make([]*watch, 0, len(m.watches))
	for _, w := range m.watches {
		watches = append(watches, w)
	}
	m.watches = make(map[string]*watch)
	m.mu.Unlock()

	for _, w := range watches {
		w.closeStream()
	}
	m.wg.Wait()
	close(m.merged)
	return nil
}

// pump drains one contract's stream into the merged feed and its counters.
// It exits when the stream ends, recording the terminal error if any.
func (m *Monitor) pump(w *watch, stream *transport.Stream) {
	defer m.wg.Done()

	for res := range stream.Results() {
		ev, err := events.FromResult(res)
		if err != nil {
			m.logger.Warn().Err(err).Str("contract_id", w.contractID).Msg("undecodable streaming result")
			continue
		}

		w.record(*ev, m.config.AmountField, m.config.Window)
		w.recent.Push(*ev)

		select {
		case m.merged <- *ev:
		default:
			m.logger.Warn().Str("contract_id", w.contractID).Str("event_id", ev.ID).Msg("merged feed full, event dropped")
		}
	}

	if err := stream.Err(); err != nil {
		w.setErr(err)
		m.logger.Warn().Err(err).Str("contract_id", w.contractID).Msg("contract feed ended")
	}
}

func (w *watch) record(ev events.Event, amountField string, window time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	w.typeCounts[ev.EventType]++
	if ev.Timestamp.After(w.lastEvent) {
		w.lastEvent = ev.Timestamp
	}

	now := time.Now()
	w.arrivals = append(w.arrivals, now)
	w.pruneArrivals(now, window)

	if amountField == "" {
		return
	}
	amount, err := ev.Amount(amountField)
	if err != nil {
		return
	}
	if _, err := apd.BaseContext.Add(&w.volume, &w.volume, amount); err != nil {
		return
	}
}

// pruneArrivals drops arrival timestamps older than the window. Callers hold w.mu.
func (w *watch) pruneArrivals(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := w.arrivals[:0]
	for _, t := range w.arrivals {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.arrivals = kept
}

func (w *watch) snapshot(window time.Duration) ContractActivity {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneArrivals(time.Now(), window)

	counts := make(map[string]int64, len(w.typeCounts))
	for k, v := range w.typeCounts {
		counts[k] = v
	}

	activity := ContractActivity{
		ContractID:      w.contractID,
		EventCount:      w.count,
		EventTypeCounts: counts,
		EventsPerSecond: float64(len(w.arrivals)) / window.Seconds(),
		LastEvent:       w.lastEvent,
		Error:           w.err,
	}
	activity.Volume.Set(&w.volume)
	return activity
}

func (w *watch) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *watch) closeStream() {
	w.mu.Lock()
	stream := w.stream
	w.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
}
