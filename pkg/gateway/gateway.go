// Package gateway defines the adapter contract between the runtime and a
// trading venue: requests go in through the interface, state changes come
// back out as events on the shared engine. Components never hold references
// to each other; the engine is the single mediator.
package gateway

import (
	"time"

	"trading-runtime/internal/events"
	"trading-runtime/pkg/objects"
)

// Gateway abstracts a trading venue.
//
// SendOrder and CancelOrder never return errors: they always complete by
// publishing the appropriate order event (REJECTED on any failure path), so
// the OMS and strategies never lose track of an intent. Connect may fail on
// bad configuration and surfaces that to the caller.
type Gateway interface {
	// Connect acquires credentials/session from the setting map. Recognized
	// keys are gateway-specific.
	Connect(setting map[string]any) error

	// Subscribe registers interest in market data for symbol. May be a no-op.
	Subscribe(symbol string)

	// SendOrder assigns a local order id and publishes ORDER(SUBMITTING)
	// before returning. Returns the composite order id, or the empty string
	// on a terminal rejection path (which also publishes ORDER(REJECTED)).
	SendOrder(req objects.OrderRequest) string

	// CancelOrder is best-effort and safe to call with unknown ids.
	CancelOrder(req objects.CancelRequest)

	// QueryAccount and QueryPosition are fire-and-forget; results arrive
	// asynchronously as eAccount / ePosition events.
	QueryAccount()
	QueryPosition()

	// QueryHistory fetches historical bars. Optional; the default
	// implementation returns nil.
	QueryHistory(symbol string, start, end time.Time, interval string) []objects.BarData

	// Close releases resources.
	Close()

	// Name identifies the gateway (e.g. "PAPER").
	Name() string
}

// Base carries the event engine reference and implements the dual-publish
// callbacks shared by all gateways. Concrete gateways embed it and call the
// On* methods to push state changes; the struct payloads are copied by value,
// so every queued event is a stable snapshot.
type Base struct {
	Engine      *events.Engine
	GatewayName string
}

// NewBase wires a gateway skeleton to the engine.
func NewBase(engine *events.Engine, name string) Base {
	return Base{Engine: engine, GatewayName: name}
}

// Name returns the gateway name.
func (b *Base) Name() string { return b.GatewayName }

// OnTick publishes a tick under its composite type and the base type.
func (b *Base) OnTick(tick objects.TickData) {
	b.Engine.Put(events.Event{Type: events.EventTick + tick.Symbol, Data: tick})
	b.Engine.Put(events.Event{Type: events.EventTick, Data: tick})
}

// OnBar publishes a bar under its composite type and the base type.
func (b *Base) OnBar(bar objects.BarData) {
	b.Engine.Put(events.Event{Type: events.EventBar + bar.Symbol, Data: bar})
	b.Engine.Put(events.Event{Type: events.EventBar, Data: bar})
}

// OnOrder publishes an order snapshot under its composite type (for the
// owning strategy) and the base type (for the OMS).
func (b *Base) OnOrder(order objects.OrderData) {
	b.Engine.Put(events.Event{Type: events.EventOrder + order.Key(), Data: order})
	b.Engine.Put(events.Event{Type: events.EventOrder, Data: order})
}

// OnTrade publishes a fill under its composite type and the base type.
func (b *Base) OnTrade(trade objects.TradeData) {
	b.Engine.Put(events.Event{Type: events.EventTrade + trade.Key(), Data: trade})
	b.Engine.Put(events.Event{Type: events.EventTrade, Data: trade})
}

// OnPosition publishes a position snapshot.
func (b *Base) OnPosition(pos objects.PositionData) {
	b.Engine.Put(events.Event{Type: events.EventPosition, Data: pos})
}

// OnAccount publishes an account snapshot.
func (b *Base) OnAccount(account objects.AccountData) {
	b.Engine.Put(events.Event{Type: events.EventAccount, Data: account})
}

// OnLog publishes a log line into the event stream.
func (b *Base) OnLog(message string) {
	b.Engine.Put(events.Event{Type: events.EventLog, Data: events.LogData{
		Source:  b.GatewayName,
		Message: message,
	}})
}

// QueryHistory is the default no-history implementation.
func (b *Base) QueryHistory(symbol string, start, end time.Time, interval string) []objects.BarData {
	return nil
}

// Close is the default no-op implementation.
func (b *Base) Close() {}
