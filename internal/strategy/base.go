// Package strategy contains the target-position trading template and the
// strategies built on it. A strategy never talks to a venue directly: it
// reads state from the OMS, expresses intent as a target volume per symbol,
// and lets the template converge live positions toward the targets with
// limit orders.
package strategy

import (
	"log"
	"sync"

	"trading-runtime/internal/events"
	"trading-runtime/internal/oms"
	"trading-runtime/pkg/gateway"
	"trading-runtime/pkg/objects"
)

// DefaultPriceAdd is the fraction added to (or subtracted from) the latest
// close when pricing rebalance limit orders, so they cross immediately under
// normal conditions while still capping slippage.
const DefaultPriceAdd = 0.001

// Template implements target-position trading. Embedders set targets;
// Rebalance cancels working orders and re-issues the difference between
// target and actual position as limit orders.
//
// Order and trade events are consumed at the base layer and filtered by the
// order's Reference field, which gateways copy from the request. Handlers are
// registered at construction, before any order exists, so no lifecycle event
// can slip past an unregistered handler.
type Template struct {
	name    string
	symbols []string
	engine  *events.Engine
	oms     *oms.Engine
	gateway gateway.Gateway

	// Stored once so Stop unregisters the same handler values.
	orderHandler events.Handler
	tradeHandler events.Handler

	mu      sync.Mutex
	pos     map[string]float64           // symbol -> signed live position
	targets map[string]float64           // symbol -> desired position
	working map[string]objects.OrderData // composite id -> this strategy's live orders
	owned   map[string]bool              // every composite id this strategy ever sent
}

// NewTemplate wires a strategy skeleton to the engine, OMS and gateway and
// subscribes it to order and trade events.
func NewTemplate(name string, symbols []string, engine *events.Engine, store *oms.Engine, gw gateway.Gateway) *Template {
	t := &Template{
		name:    name,
		symbols: symbols,
		engine:  engine,
		oms:     store,
		gateway: gw,
		pos:     make(map[string]float64),
		targets: make(map[string]float64),
		working: make(map[string]objects.OrderData),
		owned:   make(map[string]bool),
	}
	t.orderHandler = t.onOrderEvent
	t.tradeHandler = t.onTradeEvent
	engine.Register(events.EventOrder, t.orderHandler)
	engine.Register(events.EventTrade, t.tradeHandler)
	return t
}

// Name returns the strategy name.
func (t *Template) Name() string { return t.name }

// Symbols returns the symbols this strategy trades.
func (t *Template) Symbols() []string { return t.symbols }

// Stop unsubscribes the template's event handlers.
func (t *Template) Stop() {
	t.engine.Unregister(events.EventOrder, t.orderHandler)
	t.engine.Unregister(events.EventTrade, t.tradeHandler)
}

// Pos returns the live position for symbol (signed, shorts negative).
func (t *Template) Pos(symbol string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos[symbol]
}

// SetPos overrides the live position, e.g. when restoring state.
func (t *Template) SetPos(symbol string, volume float64) {
	t.mu.Lock()
	t.pos[symbol] = volume
	t.mu.Unlock()
}

// Target returns the desired position for symbol.
func (t *Template) Target(symbol string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targets[symbol]
}

// SetTarget records the desired position for symbol. It does not trade;
// call Rebalance to act on the targets.
func (t *Template) SetTarget(symbol string, volume float64) {
	t.mu.Lock()
	t.targets[symbol] = volume
	t.mu.Unlock()
}

// ActiveOrderCount returns how many of this strategy's orders are working.
func (t *Template) ActiveOrderCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.working)
}

// CancelAll cancels every working order owned by this strategy.
func (t *Template) CancelAll() {
	t.mu.Lock()
	reqs := make([]objects.CancelRequest, 0, len(t.working))
	for _, order := range t.working {
		reqs = append(reqs, order.CancelRequest())
	}
	t.mu.Unlock()

	for _, req := range reqs {
		t.gateway.CancelOrder(req)
	}
}

// Rebalance converges live positions toward targets: it cancels all working
// orders first (stale prices, half-finished rebalances), then issues one
// limit order per leg for the remaining difference. Buy-side orders are
// priced at close*(1+priceAdd), sell-side at close*(1-priceAdd). Symbols
// without a price yet are skipped and retried on the next rebalance.
func (t *Template) Rebalance(priceAdd float64) {
	if priceAdd <= 0 {
		priceAdd = DefaultPriceAdd
	}
	t.CancelAll()

	t.mu.Lock()
	diffs := make(map[string]float64, len(t.targets))
	for symbol, target := range t.targets {
		if diff := target - t.pos[symbol]; diff != 0 {
			diffs[symbol] = diff
		}
	}
	t.mu.Unlock()

	for symbol, diff := range diffs {
		bar, ok := t.oms.GetBar(symbol)
		if !ok || bar.Close <= 0 {
			log.Printf("[%s] no price for %s yet, skipping rebalance", t.name, symbol)
			continue
		}

		pos := t.Pos(symbol)
		if diff > 0 {
			price := bar.Close * (1 + priceAdd)
			if pos < 0 {
				// Close the short leg before opening long.
				cover := diff
				if cover > -pos {
					cover = -pos
				}
				t.Cover(symbol, price, cover)
				if remaining := diff - cover; remaining > 0 {
					t.Buy(symbol, price, remaining)
				}
			} else {
				t.Buy(symbol, price, diff)
			}
		} else {
			price := bar.Close * (1 - priceAdd)
			if pos > 0 {
				sell := -diff
				if sell > pos {
					sell = pos
				}
				t.Sell(symbol, price, sell)
				if remaining := -diff - sell; remaining > 0 {
					t.Short(symbol, price, remaining)
				}
			} else {
				t.Short(symbol, price, -diff)
			}
		}
	}
}

// Buy opens a long position with a limit order.
func (t *Template) Buy(symbol string, price, volume float64) string {
	return t.sendOrder(symbol, objects.DirectionLong, objects.ActionOpen, price, volume)
}

// Sell closes a long position with a limit order.
func (t *Template) Sell(symbol string, price, volume float64) string {
	return t.sendOrder(symbol, objects.DirectionShort, objects.ActionClose, price, volume)
}

// Short opens a short position with a limit order.
func (t *Template) Short(symbol string, price, volume float64) string {
	return t.sendOrder(symbol, objects.DirectionShort, objects.ActionOpen, price, volume)
}

// Cover closes a short position with a limit order.
func (t *Template) Cover(symbol string, price, volume float64) string {
	return t.sendOrder(symbol, objects.DirectionLong, objects.ActionClose, price, volume)
}

func (t *Template) sendOrder(symbol string, direction objects.Direction, action objects.Action, price, volume float64) string {
	if volume <= 0 {
		return ""
	}
	req := objects.OrderRequest{
		Symbol:    symbol,
		Direction: direction,
		Action:    action,
		Type:      objects.OrderTypeLimit,
		Price:     price,
		Volume:    volume,
		Reference: t.name,
	}
	return t.gateway.SendOrder(req)
}

// onOrderEvent mirrors this strategy's working orders from the event stream:
// active orders are tracked, terminal ones dropped.
func (t *Template) onOrderEvent(ev events.Event) {
	order, ok := ev.Data.(objects.OrderData)
	if !ok || order.Reference != t.name {
		return
	}

	t.mu.Lock()
	t.owned[order.Key()] = true
	if order.IsActive() {
		t.working[order.Key()] = order
	} else {
		delete(t.working, order.Key())
	}
	t.mu.Unlock()
}

// onTradeEvent applies fills on this strategy's orders to the live position:
// long fills add, short fills subtract. Ownership is decided by the owned
// set, which outlives the working mirror because the terminal order event
// arrives before its fill.
func (t *Template) onTradeEvent(ev events.Event) {
	trade, ok := ev.Data.(objects.TradeData)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.owned[trade.OrderKey()] {
		return
	}
	if trade.Direction == objects.DirectionLong {
		t.pos[trade.Symbol] += trade.Volume
	} else {
		t.pos[trade.Symbol] -= trade.Volume
	}
}

// CashAvailable returns the latest known free balance, 0 before any account
// snapshot has arrived.
func (t *Template) CashAvailable() float64 {
	account, ok := t.oms.GetAccount()
	if !ok {
		return 0
	}
	return account.Available()
}

// PortfolioValue marks live positions at the latest close plus available
// cash. A symbol without a bar yet is marked at the position's average cost
// instead, so holdings never vanish from the valuation between fill and
// first price event.
func (t *Template) PortfolioValue() float64 {
	total := t.CashAvailable()
	t.mu.Lock()
	positions := make(map[string]float64, len(t.pos))
	for symbol, vol := range t.pos {
		positions[symbol] = vol
	}
	t.mu.Unlock()

	for symbol, vol := range positions {
		if bar, ok := t.oms.GetBar(symbol); ok && bar.Close > 0 {
			total += vol * bar.Close
			continue
		}
		if pos, ok := t.oms.GetPositionBySymbol(symbol, objects.DirectionLong); ok {
			total += vol * pos.AvgPrice
		}
	}
	return total
}
