// Package oms maintains the authoritative in-memory snapshot of trading
// state. It consumes tick, bar, order, trade, position and account events
// from the engine and answers O(1) queries so callers never need an exchange
// round-trip.
package oms

import (
	"sync"

	"trading-runtime/internal/events"
	"trading-runtime/pkg/objects"
)

// Engine is the order management state.
//
// Writes happen only on the dispatcher goroutine; the RWMutex exists so API
// handlers and strategies on other goroutines can read a consistent snapshot.
type Engine struct {
	engine *events.Engine

	mu           sync.RWMutex
	ticks        map[string]objects.TickData  // symbol -> latest tick
	bars         map[string]objects.BarData   // symbol -> latest bar
	orders       map[string]objects.OrderData // composite id -> full history
	activeOrders map[string]objects.OrderData // live sub-index of orders
	trades       map[string]objects.TradeData
	positions    map[string]objects.PositionData
	account      *objects.AccountData
}

// NewEngine creates the OMS and registers its event processors.
func NewEngine(engine *events.Engine) *Engine {
	e := &Engine{
		engine:       engine,
		ticks:        make(map[string]objects.TickData),
		bars:         make(map[string]objects.BarData),
		orders:       make(map[string]objects.OrderData),
		activeOrders: make(map[string]objects.OrderData),
		trades:       make(map[string]objects.TradeData),
		positions:    make(map[string]objects.PositionData),
	}
	engine.Register(events.EventTick, e.processTick)
	engine.Register(events.EventBar, e.processBar)
	engine.Register(events.EventOrder, e.processOrder)
	engine.Register(events.EventTrade, e.processTrade)
	engine.Register(events.EventPosition, e.processPosition)
	engine.Register(events.EventAccount, e.processAccount)
	return e
}

func (e *Engine) processTick(ev events.Event) {
	tick, ok := ev.Data.(objects.TickData)
	if !ok {
		return
	}
	e.mu.Lock()
	e.ticks[tick.Symbol] = tick
	e.mu.Unlock()
}

func (e *Engine) processBar(ev events.Event) {
	bar, ok := ev.Data.(objects.BarData)
	if !ok {
		return
	}
	e.mu.Lock()
	e.bars[bar.Symbol] = bar
	e.mu.Unlock()
}

// processOrder overwrites the order record and maintains the active-order
// sub-index: active orders are present, terminal ones removed. The OMS
// faithfully reflects the latest event received, whatever its order.
func (e *Engine) processOrder(ev events.Event) {
	order, ok := ev.Data.(objects.OrderData)
	if !ok {
		return
	}
	e.mu.Lock()
	e.orders[order.Key()] = order
	if order.IsActive() {
		e.activeOrders[order.Key()] = order
	} else {
		delete(e.activeOrders, order.Key())
	}
	e.mu.Unlock()
}

// processTrade stores the fill and folds it into per-direction position
// aggregation: the position volume grows by the trade volume and the average
// price is volume-weighted across all fills in that direction.
func (e *Engine) processTrade(ev events.Event) {
	trade, ok := ev.Data.(objects.TradeData)
	if !ok {
		return
	}
	e.mu.Lock()
	e.trades[trade.Key()] = trade

	posKey := trade.Symbol + "." + string(trade.Direction)
	pos, exists := e.positions[posKey]
	if !exists {
		pos = objects.PositionData{Symbol: trade.Symbol, Direction: trade.Direction}
	}

	oldVolume := pos.Volume
	oldAvg := pos.AvgPrice
	newVolume := oldVolume + trade.Volume
	if newVolume > 0 {
		pos.AvgPrice = (oldAvg*oldVolume + trade.Price*trade.Volume) / newVolume
	} else {
		pos.AvgPrice = 0
	}
	pos.Volume = newVolume

	e.positions[posKey] = pos
	e.mu.Unlock()
}

func (e *Engine) processPosition(ev events.Event) {
	pos, ok := ev.Data.(objects.PositionData)
	if !ok {
		return
	}
	e.mu.Lock()
	e.positions[pos.Key()] = pos
	e.mu.Unlock()
}

func (e *Engine) processAccount(ev events.Event) {
	account, ok := ev.Data.(objects.AccountData)
	if !ok {
		return
	}
	e.mu.Lock()
	e.account = &account
	e.mu.Unlock()
}

// GetTick returns the latest tick for symbol.
func (e *Engine) GetTick(symbol string) (objects.TickData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tick, ok := e.ticks[symbol]
	return tick, ok
}

// GetBar returns the latest bar for symbol.
func (e *Engine) GetBar(symbol string) (objects.BarData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bar, ok := e.bars[symbol]
	return bar, ok
}

// GetOrder looks up an order by composite id.
func (e *Engine) GetOrder(key string) (objects.OrderData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	order, ok := e.orders[key]
	return order, ok
}

// GetAllOrders returns a snapshot of the full order history.
func (e *Engine) GetAllOrders() []objects.OrderData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]objects.OrderData, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o)
	}
	return out
}

// GetAllActiveOrders returns a snapshot of the live orders.
func (e *Engine) GetAllActiveOrders() []objects.OrderData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]objects.OrderData, 0, len(e.activeOrders))
	for _, o := range e.activeOrders {
		out = append(out, o)
	}
	return out
}

// GetTrade looks up a fill by composite id.
func (e *Engine) GetTrade(key string) (objects.TradeData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	trade, ok := e.trades[key]
	return trade, ok
}

// GetAllTrades returns a snapshot of all fills.
func (e *Engine) GetAllTrades() []objects.TradeData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]objects.TradeData, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, t)
	}
	return out
}

// GetPosition looks up by full composite id (e.g. "AAPL.long").
func (e *Engine) GetPosition(key string) (objects.PositionData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[key]
	return pos, ok
}

// GetPositionBySymbol looks up the position for a symbol/direction pair.
func (e *Engine) GetPositionBySymbol(symbol string, direction objects.Direction) (objects.PositionData, bool) {
	return e.GetPosition(symbol + "." + string(direction))
}

// GetAllPositions returns a snapshot of all positions.
func (e *Engine) GetAllPositions() []objects.PositionData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]objects.PositionData, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out
}

// GetAccount returns the latest account snapshot, if any.
func (e *Engine) GetAccount() (objects.AccountData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.account == nil {
		return objects.AccountData{}, false
	}
	return *e.account, true
}
