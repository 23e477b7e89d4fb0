// Package paper implements an in-process simulated exchange that obeys the
// gateway contract against a synthetic cash-and-positions ledger. It fills
// market orders instantly at the last known price and queues limit orders
// until a bar or tick crosses the limit.
//
// The ledger is long-only: sells clamp to the held volume and a full short
// ledger is out of scope. Fills are all-or-nothing.
package paper

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-runtime/internal/events"
	"trading-runtime/pkg/gateway"
	"trading-runtime/pkg/objects"
)

const defaultInitialCash = 100_000.0

// Gateway is the paper-trading venue.
//
// All ledger state is guarded by a single mutex; event publishes always
// happen after the lock is released so a handler calling back into the
// gateway cannot deadlock.
type Gateway struct {
	gateway.Base

	// Stored once so Close unregisters the same handler values.
	barHandler  events.Handler
	tickHandler events.Handler

	mu         sync.Mutex
	cash       float64
	positions  map[string]float64 // symbol -> held volume
	avgPrices  map[string]float64 // symbol -> volume-weighted cost
	pending    map[string]objects.OrderData
	lastPrices map[string]float64
	counter    int
}

// New creates a paper gateway and subscribes it to bar and tick events so
// pending limit orders are matched as prices arrive.
func New(engine *events.Engine, initialCash float64) *Gateway {
	if initialCash <= 0 {
		initialCash = defaultInitialCash
	}
	g := &Gateway{
		Base:       gateway.NewBase(engine, "PAPER"),
		cash:       initialCash,
		positions:  make(map[string]float64),
		avgPrices:  make(map[string]float64),
		pending:    make(map[string]objects.OrderData),
		lastPrices: make(map[string]float64),
	}
	g.barHandler = g.onBarEvent
	g.tickHandler = g.onTickEvent
	engine.Register(events.EventBar, g.barHandler)
	engine.Register(events.EventTick, g.tickHandler)
	return g
}

// Connect resets the ledger from the setting map. Recognized keys:
// {initial_cash: float}.
func (g *Gateway) Connect(setting map[string]any) error {
	cash := defaultInitialCash
	if raw, ok := setting["initial_cash"]; ok {
		switch v := raw.(type) {
		case float64:
			cash = v
		case int:
			cash = float64(v)
		default:
			return fmt.Errorf("paper: initial_cash has unsupported type %T", raw)
		}
	}
	g.mu.Lock()
	g.cash = cash
	g.mu.Unlock()

	g.QueryAccount()
	return nil
}

// Subscribe is a no-op: the paper gateway accepts any symbol.
func (g *Gateway) Subscribe(symbol string) {}

// Close unsubscribes the price handlers.
func (g *Gateway) Close() {
	g.Engine.Unregister(events.EventBar, g.barHandler)
	g.Engine.Unregister(events.EventTick, g.tickHandler)
}

// SendOrder accepts an order request.
//
// Market orders fill immediately at the last known price, falling back to the
// request price when no price event has arrived yet. Limit orders are queued
// and additionally attempted against the current last price, so placement is
// idempotent with respect to whether the first price event arrived before or
// after submission.
func (g *Gateway) SendOrder(req objects.OrderRequest) string {
	g.mu.Lock()
	g.counter++
	orderID := fmt.Sprintf("PAPER%06d", g.counter)
	g.mu.Unlock()

	order := req.CreateOrder(orderID)
	g.OnOrder(order) // SUBMITTING

	if req.Type == objects.OrderTypeMarket {
		g.mu.Lock()
		last := g.lastPrices[req.Symbol]
		g.mu.Unlock()

		price := last
		if price <= 0 {
			price = req.Price
		}
		g.fill(order, price)
	} else {
		g.mu.Lock()
		g.pending[orderID] = order
		last := g.lastPrices[req.Symbol]
		g.mu.Unlock()

		if last > 0 {
			g.tryFillLimit(order, last)
		}
	}

	return order.Key()
}

// CancelOrder pops a pending limit order and publishes ORDER(CANCELLED).
// Unknown ids are silent no-ops, so cancelling twice is safe.
func (g *Gateway) CancelOrder(req objects.CancelRequest) {
	g.mu.Lock()
	order, ok := g.pending[req.OrderID]
	if ok {
		delete(g.pending, req.OrderID)
	}
	g.mu.Unlock()

	if ok {
		order.Status = objects.StatusCancelled
		g.OnOrder(order)
	}
}

// QueryAccount publishes the current cash balance as an account snapshot.
func (g *Gateway) QueryAccount() {
	g.mu.Lock()
	balance := g.cash
	g.mu.Unlock()

	g.OnAccount(objects.AccountData{AccountID: g.GatewayName, Balance: balance})
}

// QueryPosition publishes one long position snapshot per held symbol.
func (g *Gateway) QueryPosition() {
	g.mu.Lock()
	volumes := make(map[string]float64, len(g.positions))
	avgs := make(map[string]float64, len(g.avgPrices))
	for sym, vol := range g.positions {
		volumes[sym] = vol
		avgs[sym] = g.avgPrices[sym]
	}
	g.mu.Unlock()

	for sym, vol := range volumes {
		if vol == 0 {
			continue
		}
		g.OnPosition(objects.PositionData{
			Symbol:    sym,
			Direction: objects.DirectionLong,
			Volume:    vol,
			AvgPrice:  avgs[sym],
		})
	}
}

func (g *Gateway) onBarEvent(ev events.Event) {
	bar, ok := ev.Data.(objects.BarData)
	if !ok {
		return
	}
	g.updatePrice(bar.Symbol, bar.Close)
}

func (g *Gateway) onTickEvent(ev events.Event) {
	tick, ok := ev.Data.(objects.TickData)
	if !ok {
		return
	}
	g.updatePrice(tick.Symbol, tick.Mid())
}

// updatePrice records the latest price for symbol and attempts every pending
// limit order on that symbol against it.
func (g *Gateway) updatePrice(symbol string, price float64) {
	g.mu.Lock()
	g.lastPrices[symbol] = price
	matches := make([]objects.OrderData, 0, len(g.pending))
	for _, o := range g.pending {
		if o.Symbol == symbol {
			matches = append(matches, o)
		}
	}
	g.mu.Unlock()

	for _, order := range matches {
		g.tryFillLimit(order, price)
	}
}

// tryFillLimit fills order at its limit price if the market price satisfies
// the limit: buys when market <= limit, sells when market >= limit. The pop
// from pending is the claim; a concurrent attempt on the same order finds it
// gone and does nothing.
func (g *Gateway) tryFillLimit(order objects.OrderData, marketPrice float64) {
	eligible := false
	if order.Direction == objects.DirectionLong {
		eligible = marketPrice <= order.Price
	} else {
		eligible = marketPrice >= order.Price
	}
	if !eligible {
		return
	}

	g.mu.Lock()
	_, stillPending := g.pending[order.OrderID]
	if stillPending {
		delete(g.pending, order.OrderID)
	}
	g.mu.Unlock()

	if stillPending {
		g.fill(order, order.Price)
	}
}

// fill applies the fill to the ledger, then publishes the resulting order and
// trade events outside the lock.
//
// Long fills are all-or-nothing against available cash. Sells clamp to the
// held volume; the emitted order/trade carry the clamped volume.
func (g *Gateway) fill(order objects.OrderData, price float64) {
	volume := order.Volume

	g.mu.Lock()
	rejected := false
	if order.Direction == objects.DirectionLong {
		cost := price * volume
		if cost > g.cash {
			rejected = true
		} else {
			g.cash -= cost
			oldVol := g.positions[order.Symbol]
			oldAvg := g.avgPrices[order.Symbol]
			newVol := oldVol + volume
			if newVol > 0 {
				g.avgPrices[order.Symbol] = (oldAvg*oldVol + price*volume) / newVol
			} else {
				g.avgPrices[order.Symbol] = 0
			}
			g.positions[order.Symbol] = newVol
		}
	} else {
		held := g.positions[order.Symbol]
		actual := volume
		if held < actual {
			actual = held
		}
		if actual <= 0 {
			rejected = true
		} else {
			g.cash += price * actual
			g.positions[order.Symbol] = held - actual
			volume = actual
		}
	}
	g.mu.Unlock()

	if rejected {
		order.Status = objects.StatusRejected
		g.OnOrder(order)
		log.Printf("paper: rejected %s %s %s vol=%v price=%v", order.Direction, order.Type, order.Symbol, order.Volume, price)
		return
	}

	order.Status = objects.StatusAllTraded
	order.Traded = volume
	g.OnOrder(order)

	g.OnTrade(objects.TradeData{
		Symbol:    order.Symbol,
		OrderID:   order.OrderID,
		TradeID:   uuid.NewString()[:8],
		Direction: order.Direction,
		Price:     price,
		Volume:    volume,
		Timestamp: time.Now(),
	})

	g.QueryAccount()
}

// Cash returns the current cash balance.
func (g *Gateway) Cash() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cash
}

// Position returns the held volume for symbol.
func (g *Gateway) Position(symbol string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positions[symbol]
}

// PendingCount returns the number of queued limit orders.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
