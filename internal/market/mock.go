// Package market provides the synthetic data feed used for local development
// and paper trading.
package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trading-runtime/internal/events"
	"trading-runtime/pkg/objects"
)

// MockFeed publishes random-walk bars and ticks for the configured symbols.
type MockFeed struct {
	Engine     *events.Engine
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
	Spread     float64 // half-spread applied around the walk for tick quotes

	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
}

// Start launches the feed goroutine; it stops when ctx is cancelled.
func (m *MockFeed) Start(ctx context.Context) {
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"AAPL"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}
	if m.Spread == 0 {
		m.Spread = 0.01
	}

	m.mu.Lock()
	m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	m.prices = make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		m.prices[sym] = m.StartPrice
	}
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.emit()
			}
		}
	}()
}

// emit advances each symbol's walk one step and publishes a bar and a tick.
func (m *MockFeed) emit() {
	now := time.Now()

	m.mu.Lock()
	snapshots := make([]objects.BarData, 0, len(m.Symbols))
	ticks := make([]objects.TickData, 0, len(m.Symbols))
	for _, sym := range m.Symbols {
		open := m.prices[sym]
		closePrice := open + (m.rng.Float64()*2-1)*m.Step
		if closePrice <= m.Step {
			closePrice = m.Step // keep the walk positive
		}
		m.prices[sym] = closePrice

		high, low := open, closePrice
		if closePrice > open {
			high = closePrice
			low = open
		}

		snapshots = append(snapshots, objects.BarData{
			Symbol:    sym,
			Timestamp: now,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    float64(m.rng.Intn(10_000)),
		})
		ticks = append(ticks, objects.TickData{
			Symbol:    sym,
			Timestamp: now,
			LastPrice: closePrice,
			BidPrice:  closePrice - m.Spread,
			AskPrice:  closePrice + m.Spread,
			BidVolume: float64(m.rng.Intn(500)),
			AskVolume: float64(m.rng.Intn(500)),
		})
	}
	m.mu.Unlock()

	for i := range snapshots {
		m.Engine.Put(events.Event{Type: events.EventBar + snapshots[i].Symbol, Data: snapshots[i]})
		m.Engine.Put(events.Event{Type: events.EventBar, Data: snapshots[i]})
		m.Engine.Put(events.Event{Type: events.EventTick + ticks[i].Symbol, Data: ticks[i]})
		m.Engine.Put(events.Event{Type: events.EventTick, Data: ticks[i]})
	}
}

// LastPrice returns the feed's current price for symbol.
func (m *MockFeed) LastPrice(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prices[symbol]
}
