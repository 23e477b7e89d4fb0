package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"trading-runtime/internal/events"
	"trading-runtime/pkg/objects"
)

func TestMockFeedPublishesBarsAndTicks(t *testing.T) {
	engine := events.NewEngine(time.Hour)
	engine.Start()
	defer engine.Stop()

	var mu sync.Mutex
	bars := make(map[string]int)
	var lastTick objects.TickData
	engine.Register(events.EventBar, func(ev events.Event) {
		if bar, ok := ev.Data.(objects.BarData); ok {
			mu.Lock()
			bars[bar.Symbol]++
			mu.Unlock()
		}
	})
	engine.Register(events.EventTick, func(ev events.Event) {
		if tick, ok := ev.Data.(objects.TickData); ok {
			mu.Lock()
			lastTick = tick
			mu.Unlock()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &MockFeed{
		Engine:   engine,
		Symbols:  []string{"AAPL", "TSLA"},
		Interval: 5 * time.Millisecond,
	}
	feed.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := bars["AAPL"] >= 3 && bars["TSLA"] >= 3
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if bars["AAPL"] < 3 || bars["TSLA"] < 3 {
		t.Fatalf("bars = %v, expected at least 3 per symbol", bars)
	}
	if lastTick.BidPrice >= lastTick.AskPrice {
		t.Fatalf("tick spread inverted: %+v", lastTick)
	}
	if lastTick.LastPrice <= 0 {
		t.Fatalf("walk went non-positive: %v", lastTick.LastPrice)
	}
}

func TestMockFeedStopsOnCancel(t *testing.T) {
	engine := events.NewEngine(time.Hour)
	engine.Start()
	defer engine.Stop()

	var mu sync.Mutex
	count := 0
	engine.Register(events.EventBar, func(ev events.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	feed := &MockFeed{Engine: engine, Symbols: []string{"AAPL"}, Interval: 5 * time.Millisecond}
	feed.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	settled := count
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()

	// One in-flight emit may land after cancel, but the stream must stop.
	if after > settled+1 {
		t.Fatalf("feed kept publishing after cancel: %d -> %d", settled, after)
	}
}
