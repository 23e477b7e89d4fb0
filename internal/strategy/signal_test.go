package strategy

import (
	"math"
	"sync"
	"testing"
	"time"

	"trading-runtime/internal/events"
	"trading-runtime/internal/oms"
	"trading-runtime/pkg/gateway/paper"
	"trading-runtime/pkg/objects"
)

type orderCollector struct {
	mu     sync.Mutex
	orders []objects.OrderData
}

func (c *orderCollector) onOrder(ev events.Event) {
	if order, ok := ev.Data.(objects.OrderData); ok {
		c.mu.Lock()
		c.orders = append(c.orders, order)
		c.mu.Unlock()
	}
}

func (c *orderCollector) snapshot() []objects.OrderData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]objects.OrderData, len(c.orders))
	copy(out, c.orders)
	return out
}

func (c *orderCollector) withStatus(status objects.Status) []objects.OrderData {
	var out []objects.OrderData
	for _, o := range c.snapshot() {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

type fixture struct {
	engine    *events.Engine
	oms       *oms.Engine
	gateway   *paper.Gateway
	strategy  *SignalStrategy
	collector *orderCollector
}

func newFixture(t *testing.T, setting Setting) *fixture {
	t.Helper()
	engine := events.NewEngine(time.Hour)
	store := oms.NewEngine(engine)
	gw := paper.New(engine, 100_000)
	collector := &orderCollector{}
	engine.Register(events.EventOrder, collector.onOrder)

	strat := NewSignalStrategy("signal", []string{"AAPL"}, engine, store, gw, setting)

	engine.Start()
	t.Cleanup(engine.Stop)
	return &fixture{engine: engine, oms: store, gateway: gw, strategy: strat, collector: collector}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f.engine.QueueLen() == 0 {
			time.Sleep(20 * time.Millisecond)
			if f.engine.QueueLen() == 0 {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("queue did not drain")
}

func (f *fixture) publishBar(t *testing.T, symbol string, close float64) {
	t.Helper()
	f.engine.Put(events.Event{Type: events.EventBar, Data: objects.BarData{
		Symbol: symbol, Close: close, Timestamp: time.Now(),
	}})
	f.drain(t)
}

func TestBuySignalIssuesOneLimitOrderWithPriceCushion(t *testing.T) {
	f := newFixture(t, nil)
	f.publishBar(t, "AAPL", 150)

	f.strategy.OnSignal(Signal{"AAPL": {Action: "buy", Quantity: 100, Confidence: 80}})
	f.drain(t)

	filled := f.collector.withStatus(objects.StatusAllTraded)
	if len(filled) != 1 {
		t.Fatalf("filled orders = %d, expected 1", len(filled))
	}
	order := filled[0]
	if order.Direction != objects.DirectionLong || order.Type != objects.OrderTypeLimit {
		t.Fatalf("order = %+v", order)
	}
	if math.Abs(order.Price-150.15) > 1e-9 {
		t.Fatalf("limit price = %v, expected 150.15", order.Price)
	}
	if order.Volume != 100 {
		t.Fatalf("volume = %v, expected 100", order.Volume)
	}
	if order.Reference != "signal" {
		t.Fatalf("reference = %q", order.Reference)
	}

	if pos := f.strategy.Pos("AAPL"); pos != 100 {
		t.Fatalf("pos = %v, expected 100 after fill", pos)
	}
	if f.strategy.ActiveOrderCount() != 0 {
		t.Fatal("filled order still tracked as working")
	}
}

func TestRebalanceCancelsWorkingOrdersBeforeReordering(t *testing.T) {
	f := newFixture(t, nil)
	f.publishBar(t, "AAPL", 150)

	// A resting bid far below the market stays pending.
	f.strategy.Buy("AAPL", 100, 10)
	f.drain(t)
	if f.strategy.ActiveOrderCount() != 1 {
		t.Fatalf("working orders = %d, expected 1 pending", f.strategy.ActiveOrderCount())
	}

	f.strategy.SetTarget("AAPL", 50)
	f.strategy.Rebalance(0.001)
	f.drain(t)

	if got := f.collector.withStatus(objects.StatusCancelled); len(got) != 1 {
		t.Fatalf("cancelled orders = %d, expected the resting bid cancelled", len(got))
	}
	filled := f.collector.withStatus(objects.StatusAllTraded)
	if len(filled) != 1 || filled[0].Volume != 50 {
		t.Fatalf("filled = %+v, expected one fill for the full 50 diff", filled)
	}
	if pos := f.strategy.Pos("AAPL"); pos != 50 {
		t.Fatalf("pos = %v, expected 50", pos)
	}
}

func TestHoldSignalIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	f.publishBar(t, "AAPL", 150)

	f.strategy.OnSignal(Signal{"AAPL": {Action: "hold", Confidence: 90}})
	f.drain(t)

	if n := len(f.collector.snapshot()); n != 0 {
		t.Fatalf("orders after hold = %d, expected 0", n)
	}
	if f.strategy.Target("AAPL") != 0 {
		t.Fatal("hold moved the target")
	}
}

func TestSellFromFlatFloorsAtZeroAndSendsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.publishBar(t, "AAPL", 150)

	f.strategy.OnSignal(Signal{"AAPL": {Action: "sell", Quantity: 50, Confidence: 70}})
	f.drain(t)

	if f.strategy.Target("AAPL") != 0 {
		t.Fatalf("target = %v, expected floored to 0", f.strategy.Target("AAPL"))
	}
	if n := len(f.collector.snapshot()); n != 0 {
		t.Fatalf("orders = %d, expected none when target equals position", n)
	}
}

func TestSellReducesPositionWithoutGoingShort(t *testing.T) {
	f := newFixture(t, nil)
	f.publishBar(t, "AAPL", 150)

	f.strategy.OnSignal(Signal{"AAPL": {Action: "buy", Quantity: 40, Confidence: 80}})
	f.drain(t)
	f.strategy.OnSignal(Signal{"AAPL": {Action: "sell", Quantity: 100, Confidence: 80}})
	f.drain(t)

	if pos := f.strategy.Pos("AAPL"); pos != 0 {
		t.Fatalf("pos = %v, expected flat", pos)
	}
	if f.strategy.Target("AAPL") != 0 {
		t.Fatalf("target = %v, expected 0", f.strategy.Target("AAPL"))
	}
	if f.gateway.Position("AAPL") != 0 {
		t.Fatal("gateway still holds shares")
	}
}

func TestEmptySignalIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	f.publishBar(t, "AAPL", 150)

	f.strategy.OnSignal(Signal{})
	f.drain(t)

	if n := len(f.collector.snapshot()); n != 0 {
		t.Fatalf("orders = %d, expected 0", n)
	}
}

func TestRepeatedSignalCancelsStaleWorkingOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.publishBar(t, "AAPL", 150)

	// A resting bid far below the market stays pending.
	f.strategy.Buy("AAPL", 100, 5)
	f.drain(t)
	if f.strategy.ActiveOrderCount() != 1 {
		t.Fatalf("working orders = %d, expected 1 pending", f.strategy.ActiveOrderCount())
	}

	// The decision leaves the target where it already is; the rebalance must
	// still run and sweep the stale order.
	f.strategy.OnSignal(Signal{"AAPL": {Action: "buy", Quantity: 0, Confidence: 60}})
	f.drain(t)

	if got := f.collector.withStatus(objects.StatusCancelled); len(got) != 1 {
		t.Fatalf("cancelled orders = %d, expected the stale bid swept", len(got))
	}
	if f.strategy.ActiveOrderCount() != 0 {
		t.Fatal("stale working order survived a repeated signal")
	}
	if n := len(f.collector.withStatus(objects.StatusAllTraded)); n != 0 {
		t.Fatalf("fills = %d, expected none when target equals position", n)
	}
}

func TestPortfolioValueFallsBackToAvgPriceWithoutBar(t *testing.T) {
	f := newFixture(t, nil)

	f.engine.Put(events.Event{Type: events.EventAccount, Data: objects.AccountData{
		AccountID: "PAPER", Balance: 1000,
	}})
	f.engine.Put(events.Event{Type: events.EventTrade, Data: objects.TradeData{
		Symbol: "MSFT", OrderID: "PAPER000001", TradeID: "t1",
		Direction: objects.DirectionLong, Price: 150, Volume: 10,
	}})
	f.drain(t)
	f.strategy.SetPos("MSFT", 10)

	// No MSFT bar yet: the holding is marked at its average cost.
	if got := f.strategy.PortfolioValue(); math.Abs(got-2500) > 1e-9 {
		t.Fatalf("portfolio value = %v, expected 1000 cash + 10*150 at avg cost", got)
	}

	// Once a bar arrives, the close wins over the average cost.
	f.publishBar(t, "MSFT", 160)
	if got := f.strategy.PortfolioValue(); math.Abs(got-2600) > 1e-9 {
		t.Fatalf("portfolio value = %v, expected marking at the 160 close", got)
	}
}

func TestOnBarRetriesOnlyWithAFreshPrice(t *testing.T) {
	f := newFixture(t, nil)
	f.strategy.SetTarget("AAPL", 10)
	f.publishBar(t, "AAPL", 150)

	// A bar batch without this symbol's price does not trigger a retry.
	f.strategy.OnBar(map[string]float64{"TSLA": 200})
	f.drain(t)
	if n := len(f.collector.snapshot()); n != 0 {
		t.Fatalf("orders = %d, expected none without a price for the gap", n)
	}

	f.strategy.OnBar(map[string]float64{"AAPL": 150})
	f.drain(t)
	if pos := f.strategy.Pos("AAPL"); pos != 10 {
		t.Fatalf("pos = %v, expected 10 after retry with a price", pos)
	}
}

func TestRebalanceSkipsSymbolsWithoutPrices(t *testing.T) {
	f := newFixture(t, nil)

	f.strategy.OnSignal(Signal{"AAPL": {Action: "buy", Quantity: 10, Confidence: 50}})
	f.drain(t)

	if n := len(f.collector.snapshot()); n != 0 {
		t.Fatalf("orders = %d, expected none before any price", n)
	}
	if f.strategy.Target("AAPL") != 10 {
		t.Fatal("target not recorded for retry")
	}

	// The next bar closes the gap.
	f.publishBar(t, "AAPL", 150)
	f.strategy.OnBar(map[string]float64{"AAPL": 150})
	f.drain(t)

	if pos := f.strategy.Pos("AAPL"); pos != 10 {
		t.Fatalf("pos = %v, expected 10 after retry", pos)
	}
}

func TestSettingInjection(t *testing.T) {
	f := newFixture(t, Setting{"price_add": 0.01, "max_drawdown": 0.2, "label": "x"})

	if f.strategy.PriceAdd != 0.01 {
		t.Fatalf("price_add = %v, expected 0.01", f.strategy.PriceAdd)
	}

	defaulted := NewSignalStrategy("d", []string{"AAPL"}, f.engine, f.oms, f.gateway, nil)
	defer defaulted.Stop()
	if defaulted.PriceAdd != DefaultPriceAdd {
		t.Fatalf("default price_add = %v", defaulted.PriceAdd)
	}
}

func TestSignalValidation(t *testing.T) {
	cases := []struct {
		name   string
		signal Signal
		ok     bool
	}{
		{"valid mixed", Signal{"AAPL": {Action: "BUY", Quantity: 10, Confidence: 80}, "TSLA": {Action: "hold"}}, true},
		{"unknown action", Signal{"AAPL": {Action: "yolo", Quantity: 1}}, false},
		{"negative quantity", Signal{"AAPL": {Action: "buy", Quantity: -5}}, false},
		{"confidence overflow", Signal{"AAPL": {Action: "buy", Quantity: 1, Confidence: 120}}, false},
		{"empty", Signal{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.signal.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
