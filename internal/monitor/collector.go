package monitor

import (
	"trading-runtime/internal/events"
)

// Collector feeds SystemMetrics from the event stream. It registers a
// general handler, so it observes every dispatched event; the per-type
// counters match on the base type only, leaving composite-type duplicates
// out of the domain counts.
type Collector struct {
	engine  *events.Engine
	metrics *SystemMetrics
	handler events.Handler
}

// NewCollector subscribes a collector to the engine.
func NewCollector(engine *events.Engine, metrics *SystemMetrics) *Collector {
	c := &Collector{engine: engine, metrics: metrics}
	c.handler = c.onEvent
	engine.RegisterGeneral(c.handler)
	return c
}

// Stop unsubscribes the collector.
func (c *Collector) Stop() {
	c.engine.UnregisterGeneral(c.handler)
}

// Metrics returns the underlying metrics instance.
func (c *Collector) Metrics() *SystemMetrics {
	return c.metrics
}

// Snapshot returns the current metrics with the live queue depth.
func (c *Collector) Snapshot() MetricsSnapshot {
	return c.metrics.GetSnapshot(c.engine.QueueLen())
}

func (c *Collector) onEvent(ev events.Event) {
	c.metrics.IncrementEvents()
	switch ev.Type {
	case events.EventTick:
		c.metrics.IncrementTicks()
	case events.EventBar:
		c.metrics.IncrementBars()
	case events.EventOrder:
		c.metrics.IncrementOrders()
	case events.EventTrade:
		c.metrics.IncrementTrades()
	case events.EventSignal:
		c.metrics.IncrementSignals()
	}
}
