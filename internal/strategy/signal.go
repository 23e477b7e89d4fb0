package strategy

import (
	"log"
	"strings"

	"trading-runtime/internal/events"
	"trading-runtime/internal/oms"
	"trading-runtime/pkg/gateway"
)

// SignalStrategy turns externally supplied trading decisions into target
// positions. It holds no view of its own: every buy/sell/short/cover signal
// shifts the target for that symbol relative to the current position, and
// the template's rebalance converges toward it.
type SignalStrategy struct {
	*Template

	// PriceAdd is the limit-price cushion used when rebalancing.
	PriceAdd float64
}

// NewSignalStrategy creates a signal-driven strategy and applies its
// settings. Unknown setting keys are ignored.
func NewSignalStrategy(name string, symbols []string, engine *events.Engine, store *oms.Engine, gw gateway.Gateway, setting Setting) *SignalStrategy {
	s := &SignalStrategy{
		Template: NewTemplate(name, symbols, engine, store, gw),
		PriceAdd: DefaultPriceAdd,
	}
	s.applySetting(setting)
	return s
}

func (s *SignalStrategy) applySetting(setting Setting) {
	if v, ok := setting.Float("price_add"); ok && v > 0 {
		s.PriceAdd = v
	}
}

// OnInit logs readiness; positions start flat.
func (s *SignalStrategy) OnInit() {
	log.Printf("[%s] initialized, symbols=%v price_add=%v", s.Name(), s.Symbols(), s.PriceAdd)
}

// OnBar retries convergence: if a previous rebalance left a gap between
// target and position (skipped symbol, cancelled order) and this batch of
// bars carries a price for that symbol, the fresh close is a chance to
// close the gap.
func (s *SignalStrategy) OnBar(bars map[string]float64) {
	for _, symbol := range s.Symbols() {
		if s.Target(symbol) == s.Pos(symbol) {
			continue
		}
		if price, ok := bars[symbol]; ok && price > 0 {
			s.Rebalance(s.PriceAdd)
			return
		}
	}
}

// OnSignal adjusts targets per decision and rebalances once:
//
//	buy    target = pos + qty
//	cover  target = pos + qty
//	sell   target = max(0, pos - qty)
//	short  target = pos - qty
//	hold   unchanged
//
// Sell floors at zero so a plain sell never flips a long into a short; going
// short takes an explicit short decision. An empty signal is a no-op.
//
// Every non-empty signal ends in a rebalance, even when no target moved:
// the rebalance cancels working orders first, so a repeated decision
// re-prices stale resting orders against the current close.
func (s *SignalStrategy) OnSignal(signal Signal) {
	if len(signal) == 0 {
		return
	}

	for symbol, decision := range signal {
		pos := s.Pos(symbol)
		var target float64

		switch strings.ToLower(decision.Action) {
		case "buy", "cover":
			target = pos + decision.Quantity
		case "sell":
			target = pos - decision.Quantity
			if target < 0 {
				target = 0
			}
		case "short":
			target = pos - decision.Quantity
		case "hold", "":
			continue
		default:
			log.Printf("[%s] ignoring unknown action %q for %s", s.Name(), decision.Action, symbol)
			continue
		}

		s.SetTarget(symbol, target)
		log.Printf("[%s] signal %s %s qty=%v conf=%d -> target %v",
			s.Name(), decision.Action, symbol, decision.Quantity, decision.Confidence, target)
	}

	s.Rebalance(s.PriceAdd)
}
