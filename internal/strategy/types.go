package strategy

import (
	"fmt"
	"strings"
)

// Strategy is the interface every trading strategy implements.
type Strategy interface {
	Name() string

	// OnInit is called once before trading begins.
	OnInit()

	// OnBar is called with the latest bars for the subscribed symbols.
	OnBar(bars map[string]float64)

	// OnSignal is called when an external decision set arrives (e.g. from an
	// LLM portfolio manager).
	OnSignal(signal Signal)
}

// Decision is one external trading decision for a symbol.
type Decision struct {
	Action     string  `json:"action"`     // buy | sell | short | cover | hold
	Quantity   float64 `json:"quantity"`   // >= 0
	Confidence int     `json:"confidence"` // 0..100
}

// Signal maps symbols to decisions.
type Signal map[string]Decision

// Validate checks the decision schema: known action (case-insensitive),
// non-negative quantity, confidence within 0..100.
func (s Signal) Validate() error {
	for symbol, d := range s {
		switch strings.ToLower(d.Action) {
		case "buy", "sell", "short", "cover", "hold", "":
		default:
			return fmt.Errorf("signal %s: unknown action %q", symbol, d.Action)
		}
		if d.Quantity < 0 {
			return fmt.Errorf("signal %s: negative quantity %v", symbol, d.Quantity)
		}
		if d.Confidence < 0 || d.Confidence > 100 {
			return fmt.Errorf("signal %s: confidence %d out of range", symbol, d.Confidence)
		}
	}
	return nil
}

// Setting is a free-form configuration map. Strategies apply the keys they
// declare and silently ignore the rest, so setting files stay forward
// compatible.
type Setting map[string]any

// Float extracts a numeric setting value; YAML and JSON decoders produce a
// mix of float64 and int.
func (s Setting) Float(key string) (float64, bool) {
	raw, ok := s[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
