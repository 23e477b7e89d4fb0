package events

// Base event types. Gateways additionally publish each state change under a
// composite type (base type + composite id, e.g. "eOrder" + "AAPL.PAPER000001")
// so narrow listeners can subscribe to a single entity while aggregators
// subscribe to the bare type.
const (
	EventTick     = "eTick"
	EventBar      = "eBar"
	EventOrder    = "eOrder"
	EventTrade    = "eTrade"
	EventPosition = "ePosition"
	EventAccount  = "eAccount"
	EventLog      = "eLog"
	EventTimer    = "eTimer"
	EventSignal   = "eSignal"

	// eventStop is the reserved shutdown sentinel; it wakes the dispatcher so
	// Stop can join it deterministically. Never dispatched to handlers.
	eventStop = "_stop_"
)

// Event is the envelope carried through the engine. Data holds the payload by
// value; publishers must not retain pointers into it.
type Event struct {
	Type string
	Data any
}

// Handler consumes a single event on the dispatcher goroutine.
type Handler func(Event)

// ErrorHandler receives the offending event and the recovered panic value
// when a handler fails. It runs on the dispatcher goroutine.
type ErrorHandler func(Event, any)

// LogData is the payload of EventLog events.
type LogData struct {
	Source  string
	Message string
}
