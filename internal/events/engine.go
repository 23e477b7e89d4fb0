// Package events implements the queued pub/sub engine that serializes all
// state changes in the runtime: a multi-producer single-consumer FIFO drained
// by one dispatcher goroutine, plus a timer goroutine emitting periodic
// EventTimer events.
package events

import (
	"log"
	"sync"
	"time"
	"unsafe"
)

type handlerEntry struct {
	fn  Handler
	key uintptr
}

// Engine is the thread-safe event engine.
//
// Dispatch rules:
//   - strict FIFO across the whole queue; Put never blocks on handlers and
//     never drops
//   - per event, type-specific handlers run first in registration order, then
//     general handlers; all on the single dispatcher goroutine
//   - registry mutations from inside a handler take effect from the next
//     event (the dispatcher iterates over a snapshot)
//   - a panicking handler is reported to the error handler and never halts
//     the dispatcher nor its sibling handlers
type Engine struct {
	interval time.Duration

	qmu   sync.Mutex
	qcond *sync.Cond
	queue []Event

	hmu      sync.RWMutex
	handlers map[string][]handlerEntry
	general  []handlerEntry
	onError  ErrorHandler

	smu     sync.Mutex
	started bool
	stopped bool
	active  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates an engine whose timer fires every interval.
// A non-positive interval defaults to one second.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	e := &Engine{
		interval: interval,
		handlers: make(map[string][]handlerEntry),
		stopCh:   make(chan struct{}),
	}
	e.qcond = sync.NewCond(&e.qmu)
	e.onError = func(ev Event, r any) {
		log.Printf("events: handler panic on %q: %v", ev.Type, r)
	}
	return e
}

// Start launches the dispatcher and timer goroutines. Calling Start twice is
// a no-op.
func (e *Engine) Start() {
	e.smu.Lock()
	defer e.smu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.active = true

	e.wg.Add(2)
	go e.run()
	go e.runTimer()
}

// Stop signals both goroutines and joins them. Idempotent; after Stop returns
// no further events are dispatched and no stray timer event is emitted.
// Producers may keep calling Put safely; late events are simply never seen.
func (e *Engine) Stop() {
	e.smu.Lock()
	if !e.started || e.stopped {
		e.smu.Unlock()
		return
	}
	e.stopped = true
	e.active = false
	close(e.stopCh)
	e.smu.Unlock()

	// Wake the dispatcher if it is blocked on an empty queue.
	e.Put(Event{Type: eventStop})
	e.wg.Wait()
}

func (e *Engine) isActive() bool {
	e.smu.Lock()
	defer e.smu.Unlock()
	return e.active
}

// Put enqueues an event. Thread-safe, non-blocking with respect to handlers,
// never drops.
func (e *Engine) Put(ev Event) {
	e.qmu.Lock()
	e.queue = append(e.queue, ev)
	e.qmu.Unlock()
	e.qcond.Signal()
}

// QueueLen returns the number of events waiting for dispatch.
func (e *Engine) QueueLen() int {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return len(e.queue)
}

// Register subscribes handler to events of the given type. Registering the
// same handler value twice for one type is a no-op.
func (e *Engine) Register(eventType string, h Handler) {
	key := handlerKey(h)
	e.hmu.Lock()
	defer e.hmu.Unlock()
	for _, entry := range e.handlers[eventType] {
		if entry.key == key {
			return
		}
	}
	e.handlers[eventType] = append(e.handlers[eventType], handlerEntry{fn: h, key: key})
}

// Unregister removes handler from the given type. Unknown handlers are
// ignored.
func (e *Engine) Unregister(eventType string, h Handler) {
	key := handlerKey(h)
	e.hmu.Lock()
	defer e.hmu.Unlock()
	list := e.handlers[eventType]
	for i, entry := range list {
		if entry.key == key {
			e.handlers[eventType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(e.handlers[eventType]) == 0 {
		delete(e.handlers, eventType)
	}
}

// RegisterGeneral subscribes handler to every event (logging, monitoring,
// journaling). Duplicates are ignored.
func (e *Engine) RegisterGeneral(h Handler) {
	key := handlerKey(h)
	e.hmu.Lock()
	defer e.hmu.Unlock()
	for _, entry := range e.general {
		if entry.key == key {
			return
		}
	}
	e.general = append(e.general, handlerEntry{fn: h, key: key})
}

// UnregisterGeneral removes a general handler. Unknown handlers are ignored.
func (e *Engine) UnregisterGeneral(h Handler) {
	key := handlerKey(h)
	e.hmu.Lock()
	defer e.hmu.Unlock()
	for i, entry := range e.general {
		if entry.key == key {
			e.general = append(e.general[:i:i], e.general[i+1:]...)
			break
		}
	}
}

// SetErrorHandler replaces the default log-and-continue panic handler.
func (e *Engine) SetErrorHandler(h ErrorHandler) {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	if h != nil {
		e.onError = h
	}
}

// run is the dispatcher loop. It exits only on the stop sentinel, so Stop can
// join it deterministically.
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		e.qmu.Lock()
		for len(e.queue) == 0 {
			e.qcond.Wait()
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()

		if ev.Type == eventStop {
			return
		}
		e.process(ev)
	}
}

// runTimer emits EventTimer every interval while the engine is active. The
// active flag is rechecked after each wake so a Stop racing with the sleep
// cannot produce a stray tick.
func (e *Engine) runTimer() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-time.After(e.interval):
			if e.isActive() {
				e.Put(Event{Type: EventTimer, Data: time.Now()})
			}
		}
	}
}

func (e *Engine) process(ev Event) {
	// Snapshot both lists so registrations from within a handler apply to the
	// next event, not this one.
	e.hmu.RLock()
	typed := make([]handlerEntry, len(e.handlers[ev.Type]))
	copy(typed, e.handlers[ev.Type])
	general := make([]handlerEntry, len(e.general))
	copy(general, e.general)
	onError := e.onError
	e.hmu.RUnlock()

	for _, entry := range typed {
		e.safeCall(entry.fn, ev, onError)
	}
	for _, entry := range general {
		e.safeCall(entry.fn, ev, onError)
	}
}

func (e *Engine) safeCall(h Handler, ev Event, onError ErrorHandler) {
	defer func() {
		if r := recover(); r != nil && onError != nil {
			onError(ev, r)
		}
	}()
	h(ev)
}

// handlerKey identifies a handler by the address of its func value, not its
// code pointer. Two components subscribing the same method therefore get
// independent registrations, and a capturing closure is distinct per
// instantiation. The flip side: unregistering requires the same stored
// Handler value that was registered, so subscribers keep their handlers in
// fields rather than re-evaluating method expressions.
func handlerKey(h Handler) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&h)))
}
