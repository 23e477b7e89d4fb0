// Package journal persists the order, trade and log event streams to SQLite.
// It is a plain bus consumer: the trading core never reads the journal back,
// so a slow or failed disk cannot stall matching or dispatch.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"trading-runtime/internal/events"
	"trading-runtime/pkg/objects"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    action TEXT NOT NULL,
    order_type TEXT NOT NULL,
    price REAL NOT NULL,
    qty REAL NOT NULL,
    filled_qty REAL DEFAULT 0,
    status TEXT NOT NULL,
    reference TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    price REAL NOT NULL,
    qty REAL NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Journal subscribes to order, trade and log events and batches them into
// SQLite.
type Journal struct {
	engine *events.Engine
	db     *sql.DB
	writer *BatchWriter

	// Stored once so Close unregisters the same handler values.
	orderHandler events.Handler
	tradeHandler events.Handler
	logHandler   events.Handler
}

// Open creates (if needed) the SQLite file at path, applies the schema and
// subscribes the journal to the engine.
func Open(engine *events.Engine, path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	j := &Journal{
		engine: engine,
		db:     db,
		writer: NewBatchWriter(db, 50, 500*time.Millisecond),
	}
	j.orderHandler = j.onOrderEvent
	j.tradeHandler = j.onTradeEvent
	j.logHandler = j.onLogEvent
	engine.Register(events.EventOrder, j.orderHandler)
	engine.Register(events.EventTrade, j.tradeHandler)
	engine.Register(events.EventLog, j.logHandler)
	return j, nil
}

func (j *Journal) onOrderEvent(ev events.Event) {
	order, ok := ev.Data.(objects.OrderData)
	if !ok {
		return
	}
	j.writer.WriteQuery(`
		INSERT INTO orders (id, symbol, side, action, order_type, price, qty, filled_qty, status, reference, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			filled_qty = excluded.filled_qty,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		order.Key(), order.Symbol, string(order.Direction), string(order.Action),
		string(order.Type), order.Price, order.Volume, order.Traded,
		string(order.Status), order.Reference,
	)
}

func (j *Journal) onTradeEvent(ev events.Event) {
	trade, ok := ev.Data.(objects.TradeData)
	if !ok {
		return
	}
	j.writer.WriteQuery(`
		INSERT INTO trades (id, order_id, symbol, side, price, qty)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		trade.Key(), trade.OrderKey(), trade.Symbol, string(trade.Direction),
		trade.Price, trade.Volume,
	)
}

func (j *Journal) onLogEvent(ev events.Event) {
	entry, ok := ev.Data.(events.LogData)
	if !ok {
		return
	}
	j.writer.WriteQuery(
		`INSERT INTO logs (source, message) VALUES (?, ?)`,
		entry.Source, entry.Message,
	)
}

// Flush forces any buffered writes to disk.
func (j *Journal) Flush() error {
	return j.writer.Flush()
}

// DB exposes the handle for read-side queries and tests.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// Close unsubscribes, flushes and closes the database.
func (j *Journal) Close() error {
	j.engine.Unregister(events.EventOrder, j.orderHandler)
	j.engine.Unregister(events.EventTrade, j.tradeHandler)
	j.engine.Unregister(events.EventLog, j.logHandler)

	err := j.writer.Close()
	if cerr := j.db.Close(); err == nil {
		err = cerr
	}
	return err
}
