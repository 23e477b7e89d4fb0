package journal

import (
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// writeOp is one buffered statement with its arguments.
type writeOp struct {
	query string
	args  []any
}

// BatchWriter coalesces journal writes so a burst of fills costs one
// transaction instead of one fsync per event.
type BatchWriter struct {
	db       *sql.DB
	mu       sync.Mutex
	buffer   []writeOp
	maxSize  int
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup

	totalWrites  uint64
	totalBatches uint64
	totalErrors  uint64
}

// WriterMetrics reports batch statistics.
type WriterMetrics struct {
	TotalWrites  uint64
	TotalBatches uint64
	TotalErrors  uint64
}

// NewBatchWriter creates a writer that flushes when maxSize operations are
// buffered or interval elapses, whichever comes first.
func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:       db,
		buffer:   make([]writeOp, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
	}
	bw.wg.Add(1)
	go bw.flushLoop()
	return bw
}

// WriteQuery buffers one statement, flushing if the buffer is full.
func (bw *BatchWriter) WriteQuery(query string, args ...any) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, writeOp{query: query, args: args})
	full := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if full {
		bw.Flush()
	}
}

// Flush writes everything buffered in a single transaction.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]writeOp, 0, bw.maxSize)
	bw.mu.Unlock()

	atomic.AddUint64(&bw.totalWrites, uint64(len(ops)))
	atomic.AddUint64(&bw.totalBatches, 1)

	tx, err := bw.db.Begin()
	if err != nil {
		atomic.AddUint64(&bw.totalErrors, 1)
		log.Printf("journal: begin transaction: %v", err)
		return err
	}
	for _, op := range ops {
		if _, err := tx.Exec(op.query, op.args...); err != nil {
			tx.Rollback()
			atomic.AddUint64(&bw.totalErrors, 1)
			log.Printf("journal: statement failed, rolling back: %v", err)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		atomic.AddUint64(&bw.totalErrors, 1)
		log.Printf("journal: commit: %v", err)
		return err
	}
	return nil
}

func (bw *BatchWriter) flushLoop() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				log.Printf("journal: periodic flush: %v", err)
			}
		case <-bw.done:
			if err := bw.Flush(); err != nil {
				log.Printf("journal: final flush: %v", err)
			}
			return
		}
	}
}

// GetMetrics returns the current batch statistics.
func (bw *BatchWriter) GetMetrics() WriterMetrics {
	return WriterMetrics{
		TotalWrites:  atomic.LoadUint64(&bw.totalWrites),
		TotalBatches: atomic.LoadUint64(&bw.totalBatches),
		TotalErrors:  atomic.LoadUint64(&bw.totalErrors),
	}
}

// Close stops the flush loop, writing anything still buffered.
func (bw *BatchWriter) Close() error {
	close(bw.done)
	bw.wg.Wait()
	return nil
}
