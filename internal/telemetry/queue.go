// Package telemetry batches finalized sessions for upload.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/neotype/internal/clock"
	"github.com/verte-zerg/neotype/internal/model"
)

// Defaults for Options fields left zero.
const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Minute
	DefaultTTL           = 24 * time.Hour
)

// Entry is one queued session.
type Entry struct {
	ID       string        `json:"id" cbor:"id"`
	QueuedAt time.Time     `json:"queued_at" cbor:"queued_at"`
	Payload  model.Payload `json:"session" cbor:"session"`
}

// Uploader delivers a batch to the backend.
type Uploader interface {
	UploadBatch(ctx context.Context, entries []Entry) error
}

// Options tune flush triggers and retention.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	TTL           time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// Queue is a process-wide, mutex-guarded upload queue. Delivery is
// at-least-once: a failed upload puts the batch back ahead of newer
// entries.
type Queue struct {
	mu        sync.Mutex
	entries   []Entry
	lastFlush time.Time

	uploader Uploader
	clock    clock.Clock
	logger   *slog.Logger
	opts     Options
}

// New returns an empty queue. The flush interval is measured from
// construction until the first successful flush.
func New(uploader Uploader, clk clock.Clock, logger *slog.Logger, opts Options) *Queue {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		uploader:  uploader,
		clock:     clk,
		logger:    logger,
		opts:      opts.withDefaults(),
		lastFlush: clk.Now(),
	}
}

// Enqueue adds a finalized session and flushes when the batch is full or
// the flush interval has passed. It returns the queued entry id; a flush
// error is returned alongside it and leaves the entries queued.
func (q *Queue) Enqueue(ctx context.Context, p model.Payload) (string, error) {
	q.mu.Lock()
	entry := Entry{ID: uuid.NewString(), QueuedAt: q.clock.Now(), Payload: p}
	q.entries = append(q.entries, entry)
	due := len(q.entries) >= q.opts.BatchSize || q.clock.Now().Sub(q.lastFlush) >= q.opts.FlushInterval
	q.mu.Unlock()

	if !due {
		return entry.ID, nil
	}
	return entry.ID, q.Flush(ctx)
}

// Flush uploads everything currently queued. Entries older than the TTL
// are dropped instead of sent.
func (q *Queue) Flush(ctx context.Context) error {
	batch := q.drain()
	if len(batch) == 0 {
		return nil
	}
	if q.uploader == nil {
		q.requeue(batch)
		return fmt.Errorf("no uploader configured")
	}
	if err := q.uploader.UploadBatch(ctx, batch); err != nil {
		q.requeue(batch)
		q.logger.Debug("telemetry upload failed", "entries", len(batch), "error", err)
		return fmt.Errorf("upload batch: %w", err)
	}

	q.mu.Lock()
	q.lastFlush = q.clock.Now()
	q.mu.Unlock()
	q.logger.Debug("telemetry batch uploaded", "entries", len(batch))
	return nil
}

func (q *Queue) drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	batch := make([]Entry, 0, len(q.entries))
	dropped := 0
	for _, e := range q.entries {
		if now.Sub(e.QueuedAt) >= q.opts.TTL {
			dropped++
			continue
		}
		batch = append(batch, e)
	}
	q.entries = nil
	if dropped > 0 {
		q.logger.Debug("telemetry entries expired", "dropped", dropped)
	}
	return batch
}

func (q *Queue) requeue(batch []Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(batch, q.entries...)
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending returns a copy of the queued entries, oldest first.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Restore puts previously spooled entries back ahead of anything queued
// since startup.
func (q *Queue) Restore(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	restored := make([]Entry, len(entries))
	copy(restored, entries)
	q.requeue(restored)
}
