package export

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pthm-cable/ecochamber/telemetry"
)

// Operation labels for failure accounting.
const (
	OpEnsure = "ensure_column"
	OpSend   = "send_record"
)

type job struct {
	rec     telemetry.Record
	barrier chan struct{} // non-nil for Sync markers
}

// Dispatcher hands records to an Adapter on a single worker goroutine.
// Submit never blocks: a full queue drops the record. Adapter failures are
// logged and counted, never returned to the caller.
type Dispatcher struct {
	adapter Adapter
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	done   chan struct{}

	// worker-owned
	ensured map[string]bool
}

// NewDispatcher starts the worker. queueSize below 1 is treated as 1.
func NewDispatcher(adapter Adapter, queueSize int, logger *slog.Logger, metrics *telemetry.Metrics) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		adapter: adapter,
		logger:  logger,
		metrics: metrics,
		jobs:    make(chan job, queueSize),
		done:    make(chan struct{}),
		ensured: make(map[string]bool),
	}
	go d.run()
	return d
}

// Submit queues rec for delivery and reports whether it was accepted.
func (d *Dispatcher) Submit(rec telemetry.Record) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- job{rec: rec}:
		return true
	default:
		d.logger.Warn("export queue full, dropping record", "experiment", rec.ExperimentNumber)
		d.metrics.ExportDropped()
		return false
	}
}

// Sync blocks until every record submitted before the call is handled or
// ctx is done.
func (d *Dispatcher) Sync(ctx context.Context) error {
	barrier := make(chan struct{})
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil
	}
	select {
	case d.jobs <- job{barrier: barrier}:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ctx := context.Background()
	for j := range d.jobs {
		if j.barrier != nil {
			close(j.barrier)
			continue
		}
		d.deliver(ctx, j.rec)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rec telemetry.Record) {
	for _, name := range rec.Dynamic {
		if d.ensured[name] {
			continue
		}
		if err := d.adapter.EnsureColumn(ctx, name); err != nil {
			d.logger.Error("ensure column failed", "column", name, "error", err)
			d.metrics.ExportFailed(OpEnsure)
			return
		}
		d.ensured[name] = true
	}

	if err := d.adapter.SendRecord(ctx, rec); err != nil {
		d.logger.Error("send record failed", "experiment", rec.ExperimentNumber, "error", err)
		d.metrics.ExportFailed(OpSend)
		return
	}
	d.metrics.RecordSent()
}
