// Package rowbuffer batches export rows produced by concurrent block writers.
// Rows are held in memory and flushed together once a row limit is reached or
// the flush interval elapses. Every submitter blocks until the batch holding
// its rows has been written and receives the result of that write.
package rowbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/common"
)

var ErrNotStarted = errors.New("row buffer is not started")

// FlushFunc writes one batch of rows.
type FlushFunc[R any] func(ctx context.Context, rows []R) error

// Config controls when a batch is flushed.
//
//nolint:tagliatelle // YAML config uses camelCase by convention
type Config struct {
	MaxRows       int           `yaml:"maxRows" default:"10000"`
	FlushInterval time.Duration `yaml:"flushInterval" default:"1s"`
}

// Labels identify the buffer in metrics.
type Labels struct {
	Network string
	Table   string
}

type waiter struct {
	resultCh chan<- error
}

type batch[R any] struct {
	rows    []R
	waiters []waiter
}

// Buffer is safe for concurrent use.
type Buffer[R any] struct {
	mu      sync.Mutex
	pending batch[R]
	started bool

	config  Config
	labels  Labels
	flushFn FlushFunc[R]
	log     logrus.FieldLogger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New[R any](log logrus.FieldLogger, cfg Config, labels Labels, flushFn FlushFunc[R]) *Buffer[R] {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	b := &Buffer[R]{
		config:   cfg,
		labels:   labels,
		flushFn:  flushFn,
		log:      log.WithFields(logrus.Fields{"component": "rowbuffer", "table": labels.Table}),
		stopChan: make(chan struct{}),
	}
	b.pending = b.emptyBatch()

	return b
}

func (b *Buffer[R]) emptyBatch() batch[R] {
	return batch[R]{
		rows:    make([]R, 0, b.config.MaxRows),
		waiters: make([]waiter, 0, 16),
	}
}

// take swaps out the pending batch. Callers must hold mu.
func (b *Buffer[R]) take() batch[R] {
	out := b.pending
	b.pending = b.emptyBatch()

	return out
}

func (b *Buffer[R]) setPendingMetrics() {
	common.RowBufferPendingRows.WithLabelValues(b.labels.Network, b.labels.Table).Set(float64(len(b.pending.rows)))
	common.RowBufferPendingTasks.WithLabelValues(b.labels.Network, b.labels.Table).Set(float64(len(b.pending.waiters)))
}

// Start launches the interval flusher.
func (b *Buffer[R]) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}

	b.started = true

	b.wg.Go(func() { b.runFlushTimer(ctx) })

	b.log.WithFields(logrus.Fields{
		"max_rows":       b.config.MaxRows,
		"flush_interval": b.config.FlushInterval,
	}).Debug("Row buffer started")

	return nil
}

// Stop halts the interval flusher and writes whatever is still pending.
func (b *Buffer[R]) Stop(ctx context.Context) error {
	b.mu.Lock()

	if !b.started {
		b.mu.Unlock()

		return nil
	}

	b.started = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()

	b.mu.Lock()
	remaining := b.take()
	b.mu.Unlock()

	if err := b.flush(ctx, remaining, "shutdown"); err != nil {
		return fmt.Errorf("failed to flush remaining rows: %w", err)
	}

	b.log.Debug("Row buffer stopped")

	return nil
}

// Submit queues rows and waits until the batch containing them is written.
func (b *Buffer[R]) Submit(ctx context.Context, rows []R) error {
	if len(rows) == 0 {
		return nil
	}

	resultCh := make(chan error, 1)

	b.mu.Lock()

	if !b.started {
		b.mu.Unlock()

		return ErrNotStarted
	}

	b.pending.rows = append(b.pending.rows, rows...)
	b.pending.waiters = append(b.pending.waiters, waiter{resultCh: resultCh})
	b.setPendingMetrics()

	var full *batch[R]

	if len(b.pending.rows) >= b.config.MaxRows {
		out := b.take()
		full = &out
	}

	b.mu.Unlock()

	if full != nil {
		go func() { _ = b.flush(context.Background(), *full, "size") }()
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopChan:
		// Stop flushes the pending batch before returning.
		select {
		case err := <-resultCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Buffer[R]) runFlushTimer(ctx context.Context) {
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			out := b.take()
			b.mu.Unlock()

			_ = b.flush(ctx, out, "timer")
		}
	}
}

func (b *Buffer[R]) flush(ctx context.Context, out batch[R], trigger string) error {
	if len(out.rows) == 0 {
		return nil
	}

	start := time.Now()
	err := b.flushFn(ctx, out.rows)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failed"
	}

	common.RowBufferFlushTotal.WithLabelValues(b.labels.Network, b.labels.Table, trigger, status).Inc()
	common.RowBufferFlushDuration.WithLabelValues(b.labels.Network, b.labels.Table).Observe(duration.Seconds())
	common.RowBufferFlushSize.WithLabelValues(b.labels.Network, b.labels.Table).Observe(float64(len(out.rows)))

	b.mu.Lock()
	b.setPendingMetrics()
	b.mu.Unlock()

	log := b.log.WithFields(logrus.Fields{
		"rows":     len(out.rows),
		"waiters":  len(out.waiters),
		"trigger":  trigger,
		"duration": duration,
	})

	if err != nil {
		log.WithError(err).Error("Row flush failed")
	} else {
		log.Debug("Row flush completed")
	}

	for _, w := range out.waiters {
		select {
		case w.resultCh <- err:
		default:
		}
	}

	return err
}

// Len returns the number of rows waiting for the next flush.
func (b *Buffer[R]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending.rows)
}

// WaiterCount returns the number of submitters waiting for the next flush.
func (b *Buffer[R]) WaiterCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending.waiters)
}
