// Package chanqueue implements ports.JobQueue as an in-process buffered
// channel, consumed by a fixed pool of sourcegraph/conc workers
// (QUEUE_DRIVER=channel). It gives the Job Processor its "async" strategy
// without a network dependency; jobs do not survive a process restart.
package chanqueue

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/pkgmirror/core/internal/pkg/metrics"
	"github.com/pkgmirror/core/internal/ports"
)

// Handler runs one job's effect. In production this is Processor.Execute;
// tests can substitute a stub.
type Handler func(ctx context.Context, job ports.Job) error

// Queue is a bounded channel of pending jobs drained by Workers goroutines.
type Queue struct {
	jobs   chan ports.Job
	pool   *pool.Pool
	logger *slog.Logger
}

// New starts Workers consumer goroutines reading from a channel of capacity
// bufferSize, each dispatching through handler. Send/SendBatch block once
// the buffer is full, applying natural backpressure.
func New(bufferSize, workers int, handler Handler, logger *slog.Logger) *Queue {
	q := &Queue{
		jobs:   make(chan ports.Job, bufferSize),
		pool:   pool.New().WithMaxGoroutines(workers),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		q.pool.Go(func() { q.consume(handler) })
	}
	return q
}

func (q *Queue) consume(handler Handler) {
	for job := range q.jobs {
		metrics.JobQueueDepth.Dec()
		if err := handler(context.Background(), job); err != nil {
			q.logger.Warn("queued job failed", "kind", job.Kind(), "error", err)
		}
	}
}

var _ ports.JobQueue = (*Queue)(nil)

func (q *Queue) Send(ctx context.Context, job ports.Job) error {
	select {
	case q.jobs <- job:
		metrics.JobQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) SendBatch(ctx context.Context, jobs []ports.Job) error {
	for _, job := range jobs {
		if err := q.Send(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting new jobs and waits for in-flight ones to drain.
func (q *Queue) Close() {
	close(q.jobs)
	q.pool.Wait()
}
