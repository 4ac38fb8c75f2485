package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"

	"github.com/pkgmirror/core/internal/pkg/metrics"
	"github.com/pkgmirror/core/internal/ports"
)

// SyncRunner is the Sync Engine's entry point, invoked by RepositorySync
// jobs. Kept as a narrow interface here so jobs does not import internal/sync
// directly (cmd/server passes the sync engine to NewProcessor).
type SyncRunner interface {
	Sync(ctx context.Context, repoID string) error
}

// Processor implements spec.md §4.2's enqueue/enqueue_all contract. Strategy
// is fixed at construction: a non-nil JobQueue makes it "async" (hand jobs
// to the queue verbatim); a nil JobQueue makes it "sync" (run inline, fanning
// enqueue_all out in parallel via sourcegraph/conc).
type Processor struct {
	db         ports.Database
	queue      ports.JobQueue
	syncRunner SyncRunner
	logger     *slog.Logger
}

func NewProcessor(db ports.Database, syncRunner SyncRunner, logger *slog.Logger) *Processor {
	return &Processor{db: db, syncRunner: syncRunner, logger: logger}
}

// SetQueue installs the async JobQueue after construction, so chanqueue's
// worker handler (Processor.Execute) can be wired before the queue exists.
// A nil queue (the default) keeps the processor in the sync strategy.
func (p *Processor) SetQueue(q ports.JobQueue) {
	p.queue = q
}

func (p *Processor) Enqueue(ctx context.Context, job ports.Job) error {
	if p.queue != nil {
		return p.queue.Send(ctx, job)
	}
	p.runAndLog(ctx, job)
	return nil
}

func (p *Processor) EnqueueAll(ctx context.Context, jobs []ports.Job) error {
	if p.queue != nil {
		return p.queue.SendBatch(ctx, jobs)
	}
	var wg conc.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Go(func() { p.runAndLog(ctx, job) })
	}
	wg.Wait()
	return nil
}

// EnqueueTokenTouched implements auth.TokenToucher without internal/auth
// needing to import jobs' concrete queue wiring.
func (p *Processor) EnqueueTokenTouched(ctx context.Context, tokenID string, now int64) {
	if err := p.Enqueue(ctx, TokenTouched{TokenID: tokenID, Ts: now}); err != nil {
		p.logger.Warn("enqueue token_touched failed", "token_id", tokenID, "error", err)
	}
}

func (p *Processor) runAndLog(ctx context.Context, job ports.Job) {
	if err := p.Execute(ctx, job); err != nil {
		p.logger.Warn("job execution failed", "kind", job.Kind(), "error", err)
	}
}

// Execute runs one job's effect against the Database/Sync Engine. It is
// exported so an async JobQueue adapter's consumer loop can call the same
// code path the sync strategy uses inline.
func (p *Processor) Execute(ctx context.Context, job ports.Job) error {
	err := p.execute(ctx, job)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.JobProcessedTotal.WithLabelValues(job.Kind(), outcome).Inc()
	return err
}

func (p *Processor) execute(ctx context.Context, job ports.Job) error {
	switch j := job.(type) {
	case TokenTouched:
		return p.db.TouchToken(ctx, j.TokenID, j.Ts)
	case ArtifactDownloaded:
		return p.db.IncrementDownloadCount(ctx, j.ArtifactID, j.Ts)
	case RepositorySync:
		if p.syncRunner == nil {
			return fmt.Errorf("jobs: no sync runner configured")
		}
		return p.syncRunner.Sync(ctx, j.RepoID)
	default:
		return fmt.Errorf("jobs: unknown job kind %q", job.Kind())
	}
}
