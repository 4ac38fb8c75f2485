package sync

import (
	"context"
	"fmt"

	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/pkg/metrics"
)

// Sync implements spec.md §4.5's contract: mark the repository syncing,
// dispatch by source_kind, persist the normalized results, set status
// active (error_message cleared) or error, and invalidate the KV index
// caches. Per-package fetch/parse errors are logged and counted, not
// propagated — only a failure to reach the upstream index at all fails
// the whole run.
func (e *Engine) Sync(ctx context.Context, repoID string) error {
	repo, err := e.db.GetRepository(ctx, repoID)
	if err != nil {
		return err
	}
	if repo == nil {
		return ErrRepositoryNotFound
	}

	repo.Status = models.RepoSyncing
	if err := e.db.UpsertRepository(ctx, repo); err != nil {
		return err
	}

	var (
		count   int
		syncErr error
	)
	switch repo.SourceKind {
	case models.SourceComposer:
		count, syncErr = e.syncComposer(ctx, repo)
	case models.SourceGit:
		count, syncErr = e.syncGit(ctx, repo)
	default:
		syncErr = fmt.Errorf("sync: unknown source kind %q", repo.SourceKind)
	}

	repo.LastSyncedAt = e.clock.NowUnix()
	if syncErr != nil {
		repo.Status = models.RepoError
		repo.ErrorMessage = syncErr.Error()
		metrics.SyncRunsTotal.WithLabelValues(string(repo.SourceKind), "error").Inc()
	} else {
		repo.Status = models.RepoActive
		repo.ErrorMessage = ""
		metrics.SyncRunsTotal.WithLabelValues(string(repo.SourceKind), "success").Inc()
	}

	if err := e.db.UpsertRepository(ctx, repo); err != nil {
		return err
	}

	e.invalidateIndexCache(ctx)
	e.logger.Info("repository sync completed",
		"repo_id", repoID, "source_kind", string(repo.SourceKind),
		"packages", count, "status", string(repo.Status))

	return syncErr
}

// invalidateIndexCache drops the cached /packages.json response (spec.md
// §4.5's "invalidates the KV index caches"), using the same key names
// internal/metadata's index assembler writes.
func (e *Engine) invalidateIndexCache(ctx context.Context) {
	if e.kv == nil {
		return
	}
	_ = e.kv.Delete(ctx, "index")
	_ = e.kv.Delete(ctx, "index:metadata")
}

// filterAllowed returns a predicate for the repository's optional
// comma-separated package filter; an empty filter allows everything.
func filterAllowed(repo *models.Repository) func(string) bool {
	names := repo.FilterNames()
	if len(names) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
