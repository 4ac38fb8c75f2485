// Package ports defines the abstract interfaces the core depends on. No
// package under internal/ other than the concrete adapters in
// internal/adapter/... may import a specific database driver, object-store
// SDK, or queue client directly; everything reaches those through here.
package ports

import (
	"context"
	"io"
	"time"

	"github.com/pkgmirror/core/internal/models"
)

// Database is the port for the four durable entities: Repository, Token,
// PackageVersion, Artifact (Session lives in KVCache only, never here).
type Database interface {
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)
	UpsertRepository(ctx context.Context, r *models.Repository) error
	DeleteRepository(ctx context.Context, id string) error

	GetTokenByHash(ctx context.Context, hash string) (*models.Token, error)
	ListTokens(ctx context.Context) ([]*models.Token, error)
	InsertToken(ctx context.Context, t *models.Token) error
	DeleteToken(ctx context.Context, id string) error
	TouchToken(ctx context.Context, id string, lastUsedAt int64) error

	GetPackageVersions(ctx context.Context, name string) ([]*models.PackageVersion, error)
	ListAllPackageNames(ctx context.Context) ([]string, error)
	UpsertPackageVersion(ctx context.Context, v *models.PackageVersion) error
	FindPackageVersion(ctx context.Context, name, version string) (*models.PackageVersion, error)

	GetArtifact(ctx context.Context, repoID, name, version string) (*models.Artifact, error)
	UpsertArtifact(ctx context.Context, a *models.Artifact) error
	IncrementDownloadCount(ctx context.Context, artifactID string, ts int64) error
}

// BlobStore is the port for raw bytes keyed by a storage key (internal/storagekey).
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ErrNotFound is returned by BlobStore.Get for a missing key. KVCache.Get
// does not use it: a miss there is an empty string with a nil error.
var ErrNotFound = portError("not found")

type portError string

func (e portError) Error() string { return string(e) }

// KVCache is the port for ephemeral, TTL'd key/value state: sessions, the
// token burst cache, rate-limit counters, and the metadata/index caches.
// A nil KVCache is a legal configuration: every caller must degrade
// gracefully (rate limit unlimited, sessions unavailable, caches disabled).
type KVCache interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Job is the payload handed to a JobQueue or executed synchronously by the
// Job Processor. Concrete job types live in internal/jobs.
type Job interface {
	Kind() string
}

// JobQueue is the optional port backing the async Job Processor strategy.
// Its absence (a nil JobQueue) switches the processor to the synchronous
// strategy; this is not an error condition.
type JobQueue interface {
	Send(ctx context.Context, job Job) error
	SendBatch(ctx context.Context, jobs []Job) error
}

// Analytics is a best-effort, non-blocking event sink. A nil Analytics
// silently no-ops; callers must never let it affect control flow.
type Analytics interface {
	Track(ctx context.Context, event string, fields map[string]any)
}

// Clock abstracts wall-clock time so tests can control it deterministically.
type Clock interface {
	Now() time.Time
	NowUnix() int64
	NowUnixMs() int64
}

// Logger is the structured-logging port. No type in this repository
// implements it; packages take a *slog.Logger directly.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}
