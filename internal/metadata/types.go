// Package metadata implements the three-tier (KV → DB → upstream) package
// metadata resolver and index assembler (spec.md §4.3).
package metadata

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pkgmirror/core/internal/ports"
)

// JobEnqueuer is the narrow slice of jobs.Processor the resolver needs: a
// RepositorySync sweep on get_index, nothing else.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job ports.Job) error
	EnqueueAll(ctx context.Context, jobs []ports.Job) error
}

// Resolver implements spec.md §4.3's get_package_metadata and get_index.
type Resolver struct {
	db     ports.Database
	kv     ports.KVCache
	clock  ports.Clock
	jobs   JobEnqueuer
	client *http.Client
	logger *slog.Logger

	encryptionKey             string
	packagistBaseURL          string
	packagistMirroringEnabled bool

	group singleflight.Group
}

// Config carries the upstream-facing knobs the resolver needs from
// internal/config, kept narrow so this package does not import config
// directly.
type Config struct {
	EncryptionKey             string
	PackagistBaseURL          string
	PackagistMirroringEnabled bool
	UpstreamTimeout           time.Duration
}

func New(db ports.Database, kv ports.KVCache, clock ports.Clock, jobs JobEnqueuer, cfg Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		db:                        db,
		kv:                        kv,
		clock:                     clock,
		jobs:                      jobs,
		client:                    &http.Client{Timeout: cfg.UpstreamTimeout},
		logger:                    logger,
		encryptionKey:             cfg.EncryptionKey,
		packagistBaseURL:          cfg.PackagistBaseURL,
		packagistMirroringEnabled: cfg.PackagistMirroringEnabled,
	}
}

// MetadataResponse is the {packages: {name: [version_entries...]}} shape
// get_package_metadata returns (spec.md §4.3).
type MetadataResponse struct {
	Packages map[string][]map[string]any `json:"packages"`
}

// cacheEnvelope is the lastModified sidecar spec.md §4.3 calls "a
// '…:metadata' KV entry {lastModified: unix_ms}", used for conditional
// requests on both get_index and get_package_metadata.
type cacheEnvelope struct {
	LastModified int64 `json:"lastModified"`
}

// ErrNotFound is returned when no tier — cache, DB, or any upstream —
// has the requested package.
var ErrNotFound = errors.New("metadata: package not found")
