// Package artifact implements the Artifact Server (spec.md §4.4): resolving
// a (repo, name, version) or unified (name, version) request to zip bytes,
// mirroring on first request, and serving README/CHANGELOG side artifacts
// extracted from the zip's central directory (spec.md §4.6).
package artifact

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkgmirror/core/internal/ports"
)

// JobEnqueuer is the narrow slice of jobs.Processor the server needs: an
// ArtifactDownloaded counter bump per completed download.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job ports.Job) error
}

// Server implements spec.md §4.4's byte-retrieval algorithm.
type Server struct {
	db     ports.Database
	blob   ports.BlobStore
	clock  ports.Clock
	jobs   JobEnqueuer
	client *http.Client
	logger *slog.Logger

	encryptionKey             string
	packagistBaseURL          string
	packagistMirroringEnabled bool
}

// Config carries the upstream-facing knobs the server needs from
// internal/config.
type Config struct {
	EncryptionKey             string
	PackagistBaseURL          string
	PackagistMirroringEnabled bool
	UpstreamTimeout           time.Duration
}

func New(db ports.Database, blob ports.BlobStore, clock ports.Clock, jobs JobEnqueuer, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		db:                        db,
		blob:                      blob,
		clock:                     clock,
		jobs:                      jobs,
		client:                    &http.Client{Timeout: cfg.UpstreamTimeout},
		logger:                    logger,
		encryptionKey:             cfg.EncryptionKey,
		packagistBaseURL:          cfg.PackagistBaseURL,
		packagistMirroringEnabled: cfg.PackagistMirroringEnabled,
	}
}

// Result is a resolved artifact (or side artifact) ready to stream to the
// client. Body is nil when NotModified is true.
type Result struct {
	Body         io.ReadCloser
	Size         int64
	ContentType  string
	Filename     string
	LastModified time.Time
	XCache       string
	// Ephemeral marks bytes fetched on demand but not persisted (spec.md
	// §4.4 step 1's "graceful race handling"), so the HTTP layer uses the
	// short-lived Cache-Control instead of the immutable one.
	Ephemeral   bool
	NotModified bool
}

// Errors the HTTP layer maps to the status codes spec.md §4.4's "Failure
// semantics" names: not-found → 404, unauthorized → 401, upstream failure →
// 502, timeout → 504 (the latter has no sentinel here: the HTTP layer detects
// it with IsTimeout, which also matches context.DeadlineExceeded).
var (
	ErrNotFound     = errors.New("artifact: not found")
	ErrUnauthorized = errors.New("artifact: upstream rejected credentials")
	ErrUpstream     = errors.New("artifact: upstream fetch failed")
)
