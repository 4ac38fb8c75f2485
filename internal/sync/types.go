// Package sync implements the Sync Engine (spec.md §4.5): repository
// discovery and credential-authenticated fetch of an upstream package
// index, strategy dispatch (Composer direct / Git tree), URL resolution,
// and persistence of the resulting package versions.
package sync

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkgmirror/core/internal/ports"
)

// Engine implements jobs.SyncRunner, invoked by RepositorySync jobs.
type Engine struct {
	db     ports.Database
	kv     ports.KVCache
	clock  ports.Clock
	client *http.Client
	logger *slog.Logger

	encryptionKey    string
	githubAPIBaseURL string
	githubRawBaseURL string
}

// Config carries the upstream-facing knobs the engine needs from
// internal/config, kept narrow so this package does not import config
// directly.
type Config struct {
	EncryptionKey    string
	UpstreamTimeout  time.Duration
	GitHubAPIBaseURL string // defaults to https://api.github.com
	GitHubRawBaseURL string // defaults to https://raw.githubusercontent.com
}

func New(db ports.Database, kv ports.KVCache, clock ports.Clock, cfg Config, logger *slog.Logger) *Engine {
	apiBase := cfg.GitHubAPIBaseURL
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	rawBase := cfg.GitHubRawBaseURL
	if rawBase == "" {
		rawBase = "https://raw.githubusercontent.com"
	}
	return &Engine{
		db:               db,
		kv:               kv,
		clock:            clock,
		client:           &http.Client{Timeout: cfg.UpstreamTimeout},
		logger:           logger,
		encryptionKey:    cfg.EncryptionKey,
		githubAPIBaseURL: apiBase,
		githubRawBaseURL: rawBase,
	}
}

// ErrRepositoryNotFound is returned when the requested repo_id has no
// Repository row.
var ErrRepositoryNotFound = errors.New("sync: repository not found")
