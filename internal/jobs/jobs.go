// Package jobs defines the job types and the Job Processor (spec.md §4.2):
// enqueue(job)/enqueue_all(jobs) against either an async JobQueue or, when
// none is configured, inline synchronous execution fanned out in parallel.
package jobs

import "github.com/pkgmirror/core/internal/ports"

// TokenTouched records that a Token was used for a successful Basic-auth
// request; the handler sets tokens.last_used_at = Ts (monotone, last-write-
// wins — safe under duplicate delivery).
type TokenTouched struct {
	TokenID string
	Ts      int64
}

func (TokenTouched) Kind() string { return "token_touched" }

// ArtifactDownloaded bumps an Artifact's download_count and
// last_downloaded_at. The counter increment is monotonic per message, so a
// small over-count under duplicate delivery is acceptable (spec.md §4.2).
type ArtifactDownloaded struct {
	ArtifactID string
	Ts         int64
}

func (ArtifactDownloaded) Kind() string { return "artifact_downloaded" }

// RepositorySync invokes the Sync Engine for one repository.
type RepositorySync struct {
	RepoID string
}

func (RepositorySync) Kind() string { return "repository_sync" }

var (
	_ ports.Job = TokenTouched{}
	_ ports.Job = ArtifactDownloaded{}
	_ ports.Job = RepositorySync{}
)
