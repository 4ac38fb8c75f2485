package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkgmirror/core/internal/jobs"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/pkg/metrics"
	"github.com/pkgmirror/core/internal/ports"
	"github.com/pkgmirror/core/internal/storagekey"
	pkgversion "github.com/pkgmirror/core/internal/version"
)

// Get implements spec.md §4.4's byte-retrieval algorithm. repoID may be
// empty for the unified /dist/m/{vendor}/{package}/{version}.zip route, in
// which case it is resolved from the PackageVersion row (name, version)
// identify. ifModifiedSince is the client's conditional-request header value
// (zero if absent).
func (s *Server) Get(ctx context.Context, repoID, name, requestedVersion string, ifModifiedSince time.Time) (*Result, error) {
	pv, err := s.db.FindPackageVersion(ctx, name, requestedVersion)
	if err != nil {
		return nil, err
	}
	if repoID == "" && pv != nil {
		repoID = pv.RepoID
	}

	if repoID != "" {
		artifactRow, err := s.db.GetArtifact(ctx, repoID, name, requestedVersion)
		if err != nil {
			return nil, err
		}
		if artifactRow != nil {
			if notModifiedByTime(ifModifiedSince, artifactRow.CreatedAt) {
				return &Result{NotModified: true}, nil
			}
			if result, ok, err := s.tryBlobHit(ctx, artifactRow, name, requestedVersion); err != nil {
				return nil, err
			} else if ok {
				return result, nil
			}
		}

		if pv != nil && pv.SourceDistURL != "" {
			repo, err := s.db.GetRepository(ctx, repoID)
			if err != nil {
				return nil, err
			}
			return s.fetchKnownAndPersist(ctx, repo, repoID, name, requestedVersion, pv.SourceDistURL, artifactRow)
		}
	}

	return s.discoverAndFetchEphemeral(ctx, repoID, name, requestedVersion)
}

func notModifiedByTime(ifModifiedSince time.Time, createdAt int64) bool {
	if ifModifiedSince.IsZero() {
		return false
	}
	return createdAt <= ifModifiedSince.Unix()
}

// filename builds the Content-Disposition attachment name spec.md §4.4
// mandates: "<vendor>--<package>--<version>.zip" (slash → double-dash).
func filename(name, version string) string {
	return strings.ReplaceAll(name, "/", "--") + "--" + version + ".zip"
}

// visibilityFor resolves the storage-key visibility prefix for a
// repository's mirrored bytes: an upstream that requires credentials is
// mirrored privately, matching the confidentiality of its source; an
// unauthenticated upstream (including the public Packagist mirror) is
// mirrored publicly. This is an open question spec.md §3 leaves unresolved
// for the Artifact entity and is decided here (see DESIGN.md).
func visibilityFor(repo *models.Repository) storagekey.Visibility {
	if repo != nil && repo.CredentialKind != models.CredentialNone {
		return storagekey.Private
	}
	return storagekey.Public
}

// tryBlobHit implements step 3: a BlobStore hit streams straight through.
// ok is false (with a nil error) on a plain cache miss, distinguishing it
// from an actual BlobStore failure.
func (s *Server) tryBlobHit(ctx context.Context, row *models.Artifact, name, version string) (*Result, bool, error) {
	rc, size, err := s.blob.Get(ctx, row.StorageKey)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	go s.bumpDownloadCounter(context.Background(), row.ID)
	metrics.ArtifactCacheResultTotal.WithLabelValues("hit_kv").Inc()
	metrics.ArtifactDownloadsTotal.Inc()

	return &Result{
		Body:         rc,
		Size:         size,
		ContentType:  "application/zip",
		Filename:     filename(name, version),
		LastModified: time.Unix(row.CreatedAt, 0).UTC(),
		XCache:       "HIT-KV",
	}, true, nil
}

// fetchKnownAndPersist implements step 4's "known location" path: the DB
// already recorded source_dist_url for this version (from the Metadata
// Resolver or Sync Engine), so no discovery round trip is needed. The fetch
// itself is synchronous (the client waits for the bytes); storing them is
// backgrounded per spec.md §4.4 step 6.
func (s *Server) fetchKnownAndPersist(ctx context.Context, repo *models.Repository, repoID, name, version, sourceDistURL string, existing *models.Artifact) (*Result, error) {
	data, err := s.fetchBytes(ctx, sourceDistURL, repo)
	if err != nil {
		return nil, err
	}

	now := s.clock.NowUnix()
	artifactID := uuid.New().String()
	createdAt := now
	if existing != nil {
		artifactID = existing.ID
		createdAt = existing.CreatedAt
	}
	storageKey := storagekey.Build(visibilityFor(repo), repoID, name, version, storagekey.None)

	go s.persistArtifact(context.Background(), artifactID, storageKey, repoID, name, version, createdAt, repo, data)
	metrics.ArtifactCacheResultTotal.WithLabelValues("hit_db").Inc()
	metrics.ArtifactDownloadsTotal.Inc()

	return &Result{
		Body:         io.NopCloser(bytes.NewReader(data)),
		Size:         int64(len(data)),
		ContentType:  "application/zip",
		Filename:     filename(name, version),
		LastModified: time.Unix(createdAt, 0).UTC(),
		XCache:       "HIT-DB",
	}, nil
}

// persistArtifact is the step-6 background task: write the blob, upsert the
// Artifact row (preserving createdAt across refetches of an evicted blob),
// extract README/CHANGELOG, and bump the download counter. A BlobStore
// failure here is logged and swallowed: the client already has its bytes,
// and the next request's cache miss simply repeats (spec.md §4.4 "Failure
// semantics").
func (s *Server) persistArtifact(ctx context.Context, artifactID, storageKey, repoID, name, version string, createdAt int64, repo *models.Repository, data []byte) {
	if err := s.blob.Put(ctx, storageKey, bytes.NewReader(data), int64(len(data))); err != nil {
		s.logger.Warn("artifact blob write failed", "storage_key", storageKey, "error", err)
		return
	}

	row := &models.Artifact{
		ID:         artifactID,
		RepoID:     repoID,
		Name:       name,
		Version:    version,
		StorageKey: storageKey,
		SizeBytes:  int64(len(data)),
		CreatedAt:  createdAt,
	}
	if err := s.db.UpsertArtifact(ctx, row); err != nil {
		s.logger.Warn("artifact upsert failed", "name", name, "version", version, "error", err)
	}

	s.extractSideArtifacts(ctx, visibilityFor(repo), repoID, name, version, data)
	s.bumpDownloadCounter(ctx, artifactID)
}

func (s *Server) bumpDownloadCounter(ctx context.Context, artifactID string) {
	if err := s.jobs.Enqueue(ctx, jobs.ArtifactDownloaded{ArtifactID: artifactID, Ts: s.clock.NowUnix()}); err != nil {
		s.logger.Warn("enqueue artifact_downloaded failed", "artifact_id", artifactID, "error", err)
	}
}

// discoverAndFetchEphemeral implements step 1's on-demand fallback: neither
// an Artifact nor a PackageVersion row exists for this (name, version) at
// all. The bytes are fetched and streamed through without being persisted
// ("graceful race handling" — a concurrent Sync or prior request may still
// be populating the DB).
func (s *Server) discoverAndFetchEphemeral(ctx context.Context, repoID, name, requestedVersion string) (*Result, error) {
	data, xcache, matched, err := s.discoverBytes(ctx, repoID, name, requestedVersion)
	if err != nil {
		return nil, err
	}
	metrics.ArtifactCacheResultTotal.WithLabelValues(strings.ToLower(strings.ReplaceAll(xcache, "-", "_"))).Inc()
	metrics.ArtifactDownloadsTotal.Inc()
	return &Result{
		Body:         io.NopCloser(bytes.NewReader(data)),
		Size:         int64(len(data)),
		ContentType:  "application/zip",
		Filename:     filename(name, matched),
		LastModified: time.Unix(s.clock.NowUnix(), 0).UTC(),
		XCache:       xcache,
		Ephemeral:    true,
	}, nil
}

// discoverBytes tries every active Composer repository (or a single
// explicit one), then the public mirror, for a dist URL matching one of
// requestedVersion's normalized candidates, and fetches it. Shared by the
// ephemeral artifact path and the side-artifact on-demand path.
func (s *Server) discoverBytes(ctx context.Context, repoID, name, requestedVersion string) (data []byte, xcache, matchedVersion string, err error) {
	candidates := pkgversion.NormalizeCandidates(requestedVersion)

	var repos []*models.Repository
	if repoID != "" {
		repo, err := s.db.GetRepository(ctx, repoID)
		if err != nil {
			return nil, "", "", err
		}
		if repo != nil && repo.SourceKind == models.SourceComposer && repo.Status == models.RepoActive {
			repos = []*models.Repository{repo}
		}
	} else {
		all, err := s.db.ListRepositories(ctx)
		if err != nil {
			return nil, "", "", err
		}
		for _, repo := range all {
			if repo.SourceKind == models.SourceComposer && repo.Status == models.RepoActive {
				repos = append(repos, repo)
			}
		}
	}

	for _, repo := range repos {
		distURL, matched, err := s.findDistURL(ctx, repo, repo.URL, name, candidates)
		if err != nil {
			s.logger.Warn("artifact discovery fetch failed", "repo_id", repo.ID, "package", name, "error", err)
			continue
		}
		if matched == "" {
			continue
		}
		data, err := s.fetchBytes(ctx, distURL, repo)
		if err != nil {
			return nil, "", "", err
		}
		return data, "MISS-UPSTREAM", matched, nil
	}

	if s.packagistMirroringEnabled {
		distURL, matched, err := s.findDistURL(ctx, nil, s.packagistBaseURL, name, candidates)
		if err != nil {
			s.logger.Warn("artifact discovery packagist fetch failed", "package", name, "error", err)
		} else if matched != "" {
			data, err := s.fetchBytes(ctx, distURL, nil)
			if err != nil {
				return nil, "", "", err
			}
			return data, "MISS-PACKAGIST", matched, nil
		}
	}

	return nil, "", "", ErrNotFound
}
