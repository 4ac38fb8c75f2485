package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/ports"
	"github.com/pkgmirror/core/internal/storagekey"
)

// GetSideArtifact implements spec.md §4.6's side-artifact route: return the
// cached README/CHANGELOG bytes, 404 if the negative-cache sentinel is
// present, or perform an on-demand artifact fetch-and-extract if neither the
// side artifact nor the parent zip is cached yet.
func (s *Server) GetSideArtifact(ctx context.Context, repoID, name, requestedVersion string, side storagekey.SideKind) (*Result, error) {
	pv, err := s.db.FindPackageVersion(ctx, name, requestedVersion)
	if err != nil {
		return nil, err
	}
	if repoID == "" && pv != nil {
		repoID = pv.RepoID
	}

	if repoID == "" {
		data, _, _, err := s.discoverBytes(ctx, repoID, name, requestedVersion)
		if err != nil {
			return nil, err
		}
		return extractEphemeralSide(data, side)
	}

	repo, err := s.db.GetRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	vis := visibilityFor(repo)
	key := storagekey.Build(vis, repoID, name, requestedVersion, side)

	if result, ok, err := s.sideFromBlob(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return result, nil
	}

	data, err := s.obtainArtifactBytes(ctx, repo, repoID, pv, name, requestedVersion)
	if err != nil {
		return nil, err
	}
	s.extractSideArtifacts(ctx, vis, repoID, name, requestedVersion, data)

	result, ok, err := s.sideFromBlob(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		// extractSideArtifacts writes the key (content or sentinel) unless
		// the zip could not be parsed, the entry could not be read, or the
		// write itself failed.
		return nil, ErrUpstream
	}
	return result, nil
}

func (s *Server) sideFromBlob(ctx context.Context, key string) (*Result, bool, error) {
	rc, size, err := s.blob.Get(ctx, key)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, err
	}
	if string(content) == storagekey.NotFoundSentinel {
		return nil, true, ErrNotFound
	}
	return &Result{
		Body:         io.NopCloser(bytes.NewReader(content)),
		Size:         int64(len(content)),
		ContentType:  "text/markdown; charset=utf-8",
		LastModified: time.Unix(s.clock.NowUnix(), 0).UTC(),
	}, true, nil
}

// obtainArtifactBytes gets the parent zip's bytes for extraction purposes
// only: from the BlobStore if already mirrored, else by fetching from the
// known source_dist_url, else by on-demand discovery scoped to this one
// repository.
func (s *Server) obtainArtifactBytes(ctx context.Context, repo *models.Repository, repoID string, pv *models.PackageVersion, name, version string) ([]byte, error) {
	if artifactRow, err := s.db.GetArtifact(ctx, repoID, name, version); err != nil {
		return nil, err
	} else if artifactRow != nil {
		rc, _, err := s.blob.Get(ctx, artifactRow.StorageKey)
		if err == nil {
			defer rc.Close()
			return io.ReadAll(rc)
		}
		if !errors.Is(err, ports.ErrNotFound) {
			return nil, err
		}
	}

	if pv != nil && pv.SourceDistURL != "" {
		return s.fetchBytes(ctx, pv.SourceDistURL, repo)
	}

	data, _, _, err := s.discoverBytes(ctx, repoID, name, version)
	return data, err
}

// extractEphemeralSide handles the fully-unknown-repository case: the bytes
// were fetched ephemerally (no stable storage key exists to cache against),
// so the requested side content is located in memory and returned without
// any persistence.
func extractEphemeralSide(data []byte, side storagekey.SideKind) (*Result, error) {
	preferred, fallback := readmeNames, readmeFallbackNames
	if side == storagekey.CHANGELOG {
		preferred, fallback = changelogNames, changelogFallbackNames
	}

	r, err := newZipReader(data)
	if err != nil {
		return nil, err
	}
	f := findFirstMatch(r.File, preferred, fallback)
	if f == nil {
		return nil, ErrNotFound
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return &Result{
		Body:        io.NopCloser(bytes.NewReader(content)),
		Size:        int64(len(content)),
		ContentType: "text/markdown; charset=utf-8",
		Ephemeral:   true,
	}, nil
}
