package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkgmirror/core/internal/models"
)

type artifactRow struct {
	ID               string        `db:"id"`
	RepoID           string        `db:"repo_id"`
	Name             string        `db:"name"`
	Version          string        `db:"version"`
	StorageKey       string        `db:"storage_key"`
	SizeBytes        sql.NullInt64 `db:"size_bytes"`
	DownloadCount    int64         `db:"download_count"`
	LastDownloadedAt sql.NullInt64 `db:"last_downloaded_at"`
	CreatedAt        int64         `db:"created_at"`
}

func (row artifactRow) toModel() *models.Artifact {
	return &models.Artifact{
		ID:               row.ID,
		RepoID:           row.RepoID,
		Name:             row.Name,
		Version:          row.Version,
		StorageKey:       row.StorageKey,
		SizeBytes:        row.SizeBytes.Int64,
		DownloadCount:    row.DownloadCount,
		LastDownloadedAt: row.LastDownloadedAt.Int64,
		CreatedAt:        row.CreatedAt,
	}
}

func (s *Store) GetArtifact(ctx context.Context, repoID, name, version string) (*models.Artifact, error) {
	defer observeQuery("select")()
	var row artifactRow
	query := s.db.Rebind(`SELECT * FROM artifacts WHERE repo_id = ? AND name = ? AND version = ?`)
	err := s.db.GetContext(ctx, &row, query, repoID, name, version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get artifact: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) UpsertArtifact(ctx context.Context, a *models.Artifact) error {
	defer observeQuery("upsert")()
	query := s.db.Rebind(`
		INSERT INTO artifacts (id, repo_id, name, version, storage_key, size_bytes, download_count, last_downloaded_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo_id, name, version) DO UPDATE SET
			storage_key = excluded.storage_key,
			size_bytes = excluded.size_bytes
	`)
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.RepoID, a.Name, a.Version, a.StorageKey,
		nullIfZero(a.SizeBytes), a.DownloadCount, nullIfZero(a.LastDownloadedAt), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert artifact: %w", err)
	}
	return nil
}

func (s *Store) IncrementDownloadCount(ctx context.Context, artifactID string, ts int64) error {
	defer observeQuery("update")()
	query := s.db.Rebind(`UPDATE artifacts SET download_count = download_count + 1, last_downloaded_at = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, query, ts, artifactID)
	if err != nil {
		return fmt.Errorf("sqlstore: increment download count: %w", err)
	}
	return nil
}
