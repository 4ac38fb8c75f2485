package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkgmirror/core/internal/models"
)

type packageVersionRow struct {
	ID            string         `db:"id"`
	RepoID        string         `db:"repo_id"`
	Name          string         `db:"name"`
	Version       string         `db:"version"`
	ProxyDistURL  string         `db:"proxy_dist_url"`
	SourceDistURL sql.NullString `db:"source_dist_url"`
	DistReference sql.NullString `db:"dist_reference"`
	MetadataJSON  string         `db:"metadata_json"`
	Description   sql.NullString `db:"description"`
	LicenseJSON   sql.NullString `db:"license_json"`
	Type          sql.NullString `db:"type"`
	Homepage      sql.NullString `db:"homepage"`
	ReleasedAt    sql.NullInt64  `db:"released_at"`
	CreatedAt     int64          `db:"created_at"`
}

func (row packageVersionRow) toModel() *models.PackageVersion {
	return &models.PackageVersion{
		ID:            row.ID,
		RepoID:        row.RepoID,
		Name:          row.Name,
		Version:       row.Version,
		ProxyDistURL:  row.ProxyDistURL,
		SourceDistURL: row.SourceDistURL.String,
		DistReference: row.DistReference.String,
		MetadataJSON:  row.MetadataJSON,
		Description:   row.Description.String,
		LicenseJSON:   row.LicenseJSON.String,
		Type:          row.Type.String,
		Homepage:      row.Homepage.String,
		ReleasedAt:    row.ReleasedAt.Int64,
		CreatedAt:     row.CreatedAt,
	}
}

func (s *Store) GetPackageVersions(ctx context.Context, name string) ([]*models.PackageVersion, error) {
	defer observeQuery("select")()
	var rows []packageVersionRow
	query := s.db.Rebind(`SELECT * FROM packages WHERE name = ? ORDER BY created_at ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, name); err != nil {
		return nil, fmt.Errorf("sqlstore: get package versions: %w", err)
	}
	out := make([]*models.PackageVersion, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *Store) ListAllPackageNames(ctx context.Context) ([]string, error) {
	defer observeQuery("select")()
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT DISTINCT name FROM packages ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("sqlstore: list package names: %w", err)
	}
	return names, nil
}

func (s *Store) UpsertPackageVersion(ctx context.Context, v *models.PackageVersion) error {
	defer observeQuery("upsert")()
	query := s.db.Rebind(`
		INSERT INTO packages (
			id, repo_id, name, version, proxy_dist_url, source_dist_url, dist_reference,
			metadata_json, description, license_json, type, homepage, released_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, version) DO UPDATE SET
			repo_id = excluded.repo_id,
			proxy_dist_url = excluded.proxy_dist_url,
			source_dist_url = excluded.source_dist_url,
			dist_reference = excluded.dist_reference,
			metadata_json = excluded.metadata_json,
			description = excluded.description,
			license_json = excluded.license_json,
			type = excluded.type,
			homepage = excluded.homepage,
			released_at = excluded.released_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		v.ID, v.RepoID, v.Name, v.Version, v.ProxyDistURL,
		nullIfEmpty(v.SourceDistURL), nullIfEmpty(v.DistReference), v.MetadataJSON,
		nullIfEmpty(v.Description), nullIfEmpty(v.LicenseJSON), nullIfEmpty(v.Type),
		nullIfEmpty(v.Homepage), nullIfZero(v.ReleasedAt), v.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert package version: %w", err)
	}
	return nil
}

func (s *Store) FindPackageVersion(ctx context.Context, name, version string) (*models.PackageVersion, error) {
	defer observeQuery("select")()
	var row packageVersionRow
	query := s.db.Rebind(`SELECT * FROM packages WHERE name = ? AND version = ?`)
	err := s.db.GetContext(ctx, &row, query, name, version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find package version: %w", err)
	}
	return row.toModel(), nil
}
