package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkgmirror/core/internal/models"
)

type repositoryRow struct {
	ID                    string         `db:"id"`
	URL                   string         `db:"url"`
	SourceKind            string         `db:"source_kind"`
	CredentialKind        string         `db:"credential_kind"`
	CredentialsCiphertext []byte         `db:"credentials_ciphertext"`
	Filter                sql.NullString `db:"filter"`
	Status                string         `db:"status"`
	ErrorMessage          sql.NullString `db:"error_message"`
	LastSyncedAt          sql.NullInt64  `db:"last_synced_at"`
	CreatedAt             int64          `db:"created_at"`
}

func (row repositoryRow) toModel() *models.Repository {
	return &models.Repository{
		ID:                    row.ID,
		URL:                   row.URL,
		SourceKind:            models.SourceKind(row.SourceKind),
		CredentialKind:        models.CredentialKind(row.CredentialKind),
		CredentialsCiphertext: row.CredentialsCiphertext,
		Filter:                row.Filter.String,
		Status:                models.RepositoryStatus(row.Status),
		ErrorMessage:          row.ErrorMessage.String,
		LastSyncedAt:          row.LastSyncedAt.Int64,
		CreatedAt:             row.CreatedAt,
	}
}

func (s *Store) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	defer observeQuery("select")()
	var row repositoryRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM repositories WHERE id = ?`), id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get repository: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	defer observeQuery("select")()
	var rows []repositoryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM repositories ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("sqlstore: list repositories: %w", err)
	}
	out := make([]*models.Repository, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *Store) UpsertRepository(ctx context.Context, r *models.Repository) error {
	defer observeQuery("upsert")()
	query := s.db.Rebind(`
		INSERT INTO repositories (id, url, source_kind, credential_kind, credentials_ciphertext, filter, status, error_message, last_synced_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			url = excluded.url,
			source_kind = excluded.source_kind,
			credential_kind = excluded.credential_kind,
			credentials_ciphertext = excluded.credentials_ciphertext,
			filter = excluded.filter,
			status = excluded.status,
			error_message = excluded.error_message,
			last_synced_at = excluded.last_synced_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.URL, string(r.SourceKind), string(r.CredentialKind), r.CredentialsCiphertext,
		nullIfEmpty(r.Filter), string(r.Status), nullIfEmpty(r.ErrorMessage), nullIfZero(r.LastSyncedAt), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert repository: %w", err)
	}
	return nil
}

func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	defer observeQuery("delete")()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM repositories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete repository: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
