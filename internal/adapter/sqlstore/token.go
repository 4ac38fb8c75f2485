package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkgmirror/core/internal/models"
)

type tokenRow struct {
	ID           string        `db:"id"`
	Description  string        `db:"description"`
	Hash         string        `db:"hash"`
	Permissions  string        `db:"permissions"`
	RateLimitMax int64         `db:"rate_limit_max"`
	CreatedAt    int64         `db:"created_at"`
	ExpiresAt    sql.NullInt64 `db:"expires_at"`
	LastUsedAt   sql.NullInt64 `db:"last_used_at"`
}

func (row tokenRow) toModel() *models.Token {
	t := &models.Token{
		ID:           row.ID,
		Description:  row.Description,
		Hash:         row.Hash,
		Permissions:  models.Permission(row.Permissions),
		RateLimitMax: row.RateLimitMax,
		CreatedAt:    row.CreatedAt,
	}
	if row.ExpiresAt.Valid {
		v := row.ExpiresAt.Int64
		t.ExpiresAt = &v
	}
	if row.LastUsedAt.Valid {
		v := row.LastUsedAt.Int64
		t.LastUsedAt = &v
	}
	return t
}

func (s *Store) GetTokenByHash(ctx context.Context, hash string) (*models.Token, error) {
	defer observeQuery("select")()
	var row tokenRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM tokens WHERE hash = ?`), hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get token by hash: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) ListTokens(ctx context.Context) ([]*models.Token, error) {
	defer observeQuery("select")()
	var rows []tokenRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tokens ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("sqlstore: list tokens: %w", err)
	}
	out := make([]*models.Token, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *Store) InsertToken(ctx context.Context, t *models.Token) error {
	defer observeQuery("insert")()
	query := s.db.Rebind(`
		INSERT INTO tokens (id, description, hash, permissions, rate_limit_max, created_at, expires_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Description, t.Hash, string(t.Permissions), t.RateLimitMax, t.CreatedAt,
		nullableInt64(t.ExpiresAt), nullableInt64(t.LastUsedAt))
	if err != nil {
		return fmt.Errorf("sqlstore: insert token: %w", err)
	}
	return nil
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	defer observeQuery("delete")()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tokens WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete token: %w", err)
	}
	return nil
}

func (s *Store) TouchToken(ctx context.Context, id string, lastUsedAt int64) error {
	defer observeQuery("update")()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE tokens SET last_used_at = ? WHERE id = ?`), lastUsedAt, id)
	if err != nil {
		return fmt.Errorf("sqlstore: touch token: %w", err)
	}
	return nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
