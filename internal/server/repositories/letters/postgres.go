// Package letters provides the PostgreSQL-backed letter repository used by
// the primary storage tier.
package letters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/dbx"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const letterColumns = `id, link_id, owner_account_id, owner_anonymous_id, recipient_name, message,
	song_title, song_artist, song_cover_url, song_external_url, is_public, view_count, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts the letter or applies it over the stored row when it is not
// older (last write wins by updated_at). Owners are only ever filled in,
// never cleared, and view_count never decreases. A link id held by a
// different letter yields ErrWriteConflict.
func (r *PostgresRepository) Upsert(ctx context.Context, l *models.Letter) error {
	query := `
		INSERT INTO letters (` + letterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (link_id)
		DO UPDATE SET
			owner_account_id = COALESCE(letters.owner_account_id, EXCLUDED.owner_account_id),
			owner_anonymous_id = COALESCE(letters.owner_anonymous_id, EXCLUDED.owner_anonymous_id),
			recipient_name = EXCLUDED.recipient_name,
			message = EXCLUDED.message,
			song_title = EXCLUDED.song_title,
			song_artist = EXCLUDED.song_artist,
			song_cover_url = EXCLUDED.song_cover_url,
			song_external_url = EXCLUDED.song_external_url,
			is_public = EXCLUDED.is_public,
			view_count = GREATEST(letters.view_count, EXCLUDED.view_count),
			updated_at = EXCLUDED.updated_at
			WHERE letters.id = EXCLUDED.id AND letters.updated_at <= EXCLUDED.updated_at;
	`
	res, err := r.db.ExecContext(ctx, query,
		l.ID, l.LinkID, nullable(l.OwnerAccountID), nullable(l.OwnerAnonymousID),
		l.RecipientName, l.Message,
		l.Song.Title, l.Song.Artist, l.Song.CoverURL, l.Song.ExternalURL,
		l.IsPublic, l.ViewCount, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", common.ErrWriteConflict, pgErr.ConstraintName)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		// either another letter owns the link id or the stored row is newer
		var existing string
		err := r.db.QueryRowContext(ctx, `SELECT id FROM letters WHERE link_id = $1`, l.LinkID).Scan(&existing)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if existing != l.ID {
			return common.ErrWriteConflict
		}
		return nil
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// GetByLinkID returns common.ErrorNotFound when no letter has the link id.
func (r *PostgresRepository) GetByLinkID(ctx context.Context, linkID string) (*models.Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters WHERE link_id = $1`

	l, err := scanLetter(r.db.QueryRowContext(ctx, query, linkID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

// Select runs a query descriptor against the letters table.
func (r *PostgresRepository) Select(ctx context.Context, q query.Query) ([]*models.Letter, error) {
	stmt, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select letters: %w", err)
	}
	defer rows.Close()

	result := []*models.Letter{}
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Reparent sets owner_account_id on every letter of the anonymous owner that
// is not yet tied to an account. Rows already claimed are left alone, so a
// repeated or concurrent call affects zero rows.
func (r *PostgresRepository) Reparent(ctx context.Context, accountID, anonymousID string, at time.Time) (int64, error) {
	query := `
		UPDATE letters SET owner_account_id = $1, updated_at = $3
		WHERE owner_anonymous_id = $2 AND owner_account_id IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, accountID, anonymousID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// IncrementViews bumps view_count by one.
func (r *PostgresRepository) IncrementViews(ctx context.Context, linkID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE letters SET view_count = view_count + 1 WHERE link_id = $1`, linkID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLetter(s scanner) (*models.Letter, error) {
	var (
		l          models.Letter
		acct, anon sql.NullString
	)
	if err := s.Scan(
		&l.ID, &l.LinkID, &acct, &anon, &l.RecipientName, &l.Message,
		&l.Song.Title, &l.Song.Artist, &l.Song.CoverURL, &l.Song.ExternalURL,
		&l.IsPublic, &l.ViewCount, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if acct.Valid {
		l.OwnerAccountID = &acct.String
	}
	if anon.Valid {
		l.OwnerAnonymousID = &anon.String
	}
	return &l, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
