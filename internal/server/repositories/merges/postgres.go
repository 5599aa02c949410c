// Package merges stores the audit trail of ownership merges.
package merges

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/songletters/internal/dbx"
	"github.com/dmitrijs2005/songletters/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.MergeLog) error {
	query := `
		INSERT INTO merge_log (id, account_id, anonymous_id, reparented, merged_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, m.ID, m.AccountID, m.AnonymousID, m.Reparented, m.MergedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByAccount returns merges for the account, oldest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.MergeLog, error) {
	query := `
		SELECT id, account_id, anonymous_id, reparented, merged_at FROM merge_log
		WHERE account_id = $1 ORDER BY merged_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to select merges: %w", err)
	}
	defer rows.Close()

	var result []*models.MergeLog
	for rows.Next() {
		var m models.MergeLog
		if err := rows.Scan(&m.ID, &m.AccountID, &m.AnonymousID, &m.Reparented, &m.MergedAt); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
