// Package locals keeps the on-disk copy of letters used as the last-resort
// read tier. Rows are whole letters serialised as JSON and keyed by link id.
package locals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/dbx"
	"github.com/dmitrijs2005/songletters/internal/server/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, linkID string) (*models.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT link_id, payload, written_at, pending FROM local_letters WHERE link_id = ?`, linkID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get local letter[%s]: %w", linkID, err)
	}
	return rec, nil
}

// Put stores the record unless a newer copy is already present.
func (r *SQLiteRepository) Put(ctx context.Context, rec *models.Record) error {
	payload, err := json.Marshal(rec.Letter)
	if err != nil {
		return fmt.Errorf("failed to encode local letter[%s]: %w", rec.Key, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO local_letters (link_id, letter_id, payload, written_at, pending) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(link_id) DO UPDATE SET
			letter_id = excluded.letter_id,
			payload = excluded.payload,
			written_at = excluded.written_at,
			pending = excluded.pending
		WHERE excluded.written_at >= local_letters.written_at
	`, rec.Key, rec.Letter.ID, payload, rec.WrittenAt.UnixNano(), boolToInt(rec.Pending))
	if err != nil {
		return fmt.Errorf("failed to put local letter[%s]: %w", rec.Key, err)
	}
	return nil
}

// ListPending returns records that never reached a remote tier, oldest first.
func (r *SQLiteRepository) ListPending(ctx context.Context) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT link_id, payload, written_at, pending FROM local_letters WHERE pending = 1 ORDER BY written_at, link_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending local letters: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan local letter row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate local letter rows: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		rec     models.Record
		payload []byte
		written int64
		pending int
	)
	if err := s.Scan(&rec.Key, &payload, &written, &pending); err != nil {
		return nil, err
	}
	var l models.Letter
	if err := json.Unmarshal(payload, &l); err != nil {
		return nil, err
	}
	rec.Letter = &l
	rec.WrittenAt = time.Unix(0, written).UTC()
	rec.Pending = pending != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
