package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/songletters/internal/dbx"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// PostgresTier is the primary, authoritative tier.
type PostgresTier struct {
	db  *sql.DB
	rm  repomanager.RepositoryManager
	now func() time.Time
}

func NewPostgresTier(db *sql.DB, rm repomanager.RepositoryManager) *PostgresTier {
	return &PostgresTier{db: db, rm: rm, now: func() time.Time { return time.Now().UTC() }}
}

func (t *PostgresTier) Name() string { return TierPrimary }

func (t *PostgresTier) Get(ctx context.Context, key string) (*models.Record, error) {
	l, err := t.rm.Letters(t.db).GetByLinkID(ctx, key)
	if err != nil {
		return nil, err
	}
	rec := models.NewRecord(l)
	rec.Tier = TierPrimary
	return rec, nil
}

func (t *PostgresTier) Put(ctx context.Context, rec *models.Record) error {
	return t.rm.Letters(t.db).Upsert(ctx, rec.Letter)
}

func (t *PostgresTier) Query(ctx context.Context, q query.Query) ([]*models.Letter, error) {
	return t.rm.Letters(t.db).Select(ctx, q)
}

// Reparent claims the anonymous owner's unlinked letters for the account and
// records the merge in the same transaction.
func (t *PostgresTier) Reparent(ctx context.Context, accountID, anonymousID string) (int64, error) {
	var n int64
	err := dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		at := t.now()
		var err error
		n, err = t.rm.Letters(tx).Reparent(ctx, accountID, anonymousID, at)
		if err != nil || n == 0 {
			return err
		}
		return t.rm.Merges(tx).Create(ctx, &models.MergeLog{
			ID:          uuid.NewString(),
			AccountID:   accountID,
			AnonymousID: anonymousID,
			Reparented:  n,
			MergedAt:    at,
		})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (t *PostgresTier) IncrementViews(ctx context.Context, key string) error {
	return t.rm.Letters(t.db).IncrementViews(ctx, key)
}
