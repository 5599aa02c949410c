package merges

import (
	"context"

	"github.com/dmitrijs2005/songletters/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, entry *models.MergeLog) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.MergeLog, error)
}
