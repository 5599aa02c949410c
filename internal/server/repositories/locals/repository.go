package locals

import (
	"context"

	"github.com/dmitrijs2005/songletters/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, linkID string) (*models.Record, error)
	Put(ctx context.Context, rec *models.Record) error
	ListPending(ctx context.Context) ([]*models.Record, error)
}
