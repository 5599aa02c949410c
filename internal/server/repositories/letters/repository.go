package letters

import (
	"context"
	"time"

	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
)

type Repository interface {
	Upsert(ctx context.Context, letter *models.Letter) error
	GetByLinkID(ctx context.Context, linkID string) (*models.Letter, error)
	Select(ctx context.Context, q query.Query) ([]*models.Letter, error)
	Reparent(ctx context.Context, accountID, anonymousID string, at time.Time) (int64, error)
	IncrementViews(ctx context.Context, linkID string) error
}
