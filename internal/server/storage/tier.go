// Package storage routes letter reads and writes through an ordered chain
// of tiers: the primary Postgres store, a proxy reaching the same store
// through a peer server, a bounded in-process cache and a local persistent
// fallback. Tier-transition failures stay inside the router; callers only
// see a Degraded flag unless every tier is exhausted.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
)

const (
	TierPrimary = "primary"
	TierProxy   = "proxy"
	TierCache   = "cache"
	TierLocal   = "local"
)

// DefaultTierTimeout bounds every single tier attempt.
const DefaultTierTimeout = 2 * time.Second

// Tier is the key-lookup contract every backend supports.
// Get returns common.ErrorNotFound when the key is absent.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (*models.Record, error)
	Put(ctx context.Context, rec *models.Record) error
}

// Querier is implemented by tiers able to evaluate a query descriptor.
type Querier interface {
	Query(ctx context.Context, q query.Query) ([]*models.Letter, error)
}

type Reparenter interface {
	Reparent(ctx context.Context, accountID, anonymousID string) (int64, error)
}

type ViewCounter interface {
	IncrementViews(ctx context.Context, key string) error
}

// PendingLister exposes records that have not reached a remote tier yet.
type PendingLister interface {
	ListPending(ctx context.Context) ([]*models.Record, error)
}

// RemoteTier is a tier backed by the authoritative store.
type RemoteTier interface {
	Tier
	Querier
	Reparenter
	ViewCounter
}

// LocalTier is the durable last-resort tier.
type LocalTier interface {
	Tier
	PendingLister
}

// terminal reports errors that must not fall through to the next tier:
// the store answered, it just said no.
func terminal(err error) bool {
	return errors.Is(err, common.ErrWriteConflict) ||
		errors.Is(err, common.ErrorValidation) ||
		errors.Is(err, common.ErrQueryUnsupported)
}
