package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
)

// ReadResult is a record plus where it came from. Degraded is set whenever
// the primary tier did not answer.
type ReadResult struct {
	Record   *models.Record
	Tier     string
	Degraded bool
}

type WriteResult struct {
	Tier     string
	Degraded bool
	// Pending means the write only reached process-local storage.
	Pending bool
}

type QueryResult struct {
	Letters  []*models.Letter
	Tier     string
	Degraded bool
}

type ReparentResult struct {
	Reparented int64
	Tier       string
	Degraded   bool
}

// Router walks the tier chain. Remote tiers are tried in order; the cache
// and the local tier only serve key lookups.
type Router struct {
	remotes []RemoteTier
	cache   *CacheTier
	local   LocalTier
	timeout time.Duration
	logger  logging.Logger
	now     func() time.Time
}

// NewRouter builds a router over remotes in decreasing preference. Nil
// remotes and a nil local tier are skipped.
func NewRouter(remotes []RemoteTier, cache *CacheTier, local LocalTier, timeout time.Duration, logger logging.Logger) *Router {
	r := &Router{
		cache:   cache,
		local:   local,
		timeout: timeout,
		logger:  logger.With("module", "storage"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, t := range remotes {
		if t != nil {
			r.remotes = append(r.remotes, t)
		}
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTierTimeout
	}
	return r
}

// attempt runs op against one tier under its own deadline. The caller's
// cancellation is not propagated: a dispatched call is left to finish.
func (r *Router) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	return op(ctx)
}

// Read returns the record for key from the first tier that has it.
//
// A NotFound answer from a remote tier is authoritative: lower tiers are
// then consulted only for pending records, which the store cannot know yet.
func (r *Router) Read(ctx context.Context, key string) (*ReadResult, error) {
	remoteMiss := false
	for i, t := range r.remotes {
		var rec *models.Record
		err := r.attempt(ctx, func(ctx context.Context) error {
			var err error
			rec, err = t.Get(ctx, key)
			return err
		})
		if err == nil {
			rec.Pending = false
			r.supersede(ctx, rec, false)
			return &ReadResult{Record: rec, Tier: t.Name(), Degraded: i > 0}, nil
		}
		if errors.Is(err, common.ErrorNotFound) {
			remoteMiss = true
			break
		}
		r.logger.Warn(ctx, "tier read failed, falling through", "tier", t.Name(), "key", key, "err", err)
	}

	for _, t := range r.fallbacks() {
		var rec *models.Record
		err := r.attempt(ctx, func(ctx context.Context) error {
			var err error
			rec, err = t.Get(ctx, key)
			return err
		})
		if err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				r.logger.Warn(ctx, "tier read failed, falling through", "tier", t.Name(), "key", key, "err", err)
			}
			continue
		}
		if remoteMiss && !rec.Pending {
			continue
		}
		r.logger.Info(ctx, "degraded read", "tier", t.Name(), "key", key)
		return &ReadResult{Record: rec, Tier: t.Name(), Degraded: true}, nil
	}

	if remoteMiss || len(r.remotes) == 0 {
		return nil, common.ErrorNotFound
	}
	return nil, fmt.Errorf("%w: read %s", common.ErrBackendUnavailable, key)
}

// Write stores the letter in the highest reachable remote tier. When none
// is reachable it lands in the cache marked pending. Every successful write
// is mirrored to the local tier.
func (r *Router) Write(ctx context.Context, l *models.Letter) (*WriteResult, error) {
	rec := models.NewRecord(l.Clone())

	for i, t := range r.remotes {
		err := r.attempt(ctx, func(ctx context.Context) error { return t.Put(ctx, rec) })
		if err == nil {
			rec.Tier, rec.Pending = t.Name(), false
			r.supersede(ctx, rec, true)
			return &WriteResult{Tier: t.Name(), Degraded: i > 0}, nil
		}
		if terminal(err) {
			return nil, err
		}
		r.logger.Warn(ctx, "tier write failed, falling through", "tier", t.Name(), "key", rec.Key, "err", err)
	}

	if r.cache == nil {
		return nil, fmt.Errorf("%w: write %s", common.ErrBackendUnavailable, rec.Key)
	}
	rec.Tier, rec.Pending = TierCache, true
	if _, err := r.cacheUpsert(ctx, rec); err != nil {
		return nil, err
	}
	r.mirror(ctx, rec)
	r.logger.Info(ctx, "write kept pending in cache", "key", rec.Key)
	return &WriteResult{Tier: TierCache, Degraded: true, Pending: true}, nil
}

// Query evaluates q on the first tier that can. Tiers without query support
// answer ErrQueryUnsupported rather than partial data.
func (r *Router) Query(ctx context.Context, q query.Query) (*QueryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	for i, t := range r.remotes {
		var letters []*models.Letter
		err := r.attempt(ctx, func(ctx context.Context) error {
			var err error
			letters, err = t.Query(ctx, q)
			return err
		})
		if err == nil {
			return &QueryResult{Letters: letters, Tier: t.Name(), Degraded: i > 0}, nil
		}
		if terminal(err) {
			return nil, err
		}
		r.logger.Warn(ctx, "tier query failed, falling through", "tier", t.Name(), "err", err)
	}
	for _, t := range r.fallbacks() {
		if _, ok := t.(Querier); !ok {
			return nil, fmt.Errorf("%w: %s tier serves key lookups only", common.ErrQueryUnsupported, t.Name())
		}
	}
	return nil, fmt.Errorf("%w: query", common.ErrBackendUnavailable)
}

// Reparent runs an ownership merge on the first reachable remote tier and
// then applies it to pending copies in the cache and the local tier, so they
// reach the store already linked. Nothing changes when every remote tier
// fails.
func (r *Router) Reparent(ctx context.Context, accountID, anonymousID string) (*ReparentResult, error) {
	for i, t := range r.remotes {
		var n int64
		err := r.attempt(ctx, func(ctx context.Context) error {
			var err error
			n, err = t.Reparent(ctx, accountID, anonymousID)
			return err
		})
		if err == nil {
			n += r.reparentPending(ctx, accountID, anonymousID)
			return &ReparentResult{Reparented: n, Tier: t.Name(), Degraded: i > 0}, nil
		}
		if terminal(err) {
			return nil, err
		}
		r.logger.Warn(ctx, "tier reparent failed, falling through", "tier", t.Name(), "err", err)
	}
	return nil, fmt.Errorf("%w: reparent", common.ErrBackendUnavailable)
}

// reparentPending claims pending letters that only the fallback tiers hold.
// The local tier outlives the cache, so after a restart it may be the only
// place an anonymous letter waits for Reconcile.
func (r *Router) reparentPending(ctx context.Context, accountID, anonymousID string) int64 {
	now := r.now()
	claimed := map[string]bool{}
	if r.cache != nil {
		for _, rec := range r.cache.Reparent(accountID, anonymousID, now) {
			claimed[rec.Key] = true
			r.mirror(ctx, rec)
		}
	}
	if r.local == nil {
		return int64(len(claimed))
	}

	var pending []*models.Record
	err := r.attempt(ctx, func(ctx context.Context) error {
		var err error
		pending, err = r.local.ListPending(ctx)
		return err
	})
	if err != nil {
		r.logger.Warn(ctx, "listing local pending records failed", "err", err)
		return int64(len(claimed))
	}
	for _, rec := range pending {
		l := rec.Letter
		if claimed[rec.Key] || l.OwnerAccountID != nil || l.OwnerAnonymousID == nil || *l.OwnerAnonymousID != anonymousID {
			continue
		}
		acct := accountID
		l.OwnerAccountID = &acct
		l.UpdatedAt = now
		rec.WrittenAt = now
		claimed[rec.Key] = true
		r.mirror(ctx, rec)
		if r.cache != nil {
			if _, err := r.cacheUpsert(ctx, rec); err != nil {
				r.logger.Warn(ctx, "cache refresh failed", "key", rec.Key, "err", err)
			}
		}
	}
	return int64(len(claimed))
}

// IncrementViews bumps the view counter on the first reachable remote tier.
func (r *Router) IncrementViews(ctx context.Context, key string) error {
	for _, t := range r.remotes {
		err := r.attempt(ctx, func(ctx context.Context) error { return t.IncrementViews(ctx, key) })
		if err == nil || errors.Is(err, common.ErrorNotFound) {
			return err
		}
		r.logger.Warn(ctx, "tier view count failed, falling through", "tier", t.Name(), "key", key, "err", err)
	}
	return fmt.Errorf("%w: views %s", common.ErrBackendUnavailable, key)
}

// Reconcile replays pending records to the highest reachable remote tier.
// It returns how many records were flushed. A link id claimed by another
// letter in the meantime cannot be flushed; the record is kept local and
// logged.
func (r *Router) Reconcile(ctx context.Context) (int, error) {
	pending := map[string]*models.Record{}
	for _, t := range r.fallbacks() {
		lister, ok := t.(PendingLister)
		if !ok {
			continue
		}
		var recs []*models.Record
		err := r.attempt(ctx, func(ctx context.Context) error {
			var err error
			recs, err = lister.ListPending(ctx)
			return err
		})
		if err != nil {
			r.logger.Warn(ctx, "listing pending records failed", "tier", t.Name(), "err", err)
			continue
		}
		for _, rec := range recs {
			if cur, ok := pending[rec.Key]; !ok || rec.NewerThan(cur) {
				pending[rec.Key] = rec
			}
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if len(r.remotes) == 0 {
		return 0, fmt.Errorf("%w: reconcile", common.ErrBackendUnavailable)
	}

	flushed := 0
	for key, rec := range pending {
		if err := ctx.Err(); err != nil {
			return flushed, err
		}
		stored := false
		for _, t := range r.remotes {
			err := r.attempt(ctx, func(ctx context.Context) error { return t.Put(ctx, rec) })
			if err == nil {
				rec.Tier, rec.Pending = t.Name(), false
				r.supersede(ctx, rec, true)
				stored = true
				flushed++
				break
			}
			if errors.Is(err, common.ErrWriteConflict) {
				r.logger.Error(ctx, "pending letter lost its link id, keeping it local", "key", key, "letter", rec.Letter.ID)
				rec.Pending = false
				r.mirror(ctx, rec)
				stored = true
				break
			}
			r.logger.Warn(ctx, "reconcile write failed", "tier", t.Name(), "key", key, "err", err)
		}
		if !stored {
			return flushed, fmt.Errorf("%w: reconcile", common.ErrBackendUnavailable)
		}
	}
	return flushed, nil
}

func (r *Router) fallbacks() []Tier {
	var out []Tier
	if r.cache != nil {
		out = append(out, r.cache)
	}
	if r.local != nil {
		out = append(out, r.local)
	}
	return out
}

// supersede replaces lower-tier copies with a record that a remote tier
// accepted. Last write wins by WrittenAt, so a newer pending copy survives
// until Reconcile flushes it.
func (r *Router) supersede(ctx context.Context, rec *models.Record, mirror bool) {
	if r.cache != nil {
		if _, err := r.cacheUpsert(ctx, rec); err != nil {
			r.logger.Warn(ctx, "cache refresh failed", "key", rec.Key, "err", err)
		}
	}
	if mirror {
		r.mirror(ctx, rec)
	}
}

// cacheUpsert stores rec in the cache. With a local tier behind it the cache
// may evict a pending record, which then survives only in that tier.
func (r *Router) cacheUpsert(ctx context.Context, rec *models.Record) (bool, error) {
	if r.local == nil {
		return r.cache.Upsert(rec)
	}
	ok, evicted, err := r.cache.UpsertSpilling(rec)
	if evicted != nil {
		r.logger.Error(ctx, "pending letter evicted from cache, local tier holds the only copy", "key", evicted.Key, "letter", evicted.Letter.ID)
	}
	return ok, err
}

// mirror copies rec into the local tier. Failures only cost read availability.
func (r *Router) mirror(ctx context.Context, rec *models.Record) {
	if r.local == nil {
		return
	}
	err := r.attempt(ctx, func(ctx context.Context) error { return r.local.Put(ctx, rec) })
	if err != nil {
		r.logger.Warn(ctx, "local mirror failed", "key", rec.Key, "err", err)
	}
}
