package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConn = errors.New("dial tcp: connection refused")

type chain struct {
	primary *memRemote
	proxy   *memRemote
	cache   *CacheTier
	local   *memLocal
	router  *Router
}

func newChain(t *testing.T) *chain {
	t.Helper()
	store := newMemStore()
	c := &chain{
		primary: newMemRemote(TierPrimary, store),
		proxy:   newMemRemote(TierProxy, store),
		cache:   NewCacheTier(16),
		local:   newMemLocal(),
	}
	c.router = NewRouter([]RemoteTier{c.primary, c.proxy}, c.cache, c.local, 50*time.Millisecond, logging.Nop())
	return c
}

func TestRouter_WritePrimary(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	l := testLetter("l1", "k1", time.Now().UTC())

	res, err := c.router.Write(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, &WriteResult{Tier: TierPrimary}, res)

	read, err := c.router.Read(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, read.Degraded)
	assert.Equal(t, TierPrimary, read.Tier)

	// mirrored to the local tier, not pending
	mirrored, err := c.local.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, mirrored.Pending)
}

func TestRouter_PrimaryDownUsesProxy(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	c.primary.fail(errConn)

	res, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, TierProxy, res.Tier)
	assert.True(t, res.Degraded)
	assert.False(t, res.Pending)

	read, err := c.router.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, TierProxy, read.Tier)
	assert.True(t, read.Degraded)
}

func TestRouter_AllRemotesDownFallsToCache(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	c.primary.fail(errConn)
	c.proxy.fail(errConn)

	l := testLetter("l1", "k1", time.Now().UTC())
	res, err := c.router.Write(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, &WriteResult{Tier: TierCache, Degraded: true, Pending: true}, res)

	read, err := c.router.Read(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, read.Degraded)
	assert.Equal(t, TierCache, read.Tier)
	assert.Equal(t, l.Message, read.Record.Letter.Message)
	assert.True(t, read.Record.Pending)

	local, err := c.local.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, local.Pending)
}

func TestRouter_LocalServesAfterRestart(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	_, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)

	// a fresh process has an empty cache
	c.primary.fail(errConn)
	c.proxy.fail(errConn)
	r := NewRouter([]RemoteTier{c.primary, c.proxy}, NewCacheTier(4), c.local, 50*time.Millisecond, logging.Nop())

	read, err := r.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, TierLocal, read.Tier)
	assert.True(t, read.Degraded)
}

func TestRouter_ReadNotFound(t *testing.T) {
	c := newChain(t)
	_, err := c.router.Read(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRouter_ReadUnavailable(t *testing.T) {
	c := newChain(t)
	c.primary.fail(errConn)
	c.proxy.fail(errConn)
	_, err := c.router.Read(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrBackendUnavailable)
}

func TestRouter_RemoteMissIgnoresStaleLowerCopies(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	stale := models.NewRecord(testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, c.local.Put(ctx, stale))

	_, err := c.router.Read(ctx, "k1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	pending := stale.Clone()
	pending.Pending = true
	pending.WrittenAt = pending.WrittenAt.Add(time.Second)
	require.NoError(t, c.local.Put(ctx, pending))

	read, err := c.router.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, TierLocal, read.Tier)
}

func TestRouter_HigherTierSupersedesLowerCopy(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	c.primary.fail(errConn)
	c.proxy.fail(errConn)
	_, err := c.router.Write(ctx, testLetter("l1", "k1", t0))
	require.NoError(t, err)

	c.primary.fail(nil)
	c.proxy.fail(nil)
	updated := testLetter("l1", "k1", t0.Add(time.Minute))
	updated.Message = "a later message that replaced it"
	_, err = c.router.Write(ctx, updated)
	require.NoError(t, err)

	cached, err := c.cache.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, updated.Message, cached.Letter.Message)
	assert.False(t, cached.Pending)

	local, err := c.local.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, updated.Message, local.Letter.Message)
	assert.False(t, local.Pending)
}

func TestRouter_WriteConflictIsNotAFallthrough(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	_, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)

	_, err = c.router.Write(ctx, testLetter("l2", "k1", time.Now().UTC()))
	require.ErrorIs(t, err, common.ErrWriteConflict)
	assert.Equal(t, 2, c.primary.calls)
	assert.Equal(t, 0, c.proxy.calls)
}

func TestRouter_HungPrimaryTimesOut(t *testing.T) {
	c := newChain(t)
	c.primary.hang = true

	start := time.Now()
	res, err := c.router.Write(context.Background(), testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, TierProxy, res.Tier)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRouter_CallerCancellationDoesNotAbortTier(t *testing.T) {
	c := newChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, TierPrimary, res.Tier)
}

func TestRouter_QueryDegradedAndUnsupported(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	_, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)

	q := query.Where(query.Eq(query.FieldIsPublic, true))
	res, err := c.router.Query(ctx, q)
	require.NoError(t, err)
	assert.Len(t, res.Letters, 1)
	assert.False(t, res.Degraded)

	c.primary.fail(errConn)
	res, err = c.router.Query(ctx, q)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, TierProxy, res.Tier)

	c.proxy.fail(errConn)
	_, err = c.router.Query(ctx, q)
	require.ErrorIs(t, err, common.ErrQueryUnsupported)

	bare := NewRouter([]RemoteTier{c.primary}, nil, nil, 0, logging.Nop())
	_, err = bare.Query(ctx, q)
	require.ErrorIs(t, err, common.ErrBackendUnavailable)

	_, err = c.router.Query(ctx, query.Where(query.Filter{Field: "nope", Op: query.OpEq}))
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestRouter_ReparentIsIdempotent(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	t0 := time.Now().UTC()
	_, err := c.router.Write(ctx, testLetter("l1", "k1", t0))
	require.NoError(t, err)
	_, err = c.router.Write(ctx, testLetter("l2", "k2", t0))
	require.NoError(t, err)

	res, err := c.router.Reparent(ctx, "acct_1", testAnon)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Reparented)

	res, err = c.router.Reparent(ctx, "acct_1", testAnon)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Reparented)
}

func TestRouter_ReparentUnavailable(t *testing.T) {
	c := newChain(t)
	c.primary.fail(errConn)
	c.proxy.fail(errConn)
	_, err := c.router.Reparent(context.Background(), "acct_1", testAnon)
	require.ErrorIs(t, err, common.ErrBackendUnavailable)
}

func TestRouter_IncrementViews(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	_, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, c.router.IncrementViews(ctx, "k1"))
	require.ErrorIs(t, c.router.IncrementViews(ctx, "missing"), common.ErrorNotFound)

	read, err := c.router.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), read.Record.Letter.ViewCount)
}

func TestRouter_ReconcileFlushesPending(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	c.primary.fail(errConn)
	c.proxy.fail(errConn)

	_, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)

	_, err = c.router.Reconcile(ctx)
	require.ErrorIs(t, err, common.ErrBackendUnavailable)

	c.primary.fail(nil)
	n, err := c.router.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	read, err := c.router.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, TierPrimary, read.Tier)

	pending, err := c.local.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = c.router.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRouter_PendingLettersAreClaimedByMerge(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()

	c.primary.fail(errConn)
	c.proxy.fail(errConn)
	_, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)

	c.proxy.fail(nil)
	res, err := c.router.Reparent(ctx, "acct_1", testAnon)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Reparented)

	c.primary.fail(nil)
	_, err = c.router.Reconcile(ctx)
	require.NoError(t, err)

	read, err := c.router.Read(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, read.Record.Letter.OwnerAccountID)
	assert.Equal(t, "acct_1", *read.Record.Letter.OwnerAccountID)
}

func TestRouter_MergeClaimsLocalPendingAfterRestart(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	c.primary.fail(errConn)
	c.proxy.fail(errConn)
	_, err := c.router.Write(ctx, testLetter("l1", "k1", time.Now().UTC()))
	require.NoError(t, err)

	// a fresh process has an empty cache
	r := NewRouter([]RemoteTier{c.primary, c.proxy}, NewCacheTier(4), c.local, 50*time.Millisecond, logging.Nop())
	c.primary.fail(nil)
	c.proxy.fail(nil)

	res, err := r.Reparent(ctx, "acct_1", testAnon)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Reparented)

	again, err := r.Reparent(ctx, "acct_1", testAnon)
	require.NoError(t, err)
	assert.Zero(t, again.Reparented)

	n, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	read, err := r.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, TierPrimary, read.Tier)
	require.NotNil(t, read.Record.Letter.OwnerAccountID)
	assert.Equal(t, "acct_1", *read.Record.Letter.OwnerAccountID)
}

func TestRouter_WriteRefusedWhenCacheHoldsOnlyPending(t *testing.T) {
	store := newMemStore()
	primary := newMemRemote(TierPrimary, store)
	primary.fail(errConn)
	cache := NewCacheTier(1)
	r := NewRouter([]RemoteTier{primary}, cache, nil, 50*time.Millisecond, logging.Nop())
	ctx := context.Background()
	t0 := time.Now().UTC()

	_, err := r.Write(ctx, testLetter("l1", "k1", t0))
	require.NoError(t, err)

	_, err = r.Write(ctx, testLetter("l2", "k2", t0))
	require.ErrorIs(t, err, common.ErrBackendUnavailable)

	read, err := r.Read(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, read.Record.Pending)

	primary.fail(nil)
	n, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRouter_PendingEvictedFromCacheStaysLocal(t *testing.T) {
	store := newMemStore()
	primary := newMemRemote(TierPrimary, store)
	primary.fail(errConn)
	local := newMemLocal()
	r := NewRouter([]RemoteTier{primary}, NewCacheTier(1), local, 50*time.Millisecond, logging.Nop())
	ctx := context.Background()
	t0 := time.Now().UTC()

	_, err := r.Write(ctx, testLetter("l1", "k1", t0))
	require.NoError(t, err)
	_, err = r.Write(ctx, testLetter("l2", "k2", t0))
	require.NoError(t, err)

	pending, err := local.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	primary.fail(nil)
	n, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
