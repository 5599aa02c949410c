package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anonA = "anon_0123456789abcdef0123456789abcdef"

func proxyRecord(id, link string) *models.Record {
	anon := anonA
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return models.NewRecord(&models.Letter{
		ID: id, LinkID: link, OwnerAnonymousID: &anon,
		RecipientName: "Sam", Message: "six word message here for test", IsPublic: true,
		Song:      models.Song{Title: "Yesterday", Artist: "The Beatles"},
		CreatedAt: at, UpdatedAt: at,
	})
}

func TestProxyEndpoints_ThroughProxyTier(t *testing.T) {
	primary := newMemPrimary()
	ts := httptest.NewServer(newTestServer(t, primary).Handler())
	defer ts.Close()

	tier := storage.NewProxyTier(ts.URL, testProxyToken, ts.Client())
	ctx := context.Background()

	_, err := tier.Get(ctx, "abcdefghij")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, tier.Put(ctx, proxyRecord("l1", "abcdefghij")))
	require.ErrorIs(t, tier.Put(ctx, proxyRecord("l2", "abcdefghij")), common.ErrWriteConflict)

	rec, err := tier.Get(ctx, "abcdefghij")
	require.NoError(t, err)
	assert.Equal(t, "l1", rec.Letter.ID)
	assert.Equal(t, storage.TierProxy, rec.Tier)

	letters, err := tier.Query(ctx, query.Where(query.Eq(query.FieldIsPublic, true)))
	require.NoError(t, err)
	require.Len(t, letters, 1)

	_, err = tier.Query(ctx, query.Where(query.Eq(query.Field("password"), "x")))
	require.ErrorIs(t, err, common.ErrorValidation)
	_, err = tier.Query(ctx, query.Where(query.Eq(query.FieldOwnerAccountID, map[string]any{"$ne": nil})))
	require.ErrorIs(t, err, common.ErrorValidation)

	letters, err = tier.Query(ctx, query.Where(query.Eq(query.FieldViewCount, 0)))
	require.NoError(t, err)
	require.Len(t, letters, 1)

	n, err := tier.Reparent(ctx, "acct_1", anonA)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = tier.Reparent(ctx, "acct_1", anonA)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, tier.IncrementViews(ctx, "abcdefghij"))
	require.ErrorIs(t, tier.IncrementViews(ctx, "missing123"), common.ErrorNotFound)

	stored, err := primary.Get(ctx, "abcdefghij")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Letter.ViewCount)
	require.NotNil(t, stored.Letter.OwnerAccountID)
	assert.Equal(t, "acct_1", *stored.Letter.OwnerAccountID)
}

func TestProxyEndpoints_RequireToken(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, newMemPrimary()).Handler())
	defer ts.Close()

	tier := storage.NewProxyTier(ts.URL, "wrong", ts.Client())
	_, err := tier.Get(context.Background(), "abcdefghij")
	var httpErr *storage.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestProxyEndpoints_RejectMismatchedKey(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, newMemPrimary()).Handler())
	defer ts.Close()

	tier := storage.NewProxyTier(ts.URL, testProxyToken, ts.Client())
	rec := proxyRecord("l1", "abcdefghij")
	rec.Letter.LinkID = "other12345"
	require.ErrorIs(t, tier.Put(context.Background(), rec), common.ErrorValidation)
}

func TestProxyEndpoints_NoPrimary(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil).Handler())
	defer ts.Close()

	tier := storage.NewProxyTier(ts.URL, testProxyToken, ts.Client())
	_, err := tier.Get(context.Background(), "abcdefghij")
	var httpErr *storage.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

// A node without its own database path serves everything through a peer.
func TestScenario_NodeBehindProxy(t *testing.T) {
	primary := newMemPrimary()
	peer := httptest.NewServer(newTestServer(t, primary).Handler())
	defer peer.Close()

	edge := httptest.NewServer(newTestServer(t, nil, storage.NewProxyTier(peer.URL, testProxyToken, peer.Client())).Handler())
	defer edge.Close()
	c := newAPIClient(t, edge)

	resp, payload := c.do(http.MethodPost, "/letters", letterBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(payload))
	created := decode[letterResponse](t, payload)
	assert.Equal(t, storage.TierProxy, created.Tier)
	assert.False(t, created.Degraded, "the proxy is this node's first tier")

	stored, err := primary.Get(context.Background(), created.Letter.LinkID)
	require.NoError(t, err)
	assert.Equal(t, created.Letter.ID, stored.Letter.ID)

	resp, payload = c.do(http.MethodGet, "/explore", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{created.Letter.ID}, ids(decode[listResponse](t, payload).Letters))
}
