package api

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/auth"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/ownership"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/dmitrijs2005/songletters/internal/server/services"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
	"github.com/dmitrijs2005/songletters/internal/server/visibility"
)

const (
	testSecret     = "test-secret"
	testProxyToken = "proxy-token"
)

// memPrimary is an in-memory authoritative store.
type memPrimary struct {
	mu   sync.Mutex
	recs map[string]*models.Record
	err  error
}

func newMemPrimary() *memPrimary { return &memPrimary{recs: map[string]*models.Record{}} }

func (m *memPrimary) down(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memPrimary) Name() string { return storage.TierPrimary }

func (m *memPrimary) Get(_ context.Context, key string) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.recs[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (m *memPrimary) Put(_ context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if cur, ok := m.recs[rec.Key]; ok && cur.Letter.ID != rec.Letter.ID {
		return common.ErrWriteConflict
	}
	c := rec.Clone()
	c.Tier, c.Pending = storage.TierPrimary, false
	m.recs[rec.Key] = c
	return nil
}

func (m *memPrimary) Query(_ context.Context, q query.Query) ([]*models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	all := make([]*models.Letter, 0, len(m.recs))
	for _, rec := range m.recs {
		all = append(all, rec.Letter.Clone())
	}
	return q.Apply(all), nil
}

func (m *memPrimary) Reparent(_ context.Context, accountID, anonymousID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, rec := range m.recs {
		l := rec.Letter
		if l.OwnerAccountID == nil && l.OwnerAnonymousID != nil && *l.OwnerAnonymousID == anonymousID {
			acct := accountID
			l.OwnerAccountID = &acct
			n++
		}
	}
	return n, nil
}

func (m *memPrimary) IncrementViews(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec, ok := m.recs[key]
	if !ok {
		return common.ErrorNotFound
	}
	rec.Letter.ViewCount++
	return nil
}

// newTestServer wires the full stack over the given remote tiers.
func newTestServer(t *testing.T, primary *memPrimary, remotes ...storage.RemoteTier) *Server {
	t.Helper()
	logger := logging.Nop()

	if primary != nil {
		remotes = append([]storage.RemoteTier{primary}, remotes...)
	}
	router := storage.NewRouter(remotes, storage.NewCacheTier(64), nil, time.Second, logger)
	detector := identity.NewDetector(identity.DefaultDissimilarityThreshold, identity.DefaultLongAbsence)
	resolver := ownership.NewResolver(router, 2, time.Millisecond, logger)

	d := Deps{
		Letters:    services.NewLetterService(router, detector, logger),
		Gateway:    visibility.NewGateway(router, logger),
		Bridge:     auth.NewBridge(resolver, logger),
		ProxyToken: testProxyToken,
		SecretKey:  testSecret,
	}
	if primary != nil {
		d.Primary = primary
	}
	return NewServer("127.0.0.1:0", d, logger)
}

func bearer(t *testing.T, accountID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(accountID, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + tok
}

func identityHeader(resp *http.Response) string {
	return resp.Header.Get(common.AnonymousIdentityHeaderName)
}

func authToken(accountID string, ttl time.Duration) (string, error) {
	return auth.GenerateToken(accountID, []byte(testSecret), ttl)
}
