package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
)

// memStore is the logical store remote fakes share.
type memStore struct {
	mu   sync.Mutex
	recs map[string]*models.Record
}

func newMemStore() *memStore { return &memStore{recs: map[string]*models.Record{}} }

// memRemote is an in-memory RemoteTier with switchable failures.
type memRemote struct {
	name  string
	store *memStore

	mu    sync.Mutex
	err   error
	hang  bool
	calls int
}

func newMemRemote(name string, store *memStore) *memRemote {
	return &memRemote{name: name, store: store}
}

func (m *memRemote) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memRemote) enter(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	hang, err := m.hang, m.err
	m.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *memRemote) Name() string { return m.name }

func (m *memRemote) Get(ctx context.Context, key string) (*models.Record, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	rec, ok := m.store.recs[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := rec.Clone()
	c.Tier = m.name
	return c, nil
}

func (m *memRemote) Put(ctx context.Context, rec *models.Record) error {
	if err := m.enter(ctx); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if cur, ok := m.store.recs[rec.Key]; ok {
		if cur.Letter.ID != rec.Letter.ID {
			return common.ErrWriteConflict
		}
		if !rec.NewerThan(cur) {
			return nil
		}
		if cur.Letter.OwnerAccountID != nil && rec.Letter.OwnerAccountID == nil {
			rec = rec.Clone()
			rec.Letter.OwnerAccountID = cur.Letter.OwnerAccountID
		}
	}
	c := rec.Clone()
	c.Pending = false
	m.store.recs[rec.Key] = c
	return nil
}

func (m *memRemote) Query(ctx context.Context, q query.Query) ([]*models.Letter, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	all := make([]*models.Letter, 0, len(m.store.recs))
	for _, r := range m.store.recs {
		all = append(all, r.Letter.Clone())
	}
	return q.Apply(all), nil
}

func (m *memRemote) Reparent(ctx context.Context, accountID, anonymousID string) (int64, error) {
	if err := m.enter(ctx); err != nil {
		return 0, err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var n int64
	for _, r := range m.store.recs {
		l := r.Letter
		if l.OwnerAccountID == nil && l.OwnerAnonymousID != nil && *l.OwnerAnonymousID == anonymousID {
			acct := accountID
			l.OwnerAccountID = &acct
			n++
		}
	}
	return n, nil
}

func (m *memRemote) IncrementViews(ctx context.Context, key string) error {
	if err := m.enter(ctx); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	r, ok := m.store.recs[key]
	if !ok {
		return common.ErrorNotFound
	}
	r.Letter.ViewCount++
	return nil
}

// memLocal is an in-memory LocalTier.
type memLocal struct {
	mu   sync.Mutex
	recs map[string]*models.Record
}

func newMemLocal() *memLocal { return &memLocal{recs: map[string]*models.Record{}} }

func (m *memLocal) Name() string { return TierLocal }

func (m *memLocal) Get(_ context.Context, key string) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := r.Clone()
	c.Tier = TierLocal
	return c, nil
}

func (m *memLocal) Put(_ context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.recs[rec.Key]; ok && !rec.NewerThan(cur) {
		return nil
	}
	m.recs[rec.Key] = rec.Clone()
	return nil
}

func (m *memLocal) ListPending(_ context.Context) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Record
	for _, r := range m.recs {
		if r.Pending {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

var testAnon = "anon_0123456789abcdef0123456789abcdef"

func testLetter(id, link string, at time.Time) *models.Letter {
	anon := testAnon
	return &models.Letter{
		ID:               id,
		LinkID:           link,
		OwnerAnonymousID: &anon,
		RecipientName:    "Sam",
		Message:          "six word message here for test",
		Song:             models.Song{Title: "Song", Artist: "Band"},
		IsPublic:         true,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}
