package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/linkid"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/ownership"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	letters map[string]*models.Letter

	writeErrs []error
	writes    int
	readErr   error
	queryErr  error
	viewsErr  error
	degraded  bool
	views     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{letters: map[string]*models.Letter{}}
}

func (f *fakeStore) Read(_ context.Context, key string) (*storage.ReadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	l, ok := f.letters[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &storage.ReadResult{Record: models.NewRecord(l.Clone()), Tier: storage.TierPrimary}, nil
}

func (f *fakeStore) Write(_ context.Context, l *models.Letter) (*storage.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.letters[l.LinkID] = l.Clone()
	if f.degraded {
		return &storage.WriteResult{Tier: storage.TierCache, Degraded: true, Pending: true}, nil
	}
	return &storage.WriteResult{Tier: storage.TierPrimary}, nil
}

func (f *fakeStore) Query(_ context.Context, q query.Query) (*storage.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	all := make([]*models.Letter, 0, len(f.letters))
	for _, l := range f.letters {
		all = append(all, l)
	}
	return &storage.QueryResult{Letters: q.Apply(all), Tier: storage.TierPrimary}, nil
}

func (f *fakeStore) IncrementViews(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.viewsErr != nil {
		return f.viewsErr
	}
	f.views++
	f.letters[key].ViewCount++
	return nil
}

const anonID = "anon_0123456789abcdef0123456789abcdef"

func anonSession() ownership.Session {
	return ownership.Session{Identity: &identity.Identity{AnonymousID: anonID}}
}

func validInput() CreateLetterInput {
	return CreateLetterInput{
		RecipientName: " Sam ",
		Message:       "six word message here for test",
		Song:          models.Song{Title: "Yesterday", Artist: "The Beatles"},
		IsPublic:      true,
	}
}

func newService(store Store) *LetterService {
	return NewLetterService(store, identity.NewDetector(identity.DefaultDissimilarityThreshold, identity.DefaultLongAbsence), logging.Nop())
}

func TestCreate_AnonymousOwner(t *testing.T) {
	store := newFakeStore()
	s := newService(store)

	res, err := s.Create(context.Background(), anonSession(), validInput())
	require.NoError(t, err)

	l := res.Letter
	assert.True(t, linkid.Valid(l.LinkID))
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, "Sam", l.RecipientName)
	require.NotNil(t, l.OwnerAnonymousID)
	assert.Equal(t, anonID, *l.OwnerAnonymousID)
	assert.Nil(t, l.OwnerAccountID)
	assert.Equal(t, l.CreatedAt, l.UpdatedAt)
	assert.False(t, res.Degraded)
	assert.Contains(t, store.letters, l.LinkID)
}

func TestCreate_AccountOwner(t *testing.T) {
	s := newService(newFakeStore())

	sess := anonSession()
	sess.AccountID = "acct_1"
	res, err := s.Create(context.Background(), sess, validInput())
	require.NoError(t, err)
	require.NotNil(t, res.Letter.OwnerAccountID)
	assert.Equal(t, "acct_1", *res.Letter.OwnerAccountID)
	assert.Nil(t, res.Letter.OwnerAnonymousID)
}

func TestCreate_Validation(t *testing.T) {
	s := newService(newFakeStore())
	long := make([]rune, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}

	cases := map[string]func(*CreateLetterInput){
		"no recipient": func(in *CreateLetterInput) { in.RecipientName = "  " },
		"no message":   func(in *CreateLetterInput) { in.Message = "" },
		"long message": func(in *CreateLetterInput) { in.Message = string(long) },
		"no song":      func(in *CreateLetterInput) { in.Song = models.Song{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := s.Create(context.Background(), anonSession(), in)
			require.ErrorIs(t, err, common.ErrorValidation)
		})
	}

	_, err := s.Create(context.Background(), ownership.Session{}, validInput())
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestCreate_RegeneratesOnceOnConflict(t *testing.T) {
	store := newFakeStore()
	store.writeErrs = []error{common.ErrWriteConflict}
	s := newService(store)

	var issued []string
	s.newLink = func() (string, error) {
		id, err := linkid.Generate()
		issued = append(issued, id)
		return id, err
	}

	res, err := s.Create(context.Background(), anonSession(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 2, store.writes)
	require.Len(t, issued, 2)
	assert.Equal(t, issued[1], res.Letter.LinkID)
}

func TestCreate_SecondConflictSurfaces(t *testing.T) {
	store := newFakeStore()
	store.writeErrs = []error{common.ErrWriteConflict, common.ErrWriteConflict}
	s := newService(store)

	_, err := s.Create(context.Background(), anonSession(), validInput())
	require.ErrorIs(t, err, common.ErrWriteConflict)
	assert.Equal(t, 2, store.writes)
}

func TestCreate_BackendUnavailable(t *testing.T) {
	store := newFakeStore()
	store.writeErrs = []error{fmt.Errorf("%w: write", common.ErrBackendUnavailable)}
	s := newService(store)

	_, err := s.Create(context.Background(), anonSession(), validInput())
	require.ErrorIs(t, err, common.ErrBackendUnavailable)
	assert.Equal(t, 1, store.writes)
}

func TestCreate_DegradedWrite(t *testing.T) {
	store := newFakeStore()
	store.degraded = true
	s := newService(store)

	res, err := s.Create(context.Background(), anonSession(), validInput())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, res.Pending)
	assert.Equal(t, storage.TierCache, res.Tier)
}

func TestGet_CountsViews(t *testing.T) {
	store := newFakeStore()
	s := newService(store)
	created, err := s.Create(context.Background(), anonSession(), validInput())
	require.NoError(t, err)

	got, err := s.Get(context.Background(), created.Letter.LinkID)
	require.NoError(t, err)
	assert.Equal(t, created.Letter.ID, got.Letter.ID)
	assert.EqualValues(t, 1, got.Letter.ViewCount)
	assert.Equal(t, 1, store.views)

	store.viewsErr = errors.New("primary down")
	got, err = s.Get(context.Background(), created.Letter.LinkID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Letter.ViewCount)
}

func TestGet_NotFound(t *testing.T) {
	s := newService(newFakeStore())

	_, err := s.Get(context.Background(), "zzzzzzzzzz")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.Get(context.Background(), "not-a-link")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestClassify(t *testing.T) {
	store := newFakeStore()
	s := newService(store)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.detector.Now = func() time.Time { return now }

	fp := identity.Fingerprint{Locale: "en-US", Timezone: "Europe/Riga", ScreenClass: "desktop", Platform: "linux"}
	stored := &identity.Identity{AnonymousID: anonID, Fingerprint: fp, CreatedAt: now.AddDate(0, -2, 0), LastSeenAt: now.AddDate(0, 0, -30)}

	// long absence needs at least one unlinked letter
	assert.Equal(t, identity.None, s.Classify(context.Background(), stored, fp, ""))

	_, err := s.Create(context.Background(), anonSession(), validInput())
	require.NoError(t, err)
	assert.Equal(t, identity.LongAbsence, s.Classify(context.Background(), stored, fp, ""))

	// signed-in callers are never prompted
	assert.Equal(t, identity.None, s.Classify(context.Background(), stored, fp, "acct_1"))

	other := identity.Fingerprint{Locale: "fr-FR", Timezone: "Europe/Paris", ScreenClass: "mobile", Platform: "ios"}
	assert.Equal(t, identity.DeviceChange, s.Classify(context.Background(), stored, other, ""))

	store.queryErr = errors.New("down")
	assert.Equal(t, identity.None, s.Classify(context.Background(), stored, fp, ""))
}
