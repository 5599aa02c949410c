// Package visibility implements the read rules behind "my letters", the
// public explore feed and search.
package visibility

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/ownership"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
)

// MinimumWords is the shortest message, in whitespace-delimited words, the
// public feed and search will show.
const MinimumWords = 6

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type SortBy string

const (
	SortNewest  SortBy = "newest"
	SortOldest  SortBy = "oldest"
	SortPopular SortBy = "popular"
)

func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortPopular:
		return SortPopular, nil
	}
	return "", fmt.Errorf("%w: unknown sort %q", common.ErrorValidation, s)
}

func (s SortBy) order() query.Order {
	switch s {
	case SortOldest:
		return query.Order{Field: query.FieldCreatedAt}
	case SortPopular:
		return query.Order{Field: query.FieldViewCount, Desc: true}
	}
	return query.Order{Field: query.FieldCreatedAt, Desc: true}
}

type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize applies the default limit and caps it.
func (p Page) Normalize() (Page, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return p, fmt.Errorf("%w: negative limit or offset", common.ErrorValidation)
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p, nil
}

type Querier interface {
	Query(ctx context.Context, q query.Query) (*storage.QueryResult, error)
}

// Result is one page. Public feeds are filtered after fetch, so Letters may
// hold fewer than Page.Limit entries even when more pages exist; callers
// that need a full page request the next offset.
type Result struct {
	Letters  []*models.Letter
	Page     Page
	Tier     string
	Degraded bool
}

type Gateway struct {
	store  Querier
	logger logging.Logger
}

func NewGateway(store Querier, logger logging.Logger) *Gateway {
	return &Gateway{store: store, logger: logger.With("module", "visibility")}
}

// ListOwned returns the owner's letters, newest first. With both keys set it
// is the union of the account's letters and the anonymous identity's letters
// not yet merged, which cannot overlap.
func (g *Gateway) ListOwned(ctx context.Context, key ownership.OwnerKey, page Page) (*Result, error) {
	var match [][]query.Filter
	if key.AccountID != "" {
		match = append(match, []query.Filter{query.Eq(query.FieldOwnerAccountID, key.AccountID)})
	}
	if key.AnonymousID != "" {
		match = append(match, []query.Filter{
			query.Eq(query.FieldOwnerAnonymousID, key.AnonymousID),
			query.IsNull(query.FieldOwnerAccountID),
		})
	}
	if len(match) == 0 {
		return nil, fmt.Errorf("%w: empty owner key", common.ErrorValidation)
	}
	return g.run(ctx, query.Query{Match: match, Order: SortNewest.order()}, page, false)
}

// ListPublic returns public letters ordered by sortBy, optionally narrowed
// to an artist substring.
func (g *Gateway) ListPublic(ctx context.Context, page Page, sortBy SortBy, artist string) (*Result, error) {
	filters := []query.Filter{query.Eq(query.FieldIsPublic, true)}
	if artist = strings.TrimSpace(artist); artist != "" {
		filters = append(filters, query.Contains(query.FieldSongArtist, artist))
	}
	q := query.Where(filters...)
	q.Order = sortBy.order()
	return g.run(ctx, q, page, true)
}

// Search matches term case-insensitively against song title, artist and
// recipient of public letters.
func (g *Gateway) Search(ctx context.Context, term string, page Page) (*Result, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", common.ErrorValidation)
	}
	public := query.Eq(query.FieldIsPublic, true)
	q := query.Query{
		Match: [][]query.Filter{
			{public, query.Contains(query.FieldSongTitle, term)},
			{public, query.Contains(query.FieldSongArtist, term)},
			{public, query.Contains(query.FieldRecipientName, term)},
		},
		Order: SortNewest.order(),
	}
	return g.run(ctx, q, page, true)
}

func (g *Gateway) run(ctx context.Context, q query.Query, page Page, minContent bool) (*Result, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	q.Limit, q.Offset = page.Limit, page.Offset

	res, err := g.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	letters := res.Letters
	if minContent {
		letters = filterMeaningful(letters)
	}
	if res.Degraded {
		g.logger.Info(ctx, "degraded query", "tier", res.Tier)
	}
	return &Result{Letters: letters, Page: page, Tier: res.Tier, Degraded: res.Degraded}, nil
}

// HasMinimumContent reports whether a message is long enough for public listing.
func HasMinimumContent(message string) bool {
	return len(strings.Fields(message)) >= MinimumWords
}

func filterMeaningful(in []*models.Letter) []*models.Letter {
	out := make([]*models.Letter, 0, len(in))
	for _, l := range in {
		if HasMinimumContent(l.Message) {
			out = append(out, l)
		}
	}
	return out
}
