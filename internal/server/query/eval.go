package query

import (
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/songletters/internal/server/models"
)

// Matches evaluates the Match groups against a single letter in memory.
func (q Query) Matches(l *models.Letter) bool {
	if len(q.Match) == 0 {
		return true
	}
	for _, group := range q.Match {
		if matchGroup(group, l) {
			return true
		}
	}
	return false
}

func matchGroup(group []Filter, l *models.Letter) bool {
	for _, f := range group {
		if !matchFilter(f, l) {
			return false
		}
	}
	return true
}

func matchFilter(f Filter, l *models.Letter) bool {
	v, isNull := fieldValue(f.Field, l)
	switch f.Op {
	case OpIsNull:
		return isNull
	case OpEq:
		want, err := f.EqValue()
		if isNull || err != nil {
			return false
		}
		if t, ok := want.(time.Time); ok {
			got, _ := v.(time.Time)
			return got.Equal(t)
		}
		return v == want
	case OpContains:
		s, ok := v.(string)
		needle, _ := f.Value.(string)
		return ok && !isNull && strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	}
	return false
}

func fieldValue(f Field, l *models.Letter) (any, bool) {
	switch f {
	case FieldID:
		return l.ID, false
	case FieldLinkID:
		return l.LinkID, false
	case FieldOwnerAccountID:
		if l.OwnerAccountID == nil {
			return nil, true
		}
		return *l.OwnerAccountID, false
	case FieldOwnerAnonymousID:
		if l.OwnerAnonymousID == nil {
			return nil, true
		}
		return *l.OwnerAnonymousID, false
	case FieldIsPublic:
		return l.IsPublic, false
	case FieldSongTitle:
		return l.Song.Title, false
	case FieldSongArtist:
		return l.Song.Artist, false
	case FieldRecipientName:
		return l.RecipientName, false
	case FieldCreatedAt:
		return l.CreatedAt, false
	case FieldViewCount:
		return l.ViewCount, false
	}
	return nil, true
}

// Keep returns the letters that satisfy the Match groups, in their order.
func (q Query) Keep(letters []*models.Letter) []*models.Letter {
	out := make([]*models.Letter, 0, len(letters))
	for _, l := range letters {
		if q.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

// Apply filters, sorts and pages letters in memory with the same semantics
// the SQL adapter produces.
func (q Query) Apply(letters []*models.Letter) []*models.Letter {
	out := q.Keep(letters)
	sort.SliceStable(out, func(i, j int) bool {
		return q.less(out[i], out[j])
	})
	if q.Offset >= len(out) {
		return []*models.Letter{}
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

func (q Query) less(a, b *models.Letter) bool {
	if q.Order.Field != "" {
		c := compareField(q.Order.Field, a, b)
		if c != 0 {
			if q.Order.Desc {
				return c > 0
			}
			return c < 0
		}
	}
	return a.ID < b.ID
}

func compareField(f Field, a, b *models.Letter) int {
	switch f {
	case FieldCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case FieldViewCount:
		switch {
		case a.ViewCount < b.ViewCount:
			return -1
		case a.ViewCount > b.ViewCount:
			return 1
		}
		return 0
	case FieldSongTitle:
		return strings.Compare(a.Song.Title, b.Song.Title)
	case FieldID:
		return strings.Compare(a.ID, b.ID)
	}
	return 0
}
