// Package query is the backend-neutral descriptor for letter queries.
// Each tier adapter interprets it explicitly; tiers that cannot do so
// report common.ErrQueryUnsupported instead of returning partial data.
package query

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
)

type Field string

const (
	FieldID               Field = "id"
	FieldLinkID           Field = "link_id"
	FieldOwnerAccountID   Field = "owner_account_id"
	FieldOwnerAnonymousID Field = "owner_anonymous_id"
	FieldIsPublic         Field = "is_public"
	FieldSongTitle        Field = "song_title"
	FieldSongArtist       Field = "song_artist"
	FieldRecipientName    Field = "recipient_name"
	FieldCreatedAt        Field = "created_at"
	FieldViewCount        Field = "view_count"
)

type kind string

const (
	kindString kind = "string"
	kindBool   kind = "bool"
	kindInt    kind = "integer"
	kindTime   kind = "RFC 3339 time"
)

var fieldKinds = map[Field]kind{
	FieldID:               kindString,
	FieldLinkID:           kindString,
	FieldOwnerAccountID:   kindString,
	FieldOwnerAnonymousID: kindString,
	FieldIsPublic:         kindBool,
	FieldSongTitle:        kindString,
	FieldSongArtist:       kindString,
	FieldRecipientName:    kindString,
	FieldCreatedAt:        kindTime,
	FieldViewCount:        kindInt,
}

// Sortable fields; tie-breaking on id is always appended.
var sortableFields = map[Field]struct{}{
	FieldCreatedAt: {}, FieldViewCount: {}, FieldSongTitle: {}, FieldID: {},
}

type Op string

const (
	OpEq       Op = "eq"
	OpIsNull   Op = "is_null"
	OpContains Op = "contains" // case-insensitive substring, string fields only
)

// Filter is a single predicate.
type Filter struct {
	Field Field `json:"field"`
	Op    Op    `json:"op"`
	Value any   `json:"value,omitempty"`
}

// Order is the single sort key.
type Order struct {
	Field Field `json:"field"`
	Desc  bool  `json:"desc"`
}

// Query matches letters satisfying any of the Match groups, where each
// group is a conjunction of filters. An empty Match selects everything.
type Query struct {
	Match  [][]Filter `json:"match"`
	Order  Order      `json:"order"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Where is shorthand for a query with a single AND-group.
func Where(filters ...Filter) Query {
	return Query{Match: [][]Filter{filters}}
}

func Eq(f Field, v any) Filter          { return Filter{Field: f, Op: OpEq, Value: v} }
func IsNull(f Field) Filter             { return Filter{Field: f, Op: OpIsNull} }
func Contains(f Field, s string) Filter { return Filter{Field: f, Op: OpContains, Value: s} }

// EqValue returns the eq operand as the field's Go type: string, bool, int64
// or time.Time. A decoded JSON body carries numbers as float64 and times as
// strings; anything that does not convert cleanly is a validation error.
func (f Filter) EqValue() (any, error) {
	k := fieldKinds[f.Field]
	switch k {
	case kindString:
		if v, ok := f.Value.(string); ok {
			return v, nil
		}
	case kindBool:
		if v, ok := f.Value.(bool); ok {
			return v, nil
		}
	case kindInt:
		switch v := f.Value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == math.Trunc(v) && math.Abs(v) <= 1<<53 {
				return int64(v), nil
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, nil
			}
		}
	case kindTime:
		switch v := f.Value.(type) {
		case time.Time:
			return v, nil
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s eq needs a %s value", common.ErrorValidation, f.Field, k)
}

// Validate checks fields, operators, operand types and paging bounds.
func (q Query) Validate() error {
	for _, group := range q.Match {
		if len(group) == 0 {
			return fmt.Errorf("%w: empty filter group", common.ErrorValidation)
		}
		for _, f := range group {
			k, ok := fieldKinds[f.Field]
			if !ok {
				return fmt.Errorf("%w: unknown field %q", common.ErrorValidation, f.Field)
			}
			switch f.Op {
			case OpEq:
				if _, err := f.EqValue(); err != nil {
					return err
				}
			case OpIsNull:
			case OpContains:
				if _, ok := f.Value.(string); !ok || k != kindString {
					return fmt.Errorf("%w: contains needs a string field and value", common.ErrorValidation)
				}
			default:
				return fmt.Errorf("%w: unknown op %q", common.ErrorValidation, f.Op)
			}
		}
	}
	if q.Order.Field != "" {
		if _, ok := sortableFields[q.Order.Field]; !ok {
			return fmt.Errorf("%w: cannot sort by %q", common.ErrorValidation, q.Order.Field)
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: negative limit or offset", common.ErrorValidation)
	}
	return nil
}
