package letters

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/songletters/internal/server/query"
)

var columns = map[query.Field]string{
	query.FieldID:               "id",
	query.FieldLinkID:           "link_id",
	query.FieldOwnerAccountID:   "owner_account_id",
	query.FieldOwnerAnonymousID: "owner_anonymous_id",
	query.FieldIsPublic:         "is_public",
	query.FieldSongTitle:        "song_title",
	query.FieldSongArtist:       "song_artist",
	query.FieldRecipientName:    "recipient_name",
	query.FieldCreatedAt:        "created_at",
	query.FieldViewCount:        "view_count",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildSelect translates a descriptor into SQL. Groups are OR-ed, filters
// inside a group AND-ed, and id ascending always breaks sort ties.
func buildSelect(q query.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString("SELECT " + letterColumns + " FROM letters")

	if len(q.Match) > 0 {
		groups := make([]string, 0, len(q.Match))
		for _, group := range q.Match {
			conds := make([]string, 0, len(group))
			for _, f := range group {
				col := columns[f.Field]
				switch f.Op {
				case query.OpEq:
					v, _ := f.EqValue()
					conds = append(conds, col+" = "+arg(v))
				case query.OpIsNull:
					conds = append(conds, col+" IS NULL")
				case query.OpContains:
					conds = append(conds, col+" ILIKE "+arg("%"+likeEscaper.Replace(f.Value.(string))+"%"))
				}
			}
			groups = append(groups, "("+strings.Join(conds, " AND ")+")")
		}
		sb.WriteString(" WHERE " + strings.Join(groups, " OR "))
	}

	sb.WriteString(" ORDER BY ")
	if q.Order.Field != "" && q.Order.Field != query.FieldID {
		sb.WriteString(columns[q.Order.Field])
		if q.Order.Desc {
			sb.WriteString(" DESC, ")
		} else {
			sb.WriteString(" ASC, ")
		}
		sb.WriteString("id ASC")
	} else if q.Order.Field == query.FieldID && q.Order.Desc {
		sb.WriteString("id DESC")
	} else {
		sb.WriteString("id ASC")
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + arg(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + arg(q.Offset))
	}
	return sb.String(), args, nil
}
