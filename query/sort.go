package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/b-open-io/gamedata/storage"
)

type Field string

const (
	FieldScore      Field = "score"
	FieldMintedAt   Field = "minted_at"
	FieldPlayerName Field = "player_name"
	FieldOwner      Field = "owner"
	FieldTokenID    Field = "token_id"
	FieldGameOver   Field = "game_over"
	FieldGameID     Field = "game_id"
)

type Order string

const (
	OrderDefault Order = ""
	OrderAsc     Order = "asc"
	OrderDesc    Order = "desc"
)

// ParseField accepts the field names used on the wire.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldScore, FieldMintedAt, FieldPlayerName, FieldOwner, FieldTokenID, FieldGameOver, FieldGameID:
		return f, nil
	case "":
		return FieldTokenID, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case OrderDefault, OrderAsc, OrderDesc:
		return o, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Resolve replaces OrderDefault with the field's natural order: descending for
// score and mint time, ascending otherwise.
func (o Order) Resolve(field Field) Order {
	if o != OrderDefault {
		return o
	}
	switch field {
	case FieldScore, FieldMintedAt:
		return OrderDesc
	}
	return OrderAsc
}

// Sort returns a sorted copy of tokens. The sort is stable; ties keep input order.
func Sort(tokens []storage.GameToken, field Field, order Order) []storage.GameToken {
	out := slices.Clone(tokens)
	compare := comparator(field)
	if order.Resolve(field) == OrderDesc {
		slices.SortStableFunc(out, func(a, b storage.GameToken) int { return compare(&b, &a) })
	} else {
		slices.SortStableFunc(out, func(a, b storage.GameToken) int { return compare(&a, &b) })
	}
	return out
}

func comparator(field Field) func(a, b *storage.GameToken) int {
	switch field {
	case FieldScore:
		return func(a, b *storage.GameToken) int { return cmp.Compare(a.Score, b.Score) }
	case FieldMintedAt:
		return func(a, b *storage.GameToken) int { return cmp.Compare(deref(a.MintedAt), deref(b.MintedAt)) }
	case FieldPlayerName:
		return func(a, b *storage.GameToken) int {
			return strings.Compare(strings.ToLower(a.PlayerName), strings.ToLower(b.PlayerName))
		}
	case FieldOwner:
		return func(a, b *storage.GameToken) int {
			return strings.Compare(strings.ToLower(a.Owner), strings.ToLower(b.Owner))
		}
	case FieldGameOver:
		return func(a, b *storage.GameToken) int { return cmp.Compare(boolRank(a.GameOver), boolRank(b.GameOver)) }
	case FieldGameID:
		return func(a, b *storage.GameToken) int { return cmp.Compare(deref(a.GameID), deref(b.GameID)) }
	}
	return func(a, b *storage.GameToken) int { return cmp.Compare(a.TokenID, b.TokenID) }
}

func deref(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

func boolRank(p *bool) int {
	if p != nil && *p {
		return 1
	}
	return 0
}
