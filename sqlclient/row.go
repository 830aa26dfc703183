package sqlclient

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/b-open-io/gamedata/felt"
)

// Row is one flat result row. Values stay as parsed JSON until read.
type Row map[string]gjson.Result

// ParseRows decodes a JSON array of flat objects. Non-object elements are skipped.
func ParseRows(body []byte) ([]Row, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrMalformedResponse)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: expected a JSON array of rows", ErrMalformedResponse)
	}
	rows := make([]Row, 0, len(parsed.Array()))
	parsed.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		row := make(Row)
		value.ForEach(func(k, v gjson.Result) bool {
			row[k.String()] = v
			return true
		})
		rows = append(rows, row)
		return true
	})
	return rows, nil
}

// String returns the column as text, or "" when absent or null.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

// Uint coerces a numeric or felt column.
func (r Row) Uint(col string) (uint64, bool) {
	return felt.ParseUint(r.String(col))
}

// Bool accepts JSON booleans and 0/1 style integers.
func (r Row) Bool(col string) bool {
	v, ok := r[col]
	if !ok {
		return false
	}
	if v.Type == gjson.String {
		n, ok := felt.ParseUint(v.String())
		return ok && n != 0 || v.String() == "true"
	}
	return v.Bool()
}

// ShortString decodes a felt-encoded short string column.
func (r Row) ShortString(col string) string {
	return felt.DecodeShortString(r.String(col))
}

// JSON parses a column holding a nested JSON document, either inline or as a
// string. It returns a zero Result when the column holds neither.
func (r Row) JSON(col string) gjson.Result {
	v, ok := r[col]
	if !ok {
		return gjson.Result{}
	}
	if v.IsObject() || v.IsArray() {
		return v
	}
	if v.Type == gjson.String && gjson.Valid(v.String()) {
		return gjson.Parse(v.String())
	}
	return gjson.Result{}
}
