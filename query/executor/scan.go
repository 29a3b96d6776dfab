package executor

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/schema"
)

// timeLayouts are the text forms drivers use for timestamps they do not parse themselves.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// scanRows reads every row of rows. The result set must have exactly one column per entry of
// cols, in order; each value is converted to the canonical Go type of its column.
func scanRows(rows *sql.Rows, cols []plan.Column) ([]plan.Row, error) {
	var out []plan.Row
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(plan.Row, len(cols))
		for i, c := range cols {
			v, err := decode(c.Type, dest[i])
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", c.Field, err)
			}
			row[c.Field] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// decode converts a driver value to string, int64, float64, bool, time.Time, []byte or, for
// Json columns, the decoded document.
func decode(t schema.ScalarType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.Int, schema.BigInt:
		return decodeInt(v)
	case schema.Float, schema.Decimal:
		return decodeFloat(v)
	case schema.Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case []byte:
			return strconv.ParseBool(string(b))
		case string:
			return strconv.ParseBool(b)
		}
	case schema.DateTime:
		switch tm := v.(type) {
		case time.Time:
			return tm.UTC(), nil
		case []byte:
			return parseTime(string(tm))
		case string:
			return parseTime(tm)
		}
	case schema.Bytes:
		switch b := v.(type) {
		case []byte:
			return append([]byte(nil), b...), nil
		case string:
			return []byte(b), nil
		}
	case schema.Json:
		var raw []byte
		switch b := v.(type) {
		case []byte:
			raw = b
		case string:
			raw = []byte(b)
		default:
			return v, nil
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return string(raw), nil
		}
		return doc, nil
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("unexpected %T for %s column", v, t)
}

func decodeInt(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return parseInt(string(n))
	case string:
		return parseInt(n)
	}
	return nil, fmt.Errorf("unexpected %T for integer column", v)
}

// parseInt also accepts the decimal text some drivers return for SUM.
func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func decodeFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return nil, fmt.Errorf("unexpected %T for numeric column", v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", s)
}
