package executor

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

// Distinct keeps the first row of each combination of values of fields. No fields keeps all rows.
func Distinct(rows []plan.Row, fields []string) []plan.Row {
	if len(fields) == 0 {
		return rows
	}
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := rowKey(r, fields)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// Paginate drops the first skip rows and keeps at most take of the rest.
func Paginate(rows []plan.Row, skip int, take *int) []plan.Row {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if take != nil && *take < len(rows) {
		rows = rows[:*take]
	}
	return rows
}

func rowKey(r plan.Row, fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "%T:%v\x00", r[f], r[f])
	}
	return b.String()
}
