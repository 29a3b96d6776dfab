package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

type postgres struct{}

func (postgres) name() string { return "postgres" }

// quote quotes an identifier for PostgreSQL
func (postgres) quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgres) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgres) returning() bool { return true }

func (postgres) match(b *builder, col string, c plan.Compare) string {
	op := "LIKE"
	if c.Insensitive {
		op = "ILIKE"
	}
	return fmt.Sprintf("%s %s %s", col, op, b.arg(likePattern(c.Op, text(c.Value))))
}

func (postgres) orderTerms(expr string, o plan.Order) []string {
	return []string{direction(expr, o.Desc) + nullsClause(o.Nulls)}
}

func (postgres) window(limit *int, offset int) string {
	var parts []string
	if limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *limit))
	}
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}
	return strings.Join(parts, " ")
}

func (postgres) insertVerb(bool) string { return "INSERT INTO" }

func (postgres) insertSuffix(ins *plan.Insert) string {
	if ins.SkipDuplicates {
		return "ON CONFLICT DO NOTHING"
	}
	return ""
}

func (d postgres) upsert(b *builder, up *plan.Upsert) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", quoteAll(d, up.ConflictColumns), conflictSet(b, up, d.quote(up.Table), "EXCLUDED"))
}

func (postgres) defaultValues() string { return "DEFAULT VALUES" }

func direction(expr string, desc bool) string {
	if desc {
		return expr + " DESC"
	}
	return expr + " ASC"
}

func nullsClause(nulls string) string {
	switch nulls {
	case "first":
		return " NULLS FIRST"
	case "last":
		return " NULLS LAST"
	}
	return ""
}

func quoteAll(d dialect, names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.quote(n)
	}
	return strings.Join(out, ", ")
}

// conflictSet renders the update half of an upsert. With nothing to update it rewrites the
// conflict column with its proposed value so the statement still reports the row.
func conflictSet(b *builder, up *plan.Upsert, qualify, proposed string) string {
	if len(up.Set) > 0 {
		return b.assignments(up.Set, qualify)
	}
	col := b.d.quote(up.ConflictColumns[0])
	if proposed == "" {
		return col + " = " + col
	}
	return col + " = " + proposed + "." + col
}
