package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

type sqlite struct{}

func (sqlite) name() string { return "sqlite" }

func (sqlite) quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqlite) placeholder(int) string { return "?" }

func (sqlite) returning() bool { return true }

var globEscaper = strings.NewReplacer(`[`, `[[]`, `*`, `[*]`, `?`, `[?]`)

// match uses GLOB for the default mode since SQLite's LIKE ignores ASCII case.
func (sqlite) match(b *builder, col string, c plan.Compare) string {
	if c.Insensitive {
		return fmt.Sprintf(`LOWER(%s) LIKE LOWER(%s) ESCAPE '\'`, col, b.arg(likePattern(c.Op, text(c.Value))))
	}
	pattern := wildcard(c.Op, globEscaper.Replace(text(c.Value)), "*")
	return fmt.Sprintf("%s GLOB %s", col, b.arg(pattern))
}

func (sqlite) orderTerms(expr string, o plan.Order) []string {
	return []string{direction(expr, o.Desc) + nullsClause(o.Nulls)}
}

func (sqlite) window(limit *int, offset int) string {
	switch {
	case limit != nil && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", *limit, offset)
	case limit != nil:
		return fmt.Sprintf("LIMIT %d", *limit)
	case offset > 0:
		return fmt.Sprintf("LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

func (sqlite) insertVerb(skipDuplicates bool) string {
	if skipDuplicates {
		return "INSERT OR IGNORE INTO"
	}
	return "INSERT INTO"
}

func (sqlite) insertSuffix(*plan.Insert) string { return "" }

func (d sqlite) upsert(b *builder, up *plan.Upsert) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", quoteAll(d, up.ConflictColumns), conflictSet(b, up, "", "excluded"))
}

func (sqlite) defaultValues() string { return "DEFAULT VALUES" }
