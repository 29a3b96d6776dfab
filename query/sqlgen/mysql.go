package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

type mysql struct{}

func (mysql) name() string { return "mysql" }

func (mysql) quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysql) placeholder(int) string { return "?" }

func (mysql) returning() bool { return false }

// match compares bytes for the default mode; the usual MySQL collations ignore case.
func (mysql) match(b *builder, col string, c plan.Compare) string {
	pattern := b.arg(likePattern(c.Op, text(c.Value)))
	if c.Insensitive {
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, pattern)
	}
	return fmt.Sprintf("%s LIKE BINARY %s", col, pattern)
}

// orderTerms emulates NULLS FIRST / LAST, which MySQL lacks, with an IS NULL key.
func (mysql) orderTerms(expr string, o plan.Order) []string {
	switch o.Nulls {
	case "first":
		return []string{expr + " IS NULL DESC", direction(expr, o.Desc)}
	case "last":
		return []string{expr + " IS NULL ASC", direction(expr, o.Desc)}
	}
	return []string{direction(expr, o.Desc)}
}

func (mysql) window(limit *int, offset int) string {
	switch {
	case limit != nil && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", *limit, offset)
	case limit != nil:
		return fmt.Sprintf("LIMIT %d", *limit)
	case offset > 0:
		// MySQL requires LIMIT when using OFFSET
		return fmt.Sprintf("LIMIT 18446744073709551615 OFFSET %d", offset)
	}
	return ""
}

func (mysql) insertVerb(skipDuplicates bool) string {
	if skipDuplicates {
		return "INSERT IGNORE INTO"
	}
	return "INSERT INTO"
}

func (mysql) insertSuffix(*plan.Insert) string { return "" }

func (mysql) upsert(b *builder, up *plan.Upsert) string {
	return "ON DUPLICATE KEY UPDATE " + conflictSet(b, up, "", "")
}

func (mysql) defaultValues() string { return "() VALUES ()" }
