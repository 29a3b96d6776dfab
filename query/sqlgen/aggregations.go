package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

// GenerateAggregate generates an aggregation query. The result columns are the GroupBy
// columns followed by the aggregations, each named by its alias.
func (g *generator) GenerateAggregate(a *plan.Aggregate) *Query {
	b := &builder{d: g.d}
	var parts []string
	t0 := alias(0)

	// SELECT with aggregations
	var selectParts []string
	for _, c := range a.GroupBy {
		selectParts = append(selectParts, b.col(t0, c.Name))
	}
	for _, agg := range a.Funcs {
		expr := "COUNT(*)"
		if agg.Func != plan.AggCountAll {
			expr = fmt.Sprintf("%s(%s)", agg.Func, b.col(t0, agg.Column))
		}
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", expr, g.d.quote(agg.Alias)))
	}
	parts = append(parts, "SELECT "+strings.Join(selectParts, ", "))

	// FROM table, or the windowed rows when the source is paginated
	src := a.Source
	if len(src.OrderBy) > 0 || src.Limit != nil || src.Offset > 0 {
		parts = append(parts, fmt.Sprintf("FROM (%s) AS %s", b.selectSQL(src, 0), t0))
	} else {
		parts = append(parts, fmt.Sprintf("FROM %s AS %s", g.d.quote(src.Table), t0))
		if src.Where != nil {
			parts = append(parts, "WHERE "+b.where(src.Where, 0))
		}
	}

	// GROUP BY
	if len(a.GroupBy) > 0 {
		groupByParts := make([]string, len(a.GroupBy))
		for i, c := range a.GroupBy {
			groupByParts[i] = b.col(t0, c.Name)
		}
		parts = append(parts, "GROUP BY "+strings.Join(groupByParts, ", "))
	}

	// HAVING
	if a.Having != nil {
		parts = append(parts, "HAVING "+b.where(a.Having, 0))
	}

	if len(a.OrderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(b.orderBy(a.OrderBy, 0), ", "))
	}
	if w := g.d.window(a.Limit, a.Offset); w != "" {
		parts = append(parts, w)
	}
	return &Query{SQL: strings.Join(parts, " "), Args: b.args}
}
