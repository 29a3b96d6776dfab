package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

// where renders a predicate over the table at depth. Every group is parenthesised and keeps the
// order and nesting of the plan.
func (b *builder) where(n plan.Node, depth int) string {
	switch n := n.(type) {
	case nil:
		return "1=1"
	case plan.Literal:
		if n {
			return "1=1"
		}
		return "1=0"
	case plan.And:
		return b.group(n, " AND ", "1=1", depth)
	case plan.Or:
		return b.group(n, " OR ", "1=0", depth)
	case plan.Not:
		return "NOT (" + b.where(n.X, depth) + ")"
	case plan.Compare:
		return b.compare(n, depth)
	case plan.Exists:
		return b.exists(n, depth)
	}
	panic(fmt.Sprintf("sqlgen: unexpected predicate %T", n))
}

func (b *builder) group(nodes []plan.Node, op, empty string, depth int) string {
	if len(nodes) == 0 {
		return empty
	}
	parts := make([]string, len(nodes))
	for i, child := range nodes {
		parts[i] = b.where(child, depth)
	}
	return "(" + strings.Join(parts, op) + ")"
}

func (b *builder) exists(e plan.Exists, depth int) string {
	inner := alias(depth + 1)
	cond := b.join(e.Join, depth)
	if e.Where != nil {
		cond += " AND " + b.where(e.Where, depth+1)
	}
	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", b.d.quote(e.Table), inner, cond)
	if e.Negate {
		return "NOT " + sql
	}
	return sql
}

// compare renders a single condition
func (b *builder) compare(c plan.Compare, depth int) string {
	col := b.col(alias(depth), c.Column)
	if c.Agg != "" {
		col = fmt.Sprintf("%s(%s)", c.Agg, col)
	}

	switch c.Op {
	case plan.IsNull, plan.IsNotNull:
		return fmt.Sprintf("%s %s", col, c.Op)

	case plan.Contains, plan.StartsWith, plan.EndsWith:
		return b.d.match(b, col, c)

	case plan.In, plan.NotIn:
		placeholders := make([]string, len(c.Values))
		for i, v := range c.Values {
			placeholders[i] = b.fold(b.arg(v), c.Insensitive)
		}
		return fmt.Sprintf("%s %s (%s)", b.fold(col, c.Insensitive), c.Op, strings.Join(placeholders, ", "))
	}
	return fmt.Sprintf("%s %s %s", b.fold(col, c.Insensitive), c.Op, b.fold(b.arg(c.Value), c.Insensitive))
}

func (b *builder) fold(expr string, insensitive bool) string {
	if insensitive {
		return "LOWER(" + expr + ")"
	}
	return expr
}

// likePattern escapes LIKE wildcards in s with a backslash and adds the wildcards op needs.
func likePattern(op plan.Op, s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return wildcard(op, s, "%")
}

func wildcard(op plan.Op, s, wild string) string {
	switch op {
	case plan.Contains:
		return wild + s + wild
	case plan.StartsWith:
		return s + wild
	case plan.EndsWith:
		return wild + s
	}
	return s
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
