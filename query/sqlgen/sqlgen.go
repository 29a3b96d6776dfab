// Package sqlgen generates SQL for different database providers.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

// Query represents a SQL query with arguments
type Query struct {
	SQL  string
	Args []any
}

// Generator generates SQL for a specific provider
type Generator interface {
	Provider() string
	// Returning reports whether INSERT statements can return the written rows.
	Returning() bool
	GenerateSelect(s *plan.Select) *Query
	GenerateInsert(ins *plan.Insert) *Query
	GenerateUpsert(up *plan.Upsert) *Query
	GenerateUpdate(u *plan.Update) *Query
	GenerateDelete(d *plan.Delete) *Query
	GenerateAggregate(a *plan.Aggregate) *Query
}

// NewGenerator creates a new SQL generator for the given provider
func NewGenerator(provider string) (Generator, error) {
	switch provider {
	case "postgresql", "postgres":
		return &PostgresGenerator{generator{postgres{}}}, nil
	case "mysql":
		return &MySQLGenerator{generator{mysql{}}}, nil
	case "sqlite", "sqlite3":
		return &SQLiteGenerator{generator{sqlite{}}}, nil
	}
	return nil, fmt.Errorf("sqlgen: unsupported provider %q", provider)
}

// PostgresGenerator generates PostgreSQL SQL
type PostgresGenerator struct{ generator }

// MySQLGenerator generates MySQL SQL
type MySQLGenerator struct{ generator }

// SQLiteGenerator generates SQLite SQL
type SQLiteGenerator struct{ generator }

// dialect holds what differs between providers.
type dialect interface {
	name() string
	quote(name string) string
	placeholder(n int) string
	returning() bool
	// match renders contains / startsWith / endsWith.
	match(b *builder, col string, c plan.Compare) string
	// orderTerms renders one sort key, emulating NULL placement where needed.
	orderTerms(expr string, o plan.Order) []string
	// window renders LIMIT / OFFSET.
	window(limit *int, offset int) string
	insertVerb(skipDuplicates bool) string
	insertSuffix(ins *plan.Insert) string
	// upsert renders the conflict clause of an upsert.
	upsert(b *builder, up *plan.Upsert) string
	defaultValues() string
}

type generator struct {
	d dialect
}

func (g *generator) Provider() string { return g.d.name() }
func (g *generator) Returning() bool  { return g.d.returning() }

// builder accumulates arguments for one statement. Every table gets an alias t<depth> so that
// correlated subqueries can reach the outer row.
type builder struct {
	d    dialect
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

func (b *builder) col(alias, name string) string {
	if alias == "" {
		return b.d.quote(name)
	}
	return alias + "." + b.d.quote(name)
}

func alias(depth int) string {
	return fmt.Sprintf("t%d", depth)
}

func (g *generator) GenerateSelect(s *plan.Select) *Query {
	b := &builder{d: g.d}
	return &Query{SQL: b.selectSQL(s, 0), Args: b.args}
}

func (b *builder) selectSQL(s *plan.Select, depth int) string {
	var parts []string
	a := alias(depth)

	// SELECT columns
	if len(s.Columns) == 0 {
		parts = append(parts, "SELECT "+a+".*")
	} else {
		cols := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = b.col(a, c.Name)
		}
		parts = append(parts, "SELECT "+strings.Join(cols, ", "))
	}

	// FROM table
	parts = append(parts, fmt.Sprintf("FROM %s AS %s", b.d.quote(s.Table), a))

	// WHERE clause
	if s.Where != nil {
		parts = append(parts, "WHERE "+b.where(s.Where, depth))
	}

	// ORDER BY
	if len(s.OrderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(b.orderBy(s.OrderBy, depth), ", "))
	}

	// LIMIT / OFFSET
	if s.Window() {
		if w := b.d.window(s.Limit, s.Offset); w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, " ")
}

func (b *builder) orderBy(order []plan.Order, depth int) []string {
	var out []string
	for _, o := range order {
		var expr string
		switch {
		case o.Count != nil:
			inner := alias(depth + 1)
			expr = fmt.Sprintf("(SELECT COUNT(*) FROM %s AS %s WHERE %s)",
				b.d.quote(o.Count.Table), inner, b.join(o.Count.Join, depth))
		case o.Agg != "":
			expr = fmt.Sprintf("%s(%s)", o.Agg, b.col(alias(depth), o.Column))
		default:
			expr = b.col(alias(depth), o.Column)
		}
		out = append(out, b.d.orderTerms(expr, o)...)
	}
	return out
}

// join correlates the table at depth+1 with the one at depth.
func (b *builder) join(keys []plan.JoinKey, depth int) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s = %s", b.col(alias(depth+1), k.Inner), b.col(alias(depth), k.Outer))
	}
	return strings.Join(parts, " AND ")
}

func (g *generator) GenerateInsert(ins *plan.Insert) *Query {
	b := &builder{d: g.d}
	var parts []string

	parts = append(parts, g.d.insertVerb(ins.SkipDuplicates)+" "+g.d.quote(ins.Table))
	parts = append(parts, b.values(ins))
	if s := g.d.insertSuffix(ins); s != "" {
		parts = append(parts, s)
	}
	if g.d.returning() && len(ins.Returning) > 0 {
		parts = append(parts, "RETURNING "+b.returning(ins.Returning))
	}
	return &Query{SQL: strings.Join(parts, " "), Args: b.args}
}

func (g *generator) GenerateUpsert(up *plan.Upsert) *Query {
	b := &builder{d: g.d}
	var parts []string

	parts = append(parts, "INSERT INTO "+g.d.quote(up.Table))
	parts = append(parts, b.values(&up.Insert))
	parts = append(parts, g.d.upsert(b, up))
	if g.d.returning() && len(up.Returning) > 0 {
		parts = append(parts, "RETURNING "+b.returning(up.Returning))
	}
	return &Query{SQL: strings.Join(parts, " "), Args: b.args}
}

// values renders the column list and VALUES rows of ins.
func (b *builder) values(ins *plan.Insert) string {
	if len(ins.Columns) == 0 {
		return b.d.defaultValues()
	}
	cols := make([]string, len(ins.Columns))
	for i, c := range ins.Columns {
		cols[i] = b.d.quote(c)
	}
	rows := make([]string, len(ins.Rows))
	for i, row := range ins.Rows {
		placeholders := make([]string, len(row))
		for j, v := range row {
			placeholders[j] = b.arg(v)
		}
		rows[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}
	return fmt.Sprintf("(%s) VALUES %s", strings.Join(cols, ", "), strings.Join(rows, ", "))
}

func (b *builder) returning(cols []plan.Column) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = b.d.quote(c.Name)
	}
	return strings.Join(out, ", ")
}

// assignments renders SET entries; qualify prefixes the current value of arithmetic updates.
func (b *builder) assignments(set []plan.Assign, qualify string) string {
	parts := make([]string, len(set))
	for i, a := range set {
		target := b.d.quote(a.Column)
		current := target
		if qualify != "" {
			current = qualify + "." + target
		}
		switch a.Op {
		case plan.AssignAdd:
			parts[i] = fmt.Sprintf("%s = %s + %s", target, current, b.arg(a.Value))
		case plan.AssignSub:
			parts[i] = fmt.Sprintf("%s = %s - %s", target, current, b.arg(a.Value))
		case plan.AssignMul:
			parts[i] = fmt.Sprintf("%s = %s * %s", target, current, b.arg(a.Value))
		case plan.AssignDiv:
			parts[i] = fmt.Sprintf("%s = %s / %s", target, current, b.arg(a.Value))
		default:
			parts[i] = fmt.Sprintf("%s = %s", target, b.arg(a.Value))
		}
	}
	return strings.Join(parts, ", ")
}

func (g *generator) GenerateUpdate(u *plan.Update) *Query {
	b := &builder{d: g.d}
	var parts []string

	parts = append(parts, fmt.Sprintf("UPDATE %s AS %s", g.d.quote(u.Table), alias(0)))
	parts = append(parts, "SET "+b.assignments(u.Set, alias(0)))
	if u.Where != nil {
		parts = append(parts, "WHERE "+b.where(u.Where, 0))
	}
	return &Query{SQL: strings.Join(parts, " "), Args: b.args}
}

func (g *generator) GenerateDelete(d *plan.Delete) *Query {
	b := &builder{d: g.d}
	var parts []string

	parts = append(parts, fmt.Sprintf("DELETE FROM %s AS %s", g.d.quote(d.Table), alias(0)))
	if d.Where != nil {
		parts = append(parts, "WHERE "+b.where(d.Where, 0))
	}
	return &Query{SQL: strings.Join(parts, " "), Args: b.args}
}
