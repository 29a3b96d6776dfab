// Package plan defines the backend-agnostic query plans produced by the compiler. A plan
// names tables and columns, carries validated and coerced values, and leaves dialect details
// (quoting, placeholders, NULL ordering, upsert syntax) to query/sqlgen.
package plan

import (
	"github.com/satishbabariya/tdal/schema"
)

// Row is one result row keyed by field name. Relations hold a Row, nil or []Row.
type Row = map[string]any

// Op is a comparison operator.
type Op string

const (
	Eq         Op = "="
	Ne         Op = "<>"
	Lt         Op = "<"
	Lte        Op = "<="
	Gt         Op = ">"
	Gte        Op = ">="
	In         Op = "IN"
	NotIn      Op = "NOT IN"
	IsNull     Op = "IS NULL"
	IsNotNull  Op = "IS NOT NULL"
	Contains   Op = "CONTAINS"
	StartsWith Op = "STARTS WITH"
	EndsWith   Op = "ENDS WITH"
)

// Node is a predicate tree node.
type Node interface {
	node()
}

// And is a conjunction. An empty And is true.
type And []Node

// Or is a disjunction. An empty Or is false.
type Or []Node

// Not negates X.
type Not struct {
	X Node
}

// Compare tests a column of the current table.
type Compare struct {
	Column string
	Op     Op
	// Value is the operand of binary operators; Values holds the list of In and NotIn.
	Value  any
	Values []any
	// Insensitive folds case on both sides.
	Insensitive bool
	Type        schema.ScalarType
	// Agg wraps the column in an aggregate function; only valid in Aggregate.Having.
	Agg AggFunc
}

// Exists tests for related rows in another table. Join pairs a column of the current table
// (Outer) with a column of Table (Inner).
type Exists struct {
	Negate bool
	Table  string
	Join   []JoinKey
	Where  Node
}

// JoinKey correlates an outer and an inner column.
type JoinKey struct {
	Outer string
	Inner string
}

// Literal is a constant predicate.
type Literal bool

func (And) node()     {}
func (Or) node()      {}
func (Not) node()     {}
func (Compare) node() {}
func (Exists) node()  {}
func (Literal) node() {}

// Conjoin joins nodes with AND, dropping nil entries.
func Conjoin(nodes ...Node) Node {
	var out And
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// Column maps a field to its storage column.
type Column struct {
	Field string
	Name  string
	Type  schema.ScalarType
}

// Columns returns the plan columns of the given fields of e, in order.
func Columns(e *schema.Entity, fields []string) []Column {
	out := make([]Column, 0, len(fields))
	for _, name := range fields {
		if f, ok := e.Field(name); ok {
			out = append(out, Column{Field: f.Name, Name: f.Column, Type: f.Type})
		}
	}
	return out
}

// Order is one sort key.
type Order struct {
	Column string
	Desc   bool
	// Nulls is "first", "last" or empty for the database default.
	Nulls    string
	Nullable bool
	// Count, when set, sorts by the number of related rows instead of Column.
	Count *RelationCount
	// Agg sorts by an aggregate of Column; only valid in Aggregate.
	Agg AggFunc
}

// RelationCount counts rows of Table correlated by Join.
type RelationCount struct {
	Table string
	Join  []JoinKey
}

// Select reads rows of one table.
type Select struct {
	Entity  string
	Table   string
	Columns []Column
	Where   Node
	OrderBy []Order
	Limit   *int
	Offset  int
	// Reverse is set for negative take: OrderBy is already inverted and the fetched rows must
	// be reversed to restore the requested order.
	Reverse bool
	// Distinct de-duplicates on these fields after fetching. Limit and Offset then apply in
	// memory and the generated SQL carries neither.
	Distinct []string
}

// Window reports whether the statement itself should carry Limit and Offset.
func (s *Select) Window() bool {
	return len(s.Distinct) == 0
}

// AssignOp is the kind of a SET entry.
type AssignOp string

const (
	AssignSet AssignOp = "set"
	AssignAdd AssignOp = "add"
	AssignSub AssignOp = "sub"
	AssignMul AssignOp = "mul"
	AssignDiv AssignOp = "div"
)

// Assign is one SET entry.
type Assign struct {
	Column string
	Op     AssignOp
	Value  any
}

// Insert adds rows. Every row has a value for every column.
type Insert struct {
	Entity         string
	Table          string
	Columns        []string
	Rows           [][]any
	SkipDuplicates bool
	Returning      []Column
	// AutoIncrement is the column filled by the database, if any.
	AutoIncrement string
	// Key holds the primary key columns, used to read rows back where the backend has no
	// RETURNING clause.
	Key []string
	// Uniques describe the table's unique constraints for conflict reporting.
	Uniques []UniqueKey
}

// UniqueKey is a unique constraint of a written table.
type UniqueKey struct {
	Name    string
	Primary bool
	Fields  []string
	Columns []string
}

// Upsert inserts one row or, when ConflictColumns clash, updates it with Set.
type Upsert struct {
	Insert
	ConflictColumns []string
	Set             []Assign
}

// Update changes matching rows.
type Update struct {
	Entity  string
	Table   string
	Set     []Assign
	Where   Node
	Uniques []UniqueKey
}

// Delete removes matching rows.
type Delete struct {
	Entity string
	Table  string
	Where  Node
}

// AggFunc is an aggregate function.
type AggFunc string

const (
	AggCount    AggFunc = "COUNT"
	AggCountAll AggFunc = "COUNT(*)"
	AggAvg      AggFunc = "AVG"
	AggSum      AggFunc = "SUM"
	AggMin      AggFunc = "MIN"
	AggMax      AggFunc = "MAX"
)

// Aggregation is one computed value. Alias is the result column name.
type Aggregation struct {
	Func   AggFunc
	Column string
	Alias  string
	// Type is the type of the aggregated column, used to scan the result.
	Type schema.ScalarType
}

// Aggregate computes aggregates over the rows of Source, optionally grouped.
type Aggregate struct {
	Entity string
	// Source selects the rows to aggregate. When it carries OrderBy, Limit or Offset it is
	// rendered as a subquery.
	Source  *Select
	// Cursor reads the sort columns of a cursor row, as in Find.
	Cursor  *Select
	Funcs   []Aggregation
	GroupBy []Column
	Having  Node
	OrderBy []Order
	Limit   *int
	Offset  int
}
