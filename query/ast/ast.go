// Package ast defines the caller-facing query input: filters, sorting, pagination, selection
// sets and mutation payloads. Values are plain data; the compiler validates them against the
// schema.
package ast

// ComparisonOperator is the comparator of a filter leaf.
type ComparisonOperator string

const (
	OpEquals     ComparisonOperator = "equals"
	OpNotEquals  ComparisonOperator = "not"
	OpGreater    ComparisonOperator = "gt"
	OpLess       ComparisonOperator = "lt"
	OpGreaterEq  ComparisonOperator = "gte"
	OpLessEq     ComparisonOperator = "lte"
	OpIn         ComparisonOperator = "in"
	OpNotIn      ComparisonOperator = "notIn"
	OpContains   ComparisonOperator = "contains"
	OpStartsWith ComparisonOperator = "startsWith"
	OpEndsWith   ComparisonOperator = "endsWith"
)

// Operators lists every comparator in a stable order.
var Operators = []ComparisonOperator{
	OpEquals, OpNotEquals, OpGreater, OpLess, OpGreaterEq, OpLessEq,
	OpIn, OpNotIn, OpContains, OpStartsWith, OpEndsWith,
}

// IsText reports whether op only applies to text fields.
func (op ComparisonOperator) IsText() bool {
	return op == OpContains || op == OpStartsWith || op == OpEndsWith
}

// IsOrdering reports whether op compares by order.
func (op ComparisonOperator) IsOrdering() bool {
	return op == OpGreater || op == OpLess || op == OpGreaterEq || op == OpLessEq
}

// IsList reports whether op takes a list value.
func (op ComparisonOperator) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// QueryMode selects case sensitivity for text comparators.
type QueryMode string

const (
	ModeDefault     QueryMode = "default"
	ModeInsensitive QueryMode = "insensitive"
)

// RelationOperator filters on related rows.
type RelationOperator string

const (
	// To-many relations.
	RelSome  RelationOperator = "some"
	RelEvery RelationOperator = "every"
	RelNone  RelationOperator = "none"
	// To-one relations.
	RelIs    RelationOperator = "is"
	RelIsNot RelationOperator = "isNot"
)

// AggregateFunc names an aggregate.
type AggregateFunc string

const (
	AggCount AggregateFunc = "_count"
	AggAvg   AggregateFunc = "_avg"
	AggSum   AggregateFunc = "_sum"
	AggMin   AggregateFunc = "_min"
	AggMax   AggregateFunc = "_max"
)

// AggregateFuncs lists every aggregate in result order.
var AggregateFuncs = []AggregateFunc{AggCount, AggAvg, AggSum, AggMin, AggMax}

// CountAll is the _count key that counts rows rather than non-null values.
const CountAll = "_all"

// Expr is a node of a filter tree.
type Expr interface {
	expr()
}

// And matches when every child matches. An empty And matches everything.
type And []Expr

// Or matches when any child matches. An empty Or matches nothing.
type Or []Expr

// Not negates X.
type Not struct {
	X Expr
}

// Cond compares one field with a value.
type Cond struct {
	Field string
	Op    ComparisonOperator
	// Value is a scalar for most comparators and a slice for in and notIn.
	// A nil Value with equals or not tests for NULL.
	Value any
	Mode  QueryMode
	// Aggregate applies the comparison to an aggregate of Field. Only valid in groupBy having.
	Aggregate AggregateFunc
}

// Relation filters rows by their related rows.
type Relation struct {
	Name string
	Op   RelationOperator
	// Where is applied to the related rows. nil matches any related row; with is or isNot a
	// nil Where tests whether a related row exists at all.
	Where Expr
}

func (And) expr()      {}
func (Or) expr()       {}
func (Not) expr()      {}
func (Cond) expr()     {}
func (Relation) expr() {}

// Eq matches field == v, or field IS NULL when v is nil.
func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEquals, Value: v} }

// Ne matches field != v, or field IS NOT NULL when v is nil.
func Ne(field string, v any) Cond { return Cond{Field: field, Op: OpNotEquals, Value: v} }

// Gt matches field > v.
func Gt(field string, v any) Cond { return Cond{Field: field, Op: OpGreater, Value: v} }

// Gte matches field >= v.
func Gte(field string, v any) Cond { return Cond{Field: field, Op: OpGreaterEq, Value: v} }

// Lt matches field < v.
func Lt(field string, v any) Cond { return Cond{Field: field, Op: OpLess, Value: v} }

// Lte matches field <= v.
func Lte(field string, v any) Cond { return Cond{Field: field, Op: OpLessEq, Value: v} }

// In matches field against any of vs.
func In(field string, vs ...any) Cond { return Cond{Field: field, Op: OpIn, Value: vs} }

// NotIn matches field against none of vs.
func NotIn(field string, vs ...any) Cond { return Cond{Field: field, Op: OpNotIn, Value: vs} }

// Contains matches text fields containing s.
func Contains(field, s string) Cond { return Cond{Field: field, Op: OpContains, Value: s} }

// StartsWith matches text fields beginning with s.
func StartsWith(field, s string) Cond { return Cond{Field: field, Op: OpStartsWith, Value: s} }

// EndsWith matches text fields ending with s.
func EndsWith(field, s string) Cond { return Cond{Field: field, Op: OpEndsWith, Value: s} }

// Fold returns c compared case-insensitively.
func (c Cond) Fold() Cond {
	c.Mode = ModeInsensitive
	return c
}

// Some matches rows with at least one related row matching where.
func Some(relation string, where Expr) Relation {
	return Relation{Name: relation, Op: RelSome, Where: where}
}

// Every matches rows whose related rows all match where.
func Every(relation string, where Expr) Relation {
	return Relation{Name: relation, Op: RelEvery, Where: where}
}

// None matches rows with no related row matching where.
func None(relation string, where Expr) Relation {
	return Relation{Name: relation, Op: RelNone, Where: where}
}

// Is matches rows whose to-one related row matches where.
func Is(relation string, where Expr) Relation {
	return Relation{Name: relation, Op: RelIs, Where: where}
}

// IsNot matches rows whose to-one related row is missing or does not match where.
func IsNot(relation string, where Expr) Relation {
	return Relation{Name: relation, Op: RelIsNot, Where: where}
}

// SortDirection is the direction of one sort key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// NullsOrder places NULL values explicitly. The zero value leaves it to the database.
type NullsOrder string

const (
	NullsFirst NullsOrder = "first"
	NullsLast  NullsOrder = "last"
)

// Order is one sort key.
type Order struct {
	Field     string
	Direction SortDirection
	Nulls     NullsOrder
	// Count sorts by the number of related rows of the to-many relation named by Field.
	Count bool
	// Aggregate sorts groupBy buckets by an aggregate of Field.
	Aggregate AggregateFunc
}

// Asc sorts by field ascending.
func Asc(field string) Order { return Order{Field: field, Direction: SortAsc} }

// Desc sorts by field descending.
func Desc(field string) Order { return Order{Field: field, Direction: SortDesc} }

// NullsFirst returns o with NULLs sorted first.
func (o Order) NullsFirst() Order {
	o.Nulls = NullsFirst
	return o
}

// NullsLast returns o with NULLs sorted last.
func (o Order) NullsLast() Order {
	o.Nulls = NullsLast
	return o
}

// Unique addresses a single row. Keys are field names covering a unique constraint; a
// composite constraint may also be given as its key ("orderId_variantId") mapped to a Unique
// of its parts. Extra fields act as additional equality filters.
type Unique map[string]any

// Nested carries the arguments of a selected or included relation.
type Nested struct {
	Where    Expr
	OrderBy  []Order
	Skip     int
	Take     *int
	Distinct []string
	Select   Select
	Include  Include
}

// Select lists the fields of a result. Scalars map to nil; relations map to nil for their
// full rows or to Nested arguments. The key "_count" with a Nested whose Select names to-many
// relations attaches relation counts.
type Select map[string]*Nested

// Include lists relations added to every scalar field. See Select for "_count".
type Include map[string]*Nested

// CountKey is the result key of relation counts.
const CountKey = "_count"

// FindArgs are the arguments of findUnique, findFirst and findMany.
type FindArgs struct {
	Where Expr
	// OrderBy gives no stability guarantee between rows that compare equal on every key.
	// Callers paging through results must end the list with a unique field.
	OrderBy []Order
	Cursor  Unique
	Skip    int
	// Take limits the result. A negative Take returns the last |Take| rows before the cursor
	// or the end of the ordered result.
	Take     *int
	Distinct []string
	Select   Select
	Include  Include
}

// UniqueArgs are the arguments of findUnique.
type UniqueArgs struct {
	Where   Unique
	Select  Select
	Include Include
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
