package ast

// Data is a mutation payload. Scalar fields map to literal values or, on update, to a
// NumberOp. Relation fields map to a *RelationWrite.
type Data map[string]any

// NumberOpKind is an atomic arithmetic update.
type NumberOpKind string

const (
	NumSet       NumberOpKind = "set"
	NumIncrement NumberOpKind = "increment"
	NumDecrement NumberOpKind = "decrement"
	NumMultiply  NumberOpKind = "multiply"
	NumDivide    NumberOpKind = "divide"
)

// NumberOp updates a numeric field relative to its stored value.
type NumberOp struct {
	Kind  NumberOpKind
	Value any
}

// Increment adds v to the stored value.
func Increment(v any) NumberOp { return NumberOp{Kind: NumIncrement, Value: v} }

// Decrement subtracts v from the stored value.
func Decrement(v any) NumberOp { return NumberOp{Kind: NumDecrement, Value: v} }

// Multiply multiplies the stored value by v.
func Multiply(v any) NumberOp { return NumberOp{Kind: NumMultiply, Value: v} }

// Divide divides the stored value by v.
func Divide(v any) NumberOp { return NumberOp{Kind: NumDivide, Value: v} }

// RelationWrite is a nested write on a relation field.
//
// On create only Create, ConnectOrCreate and Connect are allowed. To-one relations take at
// most one element per list.
type RelationWrite struct {
	Create          []Data
	ConnectOrCreate []ConnectOrCreate
	Connect         []Unique
	// Set replaces every related row of a to-many relation. A non-nil empty Set disconnects all.
	Set        []Unique
	Disconnect []Unique
	Delete     []Unique
	Update     []NestedUpdate
	Upsert     []NestedUpsert
	UpdateMany []NestedUpdateMany
	DeleteMany []Expr
	// DisconnectOne and DeleteOne act on the current row of a to-one relation.
	DisconnectOne bool
	DeleteOne     bool
}

// ConnectOrCreate connects the row matching Where or creates it from Create.
type ConnectOrCreate struct {
	Where  Unique
	Create Data
}

// NestedUpdate updates a related row. Where is ignored for to-one relations.
type NestedUpdate struct {
	Where Unique
	Data  Data
}

// NestedUpsert updates the related row matching Where or creates it.
type NestedUpsert struct {
	Where  Unique
	Create Data
	Update Data
}

// NestedUpdateMany updates every related row matching Where.
type NestedUpdateMany struct {
	Where Expr
	Data  Data
}

// Connect links existing rows.
func Connect(u ...Unique) *RelationWrite { return &RelationWrite{Connect: u} }

// Create inserts related rows.
func Create(d ...Data) *RelationWrite { return &RelationWrite{Create: d} }

// CreateArgs are the arguments of create.
type CreateArgs struct {
	Data    Data
	Select  Select
	Include Include
}

// CreateManyArgs are the arguments of createMany and createManyAndReturn.
type CreateManyArgs struct {
	Data []Data
	// SkipDuplicates ignores rows that conflict with an existing unique value.
	SkipDuplicates bool
	Select         Select
}

// UpdateArgs are the arguments of update.
type UpdateArgs struct {
	Where   Unique
	Data    Data
	Select  Select
	Include Include
}

// UpdateManyArgs are the arguments of updateMany.
type UpdateManyArgs struct {
	Where Expr
	Data  Data
}

// UpsertArgs are the arguments of upsert.
type UpsertArgs struct {
	Where   Unique
	Create  Data
	Update  Data
	Select  Select
	Include Include
}

// DeleteArgs are the arguments of delete.
type DeleteArgs struct {
	Where   Unique
	Select  Select
	Include Include
}

// CountArgs are the arguments of count.
type CountArgs struct {
	Where   Expr
	OrderBy []Order
	Cursor  Unique
	Skip    int
	Take    *int
	// Select counts non-null values per field; CountAll counts rows.
	Select []string
}

// AggregateArgs are the arguments of aggregate. Each list names fields; Count also accepts
// CountAll.
type AggregateArgs struct {
	Where   Expr
	OrderBy []Order
	Cursor  Unique
	Skip    int
	Take    *int
	Count   []string
	Avg     []string
	Sum     []string
	Min     []string
	Max     []string
}

// GroupByArgs are the arguments of groupBy. Having may only reference fields listed in By.
type GroupByArgs struct {
	By      []string
	Where   Expr
	Having  Expr
	OrderBy []Order
	Skip    int
	Take    *int
	Count   []string
	Avg     []string
	Sum     []string
	Min     []string
	Max     []string
}

// Aggregates returns the requested fields per aggregate function.
func (a *AggregateArgs) Aggregates() map[AggregateFunc][]string {
	return aggregates(a.Count, a.Avg, a.Sum, a.Min, a.Max)
}

// Aggregates returns the requested fields per aggregate function.
func (a *GroupByArgs) Aggregates() map[AggregateFunc][]string {
	return aggregates(a.Count, a.Avg, a.Sum, a.Min, a.Max)
}

func aggregates(count, avg, sum, lo, hi []string) map[AggregateFunc][]string {
	out := map[AggregateFunc][]string{}
	for fn, fields := range map[AggregateFunc][]string{AggCount: count, AggAvg: avg, AggSum: sum, AggMin: lo, AggMax: hi} {
		if len(fields) > 0 {
			out[fn] = fields
		}
	}
	return out
}
