package compiler

import (
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
)

// Seek narrows find to the rows at or after the cursor row in the order of find.Select.
// cursor holds the sort columns of the cursor row keyed by column name; a nil cursor means the
// cursor row does not exist and nothing matches.
func Seek(find *plan.Find, cursor plan.Row) {
	seek(find.Select, find.Cursor, cursor)
}

// SeekAggregate narrows the source rows of a to the cursor position, as Seek does for finds.
func SeekAggregate(a *plan.Aggregate, cursor plan.Row) {
	seek(a.Source, a.Cursor, cursor)
}

func seek(s, lookup *plan.Select, cursor plan.Row) {
	if cursor == nil {
		s.Where = plan.Literal(false)
		return
	}
	types := map[string]plan.Column{}
	if lookup != nil {
		for _, col := range lookup.Columns {
			types[col.Name] = col
		}
	}

	var keyset plan.Or
	for i, o := range s.OrderBy {
		term := make(plan.And, 0, i+1)
		for _, prev := range s.OrderBy[:i] {
			term = append(term, equal(prev, cursor[prev.Column], types[prev.Column]))
		}
		term = append(term, after(o, cursor[o.Column], types[o.Column]))
		keyset = append(keyset, term)
	}
	all := make(plan.And, 0, len(s.OrderBy))
	for _, o := range s.OrderBy {
		all = append(all, equal(o, cursor[o.Column], types[o.Column]))
	}
	keyset = append(keyset, all)
	s.Where = plan.Conjoin(s.Where, keyset)
}

func equal(o plan.Order, v any, col plan.Column) plan.Node {
	if v == nil {
		return plan.Compare{Column: o.Column, Op: plan.IsNull, Type: col.Type}
	}
	return plan.Compare{Column: o.Column, Op: plan.Eq, Value: v, Type: col.Type}
}

// after matches values strictly after v in the direction and NULL placement of o.
func after(o plan.Order, v any, col plan.Column) plan.Node {
	nullsFirst := o.Nulls == string(ast.NullsFirst)
	nullsLast := o.Nulls == string(ast.NullsLast)
	if v == nil {
		if nullsFirst {
			return plan.Compare{Column: o.Column, Op: plan.IsNotNull, Type: col.Type}
		}
		return plan.Literal(false)
	}
	op := plan.Gt
	if o.Desc {
		op = plan.Lt
	}
	cmp := plan.Compare{Column: o.Column, Op: op, Value: v, Type: col.Type}
	if nullsLast {
		return plan.Or{cmp, plan.Compare{Column: o.Column, Op: plan.IsNull, Type: col.Type}}
	}
	return cmp
}
