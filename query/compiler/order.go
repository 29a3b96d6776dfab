package compiler

import (
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

func (c *Compiler) orderBy(e *schema.Entity, order []ast.Order) ([]plan.Order, error) {
	return c.orderKeys(e, order, nil)
}

func (c *Compiler) orderKeys(e *schema.Entity, order []ast.Order, scope *groupScope) ([]plan.Order, error) {
	if len(order) == 0 {
		return nil, nil
	}
	out := make([]plan.Order, 0, len(order))
	for _, o := range order {
		po := plan.Order{}
		switch o.Direction {
		case "", ast.SortAsc:
		case ast.SortDesc:
			po.Desc = true
		default:
			return nil, tdalerr.InvalidArgument(e.Name, "unknown sort direction %q for %s", o.Direction, o.Field)
		}
		switch o.Nulls {
		case "":
		case ast.NullsFirst, ast.NullsLast:
			po.Nulls = string(o.Nulls)
		default:
			return nil, tdalerr.InvalidArgument(e.Name, "nulls must be first or last, got %q", o.Nulls)
		}

		if o.Count {
			if scope != nil {
				return nil, tdalerr.InvalidGroupBy(e.Name, o.Field, "groupBy cannot sort by a relation count")
			}
			rel, ok := e.Relation(o.Field)
			if !ok {
				return nil, tdalerr.UnknownRelation(e.Name, o.Field)
			}
			if rel.IsToOne() {
				return nil, tdalerr.InvalidArgument(e.Name, "only list relations can be sorted by count, %s is %s", rel.Name, rel.Cardinality)
			}
			if po.Nulls != "" {
				return nil, tdalerr.InvalidArgument(e.Name, "a relation count is never null")
			}
			target, err := c.reg.GetEntity(rel.Target)
			if err != nil {
				return nil, err
			}
			po.Count = &plan.RelationCount{Table: target.Table, Join: joinKeys(e, target, rel)}
			out = append(out, po)
			continue
		}

		f, ok := e.Field(o.Field)
		if !ok {
			if _, isRel := e.Relation(o.Field); isRel {
				return nil, tdalerr.InvalidArgument(e.Name, "cannot sort by relation %s", o.Field)
			}
			return nil, tdalerr.UnknownField(e.Name, o.Field)
		}
		po.Column = f.Column
		po.Nullable = f.Nullable
		if o.Aggregate != "" {
			if scope == nil {
				return nil, tdalerr.InvalidArgument(e.Name, "sorting by %s of %s is only allowed in groupBy", o.Aggregate, f.Name)
			}
			_, agg, err := aggregateType(e, f, o.Aggregate)
			if err != nil {
				return nil, err
			}
			po.Agg = agg
			po.Nullable = o.Aggregate != ast.AggCount
		} else if scope != nil && !scope.by[f.Name] {
			return nil, tdalerr.InvalidGroupBy(e.Name, f.Name, "orderBy references %s which is not in by", f.Name)
		}
		if f.Type == schema.Json || f.Type == schema.Bytes {
			return nil, tdalerr.InvalidArgument(e.Name, "%s fields are not sortable", f.Type)
		}
		out = append(out, po)
	}
	return out, nil
}

// reverse inverts every key, NULL placement included.
func reverse(order []plan.Order) []plan.Order {
	out := make([]plan.Order, len(order))
	for i, o := range order {
		o.Desc = !o.Desc
		switch o.Nulls {
		case string(ast.NullsFirst):
			o.Nulls = string(ast.NullsLast)
		case string(ast.NullsLast):
			o.Nulls = string(ast.NullsFirst)
		}
		out[i] = o
	}
	return out
}

// pinNulls makes NULL placement explicit on nullable keys: first when ascending and last when
// descending. Keyset predicates assume that placement on every backend.
func pinNulls(order []plan.Order) {
	for i := range order {
		o := &order[i]
		if o.Nullable && o.Nulls == "" && o.Count == nil {
			if o.Desc {
				o.Nulls = string(ast.NullsLast)
			} else {
				o.Nulls = string(ast.NullsFirst)
			}
		}
	}
}
