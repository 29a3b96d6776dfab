package compiler

import (
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

var aggregateOrder = []ast.AggregateFunc{ast.AggCount, ast.AggAvg, ast.AggSum, ast.AggMin, ast.AggMax}

// Alias returns the result key of fn over field, e.g. "_avg.price" or "_count._all".
func Alias(fn ast.AggregateFunc, field string) string {
	return string(fn) + "." + field
}

// Count compiles count. Without fields it counts rows under "_count._all".
func (c *Compiler) Count(entity string, args *ast.CountArgs) (*plan.Aggregate, error) {
	if args == nil {
		args = &ast.CountArgs{}
	}
	fields := args.Select
	if len(fields) == 0 {
		fields = []string{ast.CountAll}
	}
	return c.Aggregate(entity, &ast.AggregateArgs{
		Where:   args.Where,
		OrderBy: args.OrderBy,
		Cursor:  args.Cursor,
		Skip:    args.Skip,
		Take:    args.Take,
		Count:   fields,
	})
}

// Aggregate compiles aggregate. The rows are windowed by the find arguments before they are
// aggregated.
func (c *Compiler) Aggregate(entity string, args *ast.AggregateArgs) (*plan.Aggregate, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = &ast.AggregateArgs{}
	}
	find, err := c.Find(e.Name, &ast.FindArgs{
		Where:   args.Where,
		OrderBy: args.OrderBy,
		Cursor:  args.Cursor,
		Skip:    args.Skip,
		Take:    args.Take,
	})
	if err != nil {
		return nil, err
	}
	funcs, err := c.aggregations(e, args.Aggregates())
	if err != nil {
		return nil, err
	}
	if len(funcs) == 0 {
		return nil, tdalerr.InvalidArgument(e.Name, "aggregate needs at least one of _count, _avg, _sum, _min or _max")
	}
	src := find.Select
	src.Columns = plan.Columns(e, e.ScalarNames())
	return &plan.Aggregate{Entity: e.Name, Source: src, Cursor: find.Cursor, Funcs: funcs}, nil
}

// GroupBy compiles groupBy. having and orderBy may only reference fields listed in by.
func (c *Compiler) GroupBy(entity string, args *ast.GroupByArgs) (*plan.Aggregate, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if args == nil || len(args.By) == 0 {
		return nil, tdalerr.InvalidArgument(e.Name, "groupBy needs at least one by field")
	}
	scope := &groupScope{by: map[string]bool{}}
	for _, name := range args.By {
		f, ok := e.Field(name)
		if !ok {
			return nil, tdalerr.UnknownField(e.Name, name)
		}
		if f.Type == schema.Json {
			return nil, tdalerr.InvalidGroupBy(e.Name, name, "cannot group by a Json field")
		}
		scope.by[name] = true
	}
	if args.Skip < 0 {
		return nil, tdalerr.InvalidArgument(e.Name, "skip must not be negative")
	}
	if args.Take != nil && *args.Take < 0 {
		return nil, tdalerr.InvalidArgument(e.Name, "groupBy take must not be negative")
	}
	where, err := c.where(e, args.Where)
	if err != nil {
		return nil, err
	}
	having, err := c.node(e, args.Having, scope)
	if err != nil {
		return nil, err
	}
	orderBy, err := c.orderKeys(e, args.OrderBy, scope)
	if err != nil {
		return nil, err
	}
	funcs, err := c.aggregations(e, args.Aggregates())
	if err != nil {
		return nil, err
	}
	return &plan.Aggregate{
		Entity: e.Name,
		Source: &plan.Select{
			Entity:  e.Name,
			Table:   e.Table,
			Columns: plan.Columns(e, e.ScalarNames()),
			Where:   where,
		},
		Funcs:   funcs,
		GroupBy: plan.Columns(e, union(args.By)),
		Having:  having,
		OrderBy: orderBy,
		Limit:   args.Take,
		Offset:  args.Skip,
	}, nil
}

func (c *Compiler) aggregations(e *schema.Entity, requested map[ast.AggregateFunc][]string) ([]plan.Aggregation, error) {
	var out []plan.Aggregation
	for _, fn := range aggregateOrder {
		for _, name := range union(requested[fn]) {
			if fn == ast.AggCount && name == ast.CountAll {
				out = append(out, plan.Aggregation{Func: plan.AggCountAll, Alias: Alias(fn, name), Type: schema.Int})
				continue
			}
			f, ok := e.Field(name)
			if !ok {
				return nil, tdalerr.UnknownField(e.Name, name)
			}
			typ, agg, err := aggregateType(e, f, fn)
			if err != nil {
				return nil, err
			}
			if (fn == ast.AggMin || fn == ast.AggMax) && !f.Type.IsOrdered() && f.Type != schema.EnumType && f.Type != schema.Boolean {
				return nil, tdalerr.InvalidArgument(e.Name, "%s cannot be applied to %s fields", fn, f.Type)
			}
			out = append(out, plan.Aggregation{Func: agg, Column: f.Column, Alias: Alias(fn, f.Name), Type: typ})
		}
	}
	return out, nil
}
