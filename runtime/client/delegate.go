package client

import (
	"context"
	"strings"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// Delegate runs operations on one entity. Every operation validates its arguments against
// the registry before touching the database.
type Delegate struct {
	c *Client
	e *schema.Entity
}

// Name returns the entity name.
func (d *Delegate) Name() string { return d.e.Name }

// Entity returns the entity definition.
func (d *Delegate) Entity() *schema.Entity { return d.e }

// run passes one operation through the client middlewares.
func run[T any](ctx context.Context, d *Delegate, op string, args any, fn func() (T, error)) (T, error) {
	out, err := d.c.intercept(ctx, d.e.Name, op, args, func() (any, error) {
		v, err := fn()
		return v, err
	})
	v, _ := out.(T)
	return v, err
}

// FindMany returns every row matching args, with the requested relations attached.
func (d *Delegate) FindMany(ctx context.Context, args *ast.FindArgs) ([]Row, error) {
	return run(ctx, d, "findMany", args, func() ([]Row, error) {
		return d.findMany(ctx, args)
	})
}

func (d *Delegate) findMany(ctx context.Context, args *ast.FindArgs) ([]Row, error) {
	find, err := d.c.compiler.Find(d.e.Name, args)
	if err != nil {
		return nil, err
	}
	q := d.c.querier()
	rows, err := d.c.exec.Find(ctx, q, find)
	if err != nil {
		return nil, err
	}
	if err := d.c.resolver.Resolve(ctx, q, d.e.Name, rows, find.Selection); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

// FindFirst returns the first row matching args, or nil. A negative take returns the last
// row of the ordering instead.
func (d *Delegate) FindFirst(ctx context.Context, args *ast.FindArgs) (Row, error) {
	return run(ctx, d, "findFirst", args, func() (Row, error) {
		return d.findFirst(ctx, args)
	})
}

// FindFirstOrThrow is FindFirst failing with NotFound when no row matches.
func (d *Delegate) FindFirstOrThrow(ctx context.Context, args *ast.FindArgs) (Row, error) {
	return run(ctx, d, "findFirstOrThrow", args, func() (Row, error) {
		row, err := d.findFirst(ctx, args)
		if err == nil && row == nil {
			err = tdalerr.NotFound(d.e.Name)
		}
		return row, err
	})
}

func (d *Delegate) findFirst(ctx context.Context, args *ast.FindArgs) (Row, error) {
	first := ast.FindArgs{}
	if args != nil {
		first = *args
	}
	take := 1
	if first.Take != nil && *first.Take < 0 {
		take = -1
	}
	first.Take = &take
	rows, err := d.findMany(ctx, &first)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FindUnique returns the row selected by a unique constraint, or nil.
func (d *Delegate) FindUnique(ctx context.Context, args *ast.UniqueArgs) (Row, error) {
	return run(ctx, d, "findUnique", args, func() (Row, error) {
		return d.findUnique(ctx, args)
	})
}

// FindUniqueOrThrow is FindUnique failing with NotFound when no row matches.
func (d *Delegate) FindUniqueOrThrow(ctx context.Context, args *ast.UniqueArgs) (Row, error) {
	return run(ctx, d, "findUniqueOrThrow", args, func() (Row, error) {
		row, err := d.findUnique(ctx, args)
		if err == nil && row == nil {
			err = tdalerr.NotFound(d.e.Name)
		}
		return row, err
	})
}

func (d *Delegate) findUnique(ctx context.Context, args *ast.UniqueArgs) (Row, error) {
	if args == nil {
		return nil, tdalerr.InvalidArgument(d.e.Name, "findUnique needs a where selector")
	}
	find, err := d.c.compiler.FindUnique(d.e.Name, args)
	if err != nil {
		return nil, err
	}
	q := d.c.querier()
	rows, err := d.c.exec.Find(ctx, q, find)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	if err := d.c.resolver.Resolve(ctx, q, d.e.Name, rows, find.Selection); err != nil {
		return nil, err
	}
	return rows[0], nil
}

// Resolve attaches the relations and counts named by include to rows previously read from
// this entity. The rows must carry the key fields of every included relation; fields they
// already hold are kept.
func (d *Delegate) Resolve(ctx context.Context, rows []Row, include ast.Include) error {
	_, err := run(ctx, d, "resolve", include, func() (struct{}, error) {
		return struct{}{}, d.resolve(ctx, rows, include)
	})
	return err
}

func (d *Delegate) resolve(ctx context.Context, rows []Row, include ast.Include) error {
	if include == nil {
		include = ast.Include{}
	}
	sel, err := d.c.compiler.Selection(d.e.Name, nil, include)
	if err != nil {
		return err
	}
	for _, key := range sel.KeyFields() {
		for _, row := range rows {
			if _, ok := row[key]; !ok {
				return &tdalerr.Error{
					Kind:    tdalerr.KindInvalidArgument,
					Entity:  d.e.Name,
					Field:   key,
					Message: "rows must carry the key field to resolve relations",
				}
			}
		}
	}
	sel.Fields = nil
	seen := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				sel.Fields = append(sel.Fields, k)
			}
		}
	}
	return d.c.resolver.Resolve(ctx, d.c.querier(), d.e.Name, rows, sel)
}

// Count returns the number of rows matching args. Use CountFields to count non-null values.
func (d *Delegate) Count(ctx context.Context, args *ast.CountArgs) (int64, error) {
	if args != nil && len(args.Select) > 0 {
		return 0, tdalerr.InvalidArgument(d.e.Name, "count with select returns per-field counts, use CountFields")
	}
	counts, err := d.CountFields(ctx, args)
	return counts[ast.CountAll], err
}

// CountFields counts rows under "_all" and the non-null values of each field in args.Select.
func (d *Delegate) CountFields(ctx context.Context, args *ast.CountArgs) (map[string]int64, error) {
	return run(ctx, d, "count", args, func() (map[string]int64, error) {
		return d.countFields(ctx, args)
	})
}

func (d *Delegate) countFields(ctx context.Context, args *ast.CountArgs) (map[string]int64, error) {
	a, err := d.c.compiler.Count(d.e.Name, args)
	if err != nil {
		return nil, err
	}
	rows, err := d.c.exec.Aggregate(ctx, d.c.querier(), a)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(a.Funcs))
	for _, fn := range a.Funcs {
		_, field, _ := strings.Cut(fn.Alias, ".")
		out[field] = 0
		if len(rows) > 0 {
			n, _ := rows[0][fn.Alias].(int64)
			out[field] = n
		}
	}
	return out, nil
}

// Aggregate computes _count, _avg, _sum, _min and _max over the rows matching args. The
// result nests values per function, e.g. {"_avg": {"price": 12.5}}.
func (d *Delegate) Aggregate(ctx context.Context, args *ast.AggregateArgs) (Row, error) {
	return run(ctx, d, "aggregate", args, func() (Row, error) {
		a, err := d.c.compiler.Aggregate(d.e.Name, args)
		if err != nil {
			return nil, err
		}
		rows, err := d.c.exec.Aggregate(ctx, d.c.querier(), a)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return Row{}, nil
		}
		return nest(rows[0]), nil
	})
}

// GroupBy groups the rows matching args by the by fields and aggregates each group.
func (d *Delegate) GroupBy(ctx context.Context, args *ast.GroupByArgs) ([]Row, error) {
	return run(ctx, d, "groupBy", args, func() ([]Row, error) {
		a, err := d.c.compiler.GroupBy(d.e.Name, args)
		if err != nil {
			return nil, err
		}
		rows, err := d.c.exec.Aggregate(ctx, d.c.querier(), a)
		if err != nil {
			return nil, err
		}
		out := make([]Row, len(rows))
		for i, r := range rows {
			out[i] = nest(r)
		}
		return out, nil
	})
}

// nest turns aggregate aliases such as "_sum.price" into {"_sum": {"price": ...}}.
func nest(r Row) Row {
	out := Row{}
	for key, v := range r {
		fn, field, ok := strings.Cut(key, ".")
		if !ok || !strings.HasPrefix(fn, "_") {
			out[key] = v
			continue
		}
		group, _ := out[fn].(map[string]any)
		if group == nil {
			group = map[string]any{}
			out[fn] = group
		}
		group[field] = v
	}
	return out
}
