// Package resolver attaches related rows and relation counts to the rows of a read. Each
// relation of a level is loaded with one batched query covering every parent, so a read costs
// one statement per relation per level regardless of the number of rows.
package resolver

import (
	"context"
	"database/sql"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/tdal/query/executor"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// DefaultConcurrency bounds the sibling loads in flight for one level.
const DefaultConcurrency = 4

// countKey holds relation counts in a resolved row.
const countKey = "_count"

// Resolver loads relation selections.
type Resolver struct {
	exec        *executor.Executor
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConcurrency sets how many sibling loads may run at once on a pool. Values below one
// mean one.
func WithConcurrency(n int) Option {
	return func(r *Resolver) { r.concurrency = n }
}

// New returns a resolver issuing its queries through exec.
func New(exec *executor.Executor, opts ...Option) *Resolver {
	r := &Resolver{exec: exec, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve attaches the relations and counts of sel to rows of entity, then trims every row to
// the selected fields. Sibling loads run concurrently when q is a pool; on a transaction or a
// single connection they run one after another.
func (r *Resolver) Resolve(ctx context.Context, q executor.Querier, entity string, rows []plan.Row, sel *plan.Selection) error {
	limit := 1
	if _, ok := q.(*sql.DB); ok && r.concurrency > 1 {
		limit = r.concurrency
	}
	return r.resolve(ctx, q, entity, rows, sel, limit)
}

func (r *Resolver) resolve(ctx context.Context, q executor.Querier, entity string, rows []plan.Row, sel *plan.Selection, limit int) error {
	if sel == nil {
		return nil
	}
	if len(rows) > 0 && !sel.Empty() {
		related := make([][]any, len(sel.Relations))
		counts := make([][]int64, len(sel.Counts))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, load := range sel.Relations {
			g.Go(func() error {
				out, err := r.relation(gctx, q, entity, rows, load, limit)
				related[i] = out
				return err
			})
		}
		for i, c := range sel.Counts {
			g.Go(func() error {
				out, err := r.count(gctx, q, rows, c)
				counts[i] = out
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, load := range sel.Relations {
			for j, row := range rows {
				row[load.Name] = related[i][j]
			}
		}
		if len(sel.Counts) > 0 {
			for j, row := range rows {
				m := make(map[string]any, len(sel.Counts))
				for i, c := range sel.Counts {
					m[c.Name] = counts[i][j]
				}
				row[countKey] = m
			}
		}
	}
	prune(rows, sel)
	return nil
}

// relation loads one relation for all parents and returns the value to attach to each: a
// []plan.Row for to-many relations, a plan.Row or nil for to-one relations.
func (r *Resolver) relation(ctx context.Context, q executor.Querier, entity string, parents []plan.Row, load *plan.RelationLoad, limit int) ([]any, error) {
	tuples, keys := parentKeys(parents, load.LocalKeys)
	toMany := load.Cardinality == schema.Many
	groups := map[string][]plan.Row{}

	if len(tuples) > 0 {
		s := *load.Query
		s.Where = plan.Conjoin(plan.KeyIn(load.KeyColumns, tuples), load.Query.Where)
		s.Reverse = false
		children, err := r.exec.Select(ctx, q, &s)
		if err != nil {
			return nil, err
		}
		groups = GroupByKey(children, rowKey(load.TargetKeys))

		var kept []plan.Row
		for _, t := range tuples {
			k := tupleKey(t)
			g := groups[k]
			if toMany {
				g = executor.Paginate(executor.Distinct(g, load.Distinct), load.Skip, load.Take)
				if load.Query.Reverse {
					slices.Reverse(g)
				}
			} else if len(g) > 1 {
				var value any = t
				if len(t) == 1 {
					value = t[0]
				}
				return nil, tdalerr.CardinalityViolation(entity, load.Name, value, len(g))
			}
			groups[k] = g
			kept = append(kept, g...)
		}
		if err := r.resolve(ctx, q, load.Target, kept, load.Selection, limit); err != nil {
			return nil, err
		}
	}

	out := make([]any, len(parents))
	used := map[string]bool{}
	// a null parent key ("") matches no group
	for i, g := range OrderGroupsByKeys(keys, groups) {
		k := keys[i]
		// parents sharing a key get their own copies
		shared := used[k]
		used[k] = true
		if toMany {
			list := make([]plan.Row, len(g))
			for j, c := range g {
				if shared {
					c = maps.Clone(c)
				}
				list[j] = c
			}
			out[i] = list
			continue
		}
		if len(g) == 1 {
			c := g[0]
			if shared {
				c = maps.Clone(c)
			}
			out[i] = c
		}
	}
	return out, nil
}

// count counts the related rows of every parent with one grouped aggregate.
func (r *Resolver) count(ctx context.Context, q executor.Querier, parents []plan.Row, c *plan.CountLoad) ([]int64, error) {
	const alias = "_count._all"
	tuples, keys := parentKeys(parents, c.LocalKeys)
	out := make([]int64, len(parents))
	if len(tuples) == 0 {
		return out, nil
	}
	rows, err := r.exec.Aggregate(ctx, q, &plan.Aggregate{
		Entity: c.Table,
		Source: &plan.Select{
			Entity: c.Table,
			Table:  c.Table,
			Where:  plan.Conjoin(plan.KeyIn(c.KeyColumns, tuples), c.Where),
		},
		Funcs:   []plan.Aggregation{{Func: plan.AggCountAll, Alias: alias, Type: schema.Int}},
		GroupBy: c.KeyColumns,
	})
	if err != nil {
		return nil, err
	}

	fields := make([]string, len(c.KeyColumns))
	for i, col := range c.KeyColumns {
		fields[i] = col.Field
	}
	key := rowKey(fields)
	byKey := make(map[string]int64, len(rows))
	for _, row := range rows {
		n, _ := row[alias].(int64)
		byKey[key(row)] = n
	}
	for i, k := range keys {
		if k != "" {
			out[i] = byKey[k]
		}
	}
	return out, nil
}

// prune drops the key columns fetched only to join relations.
func prune(rows []plan.Row, sel *plan.Selection) {
	keep := make(map[string]bool, len(sel.Fields)+len(sel.Relations)+1)
	for _, f := range sel.Fields {
		keep[f] = true
	}
	for _, l := range sel.Relations {
		keep[l.Name] = true
	}
	if len(sel.Counts) > 0 {
		keep[countKey] = true
	}
	for _, row := range rows {
		for k := range row {
			if !keep[k] {
				delete(row, k)
			}
		}
	}
}
