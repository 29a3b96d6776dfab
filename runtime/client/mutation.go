package client

import (
	"context"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// write runs fn directly, or atomically when the operation spans several dependent statements.
func (c *Client) write(ctx context.Context, atomic bool, fn TransactionFunc) error {
	if atomic {
		return c.atomic(ctx, fn)
	}
	return fn(ctx, c)
}

// project shapes a freshly written row of e by sel: relations are loaded and unselected
// fields dropped.
func (c *Client) project(ctx context.Context, e *schema.Entity, row Row, sel *plan.Selection) (Row, error) {
	rows := []Row{row}
	if err := c.resolver.Resolve(ctx, c.querier(), e.Name, rows, sel); err != nil {
		return nil, err
	}
	return rows[0], nil
}

// Create inserts one row with its nested writes and returns it shaped by args.Select or
// args.Include. Nested writes run in one transaction.
func (d *Delegate) Create(ctx context.Context, args *ast.CreateArgs) (Row, error) {
	return run(ctx, d, "create", args, func() (Row, error) {
		if args == nil {
			return nil, tdalerr.InvalidArgument(d.e.Name, "create needs data")
		}
		sel, err := d.c.compiler.Selection(d.e.Name, args.Select, args.Include)
		if err != nil {
			return nil, err
		}
		if err := d.c.validateCreate(d.e, args.Data, nil); err != nil {
			return nil, err
		}
		var out Row
		err = d.c.write(ctx, hasRelationWrites(d.e, args.Data), func(ctx context.Context, c *Client) error {
			row, err := c.create(ctx, d.e, args.Data)
			if err != nil {
				return err
			}
			out, err = c.project(ctx, d.e, row, sel)
			return err
		})
		return out, err
	})
}

// CreateMany inserts flat rows and returns how many were inserted. With SkipDuplicates, rows
// conflicting with an existing unique value are skipped.
func (d *Delegate) CreateMany(ctx context.Context, args *ast.CreateManyArgs) (int64, error) {
	return run(ctx, d, "createMany", args, func() (int64, error) {
		if args == nil {
			return 0, nil
		}
		inserts, err := d.c.compiler.Insert(d.e.Name, args.Data, args.SkipDuplicates)
		if err != nil {
			return 0, err
		}
		var total int64
		err = d.c.write(ctx, len(inserts) > 1, func(ctx context.Context, c *Client) error {
			for _, ins := range inserts {
				n, err := c.exec.InsertCount(ctx, c.querier(), ins)
				if err != nil {
					return err
				}
				total += n
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		return total, nil
	})
}

// CreateManyAndReturn inserts flat rows and returns the inserted rows shaped by args.Select.
// Relations cannot be selected.
func (d *Delegate) CreateManyAndReturn(ctx context.Context, args *ast.CreateManyArgs) ([]Row, error) {
	return run(ctx, d, "createManyAndReturn", args, func() ([]Row, error) {
		if args == nil {
			return []Row{}, nil
		}
		sel, err := d.c.compiler.Selection(d.e.Name, args.Select, nil)
		if err != nil {
			return nil, err
		}
		if !sel.Empty() {
			return nil, tdalerr.InvalidArgument(d.e.Name, "createManyAndReturn cannot select relations")
		}
		inserts, err := d.c.compiler.Insert(d.e.Name, args.Data, args.SkipDuplicates)
		if err != nil {
			return nil, err
		}
		out := []Row{}
		err = d.c.write(ctx, len(inserts) > 1, func(ctx context.Context, c *Client) error {
			for _, ins := range inserts {
				rows, err := c.exec.Insert(ctx, c.querier(), ins)
				if err != nil {
					return err
				}
				out = append(out, rows...)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if err := d.c.resolver.Resolve(ctx, d.c.querier(), d.e.Name, out, sel); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Update updates the row selected by args.Where and applies the nested writes of args.Data.
// It fails with NotFound when no row matches.
func (d *Delegate) Update(ctx context.Context, args *ast.UpdateArgs) (Row, error) {
	return run(ctx, d, "update", args, func() (Row, error) {
		if args == nil {
			return nil, tdalerr.InvalidArgument(d.e.Name, "update needs a where selector")
		}
		where, err := d.c.compiler.Unique(d.e.Name, args.Where)
		if err != nil {
			return nil, err
		}
		sel, err := d.c.compiler.Selection(d.e.Name, args.Select, args.Include)
		if err != nil {
			return nil, err
		}
		if err := d.c.validateUpdate(d.e, args.Data); err != nil {
			return nil, err
		}
		var out Row
		err = d.c.write(ctx, hasRelationWrites(d.e, args.Data), func(ctx context.Context, c *Client) error {
			row, err := c.updateOne(ctx, d.e, where, args.Data)
			if err != nil {
				return err
			}
			out, err = c.project(ctx, d.e, row, sel)
			return err
		})
		return out, err
	})
}

// UpdateMany applies a flat update to every row matching args.Where and returns how many
// matched.
func (d *Delegate) UpdateMany(ctx context.Context, args *ast.UpdateManyArgs) (int64, error) {
	return run(ctx, d, "updateMany", args, func() (int64, error) {
		if args == nil {
			return 0, tdalerr.InvalidArgument(d.e.Name, "updateMany needs data")
		}
		where, err := d.c.compiler.Where(d.e.Name, args.Where)
		if err != nil {
			return 0, err
		}
		u, err := d.c.compiler.Update(d.e.Name, where, args.Data)
		if err != nil {
			return 0, err
		}
		return d.c.exec.Update(ctx, d.c.querier(), u)
	})
}

// Upsert updates the row selected by args.Where, or creates it from args.Create when none
// exists. Flat payloads keyed on exactly one unique constraint, whose values the create payload
// repeats, run as one native statement. Everything else reads and then writes in a transaction.
func (d *Delegate) Upsert(ctx context.Context, args *ast.UpsertArgs) (Row, error) {
	return run(ctx, d, "upsert", args, func() (Row, error) {
		if args == nil {
			return nil, tdalerr.InvalidArgument(d.e.Name, "upsert needs a where selector")
		}
		where, err := d.c.compiler.Unique(d.e.Name, args.Where)
		if err != nil {
			return nil, err
		}
		sel, err := d.c.compiler.Selection(d.e.Name, args.Select, args.Include)
		if err != nil {
			return nil, err
		}
		if err := d.c.validateCreate(d.e, args.Create, nil); err != nil {
			return nil, err
		}
		if err := d.c.validateUpdate(d.e, args.Update); err != nil {
			return nil, err
		}

		up, native, err := d.c.compiler.Upsert(d.e.Name, args.Where, args.Create, args.Update)
		if err != nil {
			return nil, err
		}
		if native {
			row, err := d.c.exec.Upsert(ctx, d.c.querier(), up)
			if err != nil {
				return nil, err
			}
			return d.c.project(ctx, d.e, row, sel)
		}

		var out Row
		err = d.c.atomic(ctx, func(ctx context.Context, c *Client) error {
			current, err := c.selectOne(ctx, d.e, where)
			if err != nil {
				return err
			}
			var row Row
			if current == nil {
				row, current, err = c.createOrFind(ctx, d.e, where, args.Create)
				if err != nil {
					return err
				}
			}
			if current != nil {
				if row, err = c.updateByKey(ctx, d.e, current, args.Update); err != nil {
					return err
				}
			}
			out, err = c.project(ctx, d.e, row, sel)
			return err
		})
		return out, err
	})
}

// beforeUpsertCreate runs between the lookup and the insert of an upsert that could not be
// expressed as one statement. Tests use it to insert a competing row.
var beforeUpsertCreate func(ctx context.Context, tx *Client)

// createOrFind inserts data under a savepoint. When the insert loses a race on a unique key to
// a row now matching where, that row is returned as current instead.
func (c *Client) createOrFind(ctx context.Context, e *schema.Entity, where plan.Node, data ast.Data) (created, current Row, err error) {
	if beforeUpsertCreate != nil {
		beforeUpsertCreate(ctx, c)
	}
	err = c.Transaction(ctx, func(ctx context.Context, sp *Client) error {
		var err error
		created, err = sp.create(ctx, e, data)
		return err
	})
	if err == nil || !tdalerr.IsUniqueViolation(err) {
		return created, nil, err
	}
	current, lookupErr := c.selectOne(ctx, e, where)
	if lookupErr != nil || current == nil {
		return nil, nil, err
	}
	return nil, current, nil
}

// Delete removes the row selected by args.Where and returns it as it was, shaped by
// args.Select or args.Include. It fails with NotFound when no row matches.
func (d *Delegate) Delete(ctx context.Context, args *ast.DeleteArgs) (Row, error) {
	return run(ctx, d, "delete", args, func() (Row, error) {
		if args == nil {
			return nil, tdalerr.InvalidArgument(d.e.Name, "delete needs a where selector")
		}
		where, err := d.c.compiler.Unique(d.e.Name, args.Where)
		if err != nil {
			return nil, err
		}
		sel, err := d.c.compiler.Selection(d.e.Name, args.Select, args.Include)
		if err != nil {
			return nil, err
		}
		var out Row
		err = d.c.write(ctx, !sel.Empty(), func(ctx context.Context, c *Client) error {
			row, err := c.selectOne(ctx, d.e, where)
			if err != nil {
				return err
			}
			if row == nil {
				return tdalerr.NotFound(d.e.Name)
			}
			if out, err = c.project(ctx, d.e, row, sel); err != nil {
				return err
			}
			n, err := c.deleteWhere(ctx, d.e, where)
			if err != nil {
				return err
			}
			if n == 0 {
				return tdalerr.NotFound(d.e.Name)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// DeleteMany removes every row matching where and returns how many were removed.
func (d *Delegate) DeleteMany(ctx context.Context, where ast.Expr) (int64, error) {
	return run(ctx, d, "deleteMany", where, func() (int64, error) {
		node, err := d.c.compiler.Where(d.e.Name, where)
		if err != nil {
			return 0, err
		}
		return d.c.deleteWhere(ctx, d.e, node)
	})
}
