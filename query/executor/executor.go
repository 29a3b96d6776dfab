// Package executor runs compiled plans through a database/sql connection and scans the results
// into rows keyed by field name.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/satishbabariya/tdal/internal/debug"
	"github.com/satishbabariya/tdal/query/compiler"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/query/sqlgen"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// Querier runs statements. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Executor executes plans. It keeps no per-call state and may be shared.
type Executor struct {
	generator     sqlgen.Generator
	logger        *slog.Logger
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger for statements. The default is debug.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithSlowThreshold sets the duration above which a statement counts as slow. Zero disables
// slow query detection.
func WithSlowThreshold(d time.Duration) Option {
	return func(e *Executor) { e.slowThreshold = d }
}

// WithSlowQueryHook replaces the warning logged for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(e *Executor) { e.slowHook = hook }
}

// WithStats shares counters between executors.
func WithStats(s *QueryStats) Option {
	return func(e *Executor) { e.stats = s }
}

// New returns an executor that renders statements with gen.
func New(gen sqlgen.Generator, opts ...Option) *Executor {
	e := &Executor{
		generator:     gen,
		logger:        debug.Logger(),
		stats:         &QueryStats{},
		slowThreshold: DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generator returns the SQL generator.
func (e *Executor) Generator() sqlgen.Generator { return e.generator }

// Stats returns the statement counters.
func (e *Executor) Stats() *QueryStats { return e.stats }

// Find runs a compiled read. When the plan has a cursor, the cursor row is read first and the
// query is narrowed to the rows from it on; a missing cursor row yields no rows.
func (e *Executor) Find(ctx context.Context, q Querier, find *plan.Find) ([]plan.Row, error) {
	s := find.Select
	if find.Cursor != nil {
		cursor, err := e.cursorRow(ctx, q, find.Cursor)
		if err != nil {
			return nil, err
		}
		seeked := *find
		sel := *find.Select
		seeked.Select = &sel
		compiler.Seek(&seeked, cursor)
		s = seeked.Select
	}
	return e.Select(ctx, q, s)
}

// Select runs a plain read. Distinct, and with it skip and take, are applied to the fetched
// rows; reversed reads are put back into the requested order.
func (e *Executor) Select(ctx context.Context, q Querier, s *plan.Select) ([]plan.Row, error) {
	rows, err := e.query(ctx, q, s.Entity, e.generator.GenerateSelect(s), s.Columns)
	if err != nil {
		return nil, err
	}
	if !s.Window() {
		rows = Paginate(Distinct(rows, s.Distinct), s.Offset, s.Limit)
	}
	if s.Reverse {
		slices.Reverse(rows)
	}
	return rows, nil
}

func (e *Executor) cursorRow(ctx context.Context, q Querier, lookup *plan.Select) (plan.Row, error) {
	one := 1
	s := *lookup
	s.Limit = &one
	rows, err := e.Select(ctx, q, &s)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Aggregate runs an aggregation. Each row holds the group columns by field name and the
// aggregations by alias.
func (e *Executor) Aggregate(ctx context.Context, q Querier, a *plan.Aggregate) ([]plan.Row, error) {
	if a.Cursor != nil {
		cursor, err := e.cursorRow(ctx, q, a.Cursor)
		if err != nil {
			return nil, err
		}
		seeked := *a
		src := *a.Source
		seeked.Source = &src
		compiler.SeekAggregate(&seeked, cursor)
		a = &seeked
	}
	cols := make([]plan.Column, 0, len(a.GroupBy)+len(a.Funcs))
	cols = append(cols, a.GroupBy...)
	for _, f := range a.Funcs {
		cols = append(cols, plan.Column{Field: f.Alias, Name: f.Alias, Type: f.Type})
	}
	return e.query(ctx, q, a.Entity, e.generator.GenerateAggregate(a), cols)
}

// Count returns the number of rows of table matching where.
func (e *Executor) Count(ctx context.Context, q Querier, entity, table string, where plan.Node) (int64, error) {
	const alias = "_count._all"
	rows, err := e.Aggregate(ctx, q, &plan.Aggregate{
		Entity: entity,
		Source: &plan.Select{Entity: entity, Table: table, Where: where},
		Funcs:  []plan.Aggregation{{Func: plan.AggCountAll, Alias: alias, Type: schema.Int}},
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := rows[0][alias].(int64)
	return n, nil
}

// Insert writes the rows of ins and returns them as stored, in order. Rows skipped as
// duplicates are not returned. Without RETURNING support each row is inserted on its own and
// read back by primary key.
func (e *Executor) Insert(ctx context.Context, q Querier, ins *plan.Insert) ([]plan.Row, error) {
	rows, err := e.insert(ctx, q, ins)
	if err != nil {
		return nil, describeConflict(err, ins.Uniques, rowValues(ins))
	}
	return rows, nil
}

func (e *Executor) insert(ctx context.Context, q Querier, ins *plan.Insert) ([]plan.Row, error) {
	if len(ins.Rows) == 0 {
		return nil, nil
	}
	if e.generator.Returning() && len(ins.Columns) > 0 {
		return e.query(ctx, q, ins.Entity, e.generator.GenerateInsert(ins), ins.Returning)
	}

	var out []plan.Row
	for i := range ins.Rows {
		one := *ins
		one.Rows = ins.Rows[i : i+1]
		if e.generator.Returning() {
			rows, err := e.query(ctx, q, ins.Entity, e.generator.GenerateInsert(&one), ins.Returning)
			if err != nil {
				return nil, describeConflict(err, ins.Uniques, rowValues(&one))
			}
			out = append(out, rows...)
			continue
		}
		res, err := e.exec(ctx, q, ins.Entity, e.generator.GenerateInsert(&one))
		if err != nil {
			return nil, describeConflict(err, ins.Uniques, rowValues(&one))
		}
		if ins.SkipDuplicates {
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				continue
			}
		}
		key, err := insertedKey(ins, ins.Rows[i], res)
		if err != nil {
			return nil, err
		}
		row, err := e.readBack(ctx, q, ins, key)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// InsertCount writes the rows of ins and returns how many were stored.
func (e *Executor) InsertCount(ctx context.Context, q Querier, ins *plan.Insert) (int64, error) {
	if len(ins.Rows) == 0 {
		return 0, nil
	}
	stmt := *ins
	stmt.Returning = nil
	if len(ins.Columns) > 0 {
		res, err := e.exec(ctx, q, ins.Entity, e.generator.GenerateInsert(&stmt))
		if err != nil {
			return 0, describeConflict(err, ins.Uniques, rowValues(ins))
		}
		return res.RowsAffected()
	}
	var total int64
	for i := range ins.Rows {
		stmt.Rows = ins.Rows[i : i+1]
		res, err := e.exec(ctx, q, ins.Entity, e.generator.GenerateInsert(&stmt))
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Upsert runs a native upsert and returns the resulting row.
func (e *Executor) Upsert(ctx context.Context, q Querier, up *plan.Upsert) (plan.Row, error) {
	row, err := e.upsert(ctx, q, up)
	if err != nil {
		return nil, describeConflict(err, up.Uniques, rowValues(&up.Insert))
	}
	return row, nil
}

func (e *Executor) upsert(ctx context.Context, q Querier, up *plan.Upsert) (plan.Row, error) {
	stmt := e.generator.GenerateUpsert(up)
	if e.generator.Returning() {
		rows, err := e.query(ctx, q, up.Entity, stmt, up.Returning)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, tdalerr.NotFound(up.Entity)
		}
		return rows[0], nil
	}
	res, err := e.exec(ctx, q, up.Entity, stmt)
	if err != nil {
		return nil, err
	}
	// One affected row means the create payload was inserted; otherwise the update ran and may
	// have moved the conflict column to a new value.
	key := map[string]any{}
	for _, col := range up.ConflictColumns {
		if i := slices.Index(up.Columns, col); i >= 0 {
			key[col] = up.Rows[0][i]
		}
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		for _, a := range up.Set {
			if a.Op == plan.AssignSet && slices.Contains(up.ConflictColumns, a.Column) {
				key[a.Column] = a.Value
			}
		}
	}
	return e.readBack(ctx, q, &up.Insert, key)
}

// Update applies u and returns the number of matching rows. An update without assignments
// only counts them.
func (e *Executor) Update(ctx context.Context, q Querier, u *plan.Update) (int64, error) {
	if len(u.Set) == 0 {
		return e.Count(ctx, q, u.Entity, u.Table, u.Where)
	}
	res, err := e.exec(ctx, q, u.Entity, e.generator.GenerateUpdate(u))
	if err != nil {
		return 0, describeConflict(err, u.Uniques, setValues(u.Set))
	}
	return res.RowsAffected()
}

// Delete removes the rows matched by d and returns how many were removed.
func (e *Executor) Delete(ctx context.Context, q Querier, d *plan.Delete) (int64, error) {
	res, err := e.exec(ctx, q, d.Entity, e.generator.GenerateDelete(d))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insertedKey returns the primary key of a row just inserted without RETURNING.
func insertedKey(ins *plan.Insert, values []any, res sql.Result) (map[string]any, error) {
	key := make(map[string]any, len(ins.Key))
	for _, col := range ins.Key {
		if i := slices.Index(ins.Columns, col); i >= 0 {
			key[col] = values[i]
			continue
		}
		if col != ins.AutoIncrement {
			return nil, fmt.Errorf("insert into %s: no value for key column %s", ins.Table, col)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", ins.Table, err)
		}
		key[col] = id
	}
	return key, nil
}

// readBack selects the row of ins.Table whose columns equal key.
func (e *Executor) readBack(ctx context.Context, q Querier, ins *plan.Insert, key map[string]any) (plan.Row, error) {
	var where plan.And
	for _, col := range ins.Returning {
		if v, ok := key[col.Name]; ok {
			if v == nil {
				where = append(where, plan.Compare{Column: col.Name, Op: plan.IsNull, Type: col.Type})
				continue
			}
			where = append(where, plan.Compare{Column: col.Name, Op: plan.Eq, Value: v, Type: col.Type})
		}
	}
	one := 1
	rows, err := e.Select(ctx, q, &plan.Select{
		Entity:  ins.Entity,
		Table:   ins.Table,
		Columns: ins.Returning,
		Where:   where,
		Limit:   &one,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, tdalerr.NotFound(ins.Entity)
	}
	return rows[0], nil
}

func (e *Executor) query(ctx context.Context, q Querier, entity string, stmt *sqlgen.Query, cols []plan.Column) ([]plan.Row, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		e.record(ctx, stmt.SQL, stmt.Args, start, err, true)
		return nil, tdalerr.FromDriver(err, entity)
	}
	defer rows.Close()
	out, err := scanRows(rows, cols)
	e.record(ctx, stmt.SQL, stmt.Args, start, err, true)
	if err != nil {
		return nil, tdalerr.FromDriver(err, entity)
	}
	return out, nil
}

func (e *Executor) exec(ctx context.Context, q Querier, entity string, stmt *sqlgen.Query) (sql.Result, error) {
	start := time.Now()
	res, err := q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	e.record(ctx, stmt.SQL, stmt.Args, start, err, false)
	if err != nil {
		return nil, tdalerr.FromDriver(err, entity)
	}
	return res, nil
}
