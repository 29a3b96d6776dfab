// Package compiler validates query arguments against the schema registry and compiles them
// into backend-agnostic plans.
package compiler

import (
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// Compiler compiles query arguments for the entities of one registry. It holds no mutable
// state and is safe for concurrent use.
type Compiler struct {
	reg   *schema.Registry
	now   func() time.Time
	newID func() string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithClock sets the source of now() defaults and @updatedAt values.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) { c.now = now }
}

// WithIDGenerator sets the source of uuid() defaults.
func WithIDGenerator(fn func() string) Option {
	return func(c *Compiler) { c.newID = fn }
}

// New returns a compiler for reg.
func New(reg *schema.Registry, opts ...Option) *Compiler {
	c := &Compiler{
		reg:   reg,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry the compiler validates against.
func (c *Compiler) Registry() *schema.Registry { return c.reg }

// Find compiles findMany / findFirst arguments.
func (c *Compiler) Find(entity string, args *ast.FindArgs) (*plan.Find, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = &ast.FindArgs{}
	}
	sel, err := c.selection(e, args.Select, args.Include)
	if err != nil {
		return nil, err
	}
	where, err := c.where(e, args.Where)
	if err != nil {
		return nil, err
	}
	if err := c.checkFields(e, args.Distinct); err != nil {
		return nil, err
	}
	if args.Skip < 0 {
		return nil, tdalerr.InvalidArgument(e.Name, "skip must not be negative")
	}
	out := &plan.Find{Selection: sel}
	s := &plan.Select{
		Entity:   e.Name,
		Table:    e.Table,
		Columns:  plan.Columns(e, union(sel.Fields, sel.KeyFields(), args.Distinct)),
		Where:    where,
		Offset:   args.Skip,
		Distinct: args.Distinct,
	}
	out.Select = s

	order := args.OrderBy
	var cursorFields []string
	if args.Cursor != nil {
		values, u, err := c.uniqueValues(e, args.Cursor)
		if err != nil {
			return nil, err
		}
		if len(order) == 0 {
			for _, f := range u.Fields {
				order = append(order, ast.Asc(f))
			}
		}
		cursorFields = sortedFields(e, values)
		out.Cursor = &plan.Select{Entity: e.Name, Table: e.Table, Where: c.eqAll(e, values, cursorFields)}
	}
	if len(order) == 0 && args.Take != nil && *args.Take < 0 {
		for _, f := range e.PrimaryKey().Fields {
			order = append(order, ast.Asc(f))
		}
	}
	if s.OrderBy, err = c.orderBy(e, order); err != nil {
		return nil, err
	}
	if out.Cursor != nil {
		pinNulls(s.OrderBy)
		for _, o := range s.OrderBy {
			if o.Count != nil {
				return nil, tdalerr.InvalidArgument(e.Name, "cursor pagination cannot sort by a relation count")
			}
			f := fieldByColumn(e, o.Column)
			out.Cursor.Columns = append(out.Cursor.Columns, plan.Column{Field: o.Column, Name: o.Column, Type: f.Type})
		}
	}
	if args.Take != nil {
		take := *args.Take
		if take < 0 {
			take = -take
			s.Reverse = true
			s.OrderBy = reverse(s.OrderBy)
		}
		s.Limit = &take
	}
	return out, nil
}

// FindUnique compiles findUnique arguments: a find whose where names a unique constraint.
func (c *Compiler) FindUnique(entity string, args *ast.UniqueArgs) (*plan.Find, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	where, err := c.Unique(e.Name, args.Where)
	if err != nil {
		return nil, err
	}
	sel, err := c.selection(e, args.Select, args.Include)
	if err != nil {
		return nil, err
	}
	one := 1
	return &plan.Find{
		Select: &plan.Select{
			Entity:  e.Name,
			Table:   e.Table,
			Columns: plan.Columns(e, union(sel.Fields, sel.KeyFields())),
			Where:   where,
			Limit:   &one,
		},
		Selection: sel,
	}, nil
}

// Selection compiles a select / include pair for entity.
func (c *Compiler) Selection(entity string, sel ast.Select, inc ast.Include) (*plan.Selection, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	return c.selection(e, sel, inc)
}

// Where compiles a filter for entity. A nil filter compiles to nil.
func (c *Compiler) Where(entity string, expr ast.Expr) (plan.Node, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	return c.where(e, expr)
}

// Select returns a plain read of the given fields of entity, all scalars when fields is empty.
func (c *Compiler) Select(entity string, where plan.Node, fields ...string) (*plan.Select, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = e.ScalarNames()
	}
	if err := c.checkFields(e, fields); err != nil {
		return nil, err
	}
	return &plan.Select{Entity: e.Name, Table: e.Table, Columns: plan.Columns(e, fields), Where: where}, nil
}

func (c *Compiler) checkFields(e *schema.Entity, fields []string) error {
	for _, name := range fields {
		if _, ok := e.Field(name); !ok {
			return tdalerr.UnknownField(e.Name, name)
		}
	}
	return nil
}

func fieldByColumn(e *schema.Entity, column string) *schema.Field {
	for _, f := range e.Fields {
		if f.Column == column {
			return f
		}
	}
	return &schema.Field{Name: column, Column: column}
}

// union concatenates lists without duplicates, keeping first occurrences in order.
func union(lists ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, l := range lists {
		for _, s := range l {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
