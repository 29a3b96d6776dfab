package compiler

import (
	"strings"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// SplitData separates the scalar part of a payload from its relation writes.
func (c *Compiler) SplitData(entity string, data ast.Data) (ast.Data, map[string]*ast.RelationWrite, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, nil, err
	}
	scalars := ast.Data{}
	var writes map[string]*ast.RelationWrite
	for key, v := range data {
		if _, ok := e.Field(key); ok {
			scalars[key] = v
			continue
		}
		if _, ok := e.Relation(key); !ok {
			return nil, nil, tdalerr.UnknownField(e.Name, key)
		}
		var w *ast.RelationWrite
		switch rw := v.(type) {
		case *ast.RelationWrite:
			w = rw
		case ast.RelationWrite:
			w = &rw
		default:
			return nil, nil, tdalerr.InvalidArgument(e.Name, "relation %s takes a nested write, got %T", key, v)
		}
		if w == nil {
			continue
		}
		if writes == nil {
			writes = map[string]*ast.RelationWrite{}
		}
		writes[key] = w
	}
	return scalars, writes, nil
}

// Insert compiles rows of scalar payloads. Client-side defaults are filled in; rows with the
// same column set share one statement, and statements keep the order of first appearance.
func (c *Compiler) Insert(entity string, rows []ast.Data, skipDuplicates bool) ([]*plan.Insert, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	var out []*plan.Insert
	groups := map[string]*plan.Insert{}
	returning := plan.Columns(e, e.ScalarNames())
	auto := ""
	for _, f := range e.Fields {
		if f.Default != nil && f.Default.Kind == schema.DefaultAutoIncrement {
			auto = f.Column
		}
	}
	var pk []string
	for _, col := range plan.Columns(e, e.PrimaryKey().Fields) {
		pk = append(pk, col.Name)
	}
	uniques := uniqueKeys(e)

	for _, data := range rows {
		var cols []string
		var values []any
		for key := range data {
			if _, ok := e.Field(key); !ok {
				if _, isRel := e.Relation(key); isRel {
					return nil, tdalerr.InvalidArgument(e.Name, "relation %s cannot be written by a flat insert", key)
				}
				return nil, tdalerr.UnknownField(e.Name, key)
			}
		}
		for _, f := range e.Fields {
			v, present := data[f.Name]
			if present {
				if op, ok := v.(ast.NumberOp); ok {
					if op.Kind != ast.NumSet {
						return nil, tdalerr.InvalidArgument(e.Name, "%s on %s is only valid in updates", op.Kind, f.Name)
					}
					v = op.Value
				}
				if v == nil && !f.Nullable {
					return nil, &tdalerr.Error{Kind: tdalerr.KindInvalidArgument, Entity: e.Name, Field: f.Name, Message: "field is required and cannot be null"}
				}
				cv, err := c.coerce(e, f, v)
				if err != nil {
					return nil, err
				}
				cols = append(cols, f.Column)
				values = append(values, cv)
				continue
			}
			var v2 any
			switch {
			case f.UpdatedAt:
				v2 = now
			case f.Default == nil:
				if !f.Nullable {
					return nil, &tdalerr.Error{Kind: tdalerr.KindInvalidArgument, Entity: e.Name, Field: f.Name, Message: "missing required field"}
				}
			case f.Default.Kind == schema.DefaultAutoIncrement:
				continue
			case f.Default.Kind == schema.DefaultNow:
				v2 = now
			case f.Default.Kind == schema.DefaultUUID:
				v2 = c.newID()
			case f.Default.Kind == schema.DefaultLiteral:
				if v2, err = c.coerce(e, f, f.Default.Value); err != nil {
					return nil, err
				}
			}
			cols = append(cols, f.Column)
			values = append(values, v2)
		}

		shape := strings.Join(cols, ",")
		ins, ok := groups[shape]
		if !ok {
			ins = &plan.Insert{
				Entity:         e.Name,
				Table:          e.Table,
				Columns:        cols,
				SkipDuplicates: skipDuplicates,
				Returning:      returning,
				AutoIncrement:  auto,
				Key:            pk,
				Uniques:        uniques,
			}
			groups[shape] = ins
			out = append(out, ins)
		}
		ins.Rows = append(ins.Rows, values)
	}
	return out, nil
}

// UpdateSet compiles the scalar part of an update payload. @updatedAt fields not named in
// data are refreshed.
func (c *Compiler) UpdateSet(entity string, data ast.Data) ([]plan.Assign, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	return c.updateSet(e, data)
}

func (c *Compiler) updateSet(e *schema.Entity, data ast.Data) ([]plan.Assign, error) {
	for key := range data {
		if _, ok := e.Field(key); !ok {
			if _, isRel := e.Relation(key); isRel {
				return nil, tdalerr.InvalidArgument(e.Name, "relation %s cannot be written by a flat update", key)
			}
			return nil, tdalerr.UnknownField(e.Name, key)
		}
	}
	var (
		out     []plan.Assign
		touched bool
		err     error
	)
	for _, f := range e.Fields {
		v, present := data[f.Name]
		if !present {
			continue
		}
		touched = true
		a := plan.Assign{Column: f.Column, Op: plan.AssignSet}
		if op, ok := v.(ast.NumberOp); ok {
			if op.Kind != ast.NumSet && !f.Type.IsNumeric() {
				return nil, tdalerr.InvalidArgument(e.Name, "%s needs a numeric field, %s is %s", op.Kind, f.Name, f.Type)
			}
			switch op.Kind {
			case ast.NumSet:
			case ast.NumIncrement:
				a.Op = plan.AssignAdd
			case ast.NumDecrement:
				a.Op = plan.AssignSub
			case ast.NumMultiply:
				a.Op = plan.AssignMul
			case ast.NumDivide:
				a.Op = plan.AssignDiv
			default:
				return nil, tdalerr.InvalidArgument(e.Name, "unknown number operation %q on %s", op.Kind, f.Name)
			}
			if a.Op != plan.AssignSet && op.Value == nil {
				return nil, tdalerr.InvalidArgument(e.Name, "%s on %s needs a value", op.Kind, f.Name)
			}
			v = op.Value
		}
		if v == nil && !f.Nullable {
			return nil, &tdalerr.Error{Kind: tdalerr.KindInvalidArgument, Entity: e.Name, Field: f.Name, Message: "field is required and cannot be null"}
		}
		if a.Value, err = c.coerce(e, f, v); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if touched {
		now := c.now().UTC()
		for _, f := range e.Fields {
			if _, present := data[f.Name]; f.UpdatedAt && !present {
				out = append(out, plan.Assign{Column: f.Column, Op: plan.AssignSet, Value: now})
			}
		}
	}
	return out, nil
}

// Update compiles an update of the rows matching where.
func (c *Compiler) Update(entity string, where plan.Node, data ast.Data) (*plan.Update, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	set, err := c.updateSet(e, data)
	if err != nil {
		return nil, err
	}
	return &plan.Update{Entity: e.Name, Table: e.Table, Set: set, Where: where, Uniques: uniqueKeys(e)}, nil
}

func uniqueKeys(e *schema.Entity) []plan.UniqueKey {
	out := make([]plan.UniqueKey, len(e.Uniques))
	for i, u := range e.Uniques {
		k := plan.UniqueKey{Name: u.Name, Primary: u.Primary, Fields: u.Fields}
		for _, col := range plan.Columns(e, u.Fields) {
			k.Columns = append(k.Columns, col.Name)
		}
		out[i] = k
	}
	return out
}

// Delete compiles a delete of the rows matching where.
func (c *Compiler) Delete(entity string, where plan.Node) (*plan.Delete, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	return &plan.Delete{Entity: e.Name, Table: e.Table, Where: where}, nil
}

// Upsert compiles a native upsert. ok is false when the arguments cannot be expressed as one
// statement: a payload carries relation writes, the selector names more than the fields of one
// unique constraint, or the create payload does not set the selected values.
func (c *Compiler) Upsert(entity string, where ast.Unique, create, update ast.Data) (up *plan.Upsert, ok bool, err error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, false, err
	}
	values, u, err := c.uniqueValues(e, where)
	if err != nil {
		return nil, false, err
	}
	if len(values) != len(u.Fields) || hasRelations(e, create) || hasRelations(e, update) {
		return nil, false, nil
	}
	conflict := make([]string, 0, len(u.Fields))
	for _, name := range u.Fields {
		f, _ := e.Field(name)
		raw, present := create[f.Name]
		if !present {
			return nil, false, nil
		}
		cv, err := c.coerce(e, f, raw)
		if err != nil {
			return nil, false, err
		}
		if !equalValues(cv, values[f.Name]) {
			return nil, false, nil
		}
		conflict = append(conflict, f.Column)
	}

	inserts, err := c.Insert(e.Name, []ast.Data{create}, false)
	if err != nil {
		return nil, false, err
	}
	set, err := c.updateSet(e, update)
	if err != nil {
		return nil, false, err
	}
	return &plan.Upsert{Insert: *inserts[0], ConflictColumns: conflict, Set: set}, true, nil
}

func hasRelations(e *schema.Entity, data ast.Data) bool {
	for key := range data {
		if _, ok := e.Relation(key); ok {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && string(ab) == string(bb)
	}
	return a == b
}
