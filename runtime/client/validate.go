package client

import (
	"slices"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// validateCreate checks a create payload and its nested writes before any statement runs.
// provided lists fields the enclosing write fills in, such as the foreign key of a nested
// create.
func (c *Client) validateCreate(e *schema.Entity, data ast.Data, provided []string) error {
	scalars, writes, err := c.compiler.SplitData(e.Name, data)
	if err != nil {
		return err
	}
	for name, v := range scalars {
		if op, ok := v.(ast.NumberOp); ok && op.Kind != ast.NumSet {
			return tdalerr.InvalidArgument(e.Name, "%s on %s is only valid in updates", op.Kind, name)
		}
		if slices.Contains(provided, name) {
			return &tdalerr.Error{Kind: tdalerr.KindInvalidArgument, Entity: e.Name, Field: name, Message: "field is set by the enclosing relation write"}
		}
	}
	if _, err := c.compiler.UpdateSet(e.Name, scalars); err != nil {
		return err
	}

	filled := slices.Clone(provided)
	for name, w := range writes {
		rel, _ := e.Relation(name)
		if err := c.validateWrite(e, rel, w, true); err != nil {
			return err
		}
		if rel.IsOwner() {
			if err := ownerKeysUnset(e, rel, scalars); err != nil {
				return err
			}
			filled = append(filled, rel.LocalKeys()...)
		}
	}
	for _, f := range e.Fields {
		if _, ok := scalars[f.Name]; ok || f.Nullable || f.HasDefault() || slices.Contains(filled, f.Name) {
			continue
		}
		return &tdalerr.Error{Kind: tdalerr.KindInvalidArgument, Entity: e.Name, Field: f.Name, Message: "missing required field"}
	}
	return nil
}

// validateUpdate checks an update payload and its nested writes.
func (c *Client) validateUpdate(e *schema.Entity, data ast.Data) error {
	scalars, writes, err := c.compiler.SplitData(e.Name, data)
	if err != nil {
		return err
	}
	if _, err := c.compiler.UpdateSet(e.Name, scalars); err != nil {
		return err
	}
	for _, name := range e.PrimaryKey().Fields {
		if op, ok := scalars[name].(ast.NumberOp); ok && op.Kind != ast.NumSet {
			return &tdalerr.Error{Kind: tdalerr.KindInvalidArgument, Entity: e.Name, Field: name, Message: "primary key fields only take plain values"}
		}
	}
	for name, w := range writes {
		rel, _ := e.Relation(name)
		if err := c.validateWrite(e, rel, w, false); err != nil {
			return err
		}
		if rel.IsOwner() {
			if err := ownerKeysUnset(e, rel, scalars); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateScalarUpdate checks an updateMany payload, which cannot carry relation writes.
func (c *Client) validateScalarUpdate(e *schema.Entity, data ast.Data) error {
	_, err := c.compiler.UpdateSet(e.Name, data)
	return err
}

func ownerKeysUnset(e *schema.Entity, rel *schema.Relation, scalars ast.Data) error {
	for _, k := range rel.LocalKeys() {
		if _, ok := scalars[k]; ok {
			return &tdalerr.Error{
				Kind:     tdalerr.KindInvalidArgument,
				Entity:   e.Name,
				Field:    k,
				Relation: rel.Name,
				Message:  "foreign key is written both directly and through the relation",
			}
		}
	}
	return nil
}

func (c *Client) validateWrite(e *schema.Entity, rel *schema.Relation, w *ast.RelationWrite, creating bool) error {
	target, err := c.reg.GetEntity(rel.Target)
	if err != nil {
		return err
	}
	invalid := func(format string, args ...any) error {
		err := tdalerr.InvalidArgument(e.Name, format, args...)
		err.Relation = rel.Name
		return err
	}

	if creating && (w.Set != nil || len(w.Disconnect) > 0 || len(w.Delete) > 0 || len(w.Update) > 0 ||
		len(w.Upsert) > 0 || len(w.UpdateMany) > 0 || len(w.DeleteMany) > 0 || w.DisconnectOne || w.DeleteOne) {
		return invalid("a create only takes create, connectOrCreate and connect")
	}
	if rel.IsToOne() {
		if w.Set != nil || len(w.Disconnect) > 0 || len(w.Delete) > 0 || len(w.UpdateMany) > 0 || len(w.DeleteMany) > 0 {
			return invalid("set, disconnect, delete, updateMany and deleteMany need a list relation")
		}
		if directives(w) > 1 {
			return invalid("a single relation takes one nested write at a time")
		}
	} else if w.DisconnectOne || w.DeleteOne {
		return invalid("disconnecting or deleting the current row needs a single relation")
	}

	// Fields the write fills in on the target.
	var provided []string
	if !rel.IsOwner() {
		provided = rel.TargetKeys()
	}
	nullableKeys := true
	for _, k := range rel.TargetKeys() {
		if f, ok := target.Field(k); ok && !f.Nullable {
			nullableKeys = false
		}
	}
	if rel.IsOwner() {
		if (w.DisconnectOne || w.DeleteOne) && rel.Cardinality != schema.NullableOne {
			return invalid("a required relation cannot be disconnected")
		}
	} else if (w.Set != nil || len(w.Disconnect) > 0 || w.DisconnectOne) && !nullableKeys {
		return invalid("rows of %s cannot be disconnected, their foreign key is required", target.Name)
	}

	createData := func(d ast.Data) error {
		if inv := rel.Inverse(); inv != "" && !rel.IsOwner() {
			if _, ok := d[inv]; ok {
				return invalid("a nested create cannot write the relation %s back to %s", inv, e.Name)
			}
		}
		return c.validateCreate(target, d, provided)
	}
	unique := func(u ast.Unique) error {
		_, _, err := c.compiler.UniqueValues(target.Name, u)
		return err
	}

	for _, d := range w.Create {
		if err := createData(d); err != nil {
			return err
		}
	}
	for _, co := range w.ConnectOrCreate {
		if err := unique(co.Where); err != nil {
			return err
		}
		if err := createData(co.Create); err != nil {
			return err
		}
	}
	for _, list := range [][]ast.Unique{w.Connect, w.Set, w.Disconnect, w.Delete} {
		for _, u := range list {
			if err := unique(u); err != nil {
				return err
			}
		}
	}
	for _, nu := range w.Update {
		if !rel.IsToOne() {
			if err := unique(nu.Where); err != nil {
				return err
			}
		}
		if err := c.validateUpdate(target, nu.Data); err != nil {
			return err
		}
	}
	for _, up := range w.Upsert {
		if !rel.IsToOne() {
			if err := unique(up.Where); err != nil {
				return err
			}
		}
		if err := createData(up.Create); err != nil {
			return err
		}
		if err := c.validateUpdate(target, up.Update); err != nil {
			return err
		}
	}
	for _, um := range w.UpdateMany {
		if _, err := c.compiler.Where(target.Name, um.Where); err != nil {
			return err
		}
		if err := c.validateScalarUpdate(target, um.Data); err != nil {
			return err
		}
	}
	for _, expr := range w.DeleteMany {
		if _, err := c.compiler.Where(target.Name, expr); err != nil {
			return err
		}
	}
	return nil
}

// directives counts the operations requested by w.
func directives(w *ast.RelationWrite) int {
	n := len(w.Create) + len(w.ConnectOrCreate) + len(w.Connect) + len(w.Disconnect) + len(w.Delete) +
		len(w.Update) + len(w.Upsert) + len(w.UpdateMany) + len(w.DeleteMany)
	if w.Set != nil {
		n++
	}
	if w.DisconnectOne {
		n++
	}
	if w.DeleteOne {
		n++
	}
	return n
}

func hasRelationWrites(e *schema.Entity, data ast.Data) bool {
	for key := range data {
		if _, ok := e.Relation(key); ok {
			return true
		}
	}
	return false
}
