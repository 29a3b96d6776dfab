package compiler

import (
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// Unique compiles a unique selector into an equality filter. The selector must cover a
// unique constraint of entity.
func (c *Compiler) Unique(entity string, u ast.Unique) (plan.Node, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	values, _, err := c.uniqueValues(e, u)
	if err != nil {
		return nil, err
	}
	return c.eqAll(e, values, sortedFields(e, values)), nil
}

// UniqueValues flattens and coerces a unique selector, returning the values by field name and
// the constraint they cover.
func (c *Compiler) UniqueValues(entity string, u ast.Unique) (map[string]any, schema.UniqueConstraint, error) {
	e, err := c.reg.GetEntity(entity)
	if err != nil {
		return nil, schema.UniqueConstraint{}, err
	}
	return c.uniqueValues(e, u)
}

func (c *Compiler) uniqueValues(e *schema.Entity, u ast.Unique) (map[string]any, schema.UniqueConstraint, error) {
	var none schema.UniqueConstraint
	if len(u) == 0 {
		return nil, none, tdalerr.InvalidArgument(e.Name, "a unique selector needs at least one field")
	}
	values := map[string]any{}
	for key, v := range u {
		if f, ok := e.Field(key); ok {
			cv, err := c.coerce(e, f, v)
			if err != nil {
				return nil, none, err
			}
			values[f.Name] = cv
			continue
		}
		uc, ok := e.UniqueByKey(key)
		if !ok || len(uc.Fields) < 2 {
			return nil, none, tdalerr.UnknownField(e.Name, key)
		}
		parts, ok := asUnique(v)
		if !ok {
			return nil, none, tdalerr.InvalidArgument(e.Name, "%s needs an object of %v", key, uc.Fields)
		}
		for _, name := range uc.Fields {
			raw, present := parts[name]
			if !present {
				return nil, none, tdalerr.InvalidArgument(e.Name, "%s is missing %s", key, name)
			}
			f, _ := e.Field(name)
			cv, err := c.coerce(e, f, raw)
			if err != nil {
				return nil, none, err
			}
			values[name] = cv
		}
		if len(parts) != len(uc.Fields) {
			return nil, none, tdalerr.InvalidArgument(e.Name, "%s only takes %v", key, uc.Fields)
		}
	}

	covering, ok := covered(e, values)
	if !ok {
		return nil, none, tdalerr.InvalidArgument(e.Name, "the selector %v does not cover a unique constraint", sortedFields(e, values))
	}
	for _, name := range covering.Fields {
		if values[name] == nil {
			return nil, none, tdalerr.InvalidArgument(e.Name, "unique field %s cannot be null", name)
		}
	}
	return values, covering, nil
}

// covered returns the first constraint, primary key first, whose fields all have non-null
// values.
func covered(e *schema.Entity, values map[string]any) (schema.UniqueConstraint, bool) {
	has := func(u schema.UniqueConstraint) bool {
		for _, f := range u.Fields {
			if v, ok := values[f]; !ok || v == nil {
				return false
			}
		}
		return len(u.Fields) > 0
	}
	if pk := e.PrimaryKey(); has(pk) {
		return pk, true
	}
	for _, u := range e.Uniques {
		if has(u) {
			return u, true
		}
	}
	return schema.UniqueConstraint{}, false
}

func asUnique(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case ast.Unique:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

// sortedFields returns the keys of values in the declaration order of e.
func sortedFields(e *schema.Entity, values map[string]any) []string {
	out := make([]string, 0, len(values))
	for _, f := range e.Fields {
		if _, ok := values[f.Name]; ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// eqAll matches every field in fields against its value; nil values match NULL.
func (c *Compiler) eqAll(e *schema.Entity, values map[string]any, fields []string) plan.Node {
	out := make(plan.And, 0, len(fields))
	for _, name := range fields {
		f, _ := e.Field(name)
		cmp := plan.Compare{Column: f.Column, Op: plan.Eq, Value: values[name], Type: f.Type}
		if cmp.Value == nil {
			cmp.Op = plan.IsNull
		}
		out = append(out, cmp)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
