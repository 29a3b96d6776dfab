package dsl

import (
	"strconv"
	"strings"

	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

type converter struct {
	lookup   func(string) (string, bool)
	entities map[string]bool
	enums    map[string]bool
	problems tdalerr.SchemaError
}

// Definition converts the parse tree into a schema definition.
func (f *File) Definition(lookup func(string) (string, bool)) (*schema.Definition, error) {
	c := &converter{lookup: lookup, entities: map[string]bool{}, enums: map[string]bool{}}
	for _, item := range f.Items {
		switch {
		case item.Entity != nil:
			c.entities[item.Entity.Name] = true
		case item.Enum != nil:
			c.enums[item.Enum.Name] = true
		}
	}

	def := &schema.Definition{}
	for _, item := range f.Items {
		switch {
		case item.Config != nil:
			c.config(def, item.Config)
		case item.Enum != nil:
			def.Enums = append(def.Enums, c.enum(item.Enum))
		case item.Entity != nil:
			def.Entities = append(def.Entities, c.entity(item.Entity))
		}
	}
	if err := c.problems.OrNil(); err != nil {
		return nil, err
	}
	return def, nil
}

func (c *converter) config(def *schema.Definition, b *ConfigBlock) {
	switch b.Keyword {
	case "datasource":
		if p := b.Property("provider"); p != nil {
			def.Provider = c.text(p.Value)
		}
		if p := b.Property("url"); p != nil {
			def.URL = c.text(p.Value)
		}
	case "client":
		if p := b.Property("engine"); p != nil {
			def.EngineConstraint = c.text(p.Value)
		}
	}
}

// text evaluates a string literal or an env("NAME") call.
func (c *converter) text(v *Value) string {
	switch {
	case v.Str != nil:
		return *v.Str
	case v.Call != nil && v.Call.Name == "env":
		name := v.Call.Arguments.Positional()
		if name == nil || name.Str == nil {
			c.problems.Add("%s: env() expects a variable name", v.Pos)
			return ""
		}
		if c.lookup == nil {
			return ""
		}
		val, _ := c.lookup(*name.Str)
		return val
	}
	c.problems.Add("%s: expected a string, got %s", v.Pos, v)
	return ""
}

func (c *converter) enum(d *EnumDecl) *schema.Enum {
	e := &schema.Enum{Name: d.Name}
	for _, v := range d.Values {
		e.Values = append(e.Values, v.Name)
	}
	return e
}

func (c *converter) entity(d *EntityDecl) *schema.Entity {
	ent := &schema.Entity{Name: d.Name}
	for _, fd := range d.Fields {
		switch {
		case c.entities[fd.Type]:
			ent.Relations = append(ent.Relations, c.relation(d, fd))
		default:
			if f := c.field(d, fd); f != nil {
				ent.Fields = append(ent.Fields, f)
			}
		}
	}
	for _, ba := range d.BlockAttributes {
		switch ba.Name {
		case "map":
			if v := ba.Arguments.Positional(); v != nil {
				ent.Table = c.text(v)
			}
		case "id", "unique":
			u := schema.UniqueConstraint{Primary: ba.Name == "id"}
			if v := ba.Arguments.Named("fields"); v != nil && v.Array != nil {
				u.Fields = v.Array.Idents()
			} else if v := ba.Arguments.Positional(); v != nil && v.Array != nil {
				u.Fields = v.Array.Idents()
			} else {
				c.problems.Add("%s: @@%s expects a list of fields", ba.Pos, ba.Name)
				continue
			}
			if v := ba.Arguments.Named("name"); v != nil {
				u.Name = c.text(v)
			} else if v := ba.Arguments.Named("map"); v != nil {
				u.Name = c.text(v)
			}
			ent.Uniques = append(ent.Uniques, u)
		case "index":
			// Indexes do not change query semantics.
		default:
			c.problems.Add("%s: unknown entity attribute @@%s", ba.Pos, ba.Name)
		}
	}
	return ent
}

func (c *converter) field(d *EntityDecl, fd *FieldDecl) *schema.Field {
	f := &schema.Field{Name: fd.Name, Nullable: fd.Optional, Type: schema.ScalarType(fd.Type)}
	if c.enums[fd.Type] {
		f.Type, f.Enum = schema.EnumType, fd.Type
	}
	if fd.List {
		c.problems.Add("%s: %s.%s: scalar lists are not supported", fd.Pos, d.Name, fd.Name)
		return nil
	}
	for _, a := range fd.Attributes {
		switch a.Name {
		case "id":
			f.ID = true
		case "unique":
			f.Unique = true
		case "updatedAt":
			f.UpdatedAt = true
		case "map":
			if v := a.Arguments.Positional(); v != nil {
				f.Column = c.text(v)
			}
		case "default":
			f.Default = c.defaultValue(a)
		case "relation":
			c.problems.Add("%s: %s.%s: @relation on a scalar field", a.Pos, d.Name, fd.Name)
		default:
			if !strings.HasPrefix(a.Name, "db.") {
				c.problems.Add("%s: %s.%s: unknown attribute @%s", a.Pos, d.Name, fd.Name, a.Name)
			}
		}
	}
	return f
}

func (c *converter) defaultValue(a *Attribute) *schema.Default {
	v := a.Arguments.Positional()
	switch {
	case v == nil:
		c.problems.Add("%s: @default needs a value", a.Pos)
		return nil
	case v.Call != nil:
		switch v.Call.Name {
		case "autoincrement":
			return &schema.Default{Kind: schema.DefaultAutoIncrement}
		case "now":
			return &schema.Default{Kind: schema.DefaultNow}
		case "uuid":
			return &schema.Default{Kind: schema.DefaultUUID}
		}
		c.problems.Add("%s: unsupported default function %s()", v.Pos, v.Call.Name)
		return nil
	case v.Str != nil:
		return &schema.Default{Kind: schema.DefaultLiteral, Value: *v.Str}
	case v.Number != nil:
		if i, err := strconv.ParseInt(*v.Number, 10, 64); err == nil {
			return &schema.Default{Kind: schema.DefaultLiteral, Value: i}
		}
		fl, err := strconv.ParseFloat(*v.Number, 64)
		if err != nil {
			c.problems.Add("%s: bad number %s", v.Pos, *v.Number)
			return nil
		}
		return &schema.Default{Kind: schema.DefaultLiteral, Value: fl}
	case v.Ident != nil:
		switch *v.Ident {
		case "true":
			return &schema.Default{Kind: schema.DefaultLiteral, Value: true}
		case "false":
			return &schema.Default{Kind: schema.DefaultLiteral, Value: false}
		}
		return &schema.Default{Kind: schema.DefaultLiteral, Value: *v.Ident}
	}
	c.problems.Add("%s: unsupported default %s", v.Pos, v)
	return nil
}

func (c *converter) relation(d *EntityDecl, fd *FieldDecl) *schema.Relation {
	r := &schema.Relation{Name: fd.Name, Target: fd.Type, Cardinality: schema.One}
	switch {
	case fd.List:
		r.Cardinality = schema.Many
	case fd.Optional:
		r.Cardinality = schema.NullableOne
	}
	for _, a := range fd.Attributes {
		if a.Name != "relation" {
			c.problems.Add("%s: %s.%s: @%s is not valid on a relation", a.Pos, d.Name, fd.Name, a.Name)
			continue
		}
		if v := a.Arguments.Positional(); v != nil {
			r.RelationName = c.text(v)
		}
		if v := a.Arguments.Named("name"); v != nil {
			r.RelationName = c.text(v)
		}
		if v := a.Arguments.Named("fields"); v != nil && v.Array != nil {
			r.Fields = v.Array.Idents()
		}
		if v := a.Arguments.Named("references"); v != nil && v.Array != nil {
			r.References = v.Array.Idents()
		}
		if v := a.Arguments.Named("onDelete"); v != nil && v.Ident != nil {
			r.OnDelete = schema.ReferentialAction(*v.Ident)
		}
		if v := a.Arguments.Named("onUpdate"); v != nil && v.Ident != nil {
			r.OnUpdate = schema.ReferentialAction(*v.Ident)
		}
	}
	return r
}
