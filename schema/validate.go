package schema

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

// EngineVersion is the version schema sources may constrain with `engine = "..."`.
const EngineVersion = "0.3.0"

type validator struct {
	def      *Definition
	problems tdalerr.SchemaError
	entities map[string]*Entity
	enums    map[string]*Enum
}

func (v *validator) run() {
	v.engine()
	v.collectEnums()
	v.collectEntities()
	for _, e := range v.def.Entities {
		v.fields(e)
		v.uniques(e)
	}
	// Owning sides first so back sides can copy their keys.
	for _, e := range v.def.Entities {
		for _, r := range e.Relations {
			if len(r.Fields) > 0 || len(r.References) > 0 {
				v.owningRelation(e, r)
			}
		}
	}
	for _, e := range v.def.Entities {
		for _, r := range e.Relations {
			if len(r.Fields) == 0 && len(r.References) == 0 {
				v.backRelation(e, r)
			}
		}
	}
}

func (v *validator) engine() {
	if v.def.EngineConstraint == "" {
		return
	}
	c, err := version.NewConstraint(v.def.EngineConstraint)
	if err != nil {
		v.problems.Add("engine constraint %q: %v", v.def.EngineConstraint, err)
		return
	}
	if !c.Check(version.Must(version.NewVersion(EngineVersion))) {
		v.problems.Add("engine %s does not satisfy %q", EngineVersion, v.def.EngineConstraint)
	}
}

func (v *validator) collectEnums() {
	v.enums = make(map[string]*Enum, len(v.def.Enums))
	for _, e := range v.def.Enums {
		if _, dup := v.enums[e.Name]; dup {
			v.problems.Add("enum %q declared twice", e.Name)
			continue
		}
		v.enums[e.Name] = e
		if len(e.Values) == 0 {
			v.problems.Add("enum %q has no values", e.Name)
		}
		seen := map[string]bool{}
		for _, val := range e.Values {
			if seen[val] {
				v.problems.Add("enum %q repeats value %q", e.Name, val)
			}
			seen[val] = true
		}
	}
}

func (v *validator) collectEntities() {
	v.entities = make(map[string]*Entity, len(v.def.Entities))
	tables := map[string]string{}
	for _, e := range v.def.Entities {
		if _, dup := v.entities[e.Name]; dup {
			v.problems.Add("entity %q declared twice", e.Name)
			continue
		}
		if _, clash := v.enums[e.Name]; clash {
			v.problems.Add("entity %q has the same name as an enum", e.Name)
		}
		e.index()
		v.entities[e.Name] = e
		if other, dup := tables[e.Table]; dup {
			v.problems.Add("entities %q and %q both map to table %q", other, e.Name, e.Table)
		}
		tables[e.Table] = e.Name

		names := map[string]bool{}
		for _, f := range e.Fields {
			if names[f.Name] {
				v.problems.Add("%s.%s declared twice", e.Name, f.Name)
			}
			names[f.Name] = true
		}
		for _, r := range e.Relations {
			if names[r.Name] {
				v.problems.Add("%s.%s declared twice", e.Name, r.Name)
			}
			names[r.Name] = true
		}
	}
}

func (v *validator) fields(e *Entity) {
	for _, f := range e.Fields {
		where := e.Name + "." + f.Name
		switch {
		case f.Type == EnumType:
			en, ok := v.enums[f.Enum]
			if !ok {
				v.problems.Add("%s uses unknown enum %q", where, f.Enum)
				continue
			}
			if f.Default != nil && f.Default.Kind == DefaultLiteral {
				s, _ := f.Default.Value.(string)
				if !en.Has(s) {
					v.problems.Add("%s default %v is not a member of enum %s", where, f.Default.Value, f.Enum)
				}
			}
		case !scalarTypes[f.Type]:
			v.problems.Add("%s has unknown type %q", where, f.Type)
			continue
		}
		if f.Default == nil {
			continue
		}
		switch f.Default.Kind {
		case DefaultAutoIncrement:
			if f.Type != Int && f.Type != BigInt {
				v.problems.Add("%s: autoincrement() requires Int or BigInt", where)
			}
		case DefaultUUID:
			if f.Type != String {
				v.problems.Add("%s: uuid() requires String", where)
			}
		case DefaultNow:
			if f.Type != DateTime {
				v.problems.Add("%s: now() requires DateTime", where)
			}
		case DefaultLiteral:
			if f.Type != EnumType && !literalFits(f.Type, f.Default.Value) {
				v.problems.Add("%s: default %v does not fit type %s", where, f.Default.Value, f.Type)
			}
		default:
			v.problems.Add("%s: unknown default kind %q", where, f.Default.Kind)
		}
	}
}

func literalFits(t ScalarType, val any) bool {
	switch val.(type) {
	case string:
		return t == String || t == Json || t == DateTime || t == Decimal
	case bool:
		return t == Boolean
	case int, int64:
		return t.IsNumeric()
	case float64:
		return t == Float || t == Decimal
	}
	return false
}

func (v *validator) uniques(e *Entity) {
	var ids []string
	for _, f := range e.Fields {
		if f.ID {
			ids = append(ids, f.Name)
		}
	}
	hasPrimary := slices.ContainsFunc(e.Uniques, func(u UniqueConstraint) bool { return u.Primary })
	switch {
	case len(ids) > 1:
		v.problems.Add("%s marks several fields @id; use a composite @@id", e.Name)
	case len(ids) == 1 && hasPrimary:
		if pk := e.PrimaryKey(); !slices.Equal(pk.Fields, ids) {
			v.problems.Add("%s declares both @id and @@id", e.Name)
		}
	case len(ids) == 1:
		e.Uniques = append([]UniqueConstraint{{Name: e.Table + "_pkey", Fields: ids, Primary: true}}, e.Uniques...)
	case !hasPrimary:
		v.problems.Add("%s has no primary key", e.Name)
	}
	for _, f := range e.Fields {
		if _, exists := e.UniqueFor([]string{f.Name}); f.Unique && !f.ID && !exists {
			e.Uniques = append(e.Uniques, UniqueConstraint{Name: fmt.Sprintf("%s_%s_key", e.Table, f.Column), Fields: []string{f.Name}})
		}
	}
	for i, u := range e.Uniques {
		if len(u.Fields) == 0 {
			v.problems.Add("%s has an empty unique constraint", e.Name)
			continue
		}
		for _, name := range u.Fields {
			if _, ok := e.Field(name); !ok {
				v.problems.Add("%s unique constraint references unknown field %q", e.Name, name)
			}
		}
		switch {
		case u.Name != "":
		case u.Primary:
			e.Uniques[i].Name = e.Table + "_pkey"
		default:
			e.Uniques[i].Name = e.Table + "_" + u.Key() + "_key"
		}
		if u.Primary {
			for _, name := range u.Fields {
				if f, ok := e.Field(name); ok && f.Nullable {
					v.problems.Add("%s primary key field %q cannot be optional", e.Name, name)
				}
			}
		}
	}
}

func (v *validator) owningRelation(e *Entity, r *Relation) {
	where := e.Name + "." + r.Name
	target, ok := v.entities[r.Target]
	if !ok {
		v.problems.Add("%s targets unknown entity %q", where, r.Target)
		return
	}
	if len(r.Fields) == 0 || len(r.Fields) != len(r.References) {
		v.problems.Add("%s must list the same number of fields and references", where)
		return
	}
	if r.Cardinality == Many {
		v.problems.Add("%s: a list relation cannot hold foreign key fields", where)
		return
	}
	nullable := false
	for i, name := range r.Fields {
		lf, ok := e.Field(name)
		if !ok {
			v.problems.Add("%s references unknown local field %q", where, name)
			return
		}
		tf, ok := target.Field(r.References[i])
		if !ok {
			v.problems.Add("%s references unknown field %s.%s", where, target.Name, r.References[i])
			return
		}
		if lf.Type != tf.Type {
			v.problems.Add("%s: %s is %s but %s.%s is %s", where, name, lf.Type, target.Name, tf.Name, tf.Type)
		}
		nullable = nullable || lf.Nullable
	}
	if _, ok := target.UniqueFor(r.References); !ok {
		v.problems.Add("%s references %v which is not unique on %s", where, r.References, target.Name)
	}
	if nullable {
		r.Cardinality = NullableOne
	} else if r.Cardinality == NullableOne {
		v.problems.Add("%s is optional but its foreign key fields are required", where)
	}
	if r.OnDelete == "" {
		r.OnDelete = Restrict
		if nullable {
			r.OnDelete = SetNull
		}
	}
	if r.OnUpdate == "" {
		r.OnUpdate = Cascade
	}
	if (r.OnDelete == SetNull || r.OnUpdate == SetNull) && !nullable {
		v.problems.Add("%s: SetNull requires optional foreign key fields", where)
	}
	r.owner = true
	r.localKeys = slices.Clone(r.Fields)
	r.targetKeys = slices.Clone(r.References)
}

func (v *validator) backRelation(e *Entity, r *Relation) {
	where := e.Name + "." + r.Name
	target, ok := v.entities[r.Target]
	if !ok {
		v.problems.Add("%s targets unknown entity %q", where, r.Target)
		return
	}
	var owners []*Relation
	for _, other := range target.Relations {
		if other.owner && other.Target == e.Name && other.RelationName == r.RelationName && other != r {
			owners = append(owners, other)
		}
	}
	switch len(owners) {
	case 0:
		v.problems.Add("%s has no matching relation with fields on %s", where, target.Name)
		return
	case 1:
	default:
		v.problems.Add("%s is ambiguous: name the relation to pick one of %d candidates on %s", where, len(owners), target.Name)
		return
	}
	owner := owners[0]
	if owner.inverse != "" && owner.inverse != r.Name {
		v.problems.Add("%s and %s.%s both claim %s.%s", where, target.Name, owner.inverse, target.Name, owner.Name)
		return
	}
	if r.Cardinality == One {
		v.problems.Add("%s: the side without foreign key fields must be optional or a list", where)
		return
	}
	if r.Cardinality == NullableOne {
		if _, ok := target.UniqueFor(owner.Fields); !ok {
			v.problems.Add("%s is one-to-one but %s.%v is not unique", where, target.Name, owner.Fields)
		}
	}
	owner.inverse = r.Name
	r.inverse = owner.Name
	r.localKeys = slices.Clone(owner.References)
	r.targetKeys = slices.Clone(owner.Fields)
}
