// Package schema holds entity definitions and the read-only registry every other component
// consults.
package schema

import (
	"slices"
	"strings"
)

// ScalarType is the storage type of a field.
type ScalarType string

const (
	String   ScalarType = "String"
	Int      ScalarType = "Int"
	BigInt   ScalarType = "BigInt"
	Float    ScalarType = "Float"
	Decimal  ScalarType = "Decimal"
	Boolean  ScalarType = "Boolean"
	DateTime ScalarType = "DateTime"
	Json     ScalarType = "Json"
	Bytes    ScalarType = "Bytes"
	// EnumType marks a field whose values come from Field.Enum.
	EnumType ScalarType = "Enum"
)

var scalarTypes = map[ScalarType]bool{
	String: true, Int: true, BigInt: true, Float: true, Decimal: true,
	Boolean: true, DateTime: true, Json: true, Bytes: true,
}

// IsScalar reports whether name is a built-in scalar type.
func IsScalar(name string) bool {
	return scalarTypes[ScalarType(name)]
}

// IsNumeric reports whether t supports arithmetic aggregates.
func (t ScalarType) IsNumeric() bool {
	switch t {
	case Int, BigInt, Float, Decimal:
		return true
	}
	return false
}

// IsOrdered reports whether values of t can be compared with lt/gt.
func (t ScalarType) IsOrdered() bool {
	switch t {
	case Int, BigInt, Float, Decimal, DateTime, String:
		return true
	}
	return false
}

// IsText reports whether t supports text comparators.
func (t ScalarType) IsText() bool {
	return t == String
}

// Cardinality is how many rows a relation resolves to.
type Cardinality int

const (
	One Cardinality = iota
	NullableOne
	Many
)

func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case NullableOne:
		return "nullable-one"
	case Many:
		return "many"
	}
	return "unknown"
}

// ReferentialAction is the behaviour of a foreign key when the referenced row changes.
type ReferentialAction string

const (
	Cascade    ReferentialAction = "Cascade"
	Restrict   ReferentialAction = "Restrict"
	NoAction   ReferentialAction = "NoAction"
	SetNull    ReferentialAction = "SetNull"
	SetDefault ReferentialAction = "SetDefault"
)

// DefaultKind says who produces a default value.
type DefaultKind string

const (
	DefaultLiteral       DefaultKind = "literal"
	DefaultAutoIncrement DefaultKind = "autoincrement"
	DefaultNow           DefaultKind = "now"
	DefaultUUID          DefaultKind = "uuid"
)

// Default describes a field default.
type Default struct {
	Kind  DefaultKind
	Value any
}

// ClientGenerated reports whether the client fills the value before insert.
func (d *Default) ClientGenerated() bool {
	return d != nil && (d.Kind == DefaultNow || d.Kind == DefaultUUID)
}

// Field is a scalar column of an entity.
type Field struct {
	Name      string
	Column    string
	Type      ScalarType
	Enum      string
	Nullable  bool
	Default   *Default
	ID        bool
	Unique    bool
	UpdatedAt bool
}

// HasDefault reports whether an insert may omit the field.
func (f *Field) HasDefault() bool {
	return f.Default != nil || f.UpdatedAt
}

// Relation is a navigable link from one entity to another.
//
// The owning side declares Fields (local foreign-key fields) and References (fields on the
// target). The back side declares neither; its keys are filled from the owning side when the
// registry is built.
type Relation struct {
	Name        string
	Target      string
	Cardinality Cardinality
	Fields      []string
	References  []string
	OnDelete    ReferentialAction
	OnUpdate    ReferentialAction
	// RelationName disambiguates several relations between the same pair of entities.
	RelationName string

	owner      bool
	localKeys  []string
	targetKeys []string
	inverse    string
}

// IsOwner reports whether this side stores the foreign key.
func (r *Relation) IsOwner() bool { return r.owner }

// LocalKeys are the fields on the declaring entity used to match related rows.
func (r *Relation) LocalKeys() []string { return slices.Clone(r.localKeys) }

// TargetKeys are the fields on the target entity matched against LocalKeys.
func (r *Relation) TargetKeys() []string { return slices.Clone(r.targetKeys) }

// Inverse is the name of the opposite relation field, if declared.
func (r *Relation) Inverse() string { return r.inverse }

// IsToOne reports whether the relation attaches at most one row.
func (r *Relation) IsToOne() bool { return r.Cardinality != Many }

// UniqueConstraint is a single or composite uniqueness rule.
type UniqueConstraint struct {
	Name    string
	Fields  []string
	Primary bool
}

// Key returns the canonical name used in unique selectors, e.g. "orderId_variantId".
func (u UniqueConstraint) Key() string {
	return strings.Join(u.Fields, "_")
}

// Entity is a named row shape mapped to a table.
type Entity struct {
	Name      string
	Table     string
	Fields    []*Field
	Relations []*Relation
	Uniques   []UniqueConstraint

	fieldIndex    map[string]*Field
	relationIndex map[string]*Relation
}

// Field returns the scalar field with the given name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.fieldIndex[name]
	return f, ok
}

// Relation returns the relation with the given name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relationIndex[name]
	return r, ok
}

// PrimaryKey returns the primary unique constraint.
func (e *Entity) PrimaryKey() UniqueConstraint {
	for _, u := range e.Uniques {
		if u.Primary {
			return u
		}
	}
	return UniqueConstraint{}
}

// UniqueFor returns the constraint covering exactly the given field set.
func (e *Entity) UniqueFor(fields []string) (UniqueConstraint, bool) {
	want := slices.Clone(fields)
	slices.Sort(want)
	for _, u := range e.Uniques {
		got := slices.Clone(u.Fields)
		slices.Sort(got)
		if slices.Equal(got, want) {
			return u, true
		}
	}
	return UniqueConstraint{}, false
}

// UniqueByKey looks a constraint up by its Key.
func (e *Entity) UniqueByKey(key string) (UniqueConstraint, bool) {
	for _, u := range e.Uniques {
		if u.Key() == key || (u.Name != "" && u.Name == key) {
			return u, true
		}
	}
	return UniqueConstraint{}, false
}

// ScalarNames returns field names in declaration order.
func (e *Entity) ScalarNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

func (e *Entity) index() {
	e.fieldIndex = make(map[string]*Field, len(e.Fields))
	for _, f := range e.Fields {
		if f.Column == "" {
			f.Column = f.Name
		}
		e.fieldIndex[f.Name] = f
	}
	e.relationIndex = make(map[string]*Relation, len(e.Relations))
	for _, r := range e.Relations {
		e.relationIndex[r.Name] = r
	}
	if e.Table == "" {
		e.Table = e.Name
	}
}

// Enum is a closed set of string values.
type Enum struct {
	Name   string
	Values []string
}

// Has reports whether v is a member of the enum.
func (e *Enum) Has(v string) bool {
	return slices.Contains(e.Values, v)
}

// Definition is the raw, unvalidated content of a schema source.
type Definition struct {
	Entities []*Entity
	Enums    []*Enum
	// Datasource settings declared by the source, if any.
	Provider string
	URL      string
	// EngineConstraint is a version constraint such as ">= 0.1.0".
	EngineConstraint string
}
