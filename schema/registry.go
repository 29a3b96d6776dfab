package schema

import (
	"maps"
	"slices"

	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

// Registry is the validated, read-only set of entities and enums.
// Values returned from it must not be modified.
type Registry struct {
	entities map[string]*Entity
	names    []string
	enums    map[string]*Enum
	provider string
	url      string
}

// NewRegistry validates def and builds a registry from it. Validation is eager: every
// problem in the definition is reported at once and no registry is returned.
func NewRegistry(def *Definition) (*Registry, error) {
	if def == nil {
		return nil, &tdalerr.SchemaError{Problems: []string{"empty schema definition"}}
	}
	v := &validator{def: def}
	v.run()
	if err := v.problems.OrNil(); err != nil {
		return nil, err
	}

	r := &Registry{
		entities: make(map[string]*Entity, len(def.Entities)),
		names:    make([]string, 0, len(def.Entities)),
		enums:    make(map[string]*Enum, len(def.Enums)),
		provider: def.Provider,
		url:      def.URL,
	}
	for _, e := range def.Entities {
		r.entities[e.Name] = e
		r.names = append(r.names, e.Name)
	}
	for _, e := range def.Enums {
		r.enums[e.Name] = e
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error. Intended for static schemas.
func MustNewRegistry(def *Definition) *Registry {
	r, err := NewRegistry(def)
	if err != nil {
		panic(err)
	}
	return r
}

// GetEntity returns the entity called name.
func (r *Registry) GetEntity(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, tdalerr.UnknownEntity(name)
	}
	return e, nil
}

// GetRelation returns relation on entity.
func (r *Registry) GetRelation(entity, relation string) (*Relation, error) {
	e, err := r.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	rel, ok := e.Relation(relation)
	if !ok {
		return nil, tdalerr.UnknownRelation(entity, relation)
	}
	return rel, nil
}

// Entities returns every entity in declaration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.names))
	for i, n := range r.names {
		out[i] = r.entities[n]
	}
	return out
}

// ModelNames returns entity names in declaration order.
func (r *Registry) ModelNames() []string {
	return slices.Clone(r.names)
}

// Enums returns a name to values table of every enum.
func (r *Registry) Enums() map[string][]string {
	out := make(map[string][]string, len(r.enums))
	for name, e := range r.enums {
		out[name] = slices.Clone(e.Values)
	}
	return out
}

// EnumValues returns the members of an enum.
func (r *Registry) EnumValues(name string) ([]string, bool) {
	e, ok := r.enums[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(e.Values), true
}

// EnumNames returns enum names sorted.
func (r *Registry) EnumNames() []string {
	return slices.Sorted(maps.Keys(r.enums))
}

// Provider is the datasource provider declared by the schema source, if any.
func (r *Registry) Provider() string { return r.provider }

// URL is the datasource URL declared by the schema source, if any.
func (r *Registry) URL() string { return r.url }
