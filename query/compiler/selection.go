package compiler

import (
	"sort"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

func (c *Compiler) selection(e *schema.Entity, sel ast.Select, inc ast.Include) (*plan.Selection, error) {
	if sel != nil && inc != nil {
		return nil, tdalerr.InvalidArgument(e.Name, "select and include cannot be used together")
	}
	out := &plan.Selection{}
	nested := map[string]*ast.Nested(sel)
	if sel == nil {
		out.Fields = e.ScalarNames()
		nested = map[string]*ast.Nested(inc)
	}

	for _, key := range sortedKeys(nested) {
		args := nested[key]
		if key == ast.CountKey {
			counts, err := c.counts(e, args)
			if err != nil {
				return nil, err
			}
			out.Counts = counts
			continue
		}
		if f, ok := e.Field(key); ok {
			if sel == nil {
				return nil, tdalerr.InvalidArgument(e.Name, "include only takes relations, %s is a field", key)
			}
			if args != nil {
				return nil, tdalerr.InvalidArgument(e.Name, "field %s takes no arguments", key)
			}
			out.Fields = append(out.Fields, f.Name)
			continue
		}
		rel, ok := e.Relation(key)
		if !ok {
			return nil, tdalerr.UnknownField(e.Name, key)
		}
		load, err := c.relationLoad(e, rel, args)
		if err != nil {
			return nil, err
		}
		out.Relations = append(out.Relations, load)
	}
	if sel != nil {
		// Keep the selected scalars in declaration order.
		picked := map[string]any{}
		for _, f := range out.Fields {
			picked[f] = nil
		}
		out.Fields = sortedFields(e, picked)
	}
	return out, nil
}

func (c *Compiler) relationLoad(e *schema.Entity, rel *schema.Relation, args *ast.Nested) (*plan.RelationLoad, error) {
	target, err := c.reg.GetEntity(rel.Target)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = &ast.Nested{}
	}
	if rel.IsToOne() && (args.Where != nil || len(args.OrderBy) > 0 || args.Skip != 0 || args.Take != nil || len(args.Distinct) > 0) {
		return nil, tdalerr.InvalidArgument(e.Name, "%s is a single relation and only takes select or include", rel.Name)
	}
	if args.Skip < 0 {
		return nil, tdalerr.InvalidArgument(e.Name, "skip on %s must not be negative", rel.Name)
	}
	sel, err := c.selection(target, args.Select, args.Include)
	if err != nil {
		return nil, err
	}
	where, err := c.where(target, args.Where)
	if err != nil {
		return nil, err
	}
	if err := c.checkFields(target, args.Distinct); err != nil {
		return nil, err
	}
	order := args.OrderBy
	if len(order) == 0 && args.Take != nil && *args.Take < 0 {
		for _, f := range target.PrimaryKey().Fields {
			order = append(order, ast.Asc(f))
		}
	}
	orderBy, err := c.orderBy(target, order)
	if err != nil {
		return nil, err
	}

	targetKeys := rel.TargetKeys()
	load := &plan.RelationLoad{
		Name:        rel.Name,
		Target:      target.Name,
		Cardinality: rel.Cardinality,
		LocalKeys:   rel.LocalKeys(),
		TargetKeys:  targetKeys,
		KeyColumns:  plan.Columns(target, targetKeys),
		Skip:        args.Skip,
		Distinct:    args.Distinct,
		Selection:   sel,
		Query: &plan.Select{
			Entity:  target.Name,
			Table:   target.Table,
			Columns: plan.Columns(target, union(sel.Fields, sel.KeyFields(), targetKeys, args.Distinct)),
			Where:   where,
			OrderBy: orderBy,
		},
	}
	if args.Take != nil {
		take := *args.Take
		if take < 0 {
			take = -take
			load.Query.Reverse = true
			load.Query.OrderBy = reverse(orderBy)
		}
		load.Take = &take
	}
	return load, nil
}

// counts compiles a _count selection. A nil argument counts every list relation.
func (c *Compiler) counts(e *schema.Entity, args *ast.Nested) ([]*plan.CountLoad, error) {
	var selected map[string]*ast.Nested
	switch {
	case args == nil:
		selected = map[string]*ast.Nested{}
		for _, r := range e.Relations {
			if !r.IsToOne() {
				selected[r.Name] = nil
			}
		}
	case args.Where != nil || len(args.OrderBy) > 0 || args.Skip != 0 || args.Take != nil || args.Include != nil:
		return nil, tdalerr.InvalidArgument(e.Name, "_count only takes select")
	default:
		selected = map[string]*ast.Nested(args.Select)
	}

	var out []*plan.CountLoad
	for _, name := range sortedKeys(selected) {
		rel, ok := e.Relation(name)
		if !ok {
			return nil, tdalerr.UnknownRelation(e.Name, name)
		}
		if rel.IsToOne() {
			return nil, tdalerr.InvalidArgument(e.Name, "_count only counts list relations, %s is %s", name, rel.Cardinality)
		}
		target, err := c.reg.GetEntity(rel.Target)
		if err != nil {
			return nil, err
		}
		var where plan.Node
		if n := selected[name]; n != nil {
			if len(n.OrderBy) > 0 || n.Skip != 0 || n.Take != nil || n.Select != nil || n.Include != nil {
				return nil, tdalerr.InvalidArgument(e.Name, "_count of %s only takes where", name)
			}
			if where, err = c.where(target, n.Where); err != nil {
				return nil, err
			}
		}
		targetKeys := rel.TargetKeys()
		out = append(out, &plan.CountLoad{
			Name:       rel.Name,
			Table:      target.Table,
			LocalKeys:  rel.LocalKeys(),
			TargetKeys: targetKeys,
			KeyColumns: plan.Columns(target, targetKeys),
			Where:      where,
		})
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
