package compiler

import (
	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

var comparisonOps = map[ast.ComparisonOperator]plan.Op{
	ast.OpEquals:     plan.Eq,
	ast.OpNotEquals:  plan.Ne,
	ast.OpGreater:    plan.Gt,
	ast.OpGreaterEq:  plan.Gte,
	ast.OpLess:       plan.Lt,
	ast.OpLessEq:     plan.Lte,
	ast.OpIn:         plan.In,
	ast.OpNotIn:      plan.NotIn,
	ast.OpContains:   plan.Contains,
	ast.OpStartsWith: plan.StartsWith,
	ast.OpEndsWith:   plan.EndsWith,
}

// groupScope restricts a having clause to the groupBy fields.
type groupScope struct {
	by map[string]bool
}

// where compiles expr into a plan node, preserving the tree shape one node for one node.
func (c *Compiler) where(e *schema.Entity, expr ast.Expr) (plan.Node, error) {
	return c.node(e, expr, nil)
}

func (c *Compiler) node(e *schema.Entity, expr ast.Expr, scope *groupScope) (plan.Node, error) {
	switch n := expr.(type) {
	case nil:
		return nil, nil
	case ast.And:
		out := make(plan.And, 0, len(n))
		for _, child := range n {
			x, err := c.node(e, child, scope)
			if err != nil {
				return nil, err
			}
			out = append(out, orTrue(x))
		}
		return out, nil
	case ast.Or:
		out := make(plan.Or, 0, len(n))
		for _, child := range n {
			x, err := c.node(e, child, scope)
			if err != nil {
				return nil, err
			}
			out = append(out, orTrue(x))
		}
		return out, nil
	case ast.Not:
		x, err := c.node(e, n.X, scope)
		if err != nil {
			return nil, err
		}
		return plan.Not{X: orTrue(x)}, nil
	case *ast.Not:
		return c.node(e, *n, scope)
	case ast.Cond:
		return c.cond(e, n, scope)
	case *ast.Cond:
		return c.cond(e, *n, scope)
	case ast.Relation:
		if scope != nil {
			return nil, tdalerr.InvalidGroupBy(e.Name, n.Name, "having cannot filter on relations")
		}
		return c.relation(e, n)
	case *ast.Relation:
		return c.node(e, *n, scope)
	}
	return nil, tdalerr.InvalidArgument(e.Name, "unsupported filter node %T", expr)
}

// orTrue keeps an empty child of a group from vanishing, so the group keeps its arity.
func orTrue(n plan.Node) plan.Node {
	if n == nil {
		return plan.Literal(true)
	}
	return n
}

func (c *Compiler) cond(e *schema.Entity, cond ast.Cond, scope *groupScope) (plan.Node, error) {
	f, ok := e.Field(cond.Field)
	if !ok {
		if _, isRel := e.Relation(cond.Field); isRel {
			return nil, tdalerr.InvalidComparator(e.Name, cond.Field, "%s is a relation; use a relation filter", cond.Field)
		}
		return nil, tdalerr.UnknownField(e.Name, cond.Field)
	}
	if scope != nil && !scope.by[f.Name] {
		return nil, tdalerr.InvalidGroupBy(e.Name, f.Name, "having references %s which is not in by", f.Name)
	}
	if scope == nil && cond.Aggregate != "" {
		return nil, tdalerr.InvalidArgument(e.Name, "aggregate %s on %s is only allowed in having", cond.Aggregate, f.Name)
	}
	op, ok := comparisonOps[cond.Op]
	if !ok {
		return nil, tdalerr.InvalidComparator(e.Name, f.Name, "unknown comparator %q", cond.Op)
	}

	// The type the comparison operates on: aggregates change it.
	valueType, agg, err := aggregateType(e, f, cond.Aggregate)
	if err != nil {
		return nil, err
	}
	operand := f
	if valueType != f.Type {
		operand = &schema.Field{Name: f.Name, Column: f.Column, Type: valueType}
	}

	switch {
	case cond.Op.IsText() && !valueType.IsText():
		return nil, tdalerr.InvalidComparator(e.Name, f.Name, "%s only applies to text fields, %s is %s", cond.Op, f.Name, valueType)
	case cond.Op.IsOrdering() && !valueType.IsOrdered():
		return nil, tdalerr.InvalidComparator(e.Name, f.Name, "%s cannot order %s values", cond.Op, valueType)
	case cond.Mode == ast.ModeInsensitive && !valueType.IsText():
		return nil, tdalerr.InvalidComparator(e.Name, f.Name, "mode insensitive only applies to text fields")
	case cond.Mode != "" && cond.Mode != ast.ModeDefault && cond.Mode != ast.ModeInsensitive:
		return nil, tdalerr.InvalidComparator(e.Name, f.Name, "unknown mode %q", cond.Mode)
	case (valueType == schema.Json || valueType == schema.Bytes) && cond.Op != ast.OpEquals && cond.Op != ast.OpNotEquals:
		return nil, tdalerr.InvalidComparator(e.Name, f.Name, "%s fields only support equals and not", valueType)
	}

	out := plan.Compare{
		Column:      f.Column,
		Op:          op,
		Insensitive: cond.Mode == ast.ModeInsensitive,
		Type:        valueType,
		Agg:         agg,
	}
	if cond.Op.IsList() {
		values, ok := list(cond.Value)
		if !ok {
			return nil, tdalerr.InvalidArgument(e.Name, "%s on %s needs a list", cond.Op, f.Name)
		}
		if len(values) == 0 {
			// x IN () never matches; x NOT IN () always does.
			return plan.Literal(cond.Op == ast.OpNotIn), nil
		}
		out.Values = make([]any, len(values))
		for i, v := range values {
			if v == nil {
				return nil, tdalerr.InvalidArgument(e.Name, "%s on %s cannot contain null", cond.Op, f.Name)
			}
			if out.Values[i], err = c.coerce(e, operand, v); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if cond.Value == nil {
		switch cond.Op {
		case ast.OpEquals:
			out.Op = plan.IsNull
			return out, nil
		case ast.OpNotEquals:
			out.Op = plan.IsNotNull
			return out, nil
		}
		return nil, tdalerr.InvalidArgument(e.Name, "%s on %s cannot compare with null", cond.Op, f.Name)
	}
	if out.Value, err = c.coerce(e, operand, cond.Value); err != nil {
		return nil, err
	}
	return out, nil
}

func aggregateType(e *schema.Entity, f *schema.Field, fn ast.AggregateFunc) (schema.ScalarType, plan.AggFunc, error) {
	switch fn {
	case "":
		return f.Type, "", nil
	case ast.AggCount:
		return schema.Int, plan.AggCount, nil
	case ast.AggAvg, ast.AggSum:
		if !f.Type.IsNumeric() {
			return "", "", tdalerr.InvalidArgument(e.Name, "%s needs a numeric field, %s is %s", fn, f.Name, f.Type)
		}
		if fn == ast.AggAvg {
			return schema.Float, plan.AggAvg, nil
		}
		return f.Type, plan.AggSum, nil
	case ast.AggMin:
		return f.Type, plan.AggMin, nil
	case ast.AggMax:
		return f.Type, plan.AggMax, nil
	}
	return "", "", tdalerr.InvalidArgument(e.Name, "unknown aggregate %q", fn)
}

func (c *Compiler) relation(e *schema.Entity, r ast.Relation) (plan.Node, error) {
	rel, ok := e.Relation(r.Name)
	if !ok {
		return nil, tdalerr.UnknownRelation(e.Name, r.Name)
	}
	target, err := c.reg.GetEntity(rel.Target)
	if err != nil {
		return nil, err
	}
	switch r.Op {
	case ast.RelSome, ast.RelEvery, ast.RelNone:
		if rel.IsToOne() {
			return nil, tdalerr.InvalidComparator(e.Name, r.Name, "%s applies to list relations; use is or isNot", r.Op)
		}
	case ast.RelIs, ast.RelIsNot:
		if !rel.IsToOne() {
			return nil, tdalerr.InvalidComparator(e.Name, r.Name, "%s applies to single relations; use some, every or none", r.Op)
		}
	default:
		return nil, tdalerr.InvalidComparator(e.Name, r.Name, "unknown relation filter %q", r.Op)
	}
	inner, err := c.where(target, r.Where)
	if err != nil {
		return nil, err
	}
	exists := plan.Exists{Table: target.Table, Join: joinKeys(e, target, rel), Where: inner}
	switch r.Op {
	case ast.RelNone, ast.RelIsNot:
		exists.Negate = true
	case ast.RelEvery:
		if inner == nil {
			return plan.Literal(true), nil
		}
		exists.Negate = true
		exists.Where = plan.Not{X: inner}
	}
	return exists, nil
}

// joinKeys pairs the columns of rel's local keys on e with its target keys on target.
func joinKeys(e, target *schema.Entity, rel *schema.Relation) []plan.JoinKey {
	local, remote := rel.LocalKeys(), rel.TargetKeys()
	out := make([]plan.JoinKey, len(local))
	for i := range local {
		lf, _ := e.Field(local[i])
		tf, _ := target.Field(remote[i])
		out[i] = plan.JoinKey{Outer: lf.Column, Inner: tf.Column}
	}
	return out
}
