package ast

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// ReadDocument reads one YAML or JSON query document.
func ReadDocument(r io.Reader) (map[string]any, error) {
	doc := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode query document: %w", err)
	}
	return doc, nil
}

// Decoder turns Prisma-shaped documents (as produced by encoding/json or yaml.v3) into query
// arguments. It needs the registry to tell relations from scalar fields.
type Decoder struct {
	reg *schema.Registry
}

// NewDecoder returns a decoder for reg.
func NewDecoder(reg *schema.Registry) *Decoder {
	return &Decoder{reg: reg}
}

// FindArgs decodes where, orderBy, cursor, skip, take, distinct, select and include.
func (d *Decoder) FindArgs(entity string, doc map[string]any) (*FindArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "orderBy", "cursor", "skip", "take", "distinct", "select", "include"); err != nil {
		return nil, err
	}
	args := &FindArgs{}
	if args.Where, err = d.where(e, doc["where"]); err != nil {
		return nil, err
	}
	if args.OrderBy, err = d.orderBy(e, doc["orderBy"]); err != nil {
		return nil, err
	}
	if args.Cursor, err = d.unique(e, doc["cursor"]); err != nil {
		return nil, err
	}
	if args.Skip, args.Take, err = window(entity, doc); err != nil {
		return nil, err
	}
	if args.Distinct, err = stringList(entity, "distinct", doc["distinct"]); err != nil {
		return nil, err
	}
	args.Select, args.Include, err = d.selection(e, doc)
	return args, err
}

// UniqueArgs decodes the arguments of findUnique.
func (d *Decoder) UniqueArgs(entity string, doc map[string]any) (*UniqueArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "select", "include"); err != nil {
		return nil, err
	}
	args := &UniqueArgs{}
	if args.Where, err = d.unique(e, doc["where"]); err != nil {
		return nil, err
	}
	args.Select, args.Include, err = d.selection(e, doc)
	return args, err
}

// CreateArgs decodes the arguments of create.
func (d *Decoder) CreateArgs(entity string, doc map[string]any) (*CreateArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "data", "select", "include"); err != nil {
		return nil, err
	}
	args := &CreateArgs{}
	if args.Data, err = d.data(e, doc["data"]); err != nil {
		return nil, err
	}
	args.Select, args.Include, err = d.selection(e, doc)
	return args, err
}

// CreateManyArgs decodes the arguments of createMany.
func (d *Decoder) CreateManyArgs(entity string, doc map[string]any) (*CreateManyArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "data", "skipDuplicates", "select"); err != nil {
		return nil, err
	}
	args := &CreateManyArgs{}
	list, ok := doc["data"].([]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(entity, "createMany data must be a list")
	}
	for _, item := range list {
		row, err := d.data(e, item)
		if err != nil {
			return nil, err
		}
		args.Data = append(args.Data, row)
	}
	args.SkipDuplicates, _ = doc["skipDuplicates"].(bool)
	args.Select, _, err = d.selection(e, doc)
	return args, err
}

// UpdateArgs decodes the arguments of update.
func (d *Decoder) UpdateArgs(entity string, doc map[string]any) (*UpdateArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "data", "select", "include"); err != nil {
		return nil, err
	}
	args := &UpdateArgs{}
	if args.Where, err = d.unique(e, doc["where"]); err != nil {
		return nil, err
	}
	if args.Data, err = d.data(e, doc["data"]); err != nil {
		return nil, err
	}
	args.Select, args.Include, err = d.selection(e, doc)
	return args, err
}

// UpdateManyArgs decodes the arguments of updateMany.
func (d *Decoder) UpdateManyArgs(entity string, doc map[string]any) (*UpdateManyArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "data"); err != nil {
		return nil, err
	}
	args := &UpdateManyArgs{}
	if args.Where, err = d.where(e, doc["where"]); err != nil {
		return nil, err
	}
	args.Data, err = d.data(e, doc["data"])
	return args, err
}

// UpsertArgs decodes the arguments of upsert.
func (d *Decoder) UpsertArgs(entity string, doc map[string]any) (*UpsertArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "create", "update", "select", "include"); err != nil {
		return nil, err
	}
	args := &UpsertArgs{}
	if args.Where, err = d.unique(e, doc["where"]); err != nil {
		return nil, err
	}
	if args.Create, err = d.data(e, doc["create"]); err != nil {
		return nil, err
	}
	if args.Update, err = d.data(e, doc["update"]); err != nil {
		return nil, err
	}
	args.Select, args.Include, err = d.selection(e, doc)
	return args, err
}

// DeleteArgs decodes the arguments of delete.
func (d *Decoder) DeleteArgs(entity string, doc map[string]any) (*DeleteArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "select", "include"); err != nil {
		return nil, err
	}
	args := &DeleteArgs{}
	if args.Where, err = d.unique(e, doc["where"]); err != nil {
		return nil, err
	}
	args.Select, args.Include, err = d.selection(e, doc)
	return args, err
}

// Where decodes a filter document.
func (d *Decoder) Where(entity string, doc any) (Expr, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	return d.where(e, doc)
}

// CountArgs decodes the arguments of count.
func (d *Decoder) CountArgs(entity string, doc map[string]any) (*CountArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "orderBy", "cursor", "skip", "take", "select"); err != nil {
		return nil, err
	}
	args := &CountArgs{}
	if args.Where, err = d.where(e, doc["where"]); err != nil {
		return nil, err
	}
	if args.OrderBy, err = d.orderBy(e, doc["orderBy"]); err != nil {
		return nil, err
	}
	if args.Cursor, err = d.unique(e, doc["cursor"]); err != nil {
		return nil, err
	}
	if args.Skip, args.Take, err = window(entity, doc); err != nil {
		return nil, err
	}
	args.Select, err = trueKeys(entity, "select", doc["select"])
	return args, err
}

// AggregateArgs decodes the arguments of aggregate.
func (d *Decoder) AggregateArgs(entity string, doc map[string]any) (*AggregateArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "where", "orderBy", "cursor", "skip", "take", "_count", "_avg", "_sum", "_min", "_max"); err != nil {
		return nil, err
	}
	args := &AggregateArgs{}
	if args.Where, err = d.where(e, doc["where"]); err != nil {
		return nil, err
	}
	if args.OrderBy, err = d.orderBy(e, doc["orderBy"]); err != nil {
		return nil, err
	}
	if args.Cursor, err = d.unique(e, doc["cursor"]); err != nil {
		return nil, err
	}
	if args.Skip, args.Take, err = window(entity, doc); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		key string
		dst *[]string
	}{{"_count", &args.Count}, {"_avg", &args.Avg}, {"_sum", &args.Sum}, {"_min", &args.Min}, {"_max", &args.Max}} {
		if *f.dst, err = aggregateFields(entity, f.key, doc[f.key]); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// GroupByArgs decodes the arguments of groupBy.
func (d *Decoder) GroupByArgs(entity string, doc map[string]any) (*GroupByArgs, error) {
	e, err := d.reg.GetEntity(entity)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(entity, doc, "by", "where", "having", "orderBy", "skip", "take", "_count", "_avg", "_sum", "_min", "_max"); err != nil {
		return nil, err
	}
	args := &GroupByArgs{}
	if args.By, err = stringList(entity, "by", doc["by"]); err != nil {
		return nil, err
	}
	if args.Where, err = d.where(e, doc["where"]); err != nil {
		return nil, err
	}
	if args.Having, err = d.having(e, doc["having"]); err != nil {
		return nil, err
	}
	if args.OrderBy, err = d.orderBy(e, doc["orderBy"]); err != nil {
		return nil, err
	}
	if args.Skip, args.Take, err = window(entity, doc); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		key string
		dst *[]string
	}{{"_count", &args.Count}, {"_avg", &args.Avg}, {"_sum", &args.Sum}, {"_min", &args.Min}, {"_max", &args.Max}} {
		if *f.dst, err = aggregateFields(entity, f.key, doc[f.key]); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func (d *Decoder) where(e *schema.Entity, doc any) (Expr, error) {
	if doc == nil {
		return nil, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(e.Name, "where must be an object, got %T", doc)
	}
	var out And
	for _, key := range sortedKeys(m) {
		v := m[key]
		switch key {
		case "AND", "OR", "NOT":
			var children []Expr
			for _, item := range asList(v) {
				c, err := d.where(e, item)
				if err != nil {
					return nil, err
				}
				children = append(children, orTrue(c))
			}
			switch key {
			case "AND":
				out = append(out, And(children))
			case "OR":
				out = append(out, Or(children))
			default:
				for _, c := range children {
					out = append(out, Not{X: c})
				}
			}
			continue
		}
		if rel, ok := e.Relation(key); ok {
			x, err := d.relationFilter(e, rel, v)
			if err != nil {
				return nil, err
			}
			out = append(out, x)
			continue
		}
		if _, ok := e.Field(key); !ok {
			return nil, tdalerr.UnknownField(e.Name, key)
		}
		conds, err := fieldFilter(e.Name, key, v, "")
		if err != nil {
			return nil, err
		}
		out = append(out, conds...)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func orTrue(e Expr) Expr {
	if e == nil {
		return And{}
	}
	return e
}

func (d *Decoder) relationFilter(e *schema.Entity, rel *schema.Relation, v any) (Expr, error) {
	target, err := d.reg.GetEntity(rel.Target)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if !rel.IsToOne() {
			return nil, tdalerr.InvalidArgument(e.Name, "relation filter %s cannot be null", rel.Name)
		}
		return Relation{Name: rel.Name, Op: RelIsNot}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(e.Name, "relation filter %s must be an object", rel.Name)
	}
	ops := []RelationOperator{RelSome, RelEvery, RelNone}
	if rel.IsToOne() {
		ops = []RelationOperator{RelIs, RelIsNot}
	}
	var out And
	for _, op := range ops {
		raw, ok := m[string(op)]
		if !ok {
			continue
		}
		if raw == nil {
			out = append(out, Relation{Name: rel.Name, Op: negateExists(op)})
			continue
		}
		w, err := d.where(target, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Relation{Name: rel.Name, Op: op, Where: w})
	}
	if len(out) == 0 {
		if !rel.IsToOne() {
			return nil, tdalerr.InvalidArgument(e.Name, "relation filter %s needs some, every or none", rel.Name)
		}
		// Shorthand: a to-one filter without is/isNot means is.
		w, err := d.where(target, m)
		if err != nil {
			return nil, err
		}
		return Relation{Name: rel.Name, Op: RelIs, Where: w}, nil
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

// negateExists maps `is: null` to "no related row" and `isNot: null` to "a related row".
func negateExists(op RelationOperator) RelationOperator {
	if op == RelIs {
		return RelIsNot
	}
	return RelIs
}

func fieldFilter(entity, field string, v any, agg AggregateFunc) ([]Expr, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return []Expr{Cond{Field: field, Op: OpEquals, Value: v, Aggregate: agg}}, nil
	}
	var mode QueryMode
	if raw, ok := m["mode"]; ok {
		s, _ := raw.(string)
		if QueryMode(s) != ModeInsensitive && QueryMode(s) != ModeDefault {
			return nil, tdalerr.InvalidArgument(entity, "unknown mode %v on %s", raw, field)
		}
		mode = QueryMode(s)
	}
	var out []Expr
	for _, key := range sortedKeys(m) {
		if key == "mode" {
			continue
		}
		op := ComparisonOperator(key)
		if !slices.Contains(Operators, op) {
			return nil, tdalerr.InvalidComparator(entity, field, "unknown comparator %q", key)
		}
		val := m[key]
		if op == OpNotEquals {
			if nested, ok := val.(map[string]any); ok {
				inner, err := fieldFilter(entity, field, nested, agg)
				if err != nil {
					return nil, err
				}
				out = append(out, Not{X: And(inner)})
				continue
			}
		}
		if op.IsList() {
			val = asList(val)
		}
		out = append(out, Cond{Field: field, Op: op, Value: val, Mode: mode, Aggregate: agg})
	}
	return out, nil
}

func (d *Decoder) having(e *schema.Entity, doc any) (Expr, error) {
	if doc == nil {
		return nil, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(e.Name, "having must be an object")
	}
	var out And
	for _, key := range sortedKeys(m) {
		v := m[key]
		switch key {
		case "AND", "OR", "NOT":
			var children []Expr
			for _, item := range asList(v) {
				c, err := d.having(e, item)
				if err != nil {
					return nil, err
				}
				children = append(children, orTrue(c))
			}
			switch key {
			case "AND":
				out = append(out, And(children))
			case "OR":
				out = append(out, Or(children))
			default:
				for _, c := range children {
					out = append(out, Not{X: c})
				}
			}
			continue
		}
		if _, ok := e.Field(key); !ok {
			return nil, tdalerr.UnknownField(e.Name, key)
		}
		fm, isMap := v.(map[string]any)
		aggregated := false
		if isMap {
			for _, fn := range AggregateFuncs {
				raw, ok := fm[string(fn)]
				if !ok {
					continue
				}
				aggregated = true
				conds, err := fieldFilter(e.Name, key, raw, fn)
				if err != nil {
					return nil, err
				}
				out = append(out, conds...)
			}
		}
		if !aggregated {
			conds, err := fieldFilter(e.Name, key, v, "")
			if err != nil {
				return nil, err
			}
			out = append(out, conds...)
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func (d *Decoder) orderBy(e *schema.Entity, doc any) ([]Order, error) {
	var out []Order
	for _, item := range asList(doc) {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, tdalerr.InvalidArgument(e.Name, "orderBy entries must be objects")
		}
		for _, key := range sortedKeys(m) {
			o, err := orderEntry(e, key, m[key])
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
	}
	return out, nil
}

func orderEntry(e *schema.Entity, key string, v any) (Order, error) {
	if s, ok := v.(string); ok {
		return Order{Field: key, Direction: SortDirection(s)}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Order{}, tdalerr.InvalidArgument(e.Name, "orderBy %s must be asc, desc or an object", key)
	}
	if _, isAgg := slices.BinarySearch([]string{"_avg", "_count", "_max", "_min", "_sum"}, key); isAgg {
		// {_avg: {price: desc}} in groupBy.
		fields := sortedKeys(m)
		if len(fields) != 1 {
			return Order{}, tdalerr.InvalidArgument(e.Name, "orderBy %s must name one field", key)
		}
		dir, _ := m[fields[0]].(string)
		return Order{Field: fields[0], Direction: SortDirection(dir), Aggregate: AggregateFunc(key)}, nil
	}
	if raw, ok := m["_count"]; ok {
		dir, _ := raw.(string)
		return Order{Field: key, Direction: SortDirection(dir), Count: true}, nil
	}
	dir, _ := m["sort"].(string)
	nulls, _ := m["nulls"].(string)
	return Order{Field: key, Direction: SortDirection(dir), Nulls: NullsOrder(nulls)}, nil
}

func (d *Decoder) unique(e *schema.Entity, doc any) (Unique, error) {
	if doc == nil {
		return nil, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(e.Name, "unique selector must be an object")
	}
	out := Unique{}
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = Unique(nested)
			continue
		}
		out[k] = v
	}
	return out, nil
}

func (d *Decoder) data(e *schema.Entity, doc any) (Data, error) {
	if doc == nil {
		return Data{}, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(e.Name, "data must be an object")
	}
	out := Data{}
	for key, v := range m {
		if rel, ok := e.Relation(key); ok {
			w, err := d.relationWrite(e, rel, v)
			if err != nil {
				return nil, err
			}
			out[key] = w
			continue
		}
		f, ok := e.Field(key)
		if !ok {
			return nil, tdalerr.UnknownField(e.Name, key)
		}
		if op, ok := v.(map[string]any); ok && f.Type.IsNumeric() && len(op) == 1 {
			for kind, val := range op {
				out[key] = NumberOp{Kind: NumberOpKind(kind), Value: val}
			}
			continue
		}
		if op, ok := v.(map[string]any); ok && f.Type != schema.Json {
			if val, ok := op["set"]; ok && len(op) == 1 {
				out[key] = val
				continue
			}
		}
		out[key] = v
	}
	return out, nil
}

func (d *Decoder) relationWrite(e *schema.Entity, rel *schema.Relation, v any) (*RelationWrite, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(e.Name, "relation write %s must be an object", rel.Name)
	}
	target, err := d.reg.GetEntity(rel.Target)
	if err != nil {
		return nil, err
	}
	w := &RelationWrite{}
	for key, raw := range m {
		switch key {
		case "create":
			for _, item := range asList(raw) {
				data, err := d.data(target, item)
				if err != nil {
					return nil, err
				}
				w.Create = append(w.Create, data)
			}
		case "connect", "set", "disconnect", "delete":
			if b, ok := raw.(bool); ok {
				if !b {
					continue
				}
				switch key {
				case "disconnect":
					w.DisconnectOne = true
				case "delete":
					w.DeleteOne = true
				default:
					return nil, tdalerr.InvalidArgument(e.Name, "%s on %s needs a unique selector", key, rel.Name)
				}
				continue
			}
			list := []Unique{}
			for _, item := range asList(raw) {
				u, err := d.unique(target, item)
				if err != nil {
					return nil, err
				}
				list = append(list, u)
			}
			switch key {
			case "connect":
				w.Connect = list
			case "set":
				w.Set = list
			case "disconnect":
				w.Disconnect = list
			default:
				w.Delete = list
			}
		case "connectOrCreate":
			for _, item := range asList(raw) {
				im, _ := item.(map[string]any)
				u, err := d.unique(target, im["where"])
				if err != nil {
					return nil, err
				}
				data, err := d.data(target, im["create"])
				if err != nil {
					return nil, err
				}
				w.ConnectOrCreate = append(w.ConnectOrCreate, ConnectOrCreate{Where: u, Create: data})
			}
		case "update":
			for _, item := range asList(raw) {
				im, _ := item.(map[string]any)
				up := NestedUpdate{}
				if _, hasData := im["data"]; hasData {
					if up.Where, err = d.unique(target, im["where"]); err != nil {
						return nil, err
					}
					im, _ = im["data"].(map[string]any)
				}
				if up.Data, err = d.data(target, im); err != nil {
					return nil, err
				}
				w.Update = append(w.Update, up)
			}
		case "upsert":
			for _, item := range asList(raw) {
				im, _ := item.(map[string]any)
				up := NestedUpsert{}
				if up.Where, err = d.unique(target, im["where"]); err != nil {
					return nil, err
				}
				if up.Create, err = d.data(target, im["create"]); err != nil {
					return nil, err
				}
				if up.Update, err = d.data(target, im["update"]); err != nil {
					return nil, err
				}
				w.Upsert = append(w.Upsert, up)
			}
		case "updateMany":
			for _, item := range asList(raw) {
				im, _ := item.(map[string]any)
				where, err := d.where(target, im["where"])
				if err != nil {
					return nil, err
				}
				data, err := d.data(target, im["data"])
				if err != nil {
					return nil, err
				}
				w.UpdateMany = append(w.UpdateMany, NestedUpdateMany{Where: where, Data: data})
			}
		case "deleteMany":
			for _, item := range asList(raw) {
				where, err := d.where(target, item)
				if err != nil {
					return nil, err
				}
				w.DeleteMany = append(w.DeleteMany, orTrue(where))
			}
		default:
			return nil, tdalerr.InvalidArgument(e.Name, "unknown relation write %q on %s", key, rel.Name)
		}
	}
	return w, nil
}

func (d *Decoder) selection(e *schema.Entity, doc map[string]any) (Select, Include, error) {
	var sel Select
	var inc Include
	if raw, ok := doc["select"]; ok && raw != nil {
		m, err := d.nestedMap(e, raw)
		if err != nil {
			return nil, nil, err
		}
		sel = Select(m)
	}
	if raw, ok := doc["include"]; ok && raw != nil {
		m, err := d.nestedMap(e, raw)
		if err != nil {
			return nil, nil, err
		}
		inc = Include(m)
	}
	return sel, inc, nil
}

func (d *Decoder) nestedMap(e *schema.Entity, raw any) (map[string]*Nested, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(e.Name, "select and include must be objects")
	}
	out := map[string]*Nested{}
	for key, v := range m {
		if _, isField := e.Field(key); !isField && key != CountKey {
			if _, isRel := e.Relation(key); !isRel {
				return nil, tdalerr.UnknownField(e.Name, key)
			}
		}
		if b, ok := v.(bool); ok {
			if b {
				out[key] = nil
			}
			continue
		}
		nm, ok := v.(map[string]any)
		if !ok {
			return nil, tdalerr.InvalidArgument(e.Name, "selection %s must be true or an object", key)
		}
		if key == CountKey {
			inner, err := d.nestedMap(e, nm["select"])
			if err != nil {
				return nil, err
			}
			out[key] = &Nested{Select: Select(inner)}
			continue
		}
		rel, ok := e.Relation(key)
		if !ok {
			return nil, tdalerr.UnknownRelation(e.Name, key)
		}
		args, err := d.FindArgs(rel.Target, nm)
		if err != nil {
			return nil, err
		}
		if args.Cursor != nil {
			return nil, tdalerr.InvalidArgument(e.Name, "cursor is not supported on nested relation %s", key)
		}
		out[key] = &Nested{
			Where: args.Where, OrderBy: args.OrderBy, Skip: args.Skip, Take: args.Take,
			Distinct: args.Distinct, Select: args.Select, Include: args.Include,
		}
	}
	return out, nil
}

func window(entity string, doc map[string]any) (int, *int, error) {
	var skip int
	var take *int
	if raw, ok := doc["skip"]; ok && raw != nil {
		n, ok := asInt(raw)
		if !ok || n < 0 {
			return 0, nil, tdalerr.InvalidArgument(entity, "skip must be a non-negative integer")
		}
		skip = n
	}
	if raw, ok := doc["take"]; ok && raw != nil {
		n, ok := asInt(raw)
		if !ok {
			return 0, nil, tdalerr.InvalidArgument(entity, "take must be an integer")
		}
		take = &n
	}
	return skip, take, nil
}

func asInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func asList(v any) []any {
	switch l := v.(type) {
	case nil:
		return nil
	case []any:
		return l
	}
	return []any{v}
}

func stringList(entity, key string, v any) ([]string, error) {
	var out []string
	for _, item := range asList(v) {
		s, ok := item.(string)
		if !ok {
			return nil, tdalerr.InvalidArgument(entity, "%s must list field names", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// trueKeys reads {field: true, ...}.
func trueKeys(entity, key string, v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.(bool); ok {
		if b {
			return []string{CountAll}, nil
		}
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, tdalerr.InvalidArgument(entity, "%s must be an object of field: true", key)
	}
	var out []string
	for _, k := range sortedKeys(m) {
		if b, _ := m[k].(bool); b {
			out = append(out, k)
		}
	}
	return out, nil
}

func aggregateFields(entity, key string, v any) ([]string, error) {
	return trueKeys(entity, key, v)
}

func onlyKeys(entity string, doc map[string]any, allowed ...string) error {
	for k := range doc {
		if !slices.Contains(allowed, k) {
			return tdalerr.InvalidArgument(entity, "unexpected argument %q", k)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
