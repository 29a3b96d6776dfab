package client

import (
	"context"
	"maps"
	"sort"

	"github.com/satishbabariya/tdal/query/ast"
	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// create inserts one row of e with its nested writes and returns every scalar of the row.
// Relations whose foreign key lives on e are written first so the key can be stored with the
// row; the others once the row exists.
func (c *Client) create(ctx context.Context, e *schema.Entity, data ast.Data) (Row, error) {
	scalars, writes, err := c.compiler.SplitData(e.Name, data)
	if err != nil {
		return nil, err
	}
	var children []*schema.Relation
	for _, name := range relationNames(writes) {
		rel, _ := e.Relation(name)
		if !rel.IsOwner() {
			children = append(children, rel)
			continue
		}
		fk, _, err := c.ownerWrite(ctx, rel, nil, writes[name])
		if err != nil {
			return nil, err
		}
		maps.Copy(scalars, fk)
	}

	inserts, err := c.compiler.Insert(e.Name, []ast.Data{scalars}, false)
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.Insert(ctx, c.querier(), inserts[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, tdalerr.NotFound(e.Name)
	}
	row := rows[0]
	for _, rel := range children {
		if err := c.childWrite(ctx, rel, row, writes[rel.Name]); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// updateOne updates the single row of e matching where and applies its nested writes. It
// returns the row as stored afterwards, or NotFound.
func (c *Client) updateOne(ctx context.Context, e *schema.Entity, where plan.Node, data ast.Data) (Row, error) {
	current, err := c.selectOne(ctx, e, where)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, tdalerr.NotFound(e.Name)
	}
	scalars, writes, err := c.compiler.SplitData(e.Name, data)
	if err != nil {
		return nil, err
	}

	var children []*schema.Relation
	var after []func(context.Context) error
	for _, name := range relationNames(writes) {
		rel, _ := e.Relation(name)
		if !rel.IsOwner() {
			children = append(children, rel)
			continue
		}
		fk, post, err := c.ownerWrite(ctx, rel, current, writes[name])
		if err != nil {
			return nil, err
		}
		maps.Copy(scalars, fk)
		after = append(after, post...)
	}

	key := keyOf(e, current)
	keyWhere, err := c.compiler.Unique(e.Name, key)
	if err != nil {
		return nil, err
	}
	u, err := c.compiler.Update(e.Name, keyWhere, scalars)
	if err != nil {
		return nil, err
	}
	if len(u.Set) > 0 {
		if _, err := c.exec.Update(ctx, c.querier(), u); err != nil {
			return nil, err
		}
	}
	for _, name := range e.PrimaryKey().Fields {
		if v, ok := scalars[name]; ok {
			if op, isOp := v.(ast.NumberOp); isOp {
				v = op.Value
			}
			key[name] = v
		}
	}
	updated, err := c.byUnique(ctx, e, key)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, tdalerr.NotFound(e.Name)
	}

	for _, rel := range children {
		if err := c.childWrite(ctx, rel, updated, writes[rel.Name]); err != nil {
			return nil, err
		}
	}
	for _, fn := range after {
		if err := fn(ctx); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// ownerWrite applies a write on a relation whose foreign key is stored on the writing row.
// current is the row before the write, nil while creating. It returns the foreign key values
// to store and deletes that must wait until the row no longer references the old target.
func (c *Client) ownerWrite(ctx context.Context, rel *schema.Relation, current Row, w *ast.RelationWrite) (ast.Data, []func(context.Context) error, error) {
	target, err := c.reg.GetEntity(rel.Target)
	if err != nil {
		return nil, nil, err
	}
	local, refs := rel.LocalKeys(), rel.TargetKeys()
	link := func(row Row) ast.Data {
		fk := ast.Data{}
		for i, k := range local {
			fk[k] = row[refs[i]]
		}
		return fk
	}
	unlink := func() ast.Data {
		fk := ast.Data{}
		for _, k := range local {
			fk[k] = nil
		}
		return fk
	}
	// linked returns the target row current points to.
	linked := func() (Row, error) {
		if current == nil {
			return nil, nil
		}
		conds := make(ast.And, len(local))
		for i, k := range local {
			if current[k] == nil {
				return nil, nil
			}
			conds[i] = ast.Eq(refs[i], current[k])
		}
		where, err := c.compiler.Where(target.Name, conds)
		if err != nil {
			return nil, err
		}
		return c.selectOne(ctx, target, where)
	}
	missing := func() error {
		return &tdalerr.Error{Kind: tdalerr.KindNotFound, Entity: target.Name, Relation: rel.Name, Message: "no related row"}
	}

	switch {
	case len(w.Create) == 1:
		row, err := c.create(ctx, target, w.Create[0])
		if err != nil {
			return nil, nil, err
		}
		return link(row), nil, nil

	case len(w.Connect) == 1:
		row, err := c.byUnique(ctx, target, w.Connect[0])
		if err != nil {
			return nil, nil, err
		}
		if row == nil {
			return nil, nil, missing()
		}
		return link(row), nil, nil

	case len(w.ConnectOrCreate) == 1:
		co := w.ConnectOrCreate[0]
		row, err := c.byUnique(ctx, target, co.Where)
		if err == nil && row == nil {
			row, err = c.create(ctx, target, co.Create)
		}
		if err != nil {
			return nil, nil, err
		}
		return link(row), nil, nil

	case w.DisconnectOne:
		return unlink(), nil, nil

	case w.DeleteOne:
		old, err := linked()
		if err != nil {
			return nil, nil, err
		}
		if old == nil {
			return nil, nil, missing()
		}
		del := func(ctx context.Context) error {
			where, err := c.compiler.Unique(target.Name, keyOf(target, old))
			if err != nil {
				return err
			}
			_, err = c.deleteWhere(ctx, target, where)
			return err
		}
		return unlink(), []func(context.Context) error{del}, nil

	case len(w.Update) == 1:
		old, err := linked()
		if err != nil {
			return nil, nil, err
		}
		if old == nil {
			return nil, nil, missing()
		}
		row, err := c.updateByKey(ctx, target, old, w.Update[0].Data)
		if err != nil {
			return nil, nil, err
		}
		return link(row), nil, nil

	case len(w.Upsert) == 1:
		up := w.Upsert[0]
		old, err := linked()
		if err != nil {
			return nil, nil, err
		}
		var row Row
		if old != nil {
			row, err = c.updateByKey(ctx, target, old, up.Update)
		} else {
			row, err = c.create(ctx, target, up.Create)
		}
		if err != nil {
			return nil, nil, err
		}
		return link(row), nil, nil
	}
	return ast.Data{}, nil, nil
}

// childWrite applies a write on a relation whose foreign key is stored on the related rows.
// Directives run in a fixed order: set, disconnects, deletes, updates, upserts, then creates
// and connects.
func (c *Client) childWrite(ctx context.Context, rel *schema.Relation, parent Row, w *ast.RelationWrite) error {
	target, err := c.reg.GetEntity(rel.Target)
	if err != nil {
		return err
	}
	local, fks := rel.LocalKeys(), rel.TargetKeys()
	fk := ast.Data{}
	conds := make(ast.And, len(fks))
	for i, k := range fks {
		fk[k] = parent[local[i]]
		conds[i] = ast.Eq(k, parent[local[i]])
	}
	owned, err := c.compiler.Where(target.Name, conds)
	if err != nil {
		return err
	}
	unlink := ast.Data{}
	for _, k := range fks {
		unlink[k] = nil
	}
	// scoped narrows a unique selector to the rows related to parent.
	scoped := func(u ast.Unique) (plan.Node, error) {
		where, err := c.compiler.Unique(target.Name, u)
		if err != nil {
			return nil, err
		}
		return plan.Conjoin(where, owned), nil
	}
	missing := func() error {
		return &tdalerr.Error{Kind: tdalerr.KindNotFound, Entity: target.Name, Relation: rel.Name, Message: "no related row"}
	}
	withKey := func(d ast.Data) ast.Data {
		out := maps.Clone(d)
		if out == nil {
			out = ast.Data{}
		}
		maps.Copy(out, fk)
		return out
	}
	connect := func(u ast.Unique) error {
		where, err := c.compiler.Unique(target.Name, u)
		if err != nil {
			return err
		}
		if rel.IsToOne() && nullable(target, fks) {
			if _, err := c.updateWhere(ctx, target, plan.Conjoin(owned, plan.Not{X: where}), unlink); err != nil {
				return err
			}
		}
		n, err := c.updateWhere(ctx, target, where, fk)
		if err != nil {
			return err
		}
		if n == 0 {
			return missing()
		}
		return nil
	}

	if w.Set != nil {
		if _, err := c.updateWhere(ctx, target, owned, unlink); err != nil {
			return err
		}
		for _, u := range w.Set {
			if err := connect(u); err != nil {
				return err
			}
		}
	}
	for _, u := range w.Disconnect {
		where, err := scoped(u)
		if err != nil {
			return err
		}
		if _, err := c.updateWhere(ctx, target, where, unlink); err != nil {
			return err
		}
	}
	if w.DisconnectOne {
		if _, err := c.updateWhere(ctx, target, owned, unlink); err != nil {
			return err
		}
	}
	for _, u := range w.Delete {
		where, err := scoped(u)
		if err != nil {
			return err
		}
		n, err := c.deleteWhere(ctx, target, where)
		if err != nil {
			return err
		}
		if n == 0 {
			return missing()
		}
	}
	if w.DeleteOne {
		n, err := c.deleteWhere(ctx, target, owned)
		if err != nil {
			return err
		}
		if n == 0 {
			return missing()
		}
	}
	for _, expr := range w.DeleteMany {
		where, err := c.compiler.Where(target.Name, expr)
		if err != nil {
			return err
		}
		if _, err := c.deleteWhere(ctx, target, plan.Conjoin(where, owned)); err != nil {
			return err
		}
	}
	for _, nu := range w.Update {
		where := owned
		if !rel.IsToOne() {
			if where, err = scoped(nu.Where); err != nil {
				return err
			}
		}
		if _, err := c.updateOne(ctx, target, where, nu.Data); err != nil {
			return err
		}
	}
	for _, um := range w.UpdateMany {
		where, err := c.compiler.Where(target.Name, um.Where)
		if err != nil {
			return err
		}
		if _, err := c.updateWhere(ctx, target, plan.Conjoin(where, owned), um.Data); err != nil {
			return err
		}
	}
	for _, up := range w.Upsert {
		where := owned
		if !rel.IsToOne() {
			if where, err = scoped(up.Where); err != nil {
				return err
			}
		}
		row, err := c.selectOne(ctx, target, where)
		if err != nil {
			return err
		}
		if row != nil {
			_, err = c.updateByKey(ctx, target, row, up.Update)
		} else {
			_, err = c.create(ctx, target, withKey(up.Create))
		}
		if err != nil {
			return err
		}
	}
	for _, d := range w.Create {
		if _, err := c.create(ctx, target, withKey(d)); err != nil {
			return err
		}
	}
	for _, co := range w.ConnectOrCreate {
		row, err := c.byUnique(ctx, target, co.Where)
		if err != nil {
			return err
		}
		if row != nil {
			err = connect(co.Where)
		} else {
			_, err = c.create(ctx, target, withKey(co.Create))
		}
		if err != nil {
			return err
		}
	}
	for _, u := range w.Connect {
		if err := connect(u); err != nil {
			return err
		}
	}
	return nil
}

// updateByKey updates the row of e identified by the primary key values of row.
func (c *Client) updateByKey(ctx context.Context, e *schema.Entity, row Row, data ast.Data) (Row, error) {
	where, err := c.compiler.Unique(e.Name, keyOf(e, row))
	if err != nil {
		return nil, err
	}
	return c.updateOne(ctx, e, where, data)
}

// updateWhere runs a scalar update over every row of e matching where.
func (c *Client) updateWhere(ctx context.Context, e *schema.Entity, where plan.Node, data ast.Data) (int64, error) {
	u, err := c.compiler.Update(e.Name, where, data)
	if err != nil {
		return 0, err
	}
	return c.exec.Update(ctx, c.querier(), u)
}

func (c *Client) deleteWhere(ctx context.Context, e *schema.Entity, where plan.Node) (int64, error) {
	d, err := c.compiler.Delete(e.Name, where)
	if err != nil {
		return 0, err
	}
	return c.exec.Delete(ctx, c.querier(), d)
}

// selectOne reads every scalar of the first row of e matching where, or nil.
func (c *Client) selectOne(ctx context.Context, e *schema.Entity, where plan.Node) (Row, error) {
	s, err := c.compiler.Select(e.Name, where)
	if err != nil {
		return nil, err
	}
	one := 1
	s.Limit = &one
	rows, err := c.exec.Select(ctx, c.querier(), s)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (c *Client) byUnique(ctx context.Context, e *schema.Entity, u ast.Unique) (Row, error) {
	where, err := c.compiler.Unique(e.Name, u)
	if err != nil {
		return nil, err
	}
	return c.selectOne(ctx, e, where)
}

// keyOf returns the primary key selector of row.
func keyOf(e *schema.Entity, row Row) ast.Unique {
	u := ast.Unique{}
	for _, name := range e.PrimaryKey().Fields {
		u[name] = row[name]
	}
	return u
}

func nullable(e *schema.Entity, fields []string) bool {
	for _, name := range fields {
		if f, ok := e.Field(name); !ok || !f.Nullable {
			return false
		}
	}
	return true
}

func relationNames(writes map[string]*ast.RelationWrite) []string {
	names := make([]string, 0, len(writes))
	for name := range writes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
