package ast

import (
	"bytes"
	"reflect"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// truth is SQL three-valued logic.
type truth int8

const (
	unknown truth = iota
	isFalse
	isTrue
)

func truthOf(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

func (t truth) not() truth {
	switch t {
	case isTrue:
		return isFalse
	case isFalse:
		return isTrue
	}
	return unknown
}

// FoldCase lowercases s with Unicode case mapping, the comparison insensitive filters use.
// sqlite connections opened by internal/database install it as lower().
func FoldCase(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Evaluate reports whether row satisfies e with the semantics of a SQL WHERE clause,
// including NULL propagation through NOT. Relation filters read related rows from
// row[relation] as a map (to-one) or a slice of maps (to-many); a missing entry means no
// related rows.
func Evaluate(e Expr, row map[string]any) bool {
	return eval(e, row) == isTrue
}

func eval(e Expr, row map[string]any) truth {
	switch n := e.(type) {
	case nil:
		return isTrue
	case And:
		out := isTrue
		for _, c := range n {
			switch eval(c, row) {
			case isFalse:
				return isFalse
			case unknown:
				out = unknown
			}
		}
		return out
	case Or:
		out := isFalse
		for _, c := range n {
			switch eval(c, row) {
			case isTrue:
				return isTrue
			case unknown:
				out = unknown
			}
		}
		return out
	case Not:
		return eval(n.X, row).not()
	case *Not:
		return eval(n.X, row).not()
	case Cond:
		return evalCond(n, row[n.Field])
	case *Cond:
		return evalCond(*n, row[n.Field])
	case Relation:
		return evalRelation(n, row[n.Name])
	case *Relation:
		return evalRelation(*n, row[n.Name])
	}
	return unknown
}

func evalCond(c Cond, v any) truth {
	fold := c.Mode == ModeInsensitive
	switch c.Op {
	case OpEquals:
		if c.Value == nil {
			return truthOf(v == nil)
		}
		if v == nil {
			return unknown
		}
		return truthOf(equal(v, c.Value, fold))
	case OpNotEquals:
		if c.Value == nil {
			return truthOf(v != nil)
		}
		if v == nil {
			return unknown
		}
		return truthOf(!equal(v, c.Value, fold))
	case OpIn, OpNotIn:
		list := toList(c.Value)
		if len(list) == 0 {
			return truthOf(c.Op == OpNotIn)
		}
		if v == nil {
			return unknown
		}
		found := false
		for _, item := range list {
			if equal(v, item, fold) {
				found = true
				break
			}
		}
		return truthOf(found == (c.Op == OpIn))
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		if v == nil || c.Value == nil {
			return unknown
		}
		cmp, ok := compare(v, c.Value, fold)
		if !ok {
			return unknown
		}
		switch c.Op {
		case OpGreater:
			return truthOf(cmp > 0)
		case OpGreaterEq:
			return truthOf(cmp >= 0)
		case OpLess:
			return truthOf(cmp < 0)
		default:
			return truthOf(cmp <= 0)
		}
	case OpContains, OpStartsWith, OpEndsWith:
		s, ok1 := v.(string)
		sub, ok2 := c.Value.(string)
		if v == nil || !ok1 || !ok2 {
			return unknown
		}
		if fold {
			s, sub = FoldCase(s), FoldCase(sub)
		}
		switch c.Op {
		case OpContains:
			return truthOf(strings.Contains(s, sub))
		case OpStartsWith:
			return truthOf(strings.HasPrefix(s, sub))
		default:
			return truthOf(strings.HasSuffix(s, sub))
		}
	}
	return unknown
}

func evalRelation(r Relation, related any) truth {
	var rows []map[string]any
	switch v := related.(type) {
	case map[string]any:
		rows = []map[string]any{v}
	case []map[string]any:
		rows = v
	}
	switch r.Op {
	case RelSome, RelIs:
		for _, rr := range rows {
			if eval(r.Where, rr) == isTrue {
				return isTrue
			}
		}
		return isFalse
	case RelNone, RelIsNot:
		for _, rr := range rows {
			if eval(r.Where, rr) == isTrue {
				return isFalse
			}
		}
		return isTrue
	case RelEvery:
		for _, rr := range rows {
			if eval(r.Where, rr) == isFalse {
				return isFalse
			}
		}
		return isTrue
	}
	return unknown
}

func toList(v any) []any {
	if v == nil {
		return nil
	}
	if l, ok := v.([]any); ok {
		return l
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func equal(a, b any, fold bool) bool {
	cmp, ok := compare(a, b, fold)
	return ok && cmp == 0
}

// compare orders two scalar values of compatible kinds.
func compare(a, b any, fold bool) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			if t, ok := b.(time.Time); ok {
				if xt, err := time.Parse(time.RFC3339Nano, x); err == nil {
					return xt.Compare(t), true
				}
			}
			return 0, false
		}
		if fold {
			x, y = FoldCase(x), FoldCase(y)
		}
		return strings.Compare(x, y), true
	case time.Time:
		switch y := b.(type) {
		case time.Time:
			return x.Compare(y), true
		case string:
			yt, err := time.Parse(time.RFC3339Nano, y)
			if err != nil {
				return 0, false
			}
			return x.Compare(yt), true
		}
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case []byte:
		y, ok := b.([]byte)
		if !ok {
			return 0, false
		}
		return bytes.Compare(x, y), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
