package resolver

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
)

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// GroupByKey groups values by key, keeping their relative order.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of each key, in the order of keys.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// tuple returns the values of fields in r and whether none of them is null.
func tuple(r plan.Row, fields []string) ([]any, bool) {
	out := make([]any, len(fields))
	for i, f := range fields {
		v := r[f]
		if v == nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func tupleKey(values []any) string {
	var b strings.Builder
	for _, v := range values {
		fmt.Fprintf(&b, "%T:%v\x00", v, v)
	}
	return b.String()
}

// rowKey is the key of the fields of r, matched against tupleKey of the parent values.
func rowKey(fields []string) KeyFunc[string, plan.Row] {
	return func(r plan.Row) string {
		values := make([]any, len(fields))
		for i, f := range fields {
			values[i] = r[f]
		}
		return tupleKey(values)
	}
}

// parentKeys returns the distinct non-null key tuples of parents in first-seen order, and the
// key of every parent ("" when a key field is null).
func parentKeys(parents []plan.Row, fields []string) (tuples [][]any, keys []string) {
	keys = make([]string, len(parents))
	seen := map[string]bool{}
	for i, p := range parents {
		t, ok := tuple(p, fields)
		if !ok {
			continue
		}
		k := tupleKey(t)
		keys[i] = k
		if !seen[k] {
			seen[k] = true
			tuples = append(tuples, t)
		}
	}
	return tuples, keys
}
