package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/satishbabariya/tdal/query/cache"
)

// cachedOperations are the reads CacheMiddleware serves from the cache.
var cachedOperations = map[string]bool{
	"findMany":          true,
	"findFirst":         true,
	"findFirstOrThrow":  true,
	"findUnique":        true,
	"findUniqueOrThrow": true,
	"count":             true,
	"aggregate":         true,
	"groupBy":           true,
}

// uncachedReads read without writing, so they neither use nor clear the cache.
var uncachedReads = map[string]bool{
	"resolve": true,
}

// CacheMiddleware serves repeated reads from c for ttl (zero uses the cache default). Every
// other write clears the cache once it returns; rows changed outside this client stay stale
// until their entries expire, as do reads cached between a transaction's writes and its commit.
// Reads on transaction-scoped clients bypass the cache. Callers receive copies of cached results.
func CacheMiddleware(c *cache.LRU[any], ttl time.Duration) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		if uncachedReads[event.Operation] {
			return next()
		}
		if !cachedOperations[event.Operation] {
			defer c.Clear()
			return next()
		}
		if event.Transaction {
			return next()
		}

		key := cacheKey(event)
		if v, ok := c.Get(key); ok {
			event.Result = cloneResult(v)
			return nil
		}
		if err := next(); err != nil {
			return err
		}
		c.Set(key, cloneResult(event.Result), ttl)
		return nil
	}
}

func cacheKey(event *QueryEvent) string {
	var b strings.Builder
	fingerprint(&b, reflect.ValueOf(event.Args))
	sum := sha256.Sum256([]byte(b.String()))
	return event.Model + ":" + event.Operation + ":" + hex.EncodeToString(sum[:16])
}

var timeType = reflect.TypeOf(time.Time{})

// fingerprint writes a canonical rendering of v: map keys sorted, pointers followed, dynamic
// types named.
func fingerprint(b *strings.Builder, v reflect.Value) {
	if !v.IsValid() {
		b.WriteString("nil")
		return
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		if v.Kind() == reflect.Interface {
			b.WriteString(v.Elem().Type().String())
		}
		fingerprint(b, v.Elem())
	case reflect.Struct:
		if v.Type() == timeType {
			b.WriteString(v.Interface().(time.Time).UTC().Format(time.RFC3339Nano))
			return
		}
		b.WriteString(v.Type().String() + "{")
		for i := range v.NumField() {
			if f := v.Type().Field(i); f.IsExported() {
				b.WriteString(f.Name + ":")
				fingerprint(b, v.Field(i))
				b.WriteString(",")
			}
		}
		b.WriteString("}")
	case reflect.Map:
		keys := v.MapKeys()
		slices.SortFunc(keys, func(x, y reflect.Value) int {
			return strings.Compare(fmt.Sprint(x.Interface()), fmt.Sprint(y.Interface()))
		})
		b.WriteString(v.Type().String() + "{")
		for _, k := range keys {
			fingerprint(b, k)
			b.WriteString(":")
			fingerprint(b, v.MapIndex(k))
			b.WriteString(",")
		}
		b.WriteString("}")
	case reflect.Slice, reflect.Array:
		b.WriteString(v.Type().String() + "[")
		for i := range v.Len() {
			fingerprint(b, v.Index(i))
			b.WriteString(",")
		}
		b.WriteString("]")
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		b.WriteString(v.Type().String())
	default:
		fmt.Fprintf(b, "%#v", v.Interface())
	}
}

// cloneResult deep-copies the result shapes delegates return.
func cloneResult(v any) any {
	switch v := v.(type) {
	case Row:
		if v == nil {
			return v
		}
		out := make(Row, len(v))
		for k, val := range v {
			out[k] = cloneResult(val)
		}
		return out
	case []Row:
		if v == nil {
			return v
		}
		out := make([]Row, len(v))
		for i, row := range v {
			out[i] = cloneResult(row).(Row)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = cloneResult(val)
		}
		return out
	case map[string]int64:
		return maps.Clone(v)
	case []byte:
		return bytes.Clone(v)
	}
	return v
}
