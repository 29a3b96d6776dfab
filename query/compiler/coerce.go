package compiler

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// coerce converts v to the canonical Go type for f: string, int64, float64, bool, time.Time,
// []byte or a JSON string.
func (c *Compiler) coerce(e *schema.Entity, f *schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	bad := func() error {
		return &tdalerr.Error{
			Kind:    tdalerr.KindInvalidArgument,
			Entity:  e.Name,
			Field:   f.Name,
			Value:   v,
			Message: fmt.Sprintf("cannot use %T as %s", v, f.Type),
		}
	}
	switch f.Type {
	case schema.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, bad()
	case schema.EnumType:
		s, ok := v.(string)
		if !ok {
			return nil, bad()
		}
		values, _ := c.reg.EnumValues(f.Enum)
		for _, member := range values {
			if member == s {
				return s, nil
			}
		}
		return nil, &tdalerr.Error{
			Kind: tdalerr.KindInvalidArgument, Entity: e.Name, Field: f.Name, Value: v,
			Message: fmt.Sprintf("not a member of enum %s %v", f.Enum, values),
		}
	case schema.Int, schema.BigInt:
		n, ok := toInt64(v)
		if !ok {
			return nil, bad()
		}
		return n, nil
	case schema.Float:
		n, ok := toFloat64(v)
		if !ok {
			return nil, bad()
		}
		return n, nil
	case schema.Decimal:
		if s, ok := v.(string); ok {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, bad()
			}
			return n, nil
		}
		n, ok := toFloat64(v)
		if !ok {
			return nil, bad()
		}
		return n, nil
	case schema.Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, bad()
	case schema.DateTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, bad()
			}
			return parsed.UTC(), nil
		}
		return nil, bad()
	case schema.Bytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, bad()
	case schema.Json:
		if s, ok := v.(string); ok {
			return s, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, bad()
		}
		return string(raw), nil
	}
	return nil, bad()
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return int64(n), float32(int64(n)) == n
	case float64:
		return int64(n), float64(int64(n)) == n
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// list flattens a slice or array value into []any.
func list(v any) ([]any, bool) {
	if v == nil {
		return nil, true
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// []byte is a scalar.
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
