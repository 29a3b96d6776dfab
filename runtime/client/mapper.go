package client

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies a result row into a value of type T, usually a struct. Struct fields match row
// keys through their `tdal` tag, else by case-insensitive name. Relations decode into nested
// structs, struct pointers or slices; nullable columns into pointers.
func Decode[T any](row Row) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "tdal",
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(row)); err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}

// DecodeAll decodes every row into a T.
func DecodeAll[T any](rows []Row) ([]T, error) {
	out := make([]T, len(rows))
	for i, row := range rows {
		v, err := Decode[T](row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
