// Package dsl parses .tdal schema source files into schema definitions.
package dsl

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

var parser = participle.MustBuild[File](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace", "Newline", "Comment", "MultiLineComment"),
	participle.Unquote("String"),
	participle.UseLookahead(10),
)

// Parse parses a schema source from r.
func Parse(filename string, r io.Reader) (*File, error) {
	f, err := parser.Parse(filename, r)
	if err != nil {
		return nil, &tdalerr.SchemaError{Problems: []string{err.Error()}}
	}
	return f, nil
}

// ParseString parses a schema source held in memory.
func ParseString(filename, src string) (*File, error) {
	return Parse(filename, strings.NewReader(src))
}

// Load parses r and converts it to a definition, resolving env() calls with lookup.
// A nil lookup leaves env() values empty.
func Load(filename string, r io.Reader, lookup func(string) (string, bool)) (*schema.Definition, error) {
	f, err := Parse(filename, r)
	if err != nil {
		return nil, err
	}
	return f.Definition(lookup)
}

// String renders the value back to source form.
func (v *Value) String() string {
	switch {
	case v == nil:
		return ""
	case v.Str != nil:
		return fmt.Sprintf("%q", *v.Str)
	case v.Number != nil:
		return *v.Number
	case v.Call != nil:
		return v.Call.Name + "(" + v.Call.Arguments.String() + ")"
	case v.Array != nil:
		parts := make([]string, len(v.Array.Elements))
		for i, e := range v.Array.Elements {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case v.Ident != nil:
		return *v.Ident
	}
	return ""
}

// String renders the arguments back to source form.
func (a *Arguments) String() string {
	if a == nil {
		return ""
	}
	parts := make([]string, len(a.List))
	for i, arg := range a.List {
		if arg.Name != "" {
			parts[i] = arg.Name + ": " + arg.Value.String()
		} else {
			parts[i] = arg.Value.String()
		}
	}
	return strings.Join(parts, ", ")
}
