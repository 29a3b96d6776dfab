package dsl

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// File is the parse tree of one schema source.
type File struct {
	Pos   lexer.Position
	Items []*Item `@@*`
}

// Item is one top-level declaration.
type Item struct {
	Pos    lexer.Position
	Entity *EntityDecl  `  @@`
	Enum   *EnumDecl    `| @@`
	Config *ConfigBlock `| @@`
}

// ConfigBlock is a `datasource name { ... }` or `client { ... }` block.
type ConfigBlock struct {
	Pos        lexer.Position
	Keyword    string      `@("datasource" | "client")`
	Name       string      `@Ident?`
	Properties []*Property `"{" @@* "}"`
}

// Property returns the property called name.
func (c *ConfigBlock) Property(name string) *Property {
	for _, p := range c.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Property is a `key = value` line.
type Property struct {
	Pos   lexer.Position
	Name  string `@(Ident | Keyword)`
	Value *Value `"=" @@`
}

// EntityDecl declares an entity.
type EntityDecl struct {
	Pos             lexer.Position
	Keyword         string            `@("entity" | "model")`
	Name            string            `@Ident`
	Fields          []*FieldDecl      `"{" @@*`
	BlockAttributes []*BlockAttribute `@@* "}"`
}

// FieldDecl is `name Type[]? ?` followed by attributes.
type FieldDecl struct {
	Pos        lexer.Position
	Name       string       `@(Ident | Keyword)`
	Type       string       `@Ident`
	List       bool         `@("[" "]")?`
	Optional   bool         `@"?"?`
	Attributes []*Attribute `@@*`
}

// Attribute returns the first attribute called name.
func (f *FieldDecl) Attribute(name string) *Attribute {
	for _, a := range f.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// EnumDecl declares an enum.
type EnumDecl struct {
	Pos             lexer.Position
	Name            string            `"enum" @Ident`
	Values          []*EnumValue      `"{" @@*`
	BlockAttributes []*BlockAttribute `@@* "}"`
}

// EnumValue is a single enum member.
type EnumValue struct {
	Pos        lexer.Position
	Name       string       `@(Ident | Keyword)`
	Attributes []*Attribute `@@*`
}

// Attribute is a field attribute such as @default(now()).
type Attribute struct {
	Pos       lexer.Position
	Name      string     `"@" @Ident (@"." @Ident)*`
	Arguments *Arguments `("(" @@ ")")?`
}

// BlockAttribute is an entity attribute such as @@unique([a, b]).
type BlockAttribute struct {
	Pos       lexer.Position
	Name      string     `"@@" @Ident`
	Arguments *Arguments `("(" @@ ")")?`
}

// Arguments is a comma separated argument list.
type Arguments struct {
	Pos  lexer.Position
	List []*Argument `(@@ ("," @@)*)? ","?`
}

// Positional returns the first unnamed argument.
func (a *Arguments) Positional() *Value {
	if a == nil {
		return nil
	}
	for _, arg := range a.List {
		if arg.Name == "" {
			return arg.Value
		}
	}
	return nil
}

// Named returns the argument called name.
func (a *Arguments) Named(name string) *Value {
	if a == nil {
		return nil
	}
	for _, arg := range a.List {
		if arg.Name == name {
			return arg.Value
		}
	}
	return nil
}

// Argument is `name: value` or a bare value.
type Argument struct {
	Pos   lexer.Position
	Name  string `(@Ident ":")?`
	Value *Value `@@`
}

// Value is a literal, call, array or bare identifier.
type Value struct {
	Pos    lexer.Position
	Str    *string `  @String`
	Number *string `| @Number`
	Call   *Call   `| @@`
	Array  *Array  `| @@`
	Ident  *string `| @Ident`
}

// Call is `name(args)`, e.g. env("DATABASE_URL").
type Call struct {
	Pos       lexer.Position
	Name      string     `@Ident "("`
	Arguments *Arguments `@@ ")"`
}

// Array is `[a, b]`.
type Array struct {
	Pos      lexer.Position
	Elements []*Value `"[" (@@ ("," @@)*)? ","? "]"`
}

// Idents returns the array elements that are bare identifiers.
func (a *Array) Idents() []string {
	out := make([]string, 0, len(a.Elements))
	for _, v := range a.Elements {
		if v.Ident != nil {
			out = append(out, *v.Ident)
		}
	}
	return out
}
