package dsl

import (
	"strings"
	"text/tabwriter"
)

// Format renders f in canonical layout: two-space indentation, aligned field columns and one
// blank line between declarations. Comments are not preserved.
func Format(f *File) string {
	var b strings.Builder
	for i, item := range f.Items {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case item.Config != nil:
			formatConfig(&b, item.Config)
		case item.Enum != nil:
			formatEnum(&b, item.Enum)
		case item.Entity != nil:
			formatEntity(&b, item.Entity)
		}
	}
	return b.String()
}

// FormatSource parses src and returns it formatted.
func FormatSource(filename, src string) (string, error) {
	f, err := ParseString(filename, src)
	if err != nil {
		return "", err
	}
	return Format(f), nil
}

func formatConfig(b *strings.Builder, c *ConfigBlock) {
	b.WriteString(c.Keyword)
	if c.Name != "" {
		b.WriteString(" " + c.Name)
	}
	b.WriteString(" {\n")
	tw := tabwriter.NewWriter(b, 0, 0, 1, ' ', 0)
	for _, p := range c.Properties {
		tw.Write([]byte("  " + p.Name + "\t= " + p.Value.String() + "\n"))
	}
	tw.Flush()
	b.WriteString("}\n")
}

func formatEnum(b *strings.Builder, e *EnumDecl) {
	b.WriteString("enum " + e.Name + " {\n")
	for _, v := range e.Values {
		b.WriteString("  " + v.Name)
		for _, a := range v.Attributes {
			b.WriteString(" " + a.String())
		}
		b.WriteString("\n")
	}
	for _, ba := range e.BlockAttributes {
		b.WriteString("\n  " + ba.String() + "\n")
	}
	b.WriteString("}\n")
}

func formatEntity(b *strings.Builder, e *EntityDecl) {
	b.WriteString(e.Keyword + " " + e.Name + " {\n")
	types := make([]string, len(e.Fields))
	nameW, typeW := 0, 0
	for i, fd := range e.Fields {
		types[i] = fd.Type
		if fd.List {
			types[i] += "[]"
		}
		if fd.Optional {
			types[i] += "?"
		}
		nameW = max(nameW, len(fd.Name))
		typeW = max(typeW, len(types[i]))
	}
	for i, fd := range e.Fields {
		b.WriteString("  " + pad(fd.Name, nameW) + " ")
		if len(fd.Attributes) == 0 {
			b.WriteString(types[i] + "\n")
			continue
		}
		attrs := make([]string, len(fd.Attributes))
		for j, a := range fd.Attributes {
			attrs[j] = a.String()
		}
		b.WriteString(pad(types[i], typeW) + " " + strings.Join(attrs, " ") + "\n")
	}
	if len(e.BlockAttributes) > 0 {
		b.WriteString("\n")
	}
	for _, ba := range e.BlockAttributes {
		b.WriteString("  " + ba.String() + "\n")
	}
	b.WriteString("}\n")
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", width-len(s))
}

// String renders the attribute back to source form.
func (a *Attribute) String() string {
	if a.Arguments == nil {
		return "@" + a.Name
	}
	return "@" + a.Name + "(" + a.Arguments.String() + ")"
}

// String renders the block attribute back to source form.
func (a *BlockAttribute) String() string {
	if a.Arguments == nil {
		return "@@" + a.Name
	}
	return "@@" + a.Name + "(" + a.Arguments.String() + ")"
}
