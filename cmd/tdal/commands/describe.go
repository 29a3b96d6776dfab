package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/tdal/schema"
)

func newDescribeCommand(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "describe [entity...]",
		Short: "Describe the entities of the schema",
		Long:  "Render entities, fields, relations and enums as markdown. Without arguments every entity is described.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, path, err := a.registry()
			if err != nil {
				return err
			}
			doc, err := describe(reg, path, args)
			if err != nil {
				return err
			}
			if raw {
				_, err := fmt.Fprint(a.ui.Out, doc)
				return err
			}
			return a.ui.Markdown(doc)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the markdown source instead of rendering it")
	return cmd
}

// describe renders the named entities of reg, or all of them, as markdown.
func describe(reg *schema.Registry, path string, names []string) (string, error) {
	if len(names) == 0 {
		names = reg.ModelNames()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nProvider `%s`, %d entities, %d enums.\n", path, reg.Provider(), len(reg.ModelNames()), len(reg.EnumNames()))

	for _, name := range names {
		e, err := reg.GetEntity(name)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n## %s\n\nTable `%s`, primary key (%s).\n\n", e.Name, e.Table, strings.Join(e.PrimaryKey().Fields, ", "))
		b.WriteString("| Field | Type | Column | Attributes |\n|---|---|---|---|\n")
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", f.Name, fieldType(f), f.Column, strings.Join(fieldAttributes(f), " "))
		}
		if len(e.Relations) > 0 {
			b.WriteString("\n| Relation | Target | Cardinality | Keys |\n|---|---|---|---|\n")
			for _, r := range e.Relations {
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", r.Name, r.Target, r.Cardinality, relationKeys(r))
			}
		}
		var uniques []string
		for _, u := range e.Uniques {
			if !u.Primary && len(u.Fields) > 1 {
				uniques = append(uniques, "`"+u.Key()+"`")
			}
		}
		if len(uniques) > 0 {
			fmt.Fprintf(&b, "\nCompound unique keys: %s.\n", strings.Join(uniques, ", "))
		}
	}

	if len(reg.EnumNames()) > 0 {
		b.WriteString("\n## Enums\n\n")
		for _, name := range reg.EnumNames() {
			values, _ := reg.EnumValues(name)
			fmt.Fprintf(&b, "- **%s**: %s\n", name, strings.Join(values, ", "))
		}
	}
	return b.String(), nil
}

func fieldType(f *schema.Field) string {
	t := string(f.Type)
	if f.Type == schema.EnumType {
		t = f.Enum
	}
	if f.Nullable {
		t += "?"
	}
	return t
}

func fieldAttributes(f *schema.Field) []string {
	var attrs []string
	if f.ID {
		attrs = append(attrs, "@id")
	}
	if f.Unique {
		attrs = append(attrs, "@unique")
	}
	if f.UpdatedAt {
		attrs = append(attrs, "@updatedAt")
	}
	if d := f.Default; d != nil {
		switch d.Kind {
		case schema.DefaultLiteral:
			attrs = append(attrs, fmt.Sprintf("@default(%v)", d.Value))
		default:
			attrs = append(attrs, fmt.Sprintf("@default(%s())", d.Kind))
		}
	}
	return attrs
}

func relationKeys(r *schema.Relation) string {
	keys := fmt.Sprintf("%s = %s.%s", strings.Join(r.LocalKeys(), ", "), r.Target, strings.Join(r.TargetKeys(), ", "))
	if r.IsOwner() {
		keys += " (owner)"
	}
	return keys
}
