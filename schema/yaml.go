package schema

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlDocument struct {
	Provider string       `yaml:"provider"`
	URL      string       `yaml:"url"`
	Engine   string       `yaml:"engine"`
	Enums    []yamlEnum   `yaml:"enums"`
	Entities []yamlEntity `yaml:"entities"`
}

type yamlEnum struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

type yamlEntity struct {
	Name      string         `yaml:"name"`
	Table     string         `yaml:"table"`
	Fields    []yamlField    `yaml:"fields"`
	Relations []yamlRelation `yaml:"relations"`
	ID        []string       `yaml:"id"`
	Unique    [][]string     `yaml:"unique"`
}

type yamlField struct {
	Name      string `yaml:"name"`
	Column    string `yaml:"column"`
	Type      string `yaml:"type"`
	Optional  bool   `yaml:"optional"`
	ID        bool   `yaml:"id"`
	Unique    bool   `yaml:"unique"`
	UpdatedAt bool   `yaml:"updatedAt"`
	Default   any    `yaml:"default"`
}

type yamlRelation struct {
	Name       string   `yaml:"name"`
	Target     string   `yaml:"target"`
	Many       bool     `yaml:"many"`
	Optional   bool     `yaml:"optional"`
	Fields     []string `yaml:"fields"`
	References []string `yaml:"references"`
	OnDelete   string   `yaml:"onDelete"`
	OnUpdate   string   `yaml:"onUpdate"`
	Relation   string   `yaml:"relation"`
}

// DecodeYAML reads a YAML (or JSON) schema descriptor. The result still has to go
// through NewRegistry.
func DecodeYAML(r io.Reader) (*Definition, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode schema descriptor: %w", err)
	}

	enums := map[string]bool{}
	def := &Definition{Provider: doc.Provider, URL: doc.URL, EngineConstraint: doc.Engine}
	for _, e := range doc.Enums {
		def.Enums = append(def.Enums, &Enum{Name: e.Name, Values: e.Values})
		enums[e.Name] = true
	}
	for _, ye := range doc.Entities {
		ent := &Entity{Name: ye.Name, Table: ye.Table}
		for _, yf := range ye.Fields {
			f := &Field{
				Name:      yf.Name,
				Column:    yf.Column,
				Nullable:  yf.Optional,
				ID:        yf.ID,
				Unique:    yf.Unique,
				UpdatedAt: yf.UpdatedAt,
				Type:      ScalarType(yf.Type),
			}
			if enums[yf.Type] {
				f.Type, f.Enum = EnumType, yf.Type
			}
			if yf.Default != nil {
				f.Default = ParseDefault(yf.Default)
			}
			ent.Fields = append(ent.Fields, f)
		}
		for _, yr := range ye.Relations {
			rel := &Relation{
				Name:         yr.Name,
				Target:       yr.Target,
				Fields:       yr.Fields,
				References:   yr.References,
				OnDelete:     ReferentialAction(yr.OnDelete),
				OnUpdate:     ReferentialAction(yr.OnUpdate),
				RelationName: yr.Relation,
			}
			switch {
			case yr.Many:
				rel.Cardinality = Many
			case yr.Optional:
				rel.Cardinality = NullableOne
			default:
				rel.Cardinality = One
			}
			ent.Relations = append(ent.Relations, rel)
		}
		if len(ye.ID) > 0 {
			ent.Uniques = append(ent.Uniques, UniqueConstraint{Fields: ye.ID, Primary: true})
		}
		for _, u := range ye.Unique {
			ent.Uniques = append(ent.Uniques, UniqueConstraint{Fields: u})
		}
		def.Entities = append(def.Entities, ent)
	}
	return def, nil
}

// ParseDefault interprets a default written either as a literal or as one of the
// generator calls autoincrement(), now() and uuid().
func ParseDefault(v any) *Default {
	s, ok := v.(string)
	if !ok {
		return &Default{Kind: DefaultLiteral, Value: v}
	}
	switch strings.TrimSpace(s) {
	case "autoincrement()":
		return &Default{Kind: DefaultAutoIncrement}
	case "now()":
		return &Default{Kind: DefaultNow}
	case "uuid()":
		return &Default{Kind: DefaultUUID}
	}
	return &Default{Kind: DefaultLiteral, Value: s}
}
