package plan

import (
	"github.com/satishbabariya/tdal/schema"
)

// Find is a compiled read.
type Find struct {
	Select *Select
	// Cursor reads the sort columns of the cursor row, keyed by column name. nil without a
	// cursor.
	Cursor    *Select
	Selection *Selection
}

// Selection is the output shape of one level: scalar fields returned to the caller,
// relations to attach and relation counts.
type Selection struct {
	Fields    []string
	Relations []*RelationLoad
	Counts    []*CountLoad
}

// Empty reports whether no relations or counts are requested.
func (s *Selection) Empty() bool {
	return s == nil || (len(s.Relations) == 0 && len(s.Counts) == 0)
}

// KeyFields returns the parent fields every relation and count load needs.
func (s *Selection) KeyFields() []string {
	var out []string
	seen := map[string]bool{}
	add := func(fields []string) {
		for _, f := range fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if s == nil {
		return nil
	}
	for _, r := range s.Relations {
		add(r.LocalKeys)
	}
	for _, c := range s.Counts {
		add(c.LocalKeys)
	}
	return out
}

// RelationLoad fetches the related rows of one relation for a batch of parents.
type RelationLoad struct {
	Name        string
	Target      string
	Cardinality schema.Cardinality
	// LocalKeys are parent fields matched against TargetKeys on the target.
	LocalKeys  []string
	TargetKeys []string
	// KeyColumns are the columns of TargetKeys.
	KeyColumns []Column
	// Query selects the candidate rows. Its Where holds the nested filter only; the resolver
	// adds the key predicate. It never carries Limit or Offset.
	Query *Select
	// Skip, Take and Distinct apply per parent after grouping.
	Skip      int
	Take      *int
	Distinct  []string
	Selection *Selection
}

// CountLoad counts related rows of a to-many relation per parent.
type CountLoad struct {
	Name       string
	Table      string
	LocalKeys  []string
	TargetKeys []string
	KeyColumns []Column
	Where      Node
}

// KeyIn matches rows whose key columns equal one of tuples. A single column becomes IN; a
// composite key becomes an OR of ANDs.
func KeyIn(cols []Column, tuples [][]any) Node {
	if len(tuples) == 0 {
		return Literal(false)
	}
	if len(cols) == 1 {
		values := make([]any, len(tuples))
		for i, t := range tuples {
			values[i] = t[0]
		}
		return Compare{Column: cols[0].Name, Op: In, Values: values, Type: cols[0].Type}
	}
	out := make(Or, len(tuples))
	for i, t := range tuples {
		and := make(And, len(cols))
		for j, c := range cols {
			and[j] = Compare{Column: c.Name, Op: Eq, Value: t[j], Type: c.Type}
		}
		out[i] = and
	}
	return out
}
