package executor

import (
	"errors"
	"slices"
	"strings"

	"github.com/satishbabariya/tdal/query/plan"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
)

// describeConflict rewrites a unique violation in terms of the written entity: the constraint
// gets its schema name, Fields its field names, and Value the written values of those fields
// when values holds them. values maps column names to the values of the single row written.
func describeConflict(err error, keys []plan.UniqueKey, values map[string]any) error {
	var te *tdalerr.Error
	if !errors.As(err, &te) || te.Violation != tdalerr.ViolationUnique || len(keys) == 0 {
		return err
	}
	k, ok := violatedKey(te, keys)
	if !ok {
		return err
	}
	te.Constraint = k.Name
	te.Fields = k.Fields
	te.Field = ""
	if len(k.Fields) == 1 {
		te.Field = k.Fields[0]
	}

	conflict := make(map[string]any, len(k.Fields))
	for i, col := range k.Columns {
		v, ok := values[col]
		if !ok {
			return err
		}
		conflict[k.Fields[i]] = v
	}
	if len(k.Fields) == 1 {
		te.Value = conflict[k.Fields[0]]
	} else {
		te.Value = conflict
	}
	return err
}

// violatedKey matches the constraint a driver reported, by name or by column list.
func violatedKey(te *tdalerr.Error, keys []plan.UniqueKey) (plan.UniqueKey, bool) {
	name := te.Constraint
	// MySQL 8 prefixes the index with its table.
	if i := strings.LastIndex(name, "."); i >= 0 && !strings.Contains(name, ",") {
		name = name[i+1:]
	}
	for _, k := range keys {
		if name != "" && (k.Name == name || (k.Primary && name == "PRIMARY")) {
			return k, true
		}
	}
	cols := te.Fields
	if len(cols) == 0 && te.Field != "" {
		cols = []string{te.Field}
	}
	if len(cols) == 0 {
		return plan.UniqueKey{}, false
	}
	want := slices.Sorted(slices.Values(cols))
	for _, k := range keys {
		if slices.Equal(slices.Sorted(slices.Values(k.Columns)), want) {
			return k, true
		}
	}
	return plan.UniqueKey{}, false
}

// rowValues maps the columns of ins to the values of its only row.
func rowValues(ins *plan.Insert) map[string]any {
	if len(ins.Rows) != 1 {
		return nil
	}
	out := make(map[string]any, len(ins.Columns))
	for i, col := range ins.Columns {
		out[col] = ins.Rows[0][i]
	}
	return out
}

// setValues maps the plainly assigned columns of an update to their values.
func setValues(set []plan.Assign) map[string]any {
	out := make(map[string]any, len(set))
	for _, a := range set {
		if a.Op == plan.AssignSet {
			out[a.Column] = a.Value
		}
	}
	return out
}
