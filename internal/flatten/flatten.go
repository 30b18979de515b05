// Package flatten turns raw trial records into flat main-table rows and
// expands object-valued columns into prefixed columns.
package flatten

import (
	"github.com/mousereading/prep/internal/table"
)

// Separator joins a parent field name and its subfield
const Separator = "_"

// Record copies the top-level fields of one trial record into a row. Nested
// objects and lists are kept as-is; objects are expanded later by
// ExpandObjectColumns once the list extraction has claimed its columns.
func Record(raw map[string]interface{}) table.Row {
	row := make(table.Row, len(raw))
	for k, v := range raw {
		row[k] = v
	}
	return row
}

// Object flattens a nested object into prefix_key columns. Nested objects are
// flattened recursively; lists and scalars are stored under their full name.
func Object(prefix string, obj map[string]interface{}, into table.Row) {
	for k, v := range obj {
		name := prefix + Separator + k
		if nested, ok := v.(map[string]interface{}); ok {
			if len(nested) == 0 {
				continue
			}
			Object(name, nested, into)
			continue
		}
		into[name] = v
	}
}

// AllObjects reports whether every non-null value is an object. A column with
// no non-null values is not an object column.
func AllObjects(values []interface{}) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if _, ok := v.(map[string]interface{}); !ok {
			return false
		}
	}
	return true
}

// ExpandObjectColumns replaces every column whose non-null values are all
// objects with prefixed flattened columns. Columns listed in skip are left
// alone. Flattened columns that hold no non-null value in any row are
// discarded. It returns the names of the replaced columns.
func ExpandObjectColumns(t *table.Table, skip map[string]struct{}) []string {
	var expanded []string

	for _, col := range t.Columns() {
		if _, ok := skip[col]; ok {
			continue
		}
		if !AllObjects(t.Values(col)) {
			continue
		}

		parts := make([]table.Row, t.Len())
		var order []string
		seen := make(map[string]struct{})
		for i, r := range t.Rows() {
			obj, ok := r[col].(map[string]interface{})
			if !ok {
				continue
			}
			part := make(table.Row)
			Object(col, obj, part)
			parts[i] = part
			for _, k := range table.Keys(part) {
				if _, dup := seen[k]; !dup {
					seen[k] = struct{}{}
					order = append(order, k)
				}
			}
		}

		t.Drop(col)
		expanded = append(expanded, col)

		for _, name := range order {
			if !hasValue(parts, name) {
				continue
			}
			t.AddColumn(name)
			for i, part := range parts {
				if part == nil {
					continue
				}
				if v, ok := part[name]; ok && v != nil {
					t.Rows()[i][name] = v
				}
			}
		}
	}

	return expanded
}

func hasValue(parts []table.Row, name string) bool {
	for _, p := range parts {
		if v, ok := p[name]; ok && v != nil {
			return true
		}
	}
	return false
}
