package table

import "sort"

// Keys returns the keys of a row in sorted order
func Keys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AppendOrdered adds a row registering the listed columns first, in the given
// order, then any remaining keys of the row.
func (t *Table) AppendOrdered(r Row, columns []string) {
	for _, c := range columns {
		if _, ok := r[c]; ok {
			t.AddColumn(c)
		}
	}
	t.Append(r)
}
