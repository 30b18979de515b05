// Package table holds the in-memory tables passed between the pipeline stages.
package table

// Row is one record keyed by column name. A missing key and a nil value both
// mean the cell is absent.
type Row map[string]interface{}

// Table is an ordered set of columns plus its rows. Columns are kept in the
// order they were first seen.
type Table struct {
	columns []string
	index   map[string]struct{}
	rows    []Row
}

// New creates an empty table
func New() *Table {
	return &Table{index: make(map[string]struct{})}
}

// FromRows builds a table from rows, registering columns in first-seen order.
// Keys of a single row are registered in sorted order so the result does not
// depend on map iteration.
func FromRows(rows []Row) *Table {
	t := New()
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Append adds a row and registers any new columns it carries
func (t *Table) Append(r Row) {
	for _, k := range Keys(r) {
		t.AddColumn(k)
	}
	t.rows = append(t.rows, r)
}

// AddColumn registers a column without touching the rows
func (t *Table) AddColumn(name string) {
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = struct{}{}
	t.columns = append(t.columns, name)
}

// Has reports whether the column exists
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Columns returns a copy of the column names in order
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Rows returns the underlying rows. Callers must not append to the slice.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Width returns the number of columns
func (t *Table) Width() int {
	return len(t.columns)
}

// Empty reports whether the table has no rows
func (t *Table) Empty() bool {
	return len(t.rows) == 0
}

// Values returns the non-null values of a column in row order
func (t *Table) Values(name string) []interface{} {
	var out []interface{}
	for _, r := range t.rows {
		if v, ok := r[name]; ok && v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Drop removes columns and their cells
func (t *Table) Drop(names ...string) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := t.index[n]; ok {
			drop[n] = struct{}{}
			delete(t.index, n)
		}
	}
	if len(drop) == 0 {
		return
	}

	kept := t.columns[:0]
	for _, c := range t.columns {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	t.columns = kept

	for _, r := range t.rows {
		for n := range drop {
			delete(r, n)
		}
	}
}
