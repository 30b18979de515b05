package assembler

import (
	"github.com/mousereading/prep/internal/table"
)

// Collection is the named set of tables produced by one run, in the order
// they were added.
type Collection struct {
	keys   []string
	tables map[string]*table.Table
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{tables: make(map[string]*table.Table)}
}

// Put stores a table under key, replacing any previous one
func (c *Collection) Put(key string, t *table.Table) {
	if _, ok := c.tables[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.tables[key] = t
}

// Get returns the table for key
func (c *Collection) Get(key string) (*table.Table, bool) {
	t, ok := c.tables[key]
	return t, ok
}

// Keys returns the table keys in insertion order
func (c *Collection) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of tables
func (c *Collection) Len() int {
	return len(c.keys)
}

// Each calls fn for every table in order
func (c *Collection) Each(fn func(key string, t *table.Table)) {
	for _, k := range c.keys {
		fn(k, c.tables[k])
	}
}
