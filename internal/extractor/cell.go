package extractor

import (
	"encoding/json"
)

// CellKind tells how a source cell is interpreted
type CellKind int

const (
	// Missing is an absent or null cell
	Missing CellKind = iota
	// ListValue is a cell that already holds a list
	ListValue
	// JSONText is a string cell holding an encoded list
	JSONText
	// Other is anything that cannot yield event items
	Other
)

func (k CellKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case ListValue:
		return "list"
	case JSONText:
		return "json_text"
	default:
		return "other"
	}
}

// Cell is a source cell resolved to its kind. Items is set for ListValue and
// for JSONText that decoded into a list.
type Cell struct {
	Kind  CellKind
	Items []interface{}
	Err   error
}

// Classify resolves a raw cell value once, before any extraction runs on it.
// A string that is not valid JSON, or decodes to something other than a list,
// is reported as Other with Err set when decoding failed.
func Classify(v interface{}) Cell {
	switch val := v.(type) {
	case nil:
		return Cell{Kind: Missing}
	case []interface{}:
		return Cell{Kind: ListValue, Items: val}
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(val), &decoded); err != nil {
			return Cell{Kind: Other, Err: err}
		}
		items, ok := decoded.([]interface{})
		if !ok {
			return Cell{Kind: Other}
		}
		return Cell{Kind: JSONText, Items: items}
	default:
		return Cell{Kind: Other}
	}
}

// Usable reports whether the cell yields event items
func (c Cell) Usable() bool {
	return c.Kind == ListValue || c.Kind == JSONText
}
