package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousereading/prep/internal/table"
)

func TestRecordKeepsNestedValues(t *testing.T) {
	rects := []interface{}{map[string]interface{}{"idx": 0.0}}
	row := Record(map[string]interface{}{
		"trial_index": 3.0,
		"rects":       rects,
		"screen":      map[string]interface{}{"w": 800.0},
	})

	assert.Equal(t, 3.0, row["trial_index"])
	assert.Equal(t, rects, row["rects"])
	assert.Equal(t, map[string]interface{}{"w": 800.0}, row["screen"])
}

func TestObjectRecursive(t *testing.T) {
	into := table.Row{}
	Object("browser", map[string]interface{}{
		"name": "firefox",
		"size": map[string]interface{}{"w": 1024.0, "h": 768.0},
		"tags": []interface{}{"a"},
		"none": map[string]interface{}{},
	}, into)

	assert.Equal(t, table.Row{
		"browser_name":   "firefox",
		"browser_size_w": 1024.0,
		"browser_size_h": 768.0,
		"browser_tags":   []interface{}{"a"},
	}, into)
}

func TestAllObjects(t *testing.T) {
	tests := []struct {
		name   string
		values []interface{}
		want   bool
	}{
		{"empty", nil, false},
		{"all objects", []interface{}{map[string]interface{}{}, map[string]interface{}{"a": 1.0}}, true},
		{"mixed scalar", []interface{}{map[string]interface{}{}, 1.0}, false},
		{"list", []interface{}{[]interface{}{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AllObjects(tt.values))
		})
	}
}

func TestExpandObjectColumns(t *testing.T) {
	tbl := table.FromRows([]table.Row{
		{"trial_index": 0.0, "response": map[string]interface{}{"Q0": "yes", "Q1": "no"}},
		{"trial_index": 1.0},
		{"trial_index": 2.0, "response": map[string]interface{}{"Q0": "maybe"}},
	})

	expanded := ExpandObjectColumns(tbl, nil)

	require.Equal(t, []string{"response"}, expanded)
	assert.False(t, tbl.Has("response"))
	assert.Equal(t, []string{"trial_index", "response_Q0", "response_Q1"}, tbl.Columns())

	rows := tbl.Rows()
	assert.Equal(t, "yes", rows[0]["response_Q0"])
	assert.Equal(t, "no", rows[0]["response_Q1"])
	assert.NotContains(t, rows[1], "response_Q0")
	assert.Equal(t, "maybe", rows[2]["response_Q0"])
	assert.NotContains(t, rows[2], "response_Q1")
}

func TestExpandObjectColumnsSkipsMixedAndClaimed(t *testing.T) {
	tbl := table.FromRows([]table.Row{
		{"mixed": map[string]interface{}{"a": 1.0}, "claimed": map[string]interface{}{"b": 2.0}},
		{"mixed": "text", "claimed": map[string]interface{}{"b": 3.0}},
	})

	expanded := ExpandObjectColumns(tbl, map[string]struct{}{"claimed": {}})

	assert.Empty(t, expanded)
	assert.True(t, tbl.Has("mixed"))
	assert.True(t, tbl.Has("claimed"))
}

func TestExpandObjectColumnsDropsEmptyResult(t *testing.T) {
	tbl := table.FromRows([]table.Row{
		{"id": 1.0, "meta": map[string]interface{}{}},
		{"id": 2.0, "meta": map[string]interface{}{"note": nil}},
	})

	expanded := ExpandObjectColumns(tbl, nil)

	assert.Equal(t, []string{"meta"}, expanded)
	assert.Equal(t, []string{"id"}, tbl.Columns())
}
