package assembler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousereading/prep/internal/config"
	"github.com/mousereading/prep/internal/dwell"
	"github.com/mousereading/prep/internal/table"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "experiment.json"))
	require.NoError(t, err)
	return data
}

func newAssembler() *Assembler {
	return New(config.DefaultTargets())
}

func mustTable(t *testing.T, c *Collection, key string) *table.Table {
	t.Helper()
	tbl, ok := c.Get(key)
	require.True(t, ok, "table %s missing", key)
	return tbl
}

func TestAssembleExperiment(t *testing.T) {
	c, err := newAssembler().AssembleJSON(loadFixture(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		config.MainKey, config.RectsKey, config.MouseEventsKey, config.OtherEventsKey,
	}, c.Keys())

	main := mustTable(t, c, config.MainKey)
	assert.Equal(t, 4, main.Len())
	assert.True(t, main.Has("rects"), "list columns stay in the main table")
	assert.True(t, main.Has("mouseEvents"))

	rects := mustTable(t, c, config.RectsKey)
	assert.Equal(t, 3, rects.Len())
	assert.Equal(t, table.Row{
		"x": 100.0, "y": 200.0, "idx": 0.0, "word": "The",
		"parent_trial_index": 2.0, "parent_subject": "p01", "parent_internal_node_id": "0.0-2.0-0.0",
	}, rects.Rows()[0])

	other := mustTable(t, c, config.OtherEventsKey)
	require.Equal(t, 2, other.Len())
	assert.Equal(t, 8540.0, other.Rows()[0]["parent_time_elapsed"])
	assert.Equal(t, "mouse-reading", other.Rows()[0]["parent_trial_type"])
	assert.Equal(t, "mousemove", other.Rows()[1]["event"])
	assert.Nil(t, other.Rows()[1]["button"])
}

func TestAssembleDwellTable(t *testing.T) {
	c, err := newAssembler().AssembleJSON(loadFixture(t))
	require.NoError(t, err)

	mouse := mustTable(t, c, config.MouseEventsKey)
	require.Equal(t, 3, mouse.Len(), "the trailing unpaired enter is dropped")

	var times, labels, words []interface{}
	for _, r := range mouse.Rows() {
		times = append(times, r[dwell.DwellColumn])
		labels = append(labels, r[dwell.MeasureColumn])
		words = append(words, r["word"])
		assert.NotContains(t, r, "type")
		assert.NotContains(t, r, "t")
	}
	assert.Equal(t, []interface{}{250.0, 200.0, 100.0}, times)
	assert.Equal(t, []interface{}{dwell.FirstPass, dwell.FirstPass, dwell.SecondPass}, labels)
	assert.Equal(t, []interface{}{"The", "sat", "cat"}, words)
}

func TestAssembleExpandsObjectColumns(t *testing.T) {
	c, err := newAssembler().AssembleJSON(loadFixture(t))
	require.NoError(t, err)

	main := mustTable(t, c, config.MainKey)
	assert.False(t, main.Has("value"))
	assert.True(t, main.Has("value_width"))
	assert.True(t, main.Has("value_height"))
	assert.True(t, main.Has("value_device_pixel_ratio"))
	assert.Equal(t, 1920.0, main.Rows()[1]["value_width"])
	assert.NotContains(t, main.Rows()[0], "value_width")
}

func TestAssembleParentLinksMatchMainTable(t *testing.T) {
	c, err := newAssembler().AssembleJSON(loadFixture(t))
	require.NoError(t, err)

	indices := make(map[interface{}]bool)
	for _, v := range mustTable(t, c, config.MainKey).Values("trial_index") {
		indices[v] = true
	}
	for _, r := range mustTable(t, c, config.RectsKey).Rows() {
		assert.True(t, indices[r["parent_trial_index"]])
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	data := loadFixture(t)

	first, err := newAssembler().AssembleJSON(data)
	require.NoError(t, err)
	second, err := newAssembler().AssembleJSON(data)
	require.NoError(t, err)

	require.Equal(t, first.Keys(), second.Keys())
	for _, k := range first.Keys() {
		a := mustTable(t, first, k)
		b := mustTable(t, second, k)
		assert.Equal(t, a.Columns(), b.Columns(), k)
		assert.Equal(t, a.Rows(), b.Rows(), k)
	}
}

func TestAssembleEmptyInput(t *testing.T) {
	for _, payload := range []string{`[]`, `{}`, `null`, `""`, `false`, `0`} {
		t.Run(payload, func(t *testing.T) {
			c, err := newAssembler().AssembleJSON([]byte(payload))
			require.ErrorIs(t, err, ErrEmptyInput)
			require.NotNil(t, c)

			assert.Equal(t, []string{config.MainKey}, c.Keys())
			assert.True(t, mustTable(t, c, config.MainKey).Empty())
		})
	}
}

func TestAssembleSingleObject(t *testing.T) {
	c, err := newAssembler().AssembleJSON([]byte(`{"trial_index": 0, "subject": "p02", "rects": [{"idx": 0, "word": "Hi"}]}`))
	require.NoError(t, err)

	assert.Equal(t, 1, mustTable(t, c, config.MainKey).Len())
	assert.Equal(t, 1, mustTable(t, c, config.RectsKey).Len())
}

func TestAssembleDecodeError(t *testing.T) {
	_, err := newAssembler().AssembleJSON([]byte(`[{"trial_index": 0,`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = newAssembler().AssembleJSON([]byte(`{} {}`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestAssembleLooseConversion(t *testing.T) {
	c, err := newAssembler().AssembleJSON([]byte(`[{"trial_index": 0}, 5, "x"]`))
	require.NoError(t, err)

	main := mustTable(t, c, config.MainKey)
	require.Equal(t, 3, main.Len())
	assert.Equal(t, 5.0, main.Rows()[1][ValueColumn])
	assert.Equal(t, "x", main.Rows()[2][ValueColumn])
}

func TestAssembleTruthyScalar(t *testing.T) {
	c, err := newAssembler().AssembleJSON([]byte(`true`))
	require.NoError(t, err)

	main := mustTable(t, c, config.MainKey)
	require.Equal(t, 1, main.Len())
	assert.Equal(t, true, main.Rows()[0][ValueColumn])
}

func TestAssembleMalformed(t *testing.T) {
	_, err := newAssembler().AssembleJSON([]byte(`[{"trial_index": 0}, [1, 2]]`))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestAssembleInvalidSourceYieldsNoTable(t *testing.T) {
	c, err := newAssembler().AssembleJSON([]byte(`[
		{"trial_index": 0, "rects": 3},
		{"trial_index": 1, "rects": "not json"},
		{"trial_index": 2, "rects": {"idx": 0}}
	]`))
	require.NoError(t, err)

	_, ok := c.Get(config.RectsKey)
	assert.False(t, ok)
	assert.Equal(t, []string{config.MainKey}, c.Keys())
	assert.True(t, mustTable(t, c, config.MainKey).Has("rects"), "claimed column is not expanded")
}

func TestAssembleColumnConsumedOnce(t *testing.T) {
	a := New([]config.TargetConfig{
		{Key: "first", Candidates: []string{"events"}, Fields: []string{"x"}},
		{Key: "second", Candidates: []string{"events"}, Fields: []string{"x"}},
	})

	c, err := a.AssembleJSON([]byte(`[{"events": [{"x": 1}]}]`))
	require.NoError(t, err)

	_, ok := c.Get("first")
	assert.True(t, ok)
	_, ok = c.Get("second")
	assert.False(t, ok)
}
