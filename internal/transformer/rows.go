package transformer

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mousereading/prep/internal/dwell"
	"github.com/mousereading/prep/internal/table"
	"github.com/mousereading/prep/internal/storage"
)

// DwellRows converts the dwell table into ClickHouse rows
func DwellRows(runID uuid.UUID, exportedAt time.Time, t *table.Table) []storage.DwellRow {
	if t == nil {
		return nil
	}

	rows := make([]storage.DwellRow, 0, t.Len())
	for _, r := range t.Rows() {
		rows = append(rows, storage.DwellRow{
			RunID:          runID,
			Subject:        getString(r, "parent_subject"),
			TrialIndex:     getInt64(r, dwell.TrialColumn),
			InternalNodeID: getString(r, "parent_internal_node_id"),
			WordIdx:        getInt32(r, dwell.IndexColumn),
			Word:           getString(r, "word"),
			PairOrder:      getUint32(r, "order"),
			DwellMs:        getFloat64(r, dwell.DwellColumn),
			ReadingMeasure: getString(r, dwell.MeasureColumn),
			ExportedAt:     exportedAt,
		})
	}
	return rows
}

// RectRows converts the word position table into ClickHouse rows
func RectRows(runID uuid.UUID, exportedAt time.Time, t *table.Table) []storage.RectRow {
	if t == nil {
		return nil
	}

	rows := make([]storage.RectRow, 0, t.Len())
	for _, r := range t.Rows() {
		rows = append(rows, storage.RectRow{
			RunID:          runID,
			Subject:        getString(r, "parent_subject"),
			TrialIndex:     getInt64(r, "parent_trial_index"),
			InternalNodeID: getString(r, "parent_internal_node_id"),
			WordIdx:        getInt32(r, "idx"),
			Word:           getString(r, "word"),
			X:              getFloat64Ptr(r, "x"),
			Y:              getFloat64Ptr(r, "y"),
			ExportedAt:     exportedAt,
		})
	}
	return rows
}

func getString(m table.Row, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func getFloat64(m table.Row, key string) float64 {
	if v := getFloat64Ptr(m, key); v != nil {
		return *v
	}
	return 0
}

func getFloat64Ptr(m table.Row, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

func getInt64(m table.Row, key string) int64 {
	return int64(getFloat64(m, key))
}

func getInt32(m table.Row, key string) int32 {
	return int32(getFloat64(m, key))
}

func getUint32(m table.Row, key string) uint32 {
	if v := getFloat64(m, key); v > 0 {
		return uint32(v)
	}
	return 0
}
