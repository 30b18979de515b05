package transformer

import (
	"time"

	"github.com/google/uuid"

	"github.com/mousereading/prep/internal/assembler"
	"github.com/mousereading/prep/internal/storage"
	"github.com/mousereading/prep/internal/table"
)

// ArchiveRows flattens every table of the collection into archive rows,
// numbering rows from zero within each table.
func ArchiveRows(runID uuid.UUID, input string, exportedAt time.Time, c *assembler.Collection) []storage.ArchiveRow {
	var rows []storage.ArchiveRow
	c.Each(func(key string, t *table.Table) {
		for i, r := range t.Rows() {
			rows = append(rows, storage.ArchiveRow{
				RunID:      runID,
				Input:      input,
				TableKey:   key,
				RowNum:     i,
				Data:       map[string]interface{}(r),
				ExportedAt: exportedAt,
			})
		}
	})
	return rows
}
