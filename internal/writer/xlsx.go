package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/mousereading/prep/internal/assembler"
	"github.com/mousereading/prep/internal/table"
)

const defaultSheet = "Sheet1"

// WriteXLSX writes every non-empty table as one sheet of <dir>/<base>.xlsx.
// Numbers and booleans keep their type; other cells use FormatCell.
func WriteXLSX(dir, base string, c *assembler.Collection) (*Saved, error) {
	f := excelize.NewFile()
	defer f.Close()

	var sheets, rows int
	var err error
	c.Each(func(key string, t *table.Table) {
		if err != nil || t.Empty() {
			return
		}
		if serr := fillSheet(f, key, t); serr != nil {
			err = fmt.Errorf("sheet %s: %w", key, serr)
			return
		}
		sheets++
		rows += t.Len()
	})
	if err != nil {
		return nil, err
	}
	if sheets == 0 {
		log.Info().Msg("No tables to write, skipping workbook")
		return nil, nil
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	path := filepath.Join(dir, base+".xlsx")
	if err := writeAtomic(path, func(out *os.File) error {
		_, werr := f.WriteTo(out)
		return werr
	}); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("sheets", sheets).
		Int("rows", rows).
		Msg("Saved workbook")
	return &Saved{Key: "workbook", Path: path, Rows: rows, Columns: sheets}, nil
}

func fillSheet(f *excelize.File, name string, t *table.Table) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}

	columns := t.Columns()
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}

	for i, r := range t.Rows() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(columns))
		for j, c := range columns {
			values[j] = sheetValue(r[c])
			if overflows(values[j]) {
				log.Warn().
					Str("sheet", name).
					Str("column", c).
					Int("row", i).
					Int("limit", excelize.TotalCellChars).
					Msg("Cell exceeds the workbook limit and will be truncated")
			}
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// overflows reports text that excelize cuts to TotalCellChars
func overflows(v interface{}) bool {
	s, ok := v.(string)
	return ok && len(s) > excelize.TotalCellChars && utf8.RuneCountInString(s) > excelize.TotalCellChars
}

func sheetValue(v interface{}) interface{} {
	switch v.(type) {
	case nil:
		return nil
	case float64, int, bool:
		return v
	default:
		return FormatCell(v)
	}
}
