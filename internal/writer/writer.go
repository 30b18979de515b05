// Package writer saves table collections as delimited text files or as a
// spreadsheet workbook.
package writer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mousereading/prep/internal/assembler"
	"github.com/mousereading/prep/internal/table"
)

// Saved describes one written file
type Saved struct {
	Key     string
	Path    string
	Rows    int
	Columns int
}

// BaseName returns the input file name without directory and extension
func BaseName(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// WriteCSV writes every non-empty table to <dir>/<base>_<key>.csv. Each file
// is written to a temporary file first and renamed into place, so a failing
// table never leaves a partial file behind.
func WriteCSV(dir, base string, c *assembler.Collection) ([]Saved, error) {
	var saved []Saved
	var err error

	c.Each(func(key string, t *table.Table) {
		if err != nil {
			return
		}
		if t.Empty() {
			log.Info().Str("table", key).Msg("Table is empty, skipping save")
			return
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", base, key))
		if werr := writeAtomic(path, func(f *os.File) error { return encodeCSV(f, t) }); werr != nil {
			err = fmt.Errorf("write %s: %w", key, werr)
			return
		}

		log.Info().
			Str("table", key).
			Str("path", path).
			Int("rows", t.Len()).
			Int("columns", t.Width()).
			Msg("Saved table")
		saved = append(saved, Saved{Key: key, Path: path, Rows: t.Len(), Columns: t.Width()})
	})

	return saved, err
}

func encodeCSV(f *os.File, t *table.Table) error {
	w := csv.NewWriter(f)
	columns := t.Columns()
	if err := w.Write(columns); err != nil {
		return err
	}

	record := make([]string, len(columns))
	for _, r := range t.Rows() {
		for i, c := range columns {
			record[i] = FormatCell(r[c])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// fileMode of saved tables. CreateTemp opens files as 0600.
const fileMode = 0o644

func writeAtomic(path string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// FormatCell renders one cell as text. Absent cells are empty; lists and
// objects are written as compact JSON.
func FormatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
