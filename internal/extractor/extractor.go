// Package extractor explodes list-of-object columns of the main table into
// long tables linked back to their parent trial.
package extractor

import (
	"github.com/rs/zerolog/log"

	"github.com/mousereading/prep/internal/table"
)

const (
	// ParentPrefix prefixes linked parent columns
	ParentPrefix = "parent_"
	// OrderColumn holds the position of a paired event within its list
	OrderColumn = "order"
)

// Target describes one long table to extract
type Target struct {
	Key         string
	Candidates  []string
	Fields      []string
	ParentLinks []string
	// PairEvents tags each item with OrderColumn so enter/leave pairs can be
	// grouped downstream.
	PairEvents bool
}

// Extract builds one row per object item of the source column. Rows whose
// cell is missing, undecodable or not a list are skipped, as are items that
// are not objects. Row order follows table order, then list order.
func Extract(t *table.Table, source string, target Target) *table.Table {
	out := table.New()
	if !t.Has(source) {
		log.Info().
			Str("column", source).
			Str("target", target.Key).
			Msg("Source column not found, skipping")
		return out
	}

	columns := make([]string, 0, len(target.Fields)+len(target.ParentLinks)+1)
	columns = append(columns, target.Fields...)
	for _, p := range target.ParentLinks {
		columns = append(columns, ParentPrefix+p)
	}
	if target.PairEvents {
		columns = append(columns, OrderColumn)
	}

	for rowNum, parent := range t.Rows() {
		cell := Classify(parent[source])
		if !cell.Usable() {
			if cell.Kind != Missing {
				log.Debug().
					Err(cell.Err).
					Str("column", source).
					Int("row", rowNum).
					Stringer("kind", cell.Kind).
					Msg("Skipping cell that holds no event list")
			}
			continue
		}

		for i, item := range cell.Items {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}

			record := make(table.Row, len(columns))
			for _, f := range target.Fields {
				record[f] = obj[f]
			}
			for _, p := range target.ParentLinks {
				if v, ok := parent[p]; ok && v != nil {
					record[ParentPrefix+p] = v
				}
			}
			if target.PairEvents {
				record[OrderColumn] = float64(i / 2)
			}
			out.AppendOrdered(record, columns)
		}
	}

	return out
}

// SelectSource returns the first candidate present in the table that has not
// been consumed yet.
func SelectSource(t *table.Table, candidates []string, consumed map[string]struct{}) (string, bool) {
	for _, c := range candidates {
		if _, used := consumed[c]; used {
			continue
		}
		if t.Has(c) {
			return c, true
		}
	}
	return "", false
}
