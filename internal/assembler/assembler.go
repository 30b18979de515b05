// Package assembler turns decoded experiment records into the named
// collection of tables: main_data plus the long tables cut out of it.
package assembler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mousereading/prep/internal/config"
	"github.com/mousereading/prep/internal/dwell"
	"github.com/mousereading/prep/internal/extractor"
	"github.com/mousereading/prep/internal/flatten"
	"github.com/mousereading/prep/internal/table"
)

var (
	// ErrEmptyInput is returned together with a collection holding only an
	// empty main table.
	ErrEmptyInput = errors.New("input holds no records")
	// ErrMalformedInput means the payload could not be read as records even
	// after the loose conversion.
	ErrMalformedInput = errors.New("input is not a record or list of records")
	// ErrDecode wraps JSON syntax errors.
	ErrDecode = errors.New("decode input")
)

// ValueColumn receives scalar list elements during the loose conversion
const ValueColumn = "value"

// Assembler builds table collections for a fixed set of extraction targets
type Assembler struct {
	targets []extractor.Target
}

// New creates an assembler from configured targets
func New(targets []config.TargetConfig) *Assembler {
	a := &Assembler{targets: make([]extractor.Target, 0, len(targets))}
	for _, t := range targets {
		a.targets = append(a.targets, extractor.Target{
			Key:         t.Key,
			Candidates:  t.Candidates,
			Fields:      t.Fields,
			ParentLinks: t.ParentLinks,
			PairEvents:  t.PairEvents,
		})
	}
	return a
}

// Decode parses a JSON document into generic values
func Decode(data []byte) (interface{}, error) {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after top-level value", ErrDecode)
	}
	return raw, nil
}

// AssembleJSON decodes and assembles a raw JSON payload
func (a *Assembler) AssembleJSON(data []byte) (*Collection, error) {
	raw, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return a.Assemble(raw)
}

// Assemble builds the collection for one decoded payload: a single record or
// a list of records.
func (a *Assembler) Assemble(raw interface{}) (*Collection, error) {
	if isEmpty(raw) {
		log.Warn().Msg("JSON data is empty, returning an empty main table")
		c := NewCollection()
		c.Put(config.MainKey, table.New())
		return c, ErrEmptyInput
	}

	records, err := normalize(raw)
	if err != nil {
		return nil, err
	}

	main := table.New()
	for _, r := range records {
		main.Append(r)
	}

	c := NewCollection()
	c.Put(config.MainKey, main)

	consumed := make(map[string]struct{})
	for _, target := range a.targets {
		source, ok := extractor.SelectSource(main, target.Candidates, consumed)
		if !ok {
			log.Debug().Str("target", target.Key).Msg("No candidate column present")
			continue
		}
		consumed[source] = struct{}{}

		out := extractor.Extract(main, source, target)
		if target.PairEvents {
			out = dwell.NewClassifier().Classify(out)
		}
		if out.Empty() {
			log.Info().
				Str("column", source).
				Str("target", target.Key).
				Msg("No records extracted")
			continue
		}

		log.Debug().
			Str("column", source).
			Str("target", target.Key).
			Int("rows", out.Len()).
			Msg("Extracted long table")
		c.Put(target.Key, out)
	}

	expanded := flatten.ExpandObjectColumns(main, consumed)
	if len(expanded) > 0 {
		log.Debug().Strs("columns", expanded).Msg("Expanded object columns in main table")
	}

	return c, nil
}

// normalize turns the payload into rows. A list of objects maps one object
// per row. Otherwise the loose conversion keeps objects as rows and puts
// scalars under ValueColumn; nested lists cannot become a row.
func normalize(raw interface{}) ([]table.Row, error) {
	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	default:
		items = []interface{}{v}
	}

	rows, ok := strictRows(items)
	if ok {
		return rows, nil
	}

	log.Warn().Msg("Payload is not a list of records, attempting loose conversion")
	rows = make([]table.Row, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case map[string]interface{}:
			rows = append(rows, flatten.Record(v))
		case []interface{}:
			return nil, fmt.Errorf("%w: element %d is a list", ErrMalformedInput, i)
		default:
			rows = append(rows, table.Row{ValueColumn: v})
		}
	}
	return rows, nil
}

func strictRows(items []interface{}) ([]table.Row, bool) {
	rows := make([]table.Row, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, false
		}
		rows = append(rows, flatten.Record(obj))
	}
	return rows, true
}

// isEmpty reports payloads that hold no records: null, false, zero and
// empty lists, objects or strings.
func isEmpty(raw interface{}) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	}
	return false
}
