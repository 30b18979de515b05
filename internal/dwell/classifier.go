// Package dwell pairs word enter/leave events into dwell times and labels
// each visit as a first or second reading pass.
package dwell

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mousereading/prep/internal/extractor"
	"github.com/mousereading/prep/internal/table"
)

// Columns read from exploded mouse-event rows and written to dwell rows
const (
	TrialColumn   = extractor.ParentPrefix + "trial_index"
	TypeColumn    = "type"
	TimeColumn    = "t"
	IndexColumn   = "idx"
	DwellColumn   = "time"
	MeasureColumn = "reading_measure"

	EventEnter = "enter"
	EventLeave = "leave"

	FirstPass  = "first_pass"
	SecondPass = "second_pass"
)

// noVisit is the running maximum of a trial before its first visit.
// Indices at or below it are never first pass.
const noVisit = -1

// Classifier tracks the furthest word index reached per trial. It is meant
// for a single run; create a new one per input.
type Classifier struct {
	maxIdx map[string]int
}

// NewClassifier creates a classifier with no visited words
func NewClassifier() *Classifier {
	return &Classifier{maxIdx: make(map[string]int)}
}

type groupKey struct {
	trial interface{}
	order float64
}

type group struct {
	key  groupKey
	rows []table.Row
}

// Classify groups exploded mouse-event rows by trial and pair order and
// returns one row per well-formed enter/leave pair. Groups without exactly
// the type set {enter, leave} are dropped, as are groups whose index or
// timestamps are not numeric.
func (c *Classifier) Classify(events *table.Table) *table.Table {
	out := table.New()
	groups := groupEvents(events)

	var dropped int
	for _, g := range groups {
		row, ok := c.pair(g)
		if !ok {
			dropped++
			continue
		}
		out.AppendOrdered(row, events.Columns())
	}

	if dropped > 0 {
		log.Debug().
			Int("groups", len(groups)).
			Int("dropped", dropped).
			Msg("Dropped malformed enter/leave groups")
	}
	return out
}

func (c *Classifier) pair(g *group) (table.Row, bool) {
	var enter, leave table.Row
	types := make(map[string]struct{}, 2)
	for _, r := range g.rows {
		typ, ok := r[TypeColumn].(string)
		if !ok {
			return nil, false
		}
		types[typ] = struct{}{}
		switch {
		case typ == EventEnter && enter == nil:
			enter = r
		case typ == EventLeave && leave == nil:
			leave = r
		}
	}
	if len(types) != 2 || enter == nil || leave == nil {
		return nil, false
	}

	enterT, ok := number(enter[TimeColumn])
	if !ok {
		return nil, false
	}
	leaveT, ok := number(leave[TimeColumn])
	if !ok {
		return nil, false
	}
	idx, ok := index(enter[IndexColumn])
	if !ok {
		return nil, false
	}

	row := make(table.Row, len(g.rows[0])+1)
	for k, v := range g.rows[0] {
		if k == TypeColumn || k == TimeColumn {
			continue
		}
		row[k] = v
	}
	row[DwellColumn] = leaveT - enterT
	row[MeasureColumn] = c.measure(g.key.trial, idx)
	return row, true
}

// measure labels a visit and advances the running maximum on a first pass
func (c *Classifier) measure(trial interface{}, idx int) string {
	key := trialKey(trial)
	top, seen := c.maxIdx[key]
	if !seen {
		top = noVisit
	}
	if idx > top {
		c.maxIdx[key] = idx
		return FirstPass
	}
	return SecondPass
}

// groupEvents collects rows per (trial, order) and sorts the groups
// ascending. Rows without a trial or order are left out.
func groupEvents(events *table.Table) []*group {
	byID := make(map[string]*group)
	var groups []*group

	for _, r := range events.Rows() {
		trial, ok := r[TrialColumn]
		if !ok || trial == nil {
			continue
		}
		order, ok := number(r[extractor.OrderColumn])
		if !ok {
			continue
		}

		id := trialKey(trial) + "\x00" + strconv.FormatFloat(order, 'f', -1, 64)
		g, ok := byID[id]
		if !ok {
			g = &group{key: groupKey{trial: trial, order: order}}
			byID[id] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].key, groups[j].key
		if cmp := compareValues(a.trial, b.trial); cmp != 0 {
			return cmp < 0
		}
		return a.order < b.order
	})
	return groups
}

// compareValues orders numbers before other values, numbers numerically and
// everything else by its text form.
func compareValues(a, b interface{}) int {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	switch {
	case aNum && bNum:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func trialKey(v interface{}) string {
	if f, ok := v.(float64); ok {
		return "n:" + strconv.FormatFloat(f, 'f', -1, 64)
	}
	return "s:" + fmt.Sprint(v)
}

func number(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// index accepts integral numbers and integer strings; the browser plugin
// records word indices as object keys, so they often arrive as text.
func index(v interface{}) (int, bool) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
