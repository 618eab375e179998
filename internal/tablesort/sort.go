// Package tablesort orders result rows by a single column.
//
// Missing and null values always sort last, in both directions. Columns whose
// name marks them as timestamps compare as instants when both sides parse.
// Strings compare case-insensitively. The sort is stable so rows with equal
// keys keep their input order.
package tablesort

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/units"
)

// Direction is the sort order of a column.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// State is the active sort of one table. The zero value means unsorted.
type State struct {
	Column    string    `json:"column,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Active reports whether a column is selected.
func (s State) Active() bool { return s.Column != "" }

// Toggle returns the state after the user activates column: the same column
// currently ascending flips to descending, anything else becomes ascending.
func (s State) Toggle(column string) State {
	if s.Column == column && s.Direction == Asc {
		return State{Column: column, Direction: Desc}
	}
	return State{Column: column, Direction: Asc}
}

// IsDateColumn reports whether column holds timestamps.
func IsDateColumn(column string) bool {
	return strings.Contains(column, "Reporte") || strings.Contains(column, "time")
}

// Sort returns a sorted copy of rows. The input slice is not modified.
func Sort(rows []report.Row, column string, dir Direction) []report.Row {
	out := append([]report.Row(nil), rows...)
	if column == "" {
		return out
	}
	date := IsDateColumn(column)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Value(column), out[j].Value(column)
		if a == nil || b == nil {
			// nil last regardless of direction
			return a != nil && b == nil
		}
		c := compare(a, b, date)
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// Apply sorts rows by s, or returns a copy when s is inactive.
func (s State) Apply(rows []report.Row) []report.Row {
	return Sort(rows, s.Column, s.Direction)
}

func compare(a, b any, date bool) int {
	if date {
		ta, okA := units.ParseTimestamp(report.FormatCell(a))
		tb, okB := units.ParseTimestamp(report.FormatCell(b))
		if okA && okB {
			return ta.Compare(tb)
		}
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(
		strings.ToLower(report.FormatCell(a)),
		strings.ToLower(report.FormatCell(b)),
	)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
