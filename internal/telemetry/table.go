package telemetry

import (
	"slices"
	"sync"

	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/units"
)

// TimestampColumns are the raw columns rendered in the display timezone.
var TimestampColumns = []string{"time", "receiveTimestamp", "lastFixTime"}

// RawTable is the raw telemetry tab: the rows of the current page laid out
// in report.RawColumns order. The zero value shows timestamps as sent.
type RawTable struct {
	timezone string

	mu   sync.RWMutex
	rows []report.Row
	meta report.PageMeta
}

// NewRawTable returns a table that renders TimestampColumns in timezone.
func NewRawTable(timezone string) *RawTable {
	return &RawTable{timezone: timezone}
}

// ShowPage implements Sink.
func (t *RawTable) ShowPage(rows []report.Row, meta report.PageMeta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = rows
	t.meta = meta
}

// RawPage is a rendered snapshot of the raw table.
type RawPage struct {
	Columns []string   `json:"columns"`
	Cells   [][]string `json:"cells"`
	report.PageMeta
}

// Snapshot returns the current page as text cells. Missing and null values
// render empty.
func (t *RawTable) Snapshot() RawPage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := RawPage{
		Columns:  report.RawColumns,
		Cells:    make([][]string, len(t.rows)),
		PageMeta: t.meta,
	}
	for i, r := range t.rows {
		cells := make([]string, len(report.RawColumns))
		for j, c := range report.RawColumns {
			cells[j] = r.String(c)
			if t.timezone != "" && cells[j] != "" && slices.Contains(TimestampColumns, c) {
				cells[j] = units.FormatTimestamp(cells[j], t.timezone)
			}
		}
		out.Cells[i] = cells
	}
	return out
}
