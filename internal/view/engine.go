// Package view derives the dashboard's filtered, searched and sorted view
// from the result store. Every mutator writes the store and returns the
// recomputed View so renderers never re-derive state on their own.
package view

import (
	"context"
	"errors"
	"fmt"

	"github.com/gpsanalyzer/telemetry.report/internal/monitoring"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/store"
	"github.com/gpsanalyzer/telemetry.report/internal/tablesort"
	"github.com/gpsanalyzer/telemetry.report/internal/units"
)

var (
	ErrUnknownDevice = errors.New("view: unknown device")
	ErrUnknownTable  = errors.New("view: unknown table")
)

var logf = monitoring.Component("view")

// PageLoader issues an asynchronous telemetry page load for the store's
// current device filter.
type PageLoader interface {
	Dispatch(ctx context.Context, page int)
}

// Engine is the only writer of the device, sort and search state.
type Engine struct {
	store    *store.Store
	pages    PageLoader
	timezone string
}

// NewEngine returns an engine over s. pages may be nil, in which case device
// changes do not trigger telemetry loads.
func NewEngine(s *store.Store, pages PageLoader) *Engine {
	return &Engine{store: s, pages: pages}
}

// WithTimezone makes the stats table render its first and last report
// times in tz. It must be called before the engine is used.
func (e *Engine) WithTimezone(tz string) *Engine {
	e.timezone = tz
	return e
}

// Open computes the initial view of a freshly loaded result and requests
// the first telemetry page.
func (e *Engine) Open(ctx context.Context) *View {
	e.requestFirstPage(ctx)
	return e.Recompute()
}

// SetDevice changes the device filter. Pagination restarts at page 1 and a
// new telemetry page is requested.
func (e *Engine) SetDevice(ctx context.Context, id string) (*View, error) {
	if !e.store.SelectDevice(id) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	logf("device filter set to %s", id)
	e.requestFirstPage(ctx)
	return e.Recompute(), nil
}

func (e *Engine) requestFirstPage(ctx context.Context) {
	if e.pages == nil || e.store.AnalysisID() == "" {
		return
	}
	e.pages.Dispatch(ctx, 1)
}

// SetSort toggles the sort of table on column. Telemetry is not refetched.
func (e *Engine) SetSort(table store.Table, column string) (*View, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	next := e.store.State().Sorts[table].Toggle(column)
	e.store.SetSort(table, next)
	return e.Recompute(), nil
}

// SetSearch filters table to rows containing text in any cell.
func (e *Engine) SetSearch(table store.Table, text string) (*View, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	e.store.SetSearch(table, text)
	return e.Recompute(), nil
}

func knownTable(t store.Table) bool {
	for _, k := range store.Tables {
		if k == t {
			return true
		}
	}
	return false
}

// FilteredScorecard returns the scorecard rows matching the device filter,
// in original order.
func (e *Engine) FilteredScorecard() []report.Row {
	res := e.store.Result()
	if res == nil {
		return nil
	}
	return filterDevice(res.Scorecard, e.store.State().SelectedDevice)
}

// FilteredStats returns the stats rows matching the device filter, in
// original order.
func (e *Engine) FilteredStats() []report.Row {
	res := e.store.Result()
	if res == nil {
		return nil
	}
	return filterDevice(res.StatsRows(), e.store.State().SelectedDevice)
}

func filterDevice(rows []report.Row, device string) []report.Row {
	if device == report.AllDevices {
		return append([]report.Row(nil), rows...)
	}
	out := make([]report.Row, 0, 1)
	for _, r := range rows {
		if r.Device() == device {
			out = append(out, r)
		}
	}
	return out
}

func search(rows []report.Row, text string) []report.Row {
	if text == "" {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if r.Contains(text) {
			out = append(out, r)
		}
	}
	return out
}

// Recompute derives the full view from the store.
func (e *Engine) Recompute() *View {
	res := e.store.Result()
	st := e.store.State()
	v := &View{
		SelectedDevice: st.SelectedDevice,
		Sorts:          st.Sorts,
		Search:         st.Search,
		Page:           st.Page,
		PerPage:        st.PerPage,
		TotalPages:     st.TotalPages,
		TotalRows:      st.TotalRows,
	}
	if res == nil {
		v.KPIs = emptyKPIs()
		return v
	}
	v.Loaded = true
	v.AnalysisID = e.store.AnalysisID()
	v.Summary = res.Summary
	v.Devices = res.DeviceIDs()

	scorecard := filterDevice(res.Scorecard, st.SelectedDevice)
	stats := filterDevice(res.StatsRows(), st.SelectedDevice)
	v.Scorecard = st.Sorts[store.TableScorecard].Apply(search(scorecard, st.Search[store.TableScorecard]))
	v.Stats = localizeReportTimes(st.Sorts[store.TableStats].Apply(search(stats, st.Search[store.TableStats])), e.timezone)
	v.ScorecardBands = rowBands(v.Scorecard)

	if st.SelectedDevice == report.AllDevices {
		v.KPIs = summaryKPIs(res.Summary)
	} else {
		v.KPIs = deviceKPIs(first(scorecard), first(stats))
	}
	v.Events = EventCounts(res, st.SelectedDevice)
	v.Radar = RadarAxes(res.DataQuality)
	return v
}

// rowBands colours each scorecard row by its quality score. Rows without a
// score get BandNone.
func rowBands(rows []report.Row) []Band {
	bands := make([]Band, len(rows))
	for i, r := range rows {
		if score, ok := r.Float(report.ColQualityScore); ok {
			bands[i] = RowBand(score)
		}
	}
	return bands
}

// localizeReportTimes returns copies of rows with the first and last report
// times rendered in tz. Sorting has already happened on the raw values.
func localizeReportTimes(rows []report.Row, tz string) []report.Row {
	if tz == "" || len(rows) == 0 {
		return rows
	}
	out := make([]report.Row, len(rows))
	for i, r := range rows {
		c := r.Clone()
		for _, col := range []string{report.ColFirstReport, report.ColLastReport} {
			if s := r.String(col); s != "" {
				c.Set(col, units.FormatTimestamp(s, tz))
			}
		}
		out[i] = c
	}
	return out
}

func first(rows []report.Row) report.Row {
	if len(rows) == 0 {
		return report.Row{}
	}
	return rows[0]
}

// View is everything the renderers need for one state of the dashboard.
type View struct {
	Loaded         bool                            `json:"loaded"`
	AnalysisID     string                          `json:"analysis_id,omitempty"`
	SelectedDevice string                          `json:"selected_device"`
	Devices        []string                        `json:"devices"`
	Summary        report.Summary                  `json:"summary"`
	KPIs           KPIs                            `json:"kpis"`
	Scorecard      []report.Row                    `json:"scorecard"`
	ScorecardBands []Band                          `json:"scorecard_bands"`
	Stats          []report.Row                    `json:"stats"`
	Sorts          map[store.Table]tablesort.State `json:"sorts"`
	Search         map[store.Table]string          `json:"search"`
	Events         []EventCount                    `json:"events"`
	Radar          []RadarAxis                     `json:"radar"`
	Page           int                             `json:"page"`
	PerPage        int                             `json:"per_page"`
	TotalPages     int                             `json:"total_pages"`
	TotalRows      int                             `json:"total_rows"`
}
