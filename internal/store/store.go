// Package store holds the currently loaded analysis result and the view
// state derived from it. It is the single source of truth read by the view
// engine, the telemetry pager and the renderers.
package store

import (
	"errors"
	"sync"

	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/tablesort"
)

var (
	// ErrNoAnalysis is returned when paging is requested without a loaded
	// analysis id (for example a synchronous upload result with no id).
	ErrNoAnalysis = errors.New("store: no analysis loaded")

	// ErrStalePage is returned when a page response no longer matches the
	// request the store is waiting for.
	ErrStalePage = errors.New("store: stale telemetry page")
)

// Table names a sortable, searchable result table.
type Table string

const (
	TableScorecard Table = "scorecard"
	TableStats     Table = "stats"
)

// Tables lists every sortable table.
var Tables = []Table{TableScorecard, TableStats}

// ViewState is the mutable state of one loaded result.
type ViewState struct {
	SelectedDevice string                    `json:"selected_device"`
	Sorts          map[Table]tablesort.State `json:"sorts"`
	Search         map[Table]string          `json:"search"`
	Page           int                       `json:"page"`
	PerPage        int                       `json:"per_page"`
	TotalPages     int                       `json:"total_pages"`
	TotalRows      int                       `json:"total_rows"`
}

func (v ViewState) clone() ViewState {
	out := v
	out.Sorts = make(map[Table]tablesort.State, len(v.Sorts))
	for k, s := range v.Sorts {
		out.Sorts[k] = s
	}
	out.Search = make(map[Table]string, len(v.Search))
	for k, s := range v.Search {
		out.Search[k] = s
	}
	return out
}

// Ticket identifies one telemetry page request. A response is applied only
// while its ticket is still the store's pending request.
type Ticket struct {
	AnalysisID string
	Device     string
	Page       int
	PerPage    int

	gen uint64
}

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	result     *report.AnalysisResult
	analysisID string
	state      ViewState
	gen        uint64
	pending    *Ticket
}

// New returns an empty store whose telemetry pages hold perPage rows.
func New(perPage int) *Store {
	if perPage < 1 {
		perPage = 1
	}
	s := &Store{}
	s.state = defaultState(perPage)
	return s
}

func defaultState(perPage int) ViewState {
	return ViewState{
		SelectedDevice: report.AllDevices,
		Sorts:          make(map[Table]tablesort.State),
		Search:         make(map[Table]string),
		Page:           1,
		PerPage:        perPage,
		TotalPages:     1,
	}
}

// Load replaces the current result and resets the view state. An empty
// analysisID leaves the result viewable but disables telemetry paging. The
// page size survives the reset.
func (s *Store) Load(res *report.AnalysisResult, analysisID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	s.analysisID = analysisID
	s.state = defaultState(s.state.PerPage)
	s.gen++
	s.pending = nil
}

// Clear drops the loaded result and returns to the idle state.
func (s *Store) Clear() {
	s.Load(nil, "")
}

// Result returns the loaded result, or nil when idle.
func (s *Store) Result() *report.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// AnalysisID returns the id of the loaded result, if any.
func (s *Store) AnalysisID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysisID
}

// State returns a copy of the view state.
func (s *Store) State() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// SelectedDevice returns the current device filter.
func (s *Store) SelectedDevice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SelectedDevice
}

// DeviceIDs returns the loaded scorecard's device ids in order.
func (s *Store) DeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	return s.result.DeviceIDs()
}

// SelectDevice sets the device filter and resets paging to page 1. Ids not
// in the scorecard are rejected and leave the state unchanged.
func (s *Store) SelectDevice(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validDevice(id) {
		return false
	}
	s.state.SelectedDevice = id
	s.state.Page = 1
	s.pending = nil
	return true
}

func (s *Store) validDevice(id string) bool {
	if id == report.AllDevices {
		return true
	}
	if s.result == nil {
		return false
	}
	for _, d := range s.result.DeviceIDs() {
		if d == id {
			return true
		}
	}
	return false
}

// SetSort replaces the sort of table.
func (s *Store) SetSort(table Table, st tablesort.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Sorts[table] = st
}

// SetSearch replaces the search text of table.
func (s *Store) SetSearch(table Table, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.state.Search, table)
		return
	}
	s.state.Search[table] = text
}

// SetPerPage changes the page size and resets paging to page 1.
func (s *Store) SetPerPage(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PerPage = n
	s.state.Page = 1
	s.pending = nil
}

// BeginPage records a request for page of the current device filter and
// returns its ticket. Any earlier pending request becomes stale.
func (s *Store) BeginPage(page int) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysisID == "" {
		return Ticket{}, ErrNoAnalysis
	}
	if page < 1 {
		page = 1
	}
	t := Ticket{
		AnalysisID: s.analysisID,
		Device:     s.state.SelectedDevice,
		Page:       page,
		PerPage:    s.state.PerPage,
		gen:        s.gen,
	}
	s.pending = &t
	return t, nil
}

// ApplyPage adopts the server's pagination metadata for t. The server's page
// becomes the cursor even when it differs from the requested one. Responses
// for a superseded request return ErrStalePage and change nothing.
func (s *Store) ApplyPage(t Ticket, meta report.PageMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || *s.pending != t ||
		t.gen != s.gen ||
		t.Device != s.state.SelectedDevice ||
		t.PerPage != s.state.PerPage {
		return ErrStalePage
	}
	pages := meta.Pages
	if pages < 1 {
		pages = 1
	}
	page := meta.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	s.state.Page = page
	s.state.TotalPages = pages
	s.state.TotalRows = meta.Total
	return nil
}
