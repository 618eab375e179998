// Package telemetry pages raw telemetry rows from the backend into the
// result store and its renderers, and aggregates whole filters for export.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gpsanalyzer/telemetry.report/internal/monitoring"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/store"
)

var logf = monitoring.Component("telemetry")

// Fetcher retrieves one telemetry page. *backend.Client implements it.
type Fetcher interface {
	TelemetryPage(ctx context.Context, analysisID string, page, perPage int, device string) (*report.TelemetryPage, error)
}

// Sink renders a loaded page. Sinks are called with every accepted page,
// including empty ones, and never with a stale page.
type Sink interface {
	ShowPage(rows []report.Row, meta report.PageMeta)
}

// Request addresses one page of one analysis for a device filter.
type Request struct {
	AnalysisID string
	Page       int
	PerPage    int
	Device     string
}

// Pager loads telemetry pages for the store's current device filter.
type Pager struct {
	store   *store.Store
	fetcher Fetcher

	// deliver serializes apply+render so an accepted page is never
	// overdrawn by an older one.
	deliver sync.Mutex
	sinks   []Sink

	wg sync.WaitGroup
}

// NewPager returns a pager writing into s and rendering into sinks.
func NewPager(s *store.Store, f Fetcher, sinks ...Sink) *Pager {
	return &Pager{store: s, fetcher: f, sinks: sinks}
}

// Fetch retrieves one page without touching the store.
func (p *Pager) Fetch(ctx context.Context, req Request) (*report.TelemetryPage, error) {
	if req.AnalysisID == "" {
		return nil, store.ErrNoAnalysis
	}
	pg, err := p.fetcher.TelemetryPage(ctx, req.AnalysisID, req.Page, req.PerPage, req.Device)
	if err != nil {
		return nil, fmt.Errorf("telemetry page %d of %s: %w", req.Page, req.AnalysisID, err)
	}
	return pg, nil
}

// LoadPage fetches page for the current device filter and page size. On
// success the server's page becomes the cursor and the sinks are fed. A
// failed fetch leaves the previous page in place. A response overtaken by a
// newer request or a filter change returns store.ErrStalePage.
func (p *Pager) LoadPage(ctx context.Context, page int) error {
	t, err := p.store.BeginPage(page)
	if err != nil {
		return err
	}
	return p.complete(ctx, t)
}

// Dispatch issues a page load in the background. The request is registered
// before Dispatch returns, so later requests always supersede it.
func (p *Pager) Dispatch(ctx context.Context, page int) {
	t, err := p.store.BeginPage(page)
	if err != nil {
		logf("page %d not requested: %v", page, err)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.complete(ctx, t)
	}()
}

// Reset clears every sink to an empty first page for the store's current
// filter. Call it after the store was loaded or cleared so no renderer keeps
// rows of a previous analysis. Pages still in flight are stale by then.
func (p *Pager) Reset() {
	p.deliver.Lock()
	defer p.deliver.Unlock()
	st := p.store.State()
	meta := report.PageMeta{Page: 1, Pages: 1, PerPage: st.PerPage, Device: st.SelectedDevice}
	for _, s := range p.sinks {
		s.ShowPage(nil, meta)
	}
}

// Wait blocks until every dispatched load has resolved.
func (p *Pager) Wait() {
	p.wg.Wait()
}

// SetPerPage changes the page size and reloads from page 1.
func (p *Pager) SetPerPage(ctx context.Context, n int) error {
	p.store.SetPerPage(n)
	return p.LoadPage(ctx, 1)
}

func (p *Pager) complete(ctx context.Context, t store.Ticket) error {
	pg, err := p.Fetch(ctx, Request{
		AnalysisID: t.AnalysisID,
		Page:       t.Page,
		PerPage:    t.PerPage,
		Device:     t.Device,
	})
	if err != nil {
		logf("failed to load telemetry page: %v", err)
		return err
	}

	p.deliver.Lock()
	defer p.deliver.Unlock()
	if err := p.store.ApplyPage(t, pg.PageMeta); err != nil {
		if errors.Is(err, store.ErrStalePage) {
			logf("discarding stale page %d for device %s", t.Page, t.Device)
		}
		return err
	}
	st := p.store.State()
	meta := report.PageMeta{
		Page:    st.Page,
		Pages:   st.TotalPages,
		Total:   st.TotalRows,
		PerPage: st.PerPage,
		Device:  t.Device,
	}
	for _, s := range p.sinks {
		s.ShowPage(pg.Rows, meta)
	}
	return nil
}
