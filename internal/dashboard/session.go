// Package dashboard wires the result engine together: a Session turns
// uploads and history selections into a loaded result and exposes the view
// controls, export and history; Server publishes a Session over HTTP.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gpsanalyzer/telemetry.report/internal/backend"
	"github.com/gpsanalyzer/telemetry.report/internal/cache"
	"github.com/gpsanalyzer/telemetry.report/internal/config"
	"github.com/gpsanalyzer/telemetry.report/internal/fsutil"
	"github.com/gpsanalyzer/telemetry.report/internal/httputil"
	"github.com/gpsanalyzer/telemetry.report/internal/jobs"
	"github.com/gpsanalyzer/telemetry.report/internal/mapview"
	"github.com/gpsanalyzer/telemetry.report/internal/monitoring"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/store"
	"github.com/gpsanalyzer/telemetry.report/internal/telemetry"
	"github.com/gpsanalyzer/telemetry.report/internal/timeutil"
	"github.com/gpsanalyzer/telemetry.report/internal/view"
)

var logf = monitoring.Component("dashboard")

// State is the lifecycle state of a session.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReady      State = "ready"
)

// Status is the user-visible lifecycle status.
type Status struct {
	State    State   `json:"state"`
	JobID    string  `json:"job_id,omitempty"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// Options configures a Session.
type Options struct {
	Config     *config.ClientConfig
	HTTPClient httputil.HTTPClient
	// Cache is optional.
	Cache *cache.Cache
	Clock timeutil.Clock
	FS    fsutil.FileSystem
}

// Session is one user's dashboard.
type Session struct {
	// ctx bounds background page loads; it outlives individual requests.
	ctx context.Context

	client   *backend.Client
	tracker  *jobs.Tracker
	store    *store.Store
	engine   *view.Engine
	pager    *telemetry.Pager
	exporter *telemetry.Exporter
	table    *telemetry.RawTable
	mapView  *mapview.Map
	cache    *cache.Cache
	clock    timeutil.Clock
	fs       fsutil.FileSystem

	// loadMu serializes result loads.
	loadMu sync.Mutex

	mu     sync.Mutex
	status Status
}

// NewSession builds a session. ctx bounds background telemetry loads.
func NewSession(ctx context.Context, opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.ClientConfig{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}

	s := &Session{
		ctx:    ctx,
		cache:  opts.Cache,
		clock:  clock,
		fs:     fsys,
		status: Status{State: StateIdle},
	}
	s.client = backend.NewClient(opts.HTTPClient, cfg.GetBaseURL(), cfg.GetRequestTimeout())
	s.tracker = jobs.NewTracker(s.client, jobs.Options{
		PollInterval: cfg.GetPollInterval(),
		MaxAttempts:  cfg.GetMaxPollAttempts(),
		Clock:        clock,
		OnProgress:   s.onProgress,
	})
	s.store = store.New(cfg.GetPerPage())
	s.table = telemetry.NewRawTable(cfg.GetTimezone())
	s.mapView = mapview.New()
	s.pager = telemetry.NewPager(s.store, s.client, s.table, s.mapView)
	s.engine = view.NewEngine(s.store, s.pager).WithTimezone(cfg.GetTimezone())
	s.exporter = telemetry.NewExporter(s.pager, cfg.GetExportPageSize())
	return s
}

func (s *Session) onProgress(p jobs.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Progress = p.Percent
	s.status.Message = fmt.Sprintf("Processing... %.0f%%", p.Percent)
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// Status returns the lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// UploadFile reads a capture from disk and uploads it.
func (s *Session) UploadFile(ctx context.Context, path string) (*view.View, error) {
	if !isJSONName(path) {
		return nil, s.reject(backend.ErrNotJSON)
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, s.fail(fmt.Errorf("read capture: %w", err))
	}
	return s.Upload(ctx, filepath.Base(path), bytes.NewReader(data))
}

// Upload sends a capture and drives it to a loaded result, tracking the job
// when the backend processes it asynchronously. Any failure returns the
// session to the idle state.
func (s *Session) Upload(ctx context.Context, filename string, capture io.Reader) (*view.View, error) {
	if !isJSONName(filename) {
		return nil, s.reject(backend.ErrNotJSON)
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.setStatus(Status{State: StateProcessing, Message: "Uploading " + filename})
	up, err := s.client.Upload(ctx, filename, capture)
	if err != nil {
		return nil, s.fail(err)
	}
	if !up.Async() {
		return s.load(ctx, up.Result, up.AnalysisID), nil
	}

	s.setStatus(Status{State: StateProcessing, JobID: up.JobID, Message: "Processing..."})
	out, err := s.tracker.Track(ctx, up.JobID)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.load(ctx, out.Result, out.AnalysisID), nil
}

// Open loads a stored result, from the local cache when present.
func (s *Session) Open(ctx context.Context, analysisID string) (*view.View, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.setStatus(Status{State: StateProcessing, Message: "Loading " + analysisID})
	if s.cache != nil {
		res, err := s.cache.Get(ctx, analysisID)
		switch {
		case err == nil:
			return s.load(ctx, res, analysisID), nil
		case !errors.Is(err, cache.ErrNotFound):
			logf("cache read for %s failed, fetching: %v", analysisID, err)
		}
	}
	res, err := s.client.Result(ctx, analysisID)
	if err != nil {
		return nil, s.fail(fmt.Errorf("load result %s: %w", analysisID, err))
	}
	return s.load(ctx, res, analysisID), nil
}

func (s *Session) load(ctx context.Context, res *report.AnalysisResult, analysisID string) *view.View {
	if s.cache != nil && analysisID != "" {
		if err := s.cache.Put(ctx, analysisID, res); err != nil {
			logf("cache write for %s failed: %v", analysisID, err)
		}
	}
	s.store.Load(res, analysisID)
	s.pager.Reset()
	s.setStatus(Status{State: StateReady, Progress: 100})
	logf("loaded %q (%d devices, analysis %q)", res.Summary.Filename, len(res.DeviceIDs()), analysisID)
	return s.engine.Open(s.ctx)
}

func isJSONName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

// reject reports err without touching the loaded result.
func (s *Session) reject(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Message = UserMessage(err)
	return err
}

// fail returns the session to idle with err as the status message.
func (s *Session) fail(err error) error {
	s.store.Clear()
	s.pager.Reset()
	s.setStatus(Status{State: StateIdle, Message: UserMessage(err)})
	logf("%v", err)
	return err
}

// UserMessage renders err the way the dashboard reports it.
func UserMessage(err error) string {
	var failed *jobs.FailedError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &failed):
		return "Processing failed: " + failed.Reason
	case errors.Is(err, jobs.ErrJobTimeout):
		return "Processing timeout. Please try again."
	case errors.Is(err, backend.ErrNotJSON):
		return "Please upload a JSON file."
	case errors.Is(err, telemetry.ErrNoData):
		return "No data to export"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return "Error processing file: " + apiErr.Message
	}
	return "Error: " + err.Error()
}

// View returns the current view.
func (s *Session) View() *view.View {
	return s.engine.Recompute()
}

// SetDevice changes the device filter.
func (s *Session) SetDevice(id string) (*view.View, error) {
	return s.engine.SetDevice(s.ctx, id)
}

// SetSort toggles the sort of a table.
func (s *Session) SetSort(table store.Table, column string) (*view.View, error) {
	return s.engine.SetSort(table, column)
}

// SetSearch filters a table by text.
func (s *Session) SetSearch(table store.Table, text string) (*view.View, error) {
	return s.engine.SetSearch(table, text)
}

// GotoPage loads a telemetry page and waits for it.
func (s *Session) GotoPage(ctx context.Context, page int) error {
	return s.pager.LoadPage(ctx, page)
}

// SetPerPage changes the telemetry page size.
func (s *Session) SetPerPage(ctx context.Context, n int) error {
	return s.pager.SetPerPage(ctx, n)
}

// Wait blocks until background telemetry loads have settled.
func (s *Session) Wait() {
	s.pager.Wait()
}

// RawPage returns the raw telemetry table.
func (s *Session) RawPage() telemetry.RawPage {
	return s.table.Snapshot()
}

// Map returns the map sink of the session.
func (s *Session) Map() *mapview.Map {
	return s.mapView
}

// Scores returns the score distribution of the loaded result.
func (s *Session) Scores() []float64 {
	res := s.store.Result()
	if res == nil {
		return nil
	}
	return res.ChartData.ScoreDistribution
}
