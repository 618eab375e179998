package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gpsanalyzer/telemetry.report/internal/cache"
	"github.com/gpsanalyzer/telemetry.report/internal/config"
	"github.com/gpsanalyzer/telemetry.report/internal/fsutil"
	"github.com/gpsanalyzer/telemetry.report/internal/httputil"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/timeutil"
)

const testAnalysisID = "a-1"

func testResult() *report.AnalysisResult {
	return &report.AnalysisResult{
		Summary: report.Summary{
			Filename:            "fleet.json",
			ProcessedAt:         "2024-05-01T10:00:00",
			AverageQualityScore: 88.4,
			TotalDevices:        2,
			TotalRecords:        1500,
			TotalDistanceKm:     321.456,
		},
		Scorecard: []report.Row{
			report.NewRow("imei", "111", report.ColQualityScore, 92.0, report.ColTotalReports, 1000.0),
			report.NewRow("imei", "222", report.ColQualityScore, 65.0, report.ColTotalReports, 500.0),
		},
		DataQuality: map[string]float64{"gps_validity": 99},
		ChartData: report.ChartData{
			ScoreDistribution: []float64{92, 65},
			EventsSummary:     map[string]int{"Ignition_On": 4},
		},
	}
}

// fakeBackend serves the analysis API from memory.
type fakeBackend struct {
	*httptest.Server

	mu        sync.Mutex
	results   map[string]*report.AnalysisResult
	rows      map[string][]report.Row // device -> rows; "" holds every row
	history   []map[string]any
	renames   []string
	deletes   []string
	resultHit int
	pageFail  int // status returned by the telemetry endpoint when set
	upload    func(w http.ResponseWriter)
	progress  func(w http.ResponseWriter)
	jobStatus func(w http.ResponseWriter)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		results: map[string]*report.AnalysisResult{testAnalysisID: testResult()},
		rows: map[string][]report.Row{
			"": {
				report.NewRow("imei", "111", "lat", 19.4, "lng", -99.1, "event_type", "null"),
				report.NewRow("imei", "222", "lat", 20.6, "lng", -103.3, "event_type", "SOS"),
				report.NewRow("imei", "111", "lat", 19.5, "lng", -99.2, "event_type", "null"),
			},
			"111": {
				report.NewRow("imei", "111", "lat", 19.4, "lng", -99.1, "event_type", "null"),
				report.NewRow("imei", "111", "lat", 19.5, "lng", -99.2, "event_type", "null"),
			},
		},
		history: []map[string]any{{"id": testAnalysisID, "filename": "fleet.json"}},
	}
	b.upload = func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, map[string]any{"id": testAnalysisID, "data": testResult()})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file"})
			return
		}
		b.upload(w)
	})
	mux.HandleFunc("GET /api/job/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
		if b.progress == nil {
			http.Error(w, "no stream", http.StatusServiceUnavailable)
			return
		}
		b.progress(w)
	})
	mux.HandleFunc("GET /api/job/{id}", func(w http.ResponseWriter, r *http.Request) {
		if b.jobStatus == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "processing", "progress": 10})
			return
		}
		b.jobStatus(w)
	})
	mux.HandleFunc("GET /api/result/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.resultHit++
		res, ok := b.results[r.PathValue("id")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Analysis not found"})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
	mux.HandleFunc("GET /api/result/{id}/telemetry", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		rows := b.rows[r.URL.Query().Get("imei")]
		fail := b.pageFail
		b.mu.Unlock()
		if fail != 0 {
			writeJSON(w, fail, map[string]string{"error": "telemetry unavailable"})
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		pages := max(1, (len(rows)+perPage-1)/perPage)
		page = min(max(page, 1), pages)
		lo := min((page-1)*perPage, len(rows))
		hi := min(lo+perPage, len(rows))
		writeJSON(w, http.StatusOK, report.TelemetryPage{
			Rows:     rows[lo:hi],
			PageMeta: report.PageMeta{Page: page, Pages: pages, Total: len(rows), PerPage: perPage},
		})
	})
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, b.history)
	})
	mux.HandleFunc("PATCH /api/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Filename string `json:"filename"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.renames = append(b.renames, r.PathValue("id")+"="+body.Filename)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("DELETE /api/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.deletes = append(b.deletes, r.PathValue("id"))
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBackend) failPages(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pageFail = status
}

func (b *fakeBackend) addResult(id string, res *report.AnalysisResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[id] = res
}

func (b *fakeBackend) resultHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resultHit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sseFrames(w http.ResponseWriter, msgs ...any) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, m := range msgs {
		data, _ := json.Marshal(m)
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
}

type testSession struct {
	*Session
	backend *fakeBackend
	clock   *timeutil.MockClock
	fs      *fsutil.MemoryFileSystem
}

func newTestSession(t *testing.T, withCache bool) *testSession {
	t.Helper()
	b := newFakeBackend(t)
	clock := timeutil.NewMockClock(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC))
	fsys := fsutil.NewMemoryFileSystem()

	var c *cache.Cache
	if withCache {
		var err error
		c, err = cache.Open(filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
	}

	cfg := (&config.ClientConfig{}).WithBaseURL(b.URL).WithPerPage(2)
	s := NewSession(context.Background(), Options{
		Config:     cfg,
		HTTPClient: httputil.NewStandardClient(b.Client()),
		Cache:      c,
		Clock:      clock,
		FS:         fsys,
	})
	t.Cleanup(s.Wait)
	return &testSession{Session: s, backend: b, clock: clock, fs: fsys}
}
