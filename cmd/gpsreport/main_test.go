package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpsanalyzer/telemetry.report/internal/config"
	"github.com/gpsanalyzer/telemetry.report/internal/fsutil"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/version"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	res := report.AnalysisResult{
		Summary: report.Summary{Filename: "fleet.json", ProcessedAt: "2024-05-01T10:00:00", AverageQualityScore: 91.25, TotalDevices: 1, TotalRecords: 2},
		Scorecard: []report.Row{
			report.NewRow("imei", "111", report.ColQualityScore, 91.25, report.ColTotalReports, 2.0),
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/result/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("GET /api/result/{id}/telemetry", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(report.TelemetryPage{
			Rows: []report.Row{
				report.NewRow("imei", "111", "speed", 40.0),
				report.NewRow("imei", "111", "speed", 42.5),
			},
			PageMeta: report.PageMeta{Page: 1, Pages: 1, Total: 2, PerPage: 1000},
		})
	})
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"id": "a-1", "filename": "fleet.json", "summary": res.Summary}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Equal(t, version.String()+"\n", stdout.String())
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 2},
		{"unknown flag", []string{"-nope"}, 2},
		{"unknown command", []string{"-no-cache", "frobnicate"}, 2},
		{"help", []string{"help"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(context.Background(), tt.args, &stdout, &stderr))
		})
	}
}

func TestRunHistory(t *testing.T) {
	srv := fakeBackend(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-no-cache", "-base-url", srv.URL, "history"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "a-1")
	assert.Contains(t, stdout.String(), "91.2")
	assert.Contains(t, stdout.String(), "2024-05-01 10:00:00 UTC")
}

func TestRunHistoryInConfiguredTimezone(t *testing.T) {
	srv := fakeBackend(t)
	cfgPath := filepath.Join(t.TempDir(), "gpsreport.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"timezone":"America/Mexico_City"}`), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-no-cache", "-config", cfgPath, "-base-url", srv.URL, "history"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "2024-05-01 04:00:00 CST")
}

func TestRunOpen(t *testing.T) {
	srv := fakeBackend(t)
	var stdout, stderr bytes.Buffer
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	code := run(context.Background(), []string{"-cache", cachePath, "-base-url", srv.URL, "open", "a-1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "fleet.json (processed 2024-05-01 10:00:00 UTC)")
	assert.Contains(t, out, "quality score: 91.25 (good)")
	assert.Regexp(t, `111\s+91\.25\s+good\s+2`, out)
}

func TestRunOpenUnknownDevice(t *testing.T) {
	srv := fakeBackend(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-no-cache", "-base-url", srv.URL, "open", "-device", "999", "a-1"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown device")
}

func TestRunExport(t *testing.T) {
	srv := fakeBackend(t)
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-no-cache", "-base-url", srv.URL, "export", "-out", dir, "a-1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	path := strings.TrimSpace(stdout.String())
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "export_all_"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"imei\",\"speed\"\n\"111\",\"40\"\n\"111\",\"42.5\"\n", string(data))
}

func TestRunUploadRejectsNonJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-no-cache", "upload", "capture.csv"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Please upload a JSON file.")
}

func TestLoadConfigOverrides(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("cfg.json", []byte(`{"base_url":"http://backend:8000","per_page":50}`))

	cfg, err := loadConfig(fsys, &globalFlags{configPath: "cfg.json"})
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8000", cfg.GetBaseURL())
	assert.Equal(t, 50, cfg.GetPerPage())

	cfg, err = loadConfig(fsys, &globalFlags{configPath: "cfg.json", baseURL: "http://other", perPage: 10, cachePath: "c.db"})
	require.NoError(t, err)
	assert.Equal(t, "http://other", cfg.GetBaseURL())
	assert.Equal(t, 10, cfg.GetPerPage())
	assert.Equal(t, "c.db", cfg.GetCachePath())
}

func TestLoadConfigDefaultFileOptional(t *testing.T) {
	cfg, err := loadConfig(fsutil.NewMemoryFileSystem(), &globalFlags{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBaseURL, cfg.GetBaseURL())

	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile(config.DefaultConfigPath, []byte(`{"per_page":25}`))
	cfg, err = loadConfig(fsys, &globalFlags{})
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.GetPerPage())
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(fsutil.NewMemoryFileSystem(), &globalFlags{configPath: "absent.json"})
	assert.Error(t, err)
}
