package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gpsanalyzer/telemetry.report/internal/fsutil"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &ClientConfig{}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should be valid: %v", err)
	}
	if cfg.GetBaseURL() != DefaultBaseURL {
		t.Errorf("GetBaseURL = %q", cfg.GetBaseURL())
	}
	if cfg.GetPollInterval() != time.Second {
		t.Errorf("GetPollInterval = %v, want 1s", cfg.GetPollInterval())
	}
	if cfg.GetMaxPollAttempts() != 120 {
		t.Errorf("GetMaxPollAttempts = %d, want 120", cfg.GetMaxPollAttempts())
	}
	if cfg.GetPerPage() != 100 {
		t.Errorf("GetPerPage = %d, want 100", cfg.GetPerPage())
	}
	if cfg.GetExportPageSize() != 1000 {
		t.Errorf("GetExportPageSize = %d, want 1000", cfg.GetExportPageSize())
	}
	if cfg.GetRequestTimeout() != 30*time.Second {
		t.Errorf("GetRequestTimeout = %v", cfg.GetRequestTimeout())
	}
	if cfg.GetTimezone() != "UTC" || cfg.GetCachePath() == "" || cfg.GetListen() == "" {
		t.Error("string defaults should be populated")
	}
}

func TestLoadClientConfig(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("cfg.json", []byte(`{
  "base_url": "https://analyzer.example.com/",
  "poll_interval": "500ms",
  "max_poll_attempts": 10,
  "per_page": 50,
  "timezone": "America/Santiago"
}`))

	cfg, err := LoadClientConfig(fsys, "cfg.json")
	if err != nil {
		t.Fatalf("LoadClientConfig failed: %v", err)
	}
	if cfg.GetBaseURL() != "https://analyzer.example.com" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.GetBaseURL())
	}
	if cfg.GetPollInterval() != 500*time.Millisecond {
		t.Errorf("GetPollInterval = %v", cfg.GetPollInterval())
	}
	if cfg.GetMaxPollAttempts() != 10 || cfg.GetPerPage() != 50 {
		t.Errorf("unexpected ints: %d %d", cfg.GetMaxPollAttempts(), cfg.GetPerPage())
	}
	if cfg.GetExportPageSize() != DefaultExportPageSize {
		t.Errorf("omitted fields keep defaults, got %d", cfg.GetExportPageSize())
	}
}

func TestLoadClientConfigFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gpsreport.json")
	if err := os.WriteFile(path, []byte(`{"per_page": 25}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadClientConfig(fsutil.OSFileSystem{}, path)
	if err != nil {
		t.Fatalf("LoadClientConfig failed: %v", err)
	}
	if cfg.GetPerPage() != 25 {
		t.Errorf("GetPerPage = %d, want 25", cfg.GetPerPage())
	}
}

func TestLoadClientConfigErrors(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("bad.json", []byte(`{"per_page": "many"`))
	fsys.AddFile("invalid.json", []byte(`{"per_page": 0}`))
	fsys.AddFile("cfg.yaml", []byte(`per_page: 1`))
	fsys.AddFile("huge.json", []byte(strings.Repeat(" ", 1024*1024+1)))

	for _, path := range []string{"missing.json", "bad.json", "invalid.json", "cfg.yaml", "huge.json"} {
		if _, err := LoadClientConfig(fsys, path); err == nil {
			t.Errorf("LoadClientConfig(%q) expected error", path)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ClientConfig
		wantErr bool
	}{
		{"empty config is valid", &ClientConfig{}, false},
		{"relative base url", &ClientConfig{BaseURL: ptrString("/api")}, true},
		{"bad poll interval", &ClientConfig{PollInterval: ptrString("soon")}, true},
		{"negative poll interval", &ClientConfig{PollInterval: ptrString("-1s")}, true},
		{"zero attempts", &ClientConfig{MaxPollAttempts: ptrInt(0)}, true},
		{"per page too large", &ClientConfig{PerPage: ptrInt(5000)}, true},
		{"zero export page", &ClientConfig{ExportPageSize: ptrInt(0)}, true},
		{"unknown timezone", &ClientConfig{Timezone: ptrString("Nowhere/City")}, true},
		{"valid full", &ClientConfig{
			BaseURL:         ptrString("http://localhost:8000"),
			RequestTimeout:  ptrString("10s"),
			PollInterval:    ptrString("2s"),
			MaxPollAttempts: ptrInt(60),
			PerPage:         ptrInt(200),
			ExportPageSize:  ptrInt(500),
			Timezone:        ptrString("Europe/Madrid"),
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithOverrides(t *testing.T) {
	base := &ClientConfig{}
	cfg := base.WithBaseURL("http://10.0.0.5:8000").WithPerPage(20)

	if cfg.GetBaseURL() != "http://10.0.0.5:8000" || cfg.GetPerPage() != 20 {
		t.Errorf("overrides not applied: %q %d", cfg.GetBaseURL(), cfg.GetPerPage())
	}
	if base.BaseURL != nil || base.PerPage != nil {
		t.Error("overrides must not mutate the original config")
	}
}
