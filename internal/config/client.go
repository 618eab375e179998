package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/gpsanalyzer/telemetry.report/internal/fsutil"
	"github.com/gpsanalyzer/telemetry.report/internal/units"
)

// DefaultConfigPath is where gpsreport looks for its configuration when
// -config is not given. A missing file is not an error; defaults apply.
const DefaultConfigPath = "gpsreport.json"

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultBaseURL         = "http://localhost:8000"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultPerPage         = 100
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 120
	DefaultExportPageSize  = 1000
	DefaultCachePath       = "gpsreport-cache.db"
	DefaultListen          = "127.0.0.1:8090"
	DefaultTimezone        = "UTC"
)

// ClientConfig configures the dashboard client. Every field is optional so
// partial files are safe; the Get* methods supply defaults.
type ClientConfig struct {
	// Backend
	BaseURL        *string `json:"base_url,omitempty"`
	RequestTimeout *string `json:"request_timeout,omitempty"` // duration string like "30s"

	// Job progress fallback
	PollInterval    *string `json:"poll_interval,omitempty"`
	MaxPollAttempts *int    `json:"max_poll_attempts,omitempty"`

	// Telemetry paging and export
	PerPage        *int `json:"per_page,omitempty"`
	ExportPageSize *int `json:"export_page_size,omitempty"`

	// Local surfaces
	CachePath *string `json:"cache_path,omitempty"`
	Listen    *string `json:"listen,omitempty"`
	Timezone  *string `json:"timezone,omitempty"`
}

// LoadClientConfig loads a ClientConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadClientConfig(fsys fsutil.FileSystem, path string) (*ClientConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ClientConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ClientConfig) Validate() error {
	if c.BaseURL != nil {
		u, err := url.Parse(*c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base_url must be an absolute URL, got %q", *c.BaseURL)
		}
	}
	for name, d := range map[string]*string{
		"request_timeout": c.RequestTimeout,
		"poll_interval":   c.PollInterval,
	} {
		if d == nil || *d == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *d)
		}
	}
	if c.MaxPollAttempts != nil && *c.MaxPollAttempts < 1 {
		return fmt.Errorf("max_poll_attempts must be at least 1, got %d", *c.MaxPollAttempts)
	}
	if c.PerPage != nil && (*c.PerPage < 1 || *c.PerPage > 1000) {
		return fmt.Errorf("per_page must be between 1 and 1000, got %d", *c.PerPage)
	}
	if c.ExportPageSize != nil && *c.ExportPageSize < 1 {
		return fmt.Errorf("export_page_size must be positive, got %d", *c.ExportPageSize)
	}
	if c.Timezone != nil && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("unknown timezone %q", *c.Timezone)
	}
	return nil
}

// GetBaseURL returns the backend base URL without a trailing slash.
func (c *ClientConfig) GetBaseURL() string {
	if c.BaseURL == nil || *c.BaseURL == "" {
		return DefaultBaseURL
	}
	u := *c.BaseURL
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// GetRequestTimeout returns the per-request timeout for non-streaming calls.
func (c *ClientConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, DefaultRequestTimeout)
}

// GetPollInterval returns the fallback polling interval.
func (c *ClientConfig) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, DefaultPollInterval)
}

// GetMaxPollAttempts returns the fallback polling ceiling.
func (c *ClientConfig) GetMaxPollAttempts() int {
	if c.MaxPollAttempts == nil {
		return DefaultMaxPollAttempts
	}
	return *c.MaxPollAttempts
}

// GetPerPage returns the raw telemetry page size.
func (c *ClientConfig) GetPerPage() int {
	if c.PerPage == nil {
		return DefaultPerPage
	}
	return *c.PerPage
}

// GetExportPageSize returns the page size used when walking pages for export.
func (c *ClientConfig) GetExportPageSize() int {
	if c.ExportPageSize == nil {
		return DefaultExportPageSize
	}
	return *c.ExportPageSize
}

// GetCachePath returns the sqlite result cache path.
func (c *ClientConfig) GetCachePath() string {
	if c.CachePath == nil || *c.CachePath == "" {
		return DefaultCachePath
	}
	return *c.CachePath
}

// GetListen returns the local dashboard listen address.
func (c *ClientConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetTimezone returns the timezone used to display report timestamps.
func (c *ClientConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return DefaultTimezone
	}
	return *c.Timezone
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// WithBaseURL returns a copy of c with BaseURL overridden, used for flags.
func (c *ClientConfig) WithBaseURL(u string) *ClientConfig {
	out := *c
	out.BaseURL = ptrString(u)
	return &out
}

// WithPerPage returns a copy of c with PerPage overridden, used for flags.
func (c *ClientConfig) WithPerPage(n int) *ClientConfig {
	out := *c
	out.PerPage = ptrInt(n)
	return &out
}
