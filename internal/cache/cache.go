// Package cache keeps fetched analysis results in a local sqlite database so
// reopening a history entry does not download the full result again.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/gpsanalyzer/telemetry.report/internal/monitoring"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Get for an analysis that is not cached.
var ErrNotFound = errors.New("cache: result not cached")

var logf = monitoring.Component("cache")

// Cache is a sqlite-backed result cache.
type Cache struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock
}

// Entry describes one cached result.
type Entry struct {
	AnalysisID          string  `json:"analysis_id"`
	Filename            string  `json:"filename"`
	ProcessedAt         string  `json:"processed_at"`
	AverageQualityScore float64 `json:"average_quality_score"`
	TotalDevices        int     `json:"total_devices"`
	TotalRecords        int     `json:"total_records"`
	FetchedAt           int64   `json:"fetched_at"`
}

// Open opens (creating if needed) the cache at path and applies pending
// migrations.
func Open(path string) (*Cache, error) {
	return open(path, timeutil.RealClock{})
}

func open(path string, clock timeutil.Clock) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	// a single connection keeps in-memory databases coherent
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure cache: %w", err)
	}
	c := &Cache{db: db, path: path, clock: clock}
	if err := c.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores res under analysisID, replacing any previous copy.
func (c *Cache) Put(ctx context.Context, analysisID string, res *report.AnalysisResult) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", analysisID, err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO results (analysis_id, filename, processed_at, average_quality_score,
			total_devices, total_records, body, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id) DO UPDATE SET
			filename = excluded.filename,
			processed_at = excluded.processed_at,
			average_quality_score = excluded.average_quality_score,
			total_devices = excluded.total_devices,
			total_records = excluded.total_records,
			body = excluded.body,
			fetched_at = excluded.fetched_at`,
		analysisID, res.Summary.Filename, res.Summary.ProcessedAt, res.Summary.AverageQualityScore,
		res.Summary.TotalDevices, res.Summary.TotalRecords, string(body), c.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("store result %s: %w", analysisID, err)
	}
	return nil
}

// Get returns the cached result for analysisID or ErrNotFound.
func (c *Cache) Get(ctx context.Context, analysisID string) (*report.AnalysisResult, error) {
	var body string
	err := c.db.QueryRowContext(ctx, `SELECT body FROM results WHERE analysis_id = ?`, analysisID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read result %s: %w", analysisID, err)
	}
	var res report.AnalysisResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("decode cached result %s: %w", analysisID, err)
	}
	return &res, nil
}

// Delete evicts analysisID. Evicting a missing entry is not an error.
func (c *Cache) Delete(ctx context.Context, analysisID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM results WHERE analysis_id = ?`, analysisID); err != nil {
		return fmt.Errorf("evict result %s: %w", analysisID, err)
	}
	return nil
}

// List returns cached entries, most recently fetched first.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT analysis_id, filename, processed_at, COALESCE(average_quality_score, 0),
			COALESCE(total_devices, 0), COALESCE(total_records, 0), fetched_at
		FROM results ORDER BY fetched_at DESC, analysis_id`)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.AnalysisID, &e.Filename, &e.ProcessedAt, &e.AverageQualityScore,
			&e.TotalDevices, &e.TotalRecords, &e.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
