package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/security"
)

// DefaultExportPageSize is the page size used to walk a filter for export.
const DefaultExportPageSize = 1000

// ErrNoData is returned when an export has no rows.
var ErrNoData = errors.New("telemetry: no data to export")

// PageFetcher is the page source of an export. *Pager implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, req Request) (*report.TelemetryPage, error)
}

// Exporter aggregates every telemetry page of a filter.
type Exporter struct {
	pages    PageFetcher
	pageSize int
}

// NewExporter returns an exporter walking pages of pageSize rows.
func NewExporter(pages PageFetcher, pageSize int) *Exporter {
	if pageSize < 1 {
		pageSize = DefaultExportPageSize
	}
	return &Exporter{pages: pages, pageSize: pageSize}
}

// ExportAll fetches pages 1..pages for device and concatenates their rows in
// page order. Any failed fetch fails the whole export.
func (e *Exporter) ExportAll(ctx context.Context, analysisID, device string) ([]report.Row, error) {
	var rows []report.Row
	pages := 1
	for page := 1; page <= pages; page++ {
		pg, err := e.pages.Fetch(ctx, Request{
			AnalysisID: analysisID,
			Page:       page,
			PerPage:    e.pageSize,
			Device:     device,
		})
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		rows = append(rows, pg.Rows...)
		pages = pg.Pages
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	logf("exported %d rows for device %s of %s", len(rows), device, analysisID)
	return rows, nil
}

// WriteCSV writes rows with the first row's keys as columns. Every cell,
// header included, is quoted; rows missing a column get an empty cell.
func WriteCSV(w io.Writer, rows []report.Row) error {
	if len(rows) == 0 {
		return ErrNoData
	}
	bw := bufio.NewWriter(w)
	cols := rows[0].Keys()
	writeRecord(bw, cols)
	cells := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			cells[i] = r.String(c)
		}
		writeRecord(bw, cells)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func writeRecord(w *bufio.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(c, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}

// ExportFilename names the CSV for device at t. The device id is sanitized
// into a single path component.
func ExportFilename(device string, t time.Time) string {
	return fmt.Sprintf("export_%s_%s.csv", security.SanitizeFilename(device), t.UTC().Format("2006-01-02T15-04-05.000Z"))
}
