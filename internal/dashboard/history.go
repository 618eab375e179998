package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gpsanalyzer/telemetry.report/internal/backend"
	"github.com/gpsanalyzer/telemetry.report/internal/store"
	"github.com/gpsanalyzer/telemetry.report/internal/telemetry"
)

// Export writes every telemetry row of the selected device as CSV and
// returns the suggested filename. Nothing is written on failure.
func (s *Session) Export(ctx context.Context, w io.Writer) (string, error) {
	id := s.store.AnalysisID()
	if id == "" {
		return "", store.ErrNoAnalysis
	}
	device := s.store.SelectedDevice()
	rows, err := s.exporter.ExportAll(ctx, id, device)
	if err != nil {
		return "", err
	}
	if err := telemetry.WriteCSV(w, rows); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return telemetry.ExportFilename(device, s.clock.Now()), nil
}

// ExportToDir exports into dir and returns the path written. A failed write
// leaves no partial file behind.
func (s *Session) ExportToDir(ctx context.Context, dir string) (string, error) {
	id := s.store.AnalysisID()
	if id == "" {
		return "", store.ErrNoAnalysis
	}
	device := s.store.SelectedDevice()
	rows, err := s.exporter.ExportAll(ctx, id, device)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, telemetry.ExportFilename(device, s.clock.Now()))
	f, err := s.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	if err := telemetry.WriteCSV(f, rows); err != nil {
		f.Close()
		s.discard(path)
		return "", fmt.Errorf("write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		s.discard(path)
		return "", fmt.Errorf("close export: %w", err)
	}
	logf("wrote %d rows to %s", len(rows), path)
	return path, nil
}

func (s *Session) discard(path string) {
	if err := s.fs.Remove(path); err != nil {
		logf("remove partial export %s: %v", path, err)
	}
}

// History lists processed captures.
func (s *Session) History(ctx context.Context) ([]backend.HistoryItem, error) {
	return s.client.ListHistory(ctx)
}

// Rename changes a history entry's filename. A blank or unchanged name is
// ignored and reports false.
func (s *Session) Rename(ctx context.Context, item backend.HistoryItem, filename string) (bool, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" || filename == item.Filename {
		return false, nil
	}
	if err := s.client.RenameHistory(ctx, item.ID, filename); err != nil {
		return false, fmt.Errorf("rename %s: %w", item.ID, err)
	}
	return true, nil
}

// DeleteHistory removes a history entry, drops it from the cache, and
// unloads it when it is the current result.
func (s *Session) DeleteHistory(ctx context.Context, id string) error {
	if err := s.client.DeleteHistory(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			logf("cache delete for %s failed: %v", id, err)
		}
	}
	if s.store.AnalysisID() == id {
		s.store.Clear()
		s.pager.Reset()
		s.setStatus(Status{State: StateIdle})
	}
	return nil
}

// IsNotLoaded reports whether err stems from an operation needing a result.
func IsNotLoaded(err error) bool {
	return errors.Is(err, store.ErrNoAnalysis)
}
