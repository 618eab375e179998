package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gpsanalyzer/telemetry.report/internal/report"
)

// HistoryItem is one previously processed capture.
type HistoryItem struct {
	ID       string         `json:"id"`
	Filename string         `json:"filename"`
	Summary  report.Summary `json:"summary"`
}

// ListHistory returns the backend's processed captures.
func (c *Client) ListHistory(ctx context.Context) ([]HistoryItem, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/history", nil)
	if err != nil {
		return nil, err
	}
	var items []HistoryItem
	if err := c.do(req, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// RenameHistory changes the display filename of a history entry.
func (c *Client) RenameHistory(ctx context.Context, id, filename string) error {
	data, err := json.Marshal(map[string]string{"filename": filename})
	if err != nil {
		return fmt.Errorf("marshal rename: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPatch, "/api/history/"+url.PathEscape(id), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// DeleteHistory removes a history entry and its stored files.
func (c *Client) DeleteHistory(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/history/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
