// Package backend is the HTTP client for the analysis backend: uploads, job
// progress (stream and polling), results, telemetry pages and history.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gpsanalyzer/telemetry.report/internal/httputil"
	"github.com/gpsanalyzer/telemetry.report/internal/monitoring"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/version"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrNotJSON is returned when a capture without a .json extension is
// uploaded.
var ErrNotJSON = errors.New("backend: only .json captures can be uploaded")

var logf = monitoring.Component("backend")

// APIError is a non-success HTTP response. Message carries the backend's
// {"error": ...} text when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to one backend instance.
type Client struct {
	http    httputil.HTTPClient
	baseURL string
	timeout time.Duration
}

// NewClient returns a client for baseURL. timeout bounds every request
// except the progress stream; zero disables it.
func NewClient(hc httputil.HTTPClient, baseURL string, timeout time.Duration) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// do sends req and decodes a JSON success body into out. Non-2xx responses
// become *APIError.
func (c *Client) do(req *http.Request, out any) error {
	ctx := req.Context()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Error
	}
	return apiErr
}

// UploadResult is the outcome of an upload: either a job to track or a
// result delivered synchronously.
type UploadResult struct {
	JobID      string
	AnalysisID string
	Result     *report.AnalysisResult
}

// Async reports whether the backend queued a job.
func (u *UploadResult) Async() bool { return u.JobID != "" }

// Upload posts a telemetry capture as multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, capture io.Reader) (*UploadResult, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".json") {
		return nil, ErrNotJSON
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, capture); err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var body struct {
		JobID string                 `json:"job_id"`
		ID    string                 `json:"id"`
		Data  *report.AnalysisResult `json:"data"`
	}
	if err := c.do(req, &body); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message == "" {
			apiErr.Message = "Upload failed"
		}
		return nil, err
	}

	out := &UploadResult{JobID: body.JobID, AnalysisID: body.ID, Result: body.Data}
	if !out.Async() && out.Result == nil {
		return nil, fmt.Errorf("upload response carries neither job_id nor data")
	}
	logf("uploaded %s (job=%q analysis=%q)", filepath.Base(filename), out.JobID, out.AnalysisID)
	return out, nil
}

// Job statuses reported by the backend.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobStatus is one progress message, from the stream or from polling.
type JobStatus struct {
	Progress   float64                `json:"progress"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	Data       *report.AnalysisResult `json:"data,omitempty"`
	AnalysisID string                 `json:"analysis_id,omitempty"`
}

// JobStatus polls the job's status endpoint once.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/job/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	var st JobStatus
	if err := c.do(req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Result fetches a stored analysis result.
func (c *Client) Result(ctx context.Context, analysisID string) (*report.AnalysisResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/result/"+url.PathEscape(analysisID), nil)
	if err != nil {
		return nil, err
	}
	var res report.AnalysisResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TelemetryPage fetches one page of raw telemetry. The imei parameter is
// omitted when device is "all" or empty.
func (c *Client) TelemetryPage(ctx context.Context, analysisID string, page, perPage int, device string) (*report.TelemetryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if device != "" && device != report.AllDevices {
		q.Set("imei", device)
	}
	path := "/api/result/" + url.PathEscape(analysisID) + "/telemetry?" + q.Encode()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var p report.TelemetryPage
	if err := c.do(req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
