package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// maxEventSize bounds one server-sent event; completed messages may carry
// the full result inline.
const maxEventSize = 64 << 20

// ErrMalformedEvent is returned for a stream event whose data is not a job
// status object.
var ErrMalformedEvent = errors.New("backend: malformed progress event")

// ProgressStream reads job progress messages from a server-sent event
// stream. It is not safe for concurrent use.
type ProgressStream struct {
	body      io.ReadCloser
	sc        *bufio.Scanner
	closeOnce sync.Once
}

// StreamProgress opens the progress stream of a job. The request timeout is
// not applied; the stream lives until ctx ends or Close is called.
func (c *Client) StreamProgress(ctx context.Context, jobID string) (*ProgressStream, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/job/"+url.PathEscape(jobID)+"/progress", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open progress stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return NewProgressStream(resp.Body), nil
}

// NewProgressStream reads events from body, which is closed by Close.
func NewProgressStream(body io.ReadCloser) *ProgressStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	return &ProgressStream{body: body, sc: sc}
}

// Next blocks for the next message. It returns io.EOF when the server ends
// the stream. Comment lines and fields other than data are ignored, and an
// event cut off by the end of the stream is dropped.
func (s *ProgressStream) Next() (*JobStatus, error) {
	var data []string
	for s.sc.Scan() {
		line := s.sc.Text()
		if line == "" {
			if len(data) == 0 {
				continue
			}
			var st JobStatus
			if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &st); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
			}
			return &st, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field == "data" {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	if err := s.sc.Err(); err != nil {
		return nil, fmt.Errorf("read progress stream: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying connection. It is safe to call more than
// once.
func (s *ProgressStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
