// Package suggest calls the /suggestions endpoint on behalf of the worker.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meetsync/internal/aggregate"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
)

const DefaultTimeout = 15 * time.Second

// StatusError is a non-2xx reply from the suggestion endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("suggestion request failed: status=%d body=%s", e.Status, e.Body)
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("suggestion base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("suggestion base url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Process implements worker.Processor.
func (c *Client) Process(ctx context.Context, job queue.Job) (aggregate.Suggestion, error) {
	q := url.Values{}
	q.Set("userId1", job.UserID1)
	q.Set("userId2", job.UserID2)
	if job.Preference != "" {
		q.Set("preference", job.Preference)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/suggestions?"+q.Encode(), nil)
	if err != nil {
		return aggregate.Suggestion{}, fmt.Errorf("build request: %w", err)
	}
	caseID := job.CaseID
	if caseID == "" {
		caseID = logging.CaseIDFromContext(ctx)
	}
	if caseID != "" {
		req.Header.Set(logging.CaseHeader, caseID)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return aggregate.Suggestion{}, fmt.Errorf("suggestion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return aggregate.Suggestion{}, fmt.Errorf("read suggestion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return aggregate.Suggestion{}, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	var out aggregate.Suggestion
	if err := json.Unmarshal(body, &out); err != nil {
		return aggregate.Suggestion{}, fmt.Errorf("decode suggestion: %w", err)
	}
	return out, nil
}
