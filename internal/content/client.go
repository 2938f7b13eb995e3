package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 2
	maxErrorBody      = 1024
)

// Client is the HTTP client for the content service API.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithMaxRetries sets how many times a retryable failure is repeated.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff overrides the delay between retries.
func WithBackoff(fn func(attempt int) time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = fn
	}
}

// NewClient creates a content API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		backoff:    Backoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchTopLevelLessons calls GET /courses/{courseID}/lessons.
func (c *Client) FetchTopLevelLessons(ctx context.Context, courseID string) ([]lessontree.LessonSummary, error) {
	if courseID == "" {
		return nil, fmt.Errorf("course id is required")
	}
	body, err := c.get(ctx, "/courses/"+url.PathEscape(courseID)+"/lessons")
	if err != nil {
		return nil, fmt.Errorf("fetch lessons for course %s: %w", courseID, err)
	}
	if err := ValidateLessonList(body); err != nil {
		return nil, fmt.Errorf("fetch lessons for course %s: %w", courseID, err)
	}

	var list lessonList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unmarshal lessons: %w", err)
	}
	return list.Lessons, nil
}

// FetchNodeDetail calls GET /nodes/{type}/{id}.
func (c *Client) FetchNodeDetail(ctx context.Context, id lessontree.NodeID, typ lessontree.NodeType) (lessontree.RawNodeDetail, error) {
	if !id.Valid() {
		return lessontree.RawNodeDetail{}, lessontree.ErrMalformedNode
	}
	path := "/nodes/" + url.PathEscape(string(typ)) + "/" + url.PathEscape(string(id))
	body, err := c.get(ctx, path)
	if err != nil {
		return lessontree.RawNodeDetail{}, fmt.Errorf("fetch %s %s: %w", typ, id, err)
	}
	if err := ValidateNodeDetail(body); err != nil {
		return lessontree.RawNodeDetail{}, fmt.Errorf("fetch %s %s: %w", typ, id, err)
	}

	var detail lessontree.RawNodeDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return lessontree.RawNodeDetail{}, fmt.Errorf("unmarshal node detail: %w", err)
	}
	return detail, nil
}

// HealthCheck calls GET /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.do(ctx, "/health"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// get performs a GET, retrying retryable failures.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}
		body, err := c.do(ctx, path)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
		slog.Warn("content request failed, retrying",
			"path", path,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
