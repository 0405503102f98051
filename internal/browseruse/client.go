package browseruse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://api.browser-use.com/api/v2"
	defaultTimeout = 30 * time.Second
)

// Terminal task statuses reported by the Browser Use Cloud API. Anything else
// means the task is still queued or running.
const (
	StatusFinished = "finished"
	StatusStopped  = "stopped"
	StatusFailed   = "failed"
)

// ErrMissingAPIKey is returned when the client has no API key to authenticate with.
var ErrMissingAPIKey = errors.New("browseruse: missing API key")

// CreateTaskRequest is the payload sent to create a cloud task.
type CreateTaskRequest struct {
	Task string `json:"task"`
	LLM  string `json:"llm,omitempty"`
}

// TaskHandle identifies a submitted task.
type TaskHandle struct {
	ID string `json:"id"`
}

// TaskResult is the subset of the task view we care about. Output is nil when
// the agent produced no final output.
type TaskResult struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Output *string `json:"output"`
}

// Terminal reports whether the task reached a final state.
func (r TaskResult) Terminal() bool {
	switch r.Status {
	case StatusFinished, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// TaskRunner captures the ability to run an agent task to completion.
type TaskRunner interface {
	Submit(ctx context.Context, prompt, model string) (TaskHandle, error)
	Await(ctx context.Context, handle TaskHandle) (TaskResult, error)
}

// Client is a thin wrapper around the Browser Use Cloud REST API.
type Client struct {
	apiKey       string
	pollInterval time.Duration
	http         *resty.Client
}

// NewClient constructs a client with sane defaults.
func NewClient(apiKey string, opts ...func(*Client)) *Client {
	c := &Client{
		apiKey:       apiKey,
		pollInterval: 2 * time.Second,
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(defaultTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Browser-Use-API-Key", apiKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the transport used by resty. A client without its
// own timeout gets the default one.
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		if hc == nil {
			return
		}
		c.http = resty.NewWithClient(hc).
			SetBaseURL(c.http.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Browser-Use-API-Key", c.apiKey)
		if hc.Timeout == 0 {
			c.http.SetTimeout(defaultTimeout)
		}
	}
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(url string) func(*Client) {
	return func(c *Client) {
		if url != "" {
			c.http.SetBaseURL(strings.TrimRight(url, "/"))
		}
	}
}

// WithPollInterval sets how often Await checks the task status.
func WithPollInterval(d time.Duration) func(*Client) {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// Submit creates a new agent task.
func (c *Client) Submit(ctx context.Context, prompt, model string) (TaskHandle, error) {
	if c.apiKey == "" {
		return TaskHandle{}, ErrMissingAPIKey
	}

	var handle TaskHandle
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(CreateTaskRequest{Task: prompt, LLM: model}).
		SetResult(&handle).
		Post("/tasks")
	if err != nil {
		return TaskHandle{}, fmt.Errorf("browseruse: create task: %w", err)
	}
	if resp.IsError() {
		return TaskHandle{}, apiError(resp)
	}
	if handle.ID == "" {
		return TaskHandle{}, fmt.Errorf("browseruse: create task: response missing id")
	}

	return handle, nil
}

// Get fetches the current view of a task.
func (c *Client) Get(ctx context.Context, id string) (TaskResult, error) {
	if c.apiKey == "" {
		return TaskResult{}, ErrMissingAPIKey
	}

	var result TaskResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&result).
		Get("/tasks/{id}")
	if err != nil {
		return TaskResult{}, fmt.Errorf("browseruse: get task %s: %w", id, err)
	}
	if resp.IsError() {
		return TaskResult{}, apiError(resp)
	}

	return result, nil
}

// Await polls the task until it reaches a terminal status or ctx is done.
func (c *Client) Await(ctx context.Context, handle TaskHandle) (TaskResult, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.Get(ctx, handle.ID)
		if err != nil {
			return TaskResult{}, err
		}
		if result.Terminal() {
			if result.ID == "" {
				result.ID = handle.ID
			}
			return result, nil
		}

		select {
		case <-ctx.Done():
			return TaskResult{}, fmt.Errorf("browseruse: await task %s: %w", handle.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func apiError(resp *resty.Response) error {
	body := resp.String()
	if len(body) > 4096 {
		body = body[:4096]
	}
	return fmt.Errorf("browseruse: api error %d: %s", resp.StatusCode(), body)
}
