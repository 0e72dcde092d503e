// Package apiclient is a typed HTTP client for the porter server REST API.
// The realtime event stream tells the runtime that something changed; this
// client is how cached queries are refetched afterwards.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/shnupta/porter/errors"
	"github.com/shnupta/porter/event"
	"github.com/shnupta/porter/pkg/retry"
)

// DefaultBaseURL is the local development server.
const DefaultBaseURL = "http://127.0.0.1:3100"

// Client talks to the porter server REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     Logger
	retryCfg   retry.Config
}

// NewClient creates a client for the given base URL. An empty base URL
// selects the local development default.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.WrapInvalid(err, "Client", "NewClient", "parse base URL")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		logger:     &defaultLogger{},
		retryCfg:   errors.DefaultRetryConfig().ToRetryConfig(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	return c, nil
}

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("server returned %s", e.Status)
}

// Is lets callers match sentinel errors without inspecting status codes.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case errors.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case errors.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case errors.ErrRequestFailed:
		return true
	default:
		return false
	}
}

// do executes a single request and decodes the response body into out when
// out is non-nil. Non-2xx responses become an HTTPError; client errors
// other than 429 are marked non-retryable.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return retry.NonRetryable(errors.WrapInvalid(err, "Client", "do", "encode request body"))
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return retry.NonRetryable(errors.WrapInvalid(err, "Client", "do", "build request"))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debugf("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "Client", "do", "execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return httpErr
		}
		return retry.NonRetryable(httpErr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.NonRetryable(errors.WrapInvalid(err, "Client", "do", "decode response body"))
	}
	return nil
}

// doRetry wraps do with backoff for requests that are safe to repeat.
func (c *Client) doRetry(ctx context.Context, method, path string, body, out any) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		return c.do(ctx, method, path, body, out)
	})
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.doRetry(ctx, http.MethodGet, "/api/health", nil, nil)
}

// Status fetches the server status summary.
func (c *Client) Status(ctx context.Context) (*event.ServerStatus, error) {
	var status event.ServerStatus
	if err := c.doRetry(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListTasks fetches all tasks.
func (c *Client) ListTasks(ctx context.Context) ([]event.Task, error) {
	var tasks []event.Task
	if err := c.doRetry(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches one task by id.
func (c *Client) GetTask(ctx context.Context, id string) (*event.Task, error) {
	var task event.Task
	if err := c.doRetry(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a task. Creation is not retried so a flaky network
// cannot produce duplicates.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*event.Task, error) {
	if req.Title == "" {
		return nil, errors.WrapInvalid(errors.ErrRequestFailed, "Client", "CreateTask", "validate title")
	}
	var task event.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, id string, req UpdateTaskRequest) (*event.Task, error) {
	var task event.Task
	if err := c.doRetry(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id), req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask deletes a task by id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.doRetry(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// ListSessions fetches all agent sessions.
func (c *Client) ListSessions(ctx context.Context) ([]event.AgentSession, error) {
	var sessions []event.AgentSession
	if err := c.doRetry(ctx, http.MethodGet, "/api/agents", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches one agent session by id.
func (c *Client) GetSession(ctx context.Context, id string) (*event.AgentSession, error) {
	var session event.AgentSession
	if err := c.doRetry(ctx, http.MethodGet, "/api/agents/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, sessionError(err, id)
	}
	return &session, nil
}

// sessionError refines HTTP failures on session routes into session-level
// sentinels: 404 means the session does not exist, 409 means it is no longer
// accepting input.
func sessionError(err error, id string) error {
	var httpErr *HTTPError
	if !stderrors.As(err, &httpErr) {
		return err
	}
	switch httpErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("session %q: %w: %w", id, errors.ErrSessionNotFound, err)
	case http.StatusConflict:
		return fmt.Errorf("session %q: %w: %w", id, errors.ErrSessionInactive, err)
	default:
		return err
	}
}

// StartSession starts a new agent session. Not retried.
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (*event.AgentSession, error) {
	if req.Prompt == "" {
		return nil, errors.WrapInvalid(errors.ErrRequestFailed, "Client", "StartSession", "validate prompt")
	}
	var session event.AgentSession
	if err := c.do(ctx, http.MethodPost, "/api/agents", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetMessages fetches the durable message history of a session.
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]event.AgentMessage, error) {
	var messages []event.AgentMessage
	path := "/api/agents/" + url.PathEscape(sessionID) + "/messages"
	if err := c.doRetry(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, sessionError(err, sessionID)
	}
	return messages, nil
}

// SendMessage forwards a user message to a running session. Not retried.
func (c *Client) SendMessage(ctx context.Context, sessionID, content string) error {
	if content == "" {
		return errors.WrapInvalid(errors.ErrRequestFailed, "Client", "SendMessage", "validate content")
	}
	path := "/api/agents/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, SendMessageRequest{Content: content}, nil); err != nil {
		return sessionError(err, sessionID)
	}
	return nil
}
