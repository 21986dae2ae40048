// Package resthttp implements service.RemoteTaskStore against the
// hierarchical tasks REST API.
//
//	GET    {base}/hierarchical-tasks/        list
//	POST   {base}/hierarchical-tasks/        create
//	GET    {base}/hierarchical-tasks/{id}    read
//	PUT    {base}/hierarchical-tasks/{id}    replace
//	DELETE {base}/hierarchical-tasks/{id}    delete, cascades to children
package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tasktree/internal/service"
)

const (
	// APITimeout is the default timeout for one API call.
	APITimeout = 10 * time.Second

	tasksPath = "hierarchical-tasks/"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8000.
	BaseURL string
	// Token, when set, is sent as a bearer token.
	Token string
	// Timeout bounds each call. Zero means APITimeout.
	Timeout time.Duration
	// HTTPClient overrides the transport (for testing).
	HTTPClient *http.Client
}

// Client implements service.RemoteTaskStore over HTTP.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

var _ service.RemoteTaskStore = (*Client)(nil)

// New creates a REST client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api_url is not set")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid api_url %q: scheme must be http or https", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Token != "" {
		// oauth2 builds its transport on top of the client found in ctx.
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.Token,
			TokenType:   "Bearer",
		}))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = APITimeout
	}

	return &Client{base: base, http: httpClient, timeout: timeout}, nil
}

// List returns every task.
func (c *Client) List(ctx context.Context) ([]service.Task, error) {
	var out []wireTask
	if err := c.do(ctx, "list", http.MethodGet, tasksPath, nil, &out); err != nil {
		return nil, err
	}
	result := make([]service.Task, 0, len(out))
	for _, w := range out {
		result = append(result, w.task())
	}
	return result, nil
}

// Create stores a new task and returns it with its canonical ID.
func (c *Client) Create(ctx context.Context, payload service.NewTask) (service.Task, error) {
	var out wireTask
	if err := c.do(ctx, "create", http.MethodPost, tasksPath, bodyFromNew(payload), &out); err != nil {
		return service.Task{}, err
	}
	return out.task(), nil
}

// Update reads the task, merges patch and writes it back. The API only
// supports full replacement.
func (c *Client) Update(ctx context.Context, id int64, patch service.TaskPatch) (service.Task, error) {
	var current wireTask
	if err := c.do(ctx, "update", http.MethodGet, taskPath(id), nil, &current); err != nil {
		return service.Task{}, err
	}

	merged := patch.Apply(current.task())
	var out wireTask
	if err := c.do(ctx, "update", http.MethodPut, taskPath(id), bodyFromNew(service.NewTaskFrom(merged)), &out); err != nil {
		return service.Task{}, err
	}
	return out.task(), nil
}

// Delete removes a task and its descendants.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, "delete", http.MethodDelete, taskPath(id), nil, nil)
}

func taskPath(id int64) string {
	return tasksPath + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(&url.URL{Path: path}).String(), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &service.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &service.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errorFromBody(resp)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &service.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorFromBody extracts the API's {"detail": ...} message.
func errorFromBody(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := http.StatusText(resp.StatusCode)
	var detail struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail != nil {
		if s, ok := detail.Detail.(string); ok {
			msg = s
		} else if b, err := json.Marshal(detail.Detail); err == nil {
			msg = string(b)
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", msg, service.ErrNotFound)
	}
	return errors.New(msg)
}
