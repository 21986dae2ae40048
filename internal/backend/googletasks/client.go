// Package googletasks implements service.RemoteTaskStore using the Google Tasks API.
//
// Google task IDs are opaque strings; they are mapped to stable int64 IDs
// through a RefStore. Priority and workflow status have no Google
// equivalent and stay local; only completion round-trips.
package googletasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"tasktree/internal/config"
	"tasktree/internal/service"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks per page.
	PageSize = 100

	// APITimeout is the timeout for API calls.
	APITimeout = 5 * time.Second

	statusCompleted   = "completed"
	statusNeedsAction = "needsAction"
)

// RefStore maps Google's string task IDs to local int64 IDs.
type RefStore interface {
	LocalID(ctx context.Context, remoteRef string) (int64, error)
	RemoteRef(ctx context.Context, id int64) (string, error)
}

// Client implements service.RemoteTaskStore using Google Tasks API.
type Client struct {
	svc     *tasks.Service
	listID  string
	refs    RefStore
	timeout time.Duration
}

var (
	_ service.RemoteTaskStore  = (*Client)(nil)
	_ service.LocalFieldKeeper = (*Client)(nil)
)

// New creates a new Google Tasks client for the configured task list.
// Requires oauth_client.json and token.json to exist.
func New(ctx context.Context, cfg *config.Config, refs RefStore) (*Client, error) {
	oauthConfig, err := OAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	token, err := LoadToken(cfg.TokenPath())
	if err != nil {
		return nil, err
	}

	// Token source refreshes automatically.
	httpClient := oauthConfig.Client(ctx, token)

	c, err := NewWithHTTPClient(ctx, httpClient, cfg.Settings.TaskList, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	if cfg.Settings.RequestTimeout > 0 {
		c.timeout = cfg.Settings.RequestTimeout
	}
	return c, nil
}

// NewWithHTTPClient creates a client with a custom HTTP client.
// Extra options (e.g. option.WithEndpoint) are passed to the API service.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, listID string, refs RefStore, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if listID == "" {
		listID = DefaultListID
	}
	return &Client{svc: svc, listID: listID, refs: refs, timeout: APITimeout}, nil
}

// List returns every task in the list, completed ones included.
func (c *Client) List(ctx context.Context) ([]service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var items []*tasks.Task
	err := c.svc.Tasks.List(c.listID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			items = append(items, resp.Items...)
			return nil
		})
	if err != nil {
		return nil, wrapError("list", err)
	}

	result := make([]service.Task, 0, len(items))
	for _, item := range items {
		t, err := c.fromAPI(ctx, item)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// Create inserts a task, under its parent if it has one.
func (c *Client) Create(ctx context.Context, payload service.NewTask) (service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := &tasks.Task{Title: payload.Title, Notes: payload.Description}
	if payload.IsCompleted || payload.Status == service.StatusDone {
		body.Status = statusCompleted
	}
	if payload.Deadline != nil {
		body.Due = payload.Deadline.UTC().Format(time.RFC3339)
	}

	call := c.svc.Tasks.Insert(c.listID, body)
	if payload.ParentID != nil {
		parentRef, err := c.ref(ctx, "create", *payload.ParentID)
		if err != nil {
			return service.Task{}, err
		}
		call = call.Parent(parentRef)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError("create", err)
	}
	t, err := c.fromAPI(ctx, created)
	if err != nil {
		return service.Task{}, err
	}
	t.Priority = payload.Priority
	return t, nil
}

// Update patches the task and moves it when its parent changes.
func (c *Client) Update(ctx context.Context, id int64, patch service.TaskPatch) (service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ref, err := c.ref(ctx, "update", id)
	if err != nil {
		return service.Task{}, err
	}

	body := &tasks.Task{}
	if patch.Title != nil {
		body.Title = *patch.Title
	}
	if patch.Description != nil {
		body.Notes = *patch.Description
		body.ForceSendFields = append(body.ForceSendFields, "Notes")
	}
	switch {
	case patch.IsCompleted != nil && *patch.IsCompleted:
		body.Status = statusCompleted
	case patch.Status != nil && *patch.Status == service.StatusDone:
		body.Status = statusCompleted
	case patch.IsCompleted != nil:
		body.Status = statusNeedsAction
	}
	if patch.Deadline != nil {
		body.Due = patch.Deadline.UTC().Format(time.RFC3339)
	}

	updated, err := c.svc.Tasks.Patch(c.listID, ref, body).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError("update", err)
	}

	if parentRef, move, err := c.wantParent(ctx, patch); err != nil {
		return service.Task{}, err
	} else if move && parentRef != updated.Parent {
		call := c.svc.Tasks.Move(c.listID, ref)
		if parentRef != "" {
			call = call.Parent(parentRef)
		}
		if updated, err = call.Context(ctx).Do(); err != nil {
			return service.Task{}, wrapError("move", err)
		}
	}

	t, err := c.fromAPI(ctx, updated)
	if err != nil {
		return service.Task{}, err
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	return t, nil
}

// wantParent returns the parent ref the patch asks for and whether it asks
// at all. An empty ref means the top level.
func (c *Client) wantParent(ctx context.Context, patch service.TaskPatch) (string, bool, error) {
	if patch.ClearParent {
		return "", true, nil
	}
	if patch.ParentID == nil {
		return "", false, nil
	}
	ref, err := c.ref(ctx, "move", *patch.ParentID)
	return ref, true, err
}

// Delete removes a task. Google removes its subtasks with it.
func (c *Client) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ref, err := c.ref(ctx, "delete", id)
	if err != nil {
		return err
	}
	if err := c.svc.Tasks.Delete(c.listID, ref).Context(ctx).Do(); err != nil {
		return wrapError("delete", err)
	}
	return nil
}

// ref resolves a local ID. IDs that were never seen remotely are reported
// as a remote 404.
func (c *Client) ref(ctx context.Context, op string, id int64) (string, error) {
	ref, err := c.refs.RemoteRef(ctx, id)
	if errors.Is(err, service.ErrNotFound) {
		return "", &service.TransportError{Op: op, StatusCode: http.StatusNotFound, Err: fmt.Errorf("task %d: %w", id, service.ErrNotFound)}
	}
	return ref, err
}

func (c *Client) fromAPI(ctx context.Context, item *tasks.Task) (service.Task, error) {
	id, err := c.refs.LocalID(ctx, item.Id)
	if err != nil {
		return service.Task{}, err
	}

	t := service.Task{
		ID:          id,
		Title:       item.Title,
		Description: item.Notes,
		IsCompleted: item.Status == statusCompleted,
	}
	if t.IsCompleted {
		t.Status = service.StatusDone
	} else {
		t.Status = service.StatusNotStarted
	}
	if item.Parent != "" {
		parentID, err := c.refs.LocalID(ctx, item.Parent)
		if err != nil {
			return service.Task{}, err
		}
		t.ParentID = &parentID
	}
	if pos, err := strconv.ParseInt(item.Position, 10, 64); err == nil {
		t.Position = pos
	}
	if due, err := time.Parse(time.RFC3339, item.Due); err == nil {
		t.Deadline = &due
	}
	if updated, err := time.Parse(time.RFC3339, item.Updated); err == nil {
		t.UpdatedAt = updated
		t.CreatedAt = updated
	}
	return t, nil
}

// MergeLocal keeps the priority and workflow status of the cached copy.
// Completion comes from Google: a task completed there is done, and a task
// reopened there drops a cached done status.
func (c *Client) MergeLocal(remote, cached service.Task) service.Task {
	remote.Priority = cached.Priority
	switch {
	case remote.IsCompleted:
		remote.Status = service.StatusDone
	case cached.Status != "" && cached.Status != service.StatusDone:
		remote.Status = cached.Status
	default:
		remote.Status = service.StatusNotStarted
	}
	return remote
}

// wrapError classifies API errors as transport errors with user-friendly messages.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &service.TransportError{Op: op, Err: errors.New("request timed out")}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		te := &service.TransportError{Op: op, StatusCode: apiErr.Code, Err: err}
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			te.Err = errors.New("token expired or revoked (run: tasktree login)")
		case http.StatusNotFound:
			te.Err = fmt.Errorf("%s: %w", apiErr.Message, service.ErrNotFound)
		}
		return te
	}

	return &service.TransportError{Op: op, Err: err}
}
