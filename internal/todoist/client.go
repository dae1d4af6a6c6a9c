// Package todoist is the task store adapter: thin create/update/exists/
// complete task operations plus get-or-create project/label resolution
// with run-scoped name→id caches.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	applog "canvasync/internal/log"
)

const (
	defaultRESTBase = "https://api.todoist.com/rest/v2"
	defaultSyncBase = "https://api.todoist.com/sync/v9"

	// descriptionLimit is the store's description field limit; longer
	// feed descriptions are truncated at this boundary.
	descriptionLimit = 16383
)

// OpError reports a failed remote operation. The reconciler decides
// per-call whether it is fatal or recoverable.
type OpError struct {
	Op     string
	Status int // HTTP status, 0 if the request never completed
	Err    error
}

func (e *OpError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("todoist %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("todoist %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// TaskSpec describes a task to create.
type TaskSpec struct {
	Title       string
	ProjectID   string
	Due         time.Time
	Description string
	Labels      []string
	Priority    int
}

// TaskPatch carries the fields to push on update; nil fields are left
// untouched remotely.
type TaskPatch struct {
	Title       *string
	Due         *time.Time
	Description *string
	Priority    *int
}

// Client talks to the Todoist REST API (projects, labels, tasks) and the
// Sync API (reminders). The name→id caches are run-scoped only: they are
// rebuilt from a fresh listing on first use and never persisted.
type Client struct {
	restBase string
	syncBase string
	token    string
	client   *http.Client

	projects map[string]string // name → id
	labels   map[string]string // sanitized name → id
}

// NewClient creates an adapter using the given credential. timeout bounds
// every request.
func NewClient(token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		restBase: defaultRESTBase,
		syncBase: defaultSyncBase,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// SetEndpoints overrides the API base URLs; used by tests.
func (c *Client) SetEndpoints(restBase, syncBase string) {
	c.restBase = restBase
	c.syncBase = syncBase
}

type namedItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// listPage is the cursor-paginated listing shape. Older endpoints return a
// bare array instead; listNamed handles both.
type listPage struct {
	Results    []namedItem `json:"results"`
	NextCursor string      `json:"next_cursor"`
}

// listNamed walks a listing endpoint to completion and returns the
// flattened items. The endpoint may answer with a plain JSON array or with
// cursor pages; either way the caller sees one finite sequence.
func (c *Client) listNamed(ctx context.Context, path, op string) ([]namedItem, error) {
	items := make([]namedItem, 0)
	cursor := ""

	for {
		endpoint := c.restBase + path
		if cursor != "" {
			endpoint += "?cursor=" + url.QueryEscape(cursor)
		}

		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw, op); err != nil {
			return nil, err
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var page []namedItem
			if err := json.Unmarshal(trimmed, &page); err != nil {
				return nil, &OpError{Op: op, Err: err}
			}
			return append(items, page...), nil
		}

		var page listPage
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, &OpError{Op: op, Err: err}
		}
		items = append(items, page.Results...)
		if page.NextCursor == "" {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

// ResolveProject returns the id of the named project, creating it if it
// does not exist. The listing is fetched once per run and cached.
func (c *Client) ResolveProject(ctx context.Context, name string) (string, error) {
	if c.projects == nil {
		items, err := c.listNamed(ctx, "/projects", "list projects")
		if err != nil {
			return "", err
		}
		c.projects = make(map[string]string, len(items))
		for _, it := range items {
			c.projects[it.Name] = it.ID
		}
	}

	if id, ok := c.projects[name]; ok {
		applog.Info("using existing project", "name", name)
		return id, nil
	}

	applog.Info("creating project", "name", name)
	var created namedItem
	body := map[string]any{"name": name}
	if err := c.do(ctx, http.MethodPost, c.restBase+"/projects", body, &created, "create project"); err != nil {
		return "", err
	}
	c.projects[name] = created.ID
	return created.ID, nil
}

// ResolveLabel returns a usable label reference for the given course name,
// creating the label if needed. It never fails: if the listing or creation
// call errors, the sanitized name is returned anyway so task creation can
// proceed with a best-effort label.
func (c *Client) ResolveLabel(ctx context.Context, name string) string {
	sanitized := SanitizeLabel(name)
	if sanitized == "" {
		return sanitized
	}
	if sanitized != name {
		// Distinct course names can sanitize to the same label; they share
		// it silently.
		applog.Debug("label name sanitized", "from", name, "to", sanitized)
	}

	if c.labels == nil {
		items, err := c.listNamed(ctx, "/labels", "list labels")
		if err != nil {
			applog.Error("could not list labels; using sanitized name", err, "label", sanitized)
			return sanitized
		}
		c.labels = make(map[string]string, len(items))
		for _, it := range items {
			c.labels[it.Name] = it.ID
		}
	}

	if _, ok := c.labels[sanitized]; ok {
		return sanitized
	}

	applog.Info("creating label", "name", sanitized)
	var created namedItem
	body := map[string]any{"name": sanitized}
	if err := c.do(ctx, http.MethodPost, c.restBase+"/labels", body, &created, "create label"); err != nil {
		applog.Error("could not create label; using sanitized name", err, "label", sanitized)
		return sanitized
	}
	c.labels[created.Name] = created.ID
	return created.Name
}

// CreateTask creates a task and returns its store-assigned id.
func (c *Client) CreateTask(ctx context.Context, spec TaskSpec) (string, error) {
	body := map[string]any{
		"content":     spec.Title,
		"project_id":  spec.ProjectID,
		"description": truncate(spec.Description, descriptionLimit),
		"due_string":  formatDue(spec.Due),
		"labels":      spec.Labels,
		"priority":    spec.Priority,
	}

	var created namedItem
	if err := c.do(ctx, http.MethodPost, c.restBase+"/tasks", body, &created, "create task"); err != nil {
		return "", err
	}
	applog.Info("created task", "title", spec.Title, "task_id", created.ID)
	return created.ID, nil
}

// UpdateTask pushes the non-nil patch fields to an existing task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch TaskPatch) error {
	body := map[string]any{}
	if patch.Title != nil {
		body["content"] = *patch.Title
	}
	if patch.Due != nil {
		body["due_string"] = formatDue(*patch.Due)
	}
	if patch.Description != nil {
		body["description"] = truncate(*patch.Description, descriptionLimit)
	}
	if patch.Priority != nil {
		body["priority"] = *patch.Priority
	}
	if len(body) == 0 {
		return nil
	}

	if err := c.do(ctx, http.MethodPost, c.restBase+"/tasks/"+id, body, nil, "update task"); err != nil {
		return err
	}
	applog.Info("updated task", "task_id", id)
	return nil
}

// TaskExists reports whether a task is still present (not deleted or
// completed).
func (c *Client) TaskExists(ctx context.Context, id string) bool {
	err := c.do(ctx, http.MethodGet, c.restBase+"/tasks/"+id, nil, nil, "get task")
	return err == nil
}

// CompleteTask closes a task. Best effort: failures are logged and
// reported as false, never returned.
func (c *Client) CompleteTask(ctx context.Context, id string) bool {
	if err := c.do(ctx, http.MethodPost, c.restBase+"/tasks/"+id+"/close", nil, nil, "complete task"); err != nil {
		applog.Error("could not complete task", err, "task_id", id)
		return false
	}
	applog.Info("completed task", "task_id", id)
	return true
}

// AddReminder schedules a reminder via the Sync API (the REST API does not
// support reminders). Best effort.
func (c *Client) AddReminder(ctx context.Context, taskID string, at time.Time) bool {
	cmd := map[string]any{
		"type":    "reminder_add",
		"temp_id": uuid.NewString(),
		"uuid":    uuid.NewString(),
		"args": map[string]any{
			"item_id": taskID,
			"due":     map[string]any{"date": at.UTC().Format("2006-01-02T15:04:05")},
		},
	}
	body := map[string]any{"commands": []any{cmd}}

	if err := c.do(ctx, http.MethodPost, c.syncBase+"/sync", body, nil, "add reminder"); err != nil {
		applog.Error("could not add reminder", err, "task_id", taskID)
		return false
	}
	applog.Info("added reminder", "task_id", taskID, "remind_at", at.UTC().Format(time.RFC3339))
	return true
}

// do performs one authenticated JSON request. Non-2xx responses become
// OpErrors carrying the status.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any, op string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &OpError{Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &OpError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &OpError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &OpError{Op: op, Status: resp.StatusCode, Err: errors.New(string(bytes.TrimSpace(msg)))}
	}

	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &OpError{Op: op, Err: err}
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &OpError{Op: op, Err: err}
		}
	}
	return nil
}

// formatDue renders a due timestamp the way the store's natural-language
// due parser expects.
func formatDue(t time.Time) string {
	return t.UTC().Format("2006-01-02 at 15:04")
}
