package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// --- Remote Types ---

// Task is the remote task record, owned by the storage API.
type Task struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"` // RFC3339
	DueDate     string `json:"due_date,omitempty"`
	Completed   bool   `json:"completed"`
	Category    []int  `json:"category"`
	OwnerID     int64  `json:"owner_tg_id"`
}

type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TaskDraft carries the fields collected by the create-task flow.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    []int  `json:"category"`
	OwnerID     int64  `json:"owner_tg_id"`
	DueDate     string `json:"due_date,omitempty"` // ISO date
}

// --- Error Taxonomy ---

var (
	// ErrNotFound: the referenced task or category no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: the record exists but belongs to someone else.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError carries per-field messages from a rejected write.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// TransportError marks a transient failure (network error, timeout, or an
// unexpected status) as distinct from definitive outcomes, so callers can
// decide to retry safely.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: storage unreachable: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

func isTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// --- Gateway ---

// Gateway is a thin client over the remote task/category CRUD API.
// It performs no retries: retry policy belongs to the caller.
type Gateway struct {
	baseURL string
	client  *http.Client
}

func newGateway(cfg APIConfig) *Gateway {
	return &Gateway{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.timeoutOrDefault()},
	}
}

// ListTasks returns all tasks owned by the user, completed or not.
func (g *Gateway) ListTasks(ctx context.Context, ownerID int64) ([]Task, error) {
	var tasks []Task
	url := fmt.Sprintf("%stasks/?user=%d", g.baseURL, ownerID)
	if err := g.getJSON(ctx, "list tasks", url, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task by id, scoped to the owner.
func (g *Gateway) GetTask(ctx context.Context, id int, ownerID int64) (*Task, error) {
	var task Task
	url := fmt.Sprintf("%stasks/%d/?user_id=%d", g.baseURL, id, ownerID)
	if err := g.getJSON(ctx, "get task", url, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask posts a new task. The description field is always present in the
// payload, so a skipped description records as an empty string.
func (g *Gateway) CreateTask(ctx context.Context, draft TaskDraft) (*Task, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("marshal task draft: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"tasks/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "create task", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var created Task
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return nil, &TransportError{Op: "create task", Err: fmt.Errorf("decode response: %w", err)}
		}
		return &created, nil
	}
	return nil, statusError("create task", resp)
}

// CompleteTask marks a task completed.
func (g *Gateway) CompleteTask(ctx context.Context, id int, ownerID int64) error {
	body := []byte(`{"completed":true}`)
	url := fmt.Sprintf("%stasks/%d/", g.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("complete task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Op: "complete task", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return statusError("complete task", resp)
}

// DeleteTask deletes a task by id. A 404 maps to ErrNotFound; the dialog
// layer treats that as success (idempotent delete).
func (g *Gateway) DeleteTask(ctx context.Context, id int) error {
	url := fmt.Sprintf("%stasks/%d/", g.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("delete task request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Op: "delete task", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return statusError("delete task", resp)
}

// ListCategories returns the user's categories.
func (g *Gateway) ListCategories(ctx context.Context, ownerID int64) ([]Category, error) {
	var cats []Category
	url := fmt.Sprintf("%scategories/?user=%d", g.baseURL, ownerID)
	if err := g.getJSON(ctx, "list categories", url, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// --- Helpers ---

func (g *Gateway) getJSON(ctx context.Context, op, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError maps a non-success HTTP response to the error taxonomy.
func statusError(op string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	case http.StatusBadRequest:
		return parseValidation(resp.Body)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{Op: op, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
}

// parseValidation decodes a DRF-style 400 body ({"field": ["msg", ...]}).
func parseValidation(body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	fields := make(map[string][]string)
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		for field, v := range decoded {
			switch msgs := v.(type) {
			case []any:
				for _, m := range msgs {
					fields[field] = append(fields[field], fmt.Sprintf("%v", m))
				}
			default:
				fields[field] = append(fields[field], fmt.Sprintf("%v", v))
			}
		}
	}
	return &ValidationError{Fields: fields}
}
