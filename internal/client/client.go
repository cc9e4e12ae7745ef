// Package client is a typed HTTP client for the board JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
)

// APIError is a non-2xx response. It unwraps to the matching errs sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return errs.ErrValidation
	case http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusConflict:
		return errs.ErrAlreadyExists
	case http.StatusTooManyRequests:
		return errs.ErrRateLimited
	}
	return nil
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	base string
	hc   *http.Client

	mu    sync.RWMutex
	token string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithToken preloads a bearer token, e.g. one restored from disk.
func WithToken(tok string) Option { return func(c *Client) { c.token = tok } }

// New returns a client for baseURL ("http://host:port").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{base: strings.TrimRight(baseURL, "/"), hc: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetToken replaces the bearer token; empty logs out.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// send executes req and checks the status; the caller closes the body on success.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(b, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(b))
	}
	return nil, &APIError{Status: resp.StatusCode, Message: body.Error}
}

// do sends in as JSON (when non-nil) and decodes the response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func idPath(prefix string, id int64, suffix string) string {
	return prefix + "/" + strconv.FormatInt(id, 10) + suffix
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changed struct {
	Changed int64 `json:"changed"`
}

// Register creates an account and returns its id.
func (c *Client) Register(ctx context.Context, username, password string) (int64, error) {
	var out struct {
		UserID int64 `json:"user_id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/auth/register", credentials{username, password}, &out)
	return out.UserID, err
}

// Login authenticates and keeps the issued token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", credentials{username, password}, &s); err != nil {
		return Session{}, err
	}
	c.SetToken(s.AccessToken)
	return s, nil
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Projects lists the caller's projects in board order.
func (c *Client) Projects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	err := c.do(ctx, http.MethodGet, "/v1/projects", nil, &out)
	return out, err
}

// CreateProject creates a project and returns it with its seeded columns.
func (c *Client) CreateProject(ctx context.Context, name string, description *string) (*model.Project, []model.Column, error) {
	in := struct {
		Name        string  `json:"name"`
		Description *string `json:"description,omitempty"`
	}{name, description}
	var out struct {
		model.Project
		Columns []model.Column `json:"columns"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/projects", in, &out); err != nil {
		return nil, nil, err
	}
	return &out.Project, out.Columns, nil
}

func (c *Client) UpdateProject(ctx context.Context, id int64, patch model.ProjectPatch) (*model.Project, error) {
	var p model.Project
	if err := c.do(ctx, http.MethodPatch, idPath("/v1/projects", id, ""), patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/v1/projects", id, ""), nil, nil)
}

// ReorderProjects persists the given order; it returns the rows changed.
func (c *Client) ReorderProjects(ctx context.Context, orderedIDs []int64) (int64, error) {
	in := struct {
		ProjectIDs []int64 `json:"project_ids"`
	}{orderedIDs}
	var out changed
	err := c.do(ctx, http.MethodPost, "/v1/projects/reorder", in, &out)
	return out.Changed, err
}

func (c *Client) Columns(ctx context.Context, projectID int64) ([]model.Column, error) {
	var out []model.Column
	err := c.do(ctx, http.MethodGet, idPath("/v1/projects", projectID, "/columns"), nil, &out)
	return out, err
}

// Tasks returns every task of every column in the project.
func (c *Client) Tasks(ctx context.Context, projectID int64) ([]model.Task, error) {
	var out []model.Task
	err := c.do(ctx, http.MethodGet, idPath("/v1/projects", projectID, "/tasks"), nil, &out)
	return out, err
}

func (c *Client) CreateColumn(ctx context.Context, projectID int64, title, color string) (*model.Column, error) {
	in := struct {
		ProjectID int64  `json:"project_id"`
		Title     string `json:"title"`
		Color     string `json:"color,omitempty"`
	}{projectID, title, color}
	var col model.Column
	if err := c.do(ctx, http.MethodPost, "/v1/columns", in, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

func (c *Client) UpdateColumn(ctx context.Context, id int64, patch model.ColumnPatch) (*model.Column, error) {
	var col model.Column
	if err := c.do(ctx, http.MethodPatch, idPath("/v1/columns", id, ""), patch, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

func (c *Client) DeleteColumn(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/v1/columns", id, ""), nil, nil)
}

func (c *Client) ReorderColumns(ctx context.Context, entries []model.OrderEntry) (int64, error) {
	in := struct {
		Columns []model.OrderEntry `json:"columns"`
	}{entries}
	var out changed
	err := c.do(ctx, http.MethodPost, "/v1/columns/reorder", in, &out)
	return out.Changed, err
}

// CreateTask appends a task to t.ColumnID. Zero priority means the server default.
func (c *Client) CreateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	in := struct {
		ColumnID    int64  `json:"column_id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
		Priority    int    `json:"priority,omitempty"`
	}{t.ColumnID, t.Title, t.Description, t.Priority}
	var out model.Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, patch model.TaskPatch) (*model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPatch, idPath("/v1/tasks", id, ""), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/v1/tasks", id, ""), nil, nil)
}

func (c *Client) ReorderTasks(ctx context.Context, entries []model.OrderEntry) (int64, error) {
	in := struct {
		Tasks []model.OrderEntry `json:"tasks"`
	}{entries}
	var out changed
	err := c.do(ctx, http.MethodPost, "/v1/tasks/reorder", in, &out)
	return out.Changed, err
}

func (c *Client) Attachments(ctx context.Context, taskID int64) ([]model.Attachment, error) {
	var out []model.Attachment
	err := c.do(ctx, http.MethodGet, idPath("/v1/tasks", taskID, "/attachments"), nil, &out)
	return out, err
}

// UploadAttachment streams r as the multipart "file" field. The part type is
// guessed from the file extension.
func (c *Client) UploadAttachment(ctx context.Context, taskID int64, fileName string, r io.Reader) (*model.Attachment, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name": "file", "filename": filepath.Base(fileName),
		}))
		ct := mime.TypeByExtension(filepath.Ext(fileName))
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, idPath("/v1/tasks", taskID, "/attachments"), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.send(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	defer resp.Body.Close()
	var a model.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return &a, nil
}

// DownloadAttachment copies the stored bytes to w and returns the original file name.
func (c *Client) DownloadAttachment(ctx context.Context, id int64, w io.Writer) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, idPath("/v1/attachments", id, ""), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var name string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return name, err
	}
	return name, nil
}

func (c *Client) DeleteAttachment(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/v1/attachments", id, ""), nil, nil)
}
