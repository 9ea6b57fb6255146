package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// Error codes returned by the API
const (
	CodeValidation      = "validation_error"
	CodeInvalidValue    = "invalid_value"
	CodeNotFound        = "not_found"
	CodeTaskNotFound    = "task_not_found"
	CodeTemplateMissing = "template_not_found"
	CodeLocked          = "checklist_locked"
	CodeConflict        = "conflict"
	CodeUnauthorized    = "unauthorized"
)

// APIError is returned for every failed API call
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// Client is a Go SDK for checklist-engine API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Admin calls need it to keep a
// cookie jar.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new checklist-engine client
func NewClient(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListOptions contains options for listing checklists
type ListOptions struct {
	Search string
	Status models.ChecklistStatus
	Limit  int
	Offset int
}

// Login signs in and keeps the session cookie for later admin calls
func (c *Client) Login(ctx context.Context, username, password string) (*models.AdminUser, error) {
	var admin models.AdminUser
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
		Username: username,
		Password: password,
	}, &admin)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// Logout ends the admin session
func (c *Client) Logout(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// Me returns the signed-in admin
func (c *Client) Me(ctx context.Context) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/me", nil, &admin); err != nil {
		return nil, err
	}
	return &admin, nil
}

// ListTemplates retrieves all templates
func (c *Client) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	var result struct {
		Templates []*models.Template `json:"templates"`
		Total     int                `json:"total"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/templates", nil, &result); err != nil {
		return nil, err
	}
	return result.Templates, nil
}

// CreateTemplate creates a new template
func (c *Client) CreateTemplate(ctx context.Context, req models.TemplateRequest) (*models.Template, error) {
	var tmpl models.Template
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/templates", req, &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// GetTemplate retrieves a template by ID
func (c *Client) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var tmpl models.Template
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/templates/"+url.PathEscape(id), nil, &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// UpdateTemplate replaces a template
func (c *Client) UpdateTemplate(ctx context.Context, id string, req models.TemplateRequest) (*models.Template, error) {
	var tmpl models.Template
	if err := c.doRequest(ctx, http.MethodPut, "/api/v1/templates/"+url.PathEscape(id), req, &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// DeleteTemplate removes a template
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/v1/templates/"+url.PathEscape(id), nil, nil)
}

// CreateChecklist instantiates a template and returns the checklist with
// its public link
func (c *Client) CreateChecklist(ctx context.Context, req models.CreateChecklistRequest) (*models.ChecklistResponse, error) {
	var result models.ChecklistResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/checklists", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetChecklist retrieves a checklist by ID
func (c *Client) GetChecklist(ctx context.Context, id string) (*models.ChecklistResponse, error) {
	var result models.ChecklistResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/checklists/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListChecklists retrieves one page of checklists, newest first, with the
// number of matches across all pages
func (c *Client) ListChecklists(ctx context.Context, opts ListOptions) (*models.ChecklistList, error) {
	q := url.Values{}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/checklists"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list models.ChecklistList
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Stats returns the dashboard counters
func (c *Client) Stats(ctx context.Context) (*models.ChecklistStats, error) {
	var stats models.ChecklistStats
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/checklists/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// DeleteChecklist removes a checklist
func (c *Client) DeleteChecklist(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/v1/checklists/"+url.PathEscape(id), nil, nil)
}

// GetPublicChecklist resolves a public link
func (c *Client) GetPublicChecklist(ctx context.Context, token string) (*models.ChecklistView, error) {
	var view models.ChecklistView
	if err := c.doRequest(ctx, http.MethodGet, "/c/"+url.PathEscape(token), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SetTaskValue stores one answer through a public link. A null value
// clears the answer.
func (c *Client) SetTaskValue(ctx context.Context, token, taskID string, value models.TaskValue) (*models.ChecklistView, error) {
	var view models.ChecklistView
	path := "/c/" + url.PathEscape(token) + "/tasks/" + url.PathEscape(taskID)
	if err := c.doRequest(ctx, http.MethodPut, path, models.SetTaskValueRequest{Value: value}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
}

// envelope is the response wrapper used by every endpoint
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

// doRequest performs an HTTP request and decodes the data field into out
func (c *Client) doRequest(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{
				StatusCode: resp.StatusCode,
				Code:       "http_error",
				Message:    strings.TrimSpace(string(respBody)),
			}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !env.Success || resp.StatusCode >= 400 {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "http_error", Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
