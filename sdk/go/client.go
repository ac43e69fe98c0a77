package partnertracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal partnertrack HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Partner struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type Assignment struct {
	PartnerID   string     `json:"partner_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
	Band      string `json:"band"`
	Label     string `json:"label"`
}

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Category    string       `json:"category"`
	Deadline    string       `json:"deadline"`
	Assignments []Assignment `json:"assignments"`
	CreatedAt   time.Time    `json:"created_at"`
	Archived    bool         `json:"archived"`
	Progress    Progress     `json:"progress"`
}

// NewTask is the payload for CreateTask. Deadline is YYYY-MM-DD.
type NewTask struct {
	Title      string   `json:"title"`
	Category   string   `json:"category,omitempty"`
	Deadline   string   `json:"deadline"`
	PartnerIDs []string `json:"partner_ids"`
}

type Recurring struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	TriggerMonth int    `json:"trigger_month"`
	Description  string `json:"description,omitempty"`
}

type Draft struct {
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Deadline   string   `json:"deadline"`
	PartnerIDs []string `json:"partner_ids"`
}

type UrgentTask struct {
	Task     Task `json:"task"`
	DaysLeft int  `json:"days_left"`
}

type Dashboard struct {
	ActiveCount  int          `json:"active_count"`
	UrgentCount  int          `json:"urgent_count"`
	PartnerCount int          `json:"partner_count"`
	Urgent       []UrgentTask `json:"urgent"`
	Recent       []Task       `json:"recent"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Partners lists partners ordered by code.
func (c *Client) Partners(ctx context.Context) ([]Partner, error) {
	var resp []Partner
	err := c.do(ctx, http.MethodGet, "partners", nil, &resp)
	return resp, err
}

// CreatePartner registers a partner office.
func (c *Client) CreatePartner(ctx context.Context, code, name string) (Partner, error) {
	var resp Partner
	err := c.do(ctx, http.MethodPost, "partners", map[string]any{"code": code, "name": name}, &resp)
	return resp, err
}

// UpdatePartner changes code and/or name; empty strings are left unchanged.
func (c *Client) UpdatePartner(ctx context.Context, id, code, name string) (Partner, error) {
	body := map[string]any{}
	if code != "" {
		body["code"] = code
	}
	if name != "" {
		body["name"] = name
	}
	var resp Partner
	err := c.do(ctx, http.MethodPut, "partners/"+url.PathEscape(id), body, &resp)
	return resp, err
}

func (c *Client) DeletePartner(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "partners/"+url.PathEscape(id), nil, nil)
}

// Tasks lists active or archived tasks; category "" means all.
func (c *Client) Tasks(ctx context.Context, archived bool, category string) ([]Task, error) {
	q := url.Values{}
	if archived {
		q.Set("archived", "true")
	}
	if category != "" {
		q.Set("category", category)
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ArchiveTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/archive", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ToggleAssignment flips one partner's completion and returns the updated task.
func (c *Client) ToggleAssignment(ctx context.Context, taskID, partnerID string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/assignments/%s/toggle", url.PathEscape(taskID), url.PathEscape(partnerID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Recurring lists templates ordered by trigger month.
func (c *Client) Recurring(ctx context.Context) ([]Recurring, error) {
	var resp []Recurring
	err := c.do(ctx, http.MethodGet, "recurring", nil, &resp)
	return resp, err
}

func (c *Client) CreateRecurring(ctx context.Context, title, category string, month int, description string) (Recurring, error) {
	body := map[string]any{
		"title":         title,
		"category":      category,
		"trigger_month": month,
		"description":   description,
	}
	var resp Recurring
	err := c.do(ctx, http.MethodPost, "recurring", body, &resp)
	return resp, err
}

func (c *Client) Draft(ctx context.Context, id string, year int) (Draft, error) {
	endpoint := fmt.Sprintf("recurring/%s/draft", url.PathEscape(id))
	if year > 0 {
		endpoint = fmt.Sprintf("%s?year=%d", endpoint, year)
	}
	var resp Draft
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ApplyTemplate creates a task from a template; nil partnerIDs keeps every partner.
func (c *Client) ApplyTemplate(ctx context.Context, id string, year int, partnerIDs []string) (Task, error) {
	body := map[string]any{}
	if year > 0 {
		body["year"] = year
	}
	if len(partnerIDs) > 0 {
		body["partner_ids"] = partnerIDs
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("recurring/%s/tasks", url.PathEscape(id)), body, &resp)
	return resp, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

// ExportCSV downloads the outstanding-assignment CSV and its suggested file name.
func (c *Client) ExportCSV(ctx context.Context) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, "export/incomplete.csv", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return data, name, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
