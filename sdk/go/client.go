package razmkarsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Razmkar HTTP API client.
type Client struct {
	BaseURL string
	// ActorID is sent as X-Actor-Id and recorded in the activity log.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID         int64  `json:"id"`
	Goal       string `json:"goal"`
	ClientName string `json:"client_name"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

// Mission represents the API mission model (partial).
type Mission struct {
	ID          int64   `json:"id"`
	ProjectID   int64   `json:"project_id"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	Note        string  `json:"note,omitempty"`
	Description string  `json:"description,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Status      string  `json:"status"`
}

// Schedule maps "<date>_<block>" cells to mission ids.
type Schedule map[string][]int64

// Usage is the load of one cell.
type Usage struct {
	Used     int  `json:"used"`
	Capacity int  `json:"capacity"`
	Over     bool `json:"over"`
}

// ScheduleResult is returned by the assign, unassign and move calls.
type ScheduleResult struct {
	Week     string           `json:"week"`
	Version  int64            `json:"version"`
	Changed  bool             `json:"changed"`
	Schedule Schedule         `json:"schedule"`
	Usage    map[string]Usage `json:"usage"`
}

type Day struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Workday bool   `json:"workday"`
}

type Block struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Capacity int    `json:"capacity"`
}

type PlannedMission struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id,omitempty"`
	Title     string `json:"title"`
	Status    string `json:"status,omitempty"`
	Category  string `json:"category"`
	Points    int    `json:"points"`
	Missing   bool   `json:"missing,omitempty"`
}

// Week is one rendered week of the planning board.
type Week struct {
	Week     string           `json:"week"`
	Version  int64            `json:"version"`
	Start    string           `json:"start"`
	End      string           `json:"end"`
	Days     []Day            `json:"days"`
	Blocks   []Block          `json:"blocks"`
	Schedule Schedule         `json:"schedule"`
	Usage    map[string]Usage `json:"usage"`
	Missions []PlannedMission `json:"missions"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

// PlaceRequest targets one cell. ExpectedVersion pins the week version.
type PlaceRequest struct {
	Date            string `json:"date"`
	Block           string `json:"block"`
	MissionID       int64  `json:"mission_id"`
	Force           bool   `json:"force,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type MoveRequest struct {
	SrcDate         string `json:"src_date"`
	SrcBlock        string `json:"src_block"`
	DstDate         string `json:"dst_date"`
	DstBlock        string `json:"dst_block"`
	MissionID       int64  `json:"mission_id"`
	Force           bool   `json:"force,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// CreateProject creates a project in draft status.
func (c *Client) CreateProject(ctx context.Context, goal, clientName string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", map[string]any{"goal": goal, "client_name": clientName}, &resp)
	return resp, err
}

// CreateMission adds a top-level mission to a project.
func (c *Client) CreateMission(ctx context.Context, projectID int64, title, dueDate string) (Mission, error) {
	body := map[string]any{"title": title}
	if dueDate != "" {
		body["due_date"] = dueDate
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%d/missions", projectID), body, &resp)
	return resp, err
}

// Week returns the ISO week containing date; empty means the current week.
func (c *Client) Week(ctx context.Context, date string) (Week, error) {
	if date == "" {
		date = "today"
	}
	var resp Week
	err := c.do(ctx, http.MethodGet, "planning/weeks/"+url.PathEscape(date), nil, &resp)
	return resp, err
}

func (c *Client) Assign(ctx context.Context, req PlaceRequest) (ScheduleResult, error) {
	var resp ScheduleResult
	err := c.do(ctx, http.MethodPost, "planning/assign", req, &resp)
	return resp, err
}

func (c *Client) Unassign(ctx context.Context, req PlaceRequest) (ScheduleResult, error) {
	req.Force = false
	var resp ScheduleResult
	err := c.do(ctx, http.MethodPost, "planning/unassign", req, &resp)
	return resp, err
}

func (c *Client) Move(ctx context.Context, req MoveRequest) (ScheduleResult, error) {
	var resp ScheduleResult
	err := c.do(ctx, http.MethodPost, "planning/move", req, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, optionally for one project.
func (c *Client) EventsPage(ctx context.Context, projectID int64, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if projectID > 0 {
		q.Set("project_id", fmt.Sprint(projectID))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
