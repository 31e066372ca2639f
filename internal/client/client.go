package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Event struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	EventDate        time.Time  `json:"event_date"`
	RepeatInterval   string     `json:"repeat_interval"`
	Timezone         string     `json:"timezone,omitempty"`
	NextOccurrence   *time.Time `json:"next_occurrence,omitempty"`
	EffectiveDueAt   time.Time  `json:"effective_due_at"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	Tier             string     `json:"tier"`
	IsOverdue        bool       `json:"is_overdue"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EventList keeps server_now raw so callers can feed it to an offset as received.
type EventList struct {
	ServerNow  string  `json:"server_now"`
	Items      []Event `json:"items"`
	NextCursor *string `json:"next_cursor"`
}

type EventDetail struct {
	ServerNow string `json:"server_now"`
	Event     Event  `json:"event"`
}

type ShareLink struct {
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type SharePreview struct {
	ServerNow        string    `json:"server_now"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	EventDate        time.Time `json:"event_date"`
	RepeatInterval   string    `json:"repeat_interval"`
	EffectiveDueAt   time.Time `json:"effective_due_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Tier             string    `json:"tier"`
	IsOverdue        bool      `json:"is_overdue"`
}

// EventRequest is the body of create and update calls. Nil fields are omitted.
type EventRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	EventDate      *string `json:"event_date,omitempty"`
	RepeatInterval *string `json:"repeat_interval,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`
}

type ListParams struct {
	Query          string
	IncludeOverdue bool
	Limit          int
	Cursor         string
}

// APIError is a non-2xx reply from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == status
}

type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) ServerTime(ctx context.Context) (string, error) {
	var out struct {
		ServerNow string `json:"server_now"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/time", nil, &out); err != nil {
		return "", err
	}
	return out.ServerNow, nil
}

func (c *Client) ListEvents(ctx context.Context, p ListParams) (*EventList, error) {
	q := url.Values{}
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	if p.IncludeOverdue {
		q.Set("include_overdue", "true")
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	path := "/api/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out EventList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetEvent(ctx context.Context, id int64) (*EventDetail, error) {
	var out EventDetail
	if err := c.do(ctx, http.MethodGet, eventPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateEvent(ctx context.Context, req EventRequest) (*EventDetail, error) {
	var out EventDetail
	if err := c.do(ctx, http.MethodPost, "/api/events", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id int64, req EventRequest) (*EventDetail, error) {
	var out EventDetail
	if err := c.do(ctx, http.MethodPut, eventPath(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, eventPath(id), nil, nil)
}

func (c *Client) ShareEvent(ctx context.Context, id int64) (*ShareLink, error) {
	var out ShareLink
	if err := c.do(ctx, http.MethodPost, eventPath(id)+"/share", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PreviewShare(ctx context.Context, token string) (*SharePreview, error) {
	var out SharePreview
	if err := c.do(ctx, http.MethodGet, "/api/share/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ImportShare(ctx context.Context, token string) (*EventDetail, error) {
	var out EventDetail
	if err := c.do(ctx, http.MethodPost, "/api/share/"+url.PathEscape(token)+"/import", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func eventPath(id int64) string {
	return "/api/events/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiResp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 || !apiResp.Success {
		return &APIError{Status: resp.StatusCode, Message: apiResp.Error}
	}

	if out == nil || len(apiResp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(apiResp.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
