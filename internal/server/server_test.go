package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tazhate/countdowns/config"
	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/service"
	"github.com/tazhate/countdowns/internal/storage"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Listen:    ":0",
		PublicURL: "https://countdowns.example/",
		Timezone:  time.UTC,
		Users: []config.User{
			{Name: "alice", Password: "secret"},
			{Name: "bob", Password: "hunter2"},
		},
		Pagination: config.PaginationConfig{DefaultLimit: 2, MaxLimit: 10},
	}

	clock := countdown.FixedClock(testNow)
	events := service.NewEventService(store, clock)
	shares := service.NewShareService(store, events)
	calendar := service.NewCalendarService(store, clock, nil)

	srv, err := New(cfg, store, events, shares, calendar)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type call struct {
	method, path, user, pass string
	body                     interface{}
}

func do(t *testing.T, ts *httptest.Server, c call) (*http.Response, APIResponse, []byte) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(c.method, ts.URL+c.path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env APIResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, raw)
		}
	}
	return resp, env, raw
}

func decodeData(t *testing.T, env APIResponse, out interface{}) {
	t.Helper()
	b, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func createEvent(t *testing.T, ts *httptest.Server, user, pass string, body map[string]string) EventResponse {
	t.Helper()
	resp, env, raw := do(t, ts, call{http.MethodPost, "/api/events", user, pass, body})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, raw)
	}
	var detail EventDetailResponse
	decodeData(t, env, &detail)
	return detail.Event
}

func TestHealthAndTime(t *testing.T) {
	ts := setupTestServer(t)

	resp, _, raw := do(t, ts, call{method: http.MethodGet, path: "/health"})
	if resp.StatusCode != http.StatusOK || string(raw) != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, raw)
	}

	resp, env, _ := do(t, ts, call{method: http.MethodGet, path: "/api/time"})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("unexpected time response %d", resp.StatusCode)
	}
	var tr TimeResponse
	decodeData(t, env, &tr)
	if tr.ServerNow != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected server_now %q", tr.ServerNow)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := setupTestServer(t)

	for _, c := range []call{
		{method: http.MethodGet, path: "/api/events"},
		{method: http.MethodGet, path: "/api/events", user: "alice", pass: "wrong"},
		{method: http.MethodGet, path: "/api/events", user: "mallory", pass: "secret"},
		{method: http.MethodGet, path: "/api/calendar.ics"},
	} {
		resp, env, _ := do(t, ts, c)
		if resp.StatusCode != http.StatusUnauthorized || env.Success {
			t.Fatalf("%s as %q: expected 401, got %d", c.path, c.user, resp.StatusCode)
		}
		if resp.Header.Get("WWW-Authenticate") == "" {
			t.Fatalf("expected WWW-Authenticate header")
		}
	}
}

func TestEventLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	ev := createEvent(t, ts, "alice", "secret", map[string]string{
		"title":           "Rent",
		"event_date":      "2025-03-10T10:00:00Z",
		"repeat_interval": "month",
	})
	if ev.RepeatInterval != "monthly" || ev.EffectiveDueAt != "2025-03-10T10:00:00Z" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.RemainingSeconds != 9*86400-2*3600 || ev.Tier != "YELLOW" || ev.IsOverdue {
		t.Fatalf("unexpected countdown fields %+v", ev)
	}

	path := "/api/events/" + itoa(ev.ID)
	resp, env, _ := do(t, ts, call{method: http.MethodGet, path: path, user: "alice", pass: "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var detail EventDetailResponse
	decodeData(t, env, &detail)
	if detail.ServerNow != "2025-03-01T12:00:00Z" || detail.Event.ID != ev.ID {
		t.Fatalf("unexpected detail %+v", detail)
	}

	resp, _, _ = do(t, ts, call{method: http.MethodGet, path: path, user: "bob", pass: "hunter2"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for other user, got %d", resp.StatusCode)
	}

	resp, env, _ = do(t, ts, call{http.MethodPut, path, "alice", "secret", map[string]string{"title": "Flat rent"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	decodeData(t, env, &detail)
	if detail.Event.Title != "Flat rent" {
		t.Fatalf("expected updated title, got %q", detail.Event.Title)
	}

	resp, _, _ = do(t, ts, call{method: http.MethodDelete, path: path, user: "alice", pass: "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp, _, _ = do(t, ts, call{method: http.MethodGet, path: path, user: "alice", pass: "secret"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCreateValidationErrors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing date", map[string]string{"title": "x"}},
		{"bad date", map[string]string{"title": "x", "event_date": "next tuesday"}},
		{"bad rule", map[string]string{"title": "x", "event_date": "2025-04-01", "repeat_interval": "hourly"}},
		{"empty title", map[string]string{"title": "", "event_date": "2025-04-01"}},
		{"too old", map[string]string{"title": "x", "event_date": "2025-02-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env, _ := do(t, ts, call{http.MethodPost, "/api/events", "alice", "secret", tt.body})
			if resp.StatusCode != http.StatusBadRequest || env.Success || env.Error == "" {
				t.Fatalf("expected 400 with error, got %d %+v", resp.StatusCode, env)
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	ts := setupTestServer(t)

	for _, date := range []string{"2025-03-01T14:00:00Z", "2025-03-05T00:00:00Z", "2025-06-01T00:00:00Z", "2025-03-01T11:30:00Z"} {
		createEvent(t, ts, "alice", "secret", map[string]string{"title": "e " + date, "event_date": date})
	}

	var list EventListResponse
	_, env, _ := do(t, ts, call{method: http.MethodGet, path: "/api/events", user: "alice", pass: "secret"})
	decodeData(t, env, &list)
	if list.ServerNow != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected server_now %q", list.ServerNow)
	}
	if len(list.Items) != 2 || list.NextCursor == nil || *list.NextCursor != "2" {
		t.Fatalf("expected first page of 2 with cursor, got %d items cursor %v", len(list.Items), list.NextCursor)
	}
	if list.Items[0].Tier != "RED" || list.Items[1].Tier != "ORANGE" {
		t.Fatalf("unexpected order %s, %s", list.Items[0].Tier, list.Items[1].Tier)
	}

	_, env, _ = do(t, ts, call{method: http.MethodGet, path: "/api/events?cursor=2", user: "alice", pass: "secret"})
	decodeData(t, env, &list)
	if len(list.Items) != 1 || list.NextCursor != nil {
		t.Fatalf("expected last page of 1, got %d items cursor %v", len(list.Items), list.NextCursor)
	}

	_, env, _ = do(t, ts, call{method: http.MethodGet, path: "/api/events?include_overdue=true&limit=10", user: "alice", pass: "secret"})
	decodeData(t, env, &list)
	if len(list.Items) != 4 || !list.Items[0].IsOverdue || list.Items[0].Tier != "OVERDUE" {
		t.Fatalf("expected overdue item first, got %+v", list.Items)
	}

	resp, _, _ := do(t, ts, call{method: http.MethodGet, path: "/api/events?limit=0", user: "alice", pass: "secret"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestShareFlow(t *testing.T) {
	ts := setupTestServer(t)
	ev := createEvent(t, ts, "alice", "secret", map[string]string{"title": "Launch", "event_date": "2025-03-02"})

	resp, env, raw := do(t, ts, call{method: http.MethodPost, path: "/api/events/" + itoa(ev.ID) + "/share", user: "alice", pass: "secret"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("share: expected 201, got %d: %s", resp.StatusCode, raw)
	}
	var link ShareLinkResponse
	decodeData(t, env, &link)
	if link.URL != "https://countdowns.example/api/share/"+link.Token {
		t.Fatalf("unexpected share url %q", link.URL)
	}

	resp, env, _ = do(t, ts, call{method: http.MethodGet, path: "/api/share/" + link.Token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d", resp.StatusCode)
	}
	var preview SharePreviewResponse
	decodeData(t, env, &preview)
	if preview.Title != "Launch" || preview.RemainingSeconds != 12*3600 || preview.Tier != "RED" {
		t.Fatalf("unexpected preview %+v", preview)
	}

	resp, _, _ = do(t, ts, call{method: http.MethodPost, path: "/api/share/" + link.Token + "/import"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("import without auth: expected 401, got %d", resp.StatusCode)
	}
	resp, env, _ = do(t, ts, call{method: http.MethodPost, path: "/api/share/" + link.Token + "/import", user: "bob", pass: "hunter2"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("import: expected 201, got %d", resp.StatusCode)
	}
	var detail EventDetailResponse
	decodeData(t, env, &detail)
	if detail.Event.ID == ev.ID || detail.Event.Title != "Launch" {
		t.Fatalf("unexpected imported event %+v", detail.Event)
	}

	resp, _, _ = do(t, ts, call{method: http.MethodGet, path: "/api/share/1b4e28ba-2fa1-11d2-883f-0016d3cca427"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", resp.StatusCode)
	}
}

func TestCalendarFeed(t *testing.T) {
	ts := setupTestServer(t)
	createEvent(t, ts, "alice", "secret", map[string]string{"title": "Gym", "event_date": "2025-03-03T18:00", "repeat_interval": "weekly"})

	resp, _, raw := do(t, ts, call{method: http.MethodGet, path: "/api/calendar.ics", user: "alice", pass: "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	body := string(raw)
	if !strings.Contains(body, "SUMMARY:Gym") || !strings.Contains(body, "FREQ=WEEKLY") {
		t.Fatalf("unexpected feed:\n%s", body)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
