package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/countdowns/internal/countdown"
	"github.com/tazhate/countdowns/internal/service"
)

type EventResponse struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	EventDate        string  `json:"event_date"`
	RepeatInterval   string  `json:"repeat_interval"`
	Timezone         string  `json:"timezone,omitempty"`
	NextOccurrence   *string `json:"next_occurrence,omitempty"`
	EffectiveDueAt   string  `json:"effective_due_at"`
	RemainingSeconds int64   `json:"remaining_seconds"`
	Tier             string  `json:"tier"`
	IsOverdue        bool    `json:"is_overdue"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// EventListResponse carries one server_now sample for every item in it.
type EventListResponse struct {
	ServerNow  string          `json:"server_now"`
	Items      []EventResponse `json:"items"`
	NextCursor *string         `json:"next_cursor"`
}

type EventDetailResponse struct {
	ServerNow string        `json:"server_now"`
	Event     EventResponse `json:"event"`
}

type ShareLinkResponse struct {
	Token     string  `json:"token"`
	URL       string  `json:"url"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

type SharePreviewResponse struct {
	ServerNow        string `json:"server_now"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	EventDate        string `json:"event_date"`
	RepeatInterval   string `json:"repeat_interval"`
	Timezone         string `json:"timezone,omitempty"`
	EffectiveDueAt   string `json:"effective_due_at"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Tier             string `json:"tier"`
	IsOverdue        bool   `json:"is_overdue"`
}

type TimeResponse struct {
	ServerNow string `json:"server_now"`
}

type eventRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	EventDate      *string `json:"event_date"`
	RepeatInterval *string `json:"repeat_interval"`
	Timezone       *string `json:"timezone"`
}

// GET /api/time - bare server_now sample
func (s *Server) apiTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, TimeResponse{ServerNow: formatInstant(s.events.Now())})
}

// GET /api/events - list events
// POST /api/events - create event
func (s *Server) apiEvents(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	switch r.Method {
	case http.MethodGet:
		opts, err := s.listOptions(r)
		if err != nil {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		page, err := s.events.List(uid, opts)
		if err != nil {
			s.serviceError(w, err)
			return
		}

		resp := EventListResponse{
			ServerNow: formatInstant(page.ServerNow),
			Items:     make([]EventResponse, 0, len(page.Items)),
		}
		for _, v := range page.Items {
			resp.Items = append(resp.Items, eventToResponse(v))
		}
		if page.NextCursor != "" {
			resp.NextCursor = &page.NextCursor
		}
		s.jsonResponse(w, resp)

	case http.MethodPost:
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		in, err := s.eventInput(req)
		if err != nil {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		v, now, err := s.events.Create(uid, in)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonStatus(w, http.StatusCreated, EventDetailResponse{ServerNow: formatInstant(now), Event: eventToResponse(*v)})

	default:
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/events/{id} - get event
// PUT /api/events/{id} - update event
// DELETE /api/events/{id} - delete event
// POST /api/events/{id}/share - create share link
func (s *Server) apiEvent(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	path := strings.TrimPrefix(r.URL.Path, "/api/events/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "" {
		s.jsonError(w, "Event ID required", http.StatusBadRequest)
		return
	}
	eventID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.jsonError(w, "Invalid event ID", http.StatusBadRequest)
		return
	}

	if len(parts) > 1 {
		if parts[1] != "share" || len(parts) > 2 {
			s.jsonError(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.createShare(w, eventID, uid)
		return
	}

	switch r.Method {
	case http.MethodGet:
		v, now, err := s.events.Get(eventID, uid)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, EventDetailResponse{ServerNow: formatInstant(now), Event: eventToResponse(*v)})

	case http.MethodPut:
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		patch, err := s.eventPatch(req)
		if err != nil {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		v, now, err := s.events.Update(eventID, uid, patch)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, EventDetailResponse{ServerNow: formatInstant(now), Event: eventToResponse(*v)})

	case http.MethodDelete:
		if err := s.events.Delete(eventID, uid); err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, map[string]bool{"deleted": true})

	default:
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createShare(w http.ResponseWriter, eventID, uid int64) {
	link, err := s.shares.CreateToken(eventID, uid, s.cfg.ShareTTL)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	resp := ShareLinkResponse{
		Token: link.Token,
		URL:   strings.TrimSuffix(s.cfg.PublicURL, "/") + "/api/share/" + link.Token,
	}
	if link.ExpiresAt != nil {
		exp := formatInstant(*link.ExpiresAt)
		resp.ExpiresAt = &exp
	}
	s.jsonStatus(w, http.StatusCreated, resp)
}

// GET /api/share/{token} - public preview
// POST /api/share/{token}/import - copy into the caller's events
func (s *Server) apiShare(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/share/"), "/")
	parts := strings.Split(path, "/")
	token := parts[0]
	if token == "" {
		s.jsonError(w, "Token required", http.StatusBadRequest)
		return
	}

	if len(parts) == 2 && parts[1] == "import" {
		if r.Method != http.MethodPost {
			s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.basicAuth(func(w http.ResponseWriter, r *http.Request) {
			v, now, err := s.shares.Import(token, userID(r))
			if err != nil {
				s.serviceError(w, err)
				return
			}
			s.jsonStatus(w, http.StatusCreated, EventDetailResponse{ServerNow: formatInstant(now), Event: eventToResponse(*v)})
		})(w, r)
		return
	}
	if len(parts) != 1 {
		s.jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, err := s.shares.Preview(token)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, SharePreviewResponse{
		ServerNow:        formatInstant(p.ServerNow),
		Title:            p.Payload.Title,
		Description:      p.Payload.Description,
		EventDate:        formatInstant(p.Payload.EventDate),
		RepeatInterval:   p.Payload.Repeat,
		Timezone:         p.Payload.Timezone,
		EffectiveDueAt:   formatInstant(p.Status.EffectiveDue),
		RemainingSeconds: p.Status.RemainingSeconds,
		Tier:             string(p.Status.Tier),
		IsOverdue:        p.Status.IsOverdue(),
	})
}

// GET /api/calendar.ics - iCalendar feed of the caller's events
func (s *Server) apiCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="countdowns.ics"`)
	if err := s.calendar.WriteFeed(w, userID(r)); err != nil {
		log.Printf("Error writing calendar feed: %v", err)
	}
}

func (s *Server) listOptions(r *http.Request) (service.ListOptions, error) {
	q := r.URL.Query()
	opts := service.ListOptions{
		Query: q.Get("q"),
		Limit: s.cfg.Pagination.DefaultLimit,
	}

	if v := q.Get("include_overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid include_overdue")
		}
		opts.IncludeOverdue = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("invalid limit")
		}
		opts.Limit = n
	}
	if opts.Limit > s.cfg.Pagination.MaxLimit {
		opts.Limit = s.cfg.Pagination.MaxLimit
	}

	cursor := q.Get("cursor")
	if cursor == "" {
		cursor = q.Get("offset")
	}
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid cursor")
		}
		opts.Offset = n
	}
	return opts, nil
}

func (s *Server) eventInput(req eventRequest) (service.EventInput, error) {
	var in service.EventInput
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Timezone != nil {
		in.Timezone = *req.Timezone
	}
	if req.EventDate == nil || *req.EventDate == "" {
		return in, fmt.Errorf("event_date is required")
	}
	date, err := s.parseEventDate(*req.EventDate, in.Timezone)
	if err != nil {
		return in, err
	}
	in.EventDate = date

	if req.RepeatInterval != nil {
		rule, err := countdown.ParseRule(*req.RepeatInterval)
		if err != nil {
			return in, fmt.Errorf("invalid repeat_interval %q", *req.RepeatInterval)
		}
		in.Repeat = rule
	}
	return in, nil
}

func (s *Server) eventPatch(req eventRequest) (service.EventPatch, error) {
	p := service.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Timezone:    req.Timezone,
	}
	if req.EventDate != nil {
		tz := ""
		if req.Timezone != nil {
			tz = *req.Timezone
		}
		date, err := s.parseEventDate(*req.EventDate, tz)
		if err != nil {
			return p, err
		}
		p.EventDate = &date
	}
	if req.RepeatInterval != nil {
		rule, err := countdown.ParseRule(*req.RepeatInterval)
		if err != nil {
			return p, fmt.Errorf("invalid repeat_interval %q", *req.RepeatInterval)
		}
		p.Repeat = &rule
	}
	return p, nil
}

// parseEventDate accepts RFC 3339, or a local date/time read in tz (the
// configured timezone when tz is empty).
func (s *Server) parseEventDate(v, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}

	loc := s.cfg.Timezone
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q", tz)
		}
		loc = l
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid event_date (use RFC 3339 or YYYY-MM-DD[THH:MM])")
}

func eventToResponse(v service.EventView) EventResponse {
	e := v.Event
	resp := EventResponse{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		EventDate:        formatInstant(e.EventDate),
		RepeatInterval:   string(e.Repeat),
		Timezone:         e.Timezone,
		EffectiveDueAt:   formatInstant(v.Status.EffectiveDue),
		RemainingSeconds: v.Status.RemainingSeconds,
		Tier:             string(v.Status.Tier),
		IsOverdue:        v.Status.IsOverdue(),
		CreatedAt:        formatInstant(e.CreatedAt),
		UpdatedAt:        formatInstant(e.UpdatedAt),
	}
	if e.NextOccurrence != nil {
		next := formatInstant(*e.NextOccurrence)
		resp.NextOccurrence = &next
	}
	return resp
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
