package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tazhate/countdowns/internal/client"
	"github.com/tazhate/countdowns/internal/countdown"
)

const (
	serverName    = "countdowns-mcp"
	serverVersion = "1.0.0"
)

// API is the part of the HTTP client the tools call.
type API interface {
	ServerTime(ctx context.Context) (string, error)
	ListEvents(ctx context.Context, p client.ListParams) (*client.EventList, error)
	GetEvent(ctx context.Context, id int64) (*client.EventDetail, error)
	CreateEvent(ctx context.Context, req client.EventRequest) (*client.EventDetail, error)
	UpdateEvent(ctx context.Context, id int64, req client.EventRequest) (*client.EventDetail, error)
	DeleteEvent(ctx context.Context, id int64) error
	ShareEvent(ctx context.Context, id int64) (*client.ShareLink, error)
}

type Server struct {
	mcpServer *server.MCPServer
	api       API
}

func NewServer(api API) *Server {
	s := &Server{api: api}
	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_list_events",
			mcp.WithDescription("List countdown events, most urgent first. Overdue one-off events are hidden unless include_overdue is set."),
			mcp.WithString("query", mcp.Description("Case-insensitive title filter")),
			mcp.WithBoolean("include_overdue", mcp.Description("Include events whose due instant has passed")),
			mcp.WithNumber("limit", mcp.Description("Page size")),
			mcp.WithString("cursor", mcp.Description("next_cursor from a previous page")),
		),
		s.handleListEvents,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_get_event",
			mcp.WithDescription("Get one event with its effective due instant, remaining seconds and urgency tier"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Event ID")),
		),
		s.handleGetEvent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_create_event",
			mcp.WithDescription("Create a countdown event. Dates are RFC 3339 or YYYY-MM-DD HH:MM in the event timezone."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Title, 1 to 120 characters")),
			mcp.WithString("event_date", mcp.Required(), mcp.Description("Due instant, e.g. 2025-06-01T09:00:00Z")),
			mcp.WithString("repeat_interval", mcp.Description("none, daily, weekly, monthly or yearly (default none)"),
				mcp.Enum("none", "daily", "weekly", "monthly", "yearly")),
			mcp.WithString("description", mcp.Description("Optional description")),
			mcp.WithString("timezone", mcp.Description("IANA timezone for display and local dates")),
		),
		s.handleCreateEvent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_update_event",
			mcp.WithDescription("Update fields of an event. Omitted fields are left unchanged."),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Event ID")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("event_date", mcp.Description("New due instant")),
			mcp.WithString("repeat_interval", mcp.Description("New repeat rule"),
				mcp.Enum("none", "daily", "weekly", "monthly", "yearly")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("timezone", mcp.Description("New timezone")),
		),
		s.handleUpdateEvent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_delete_event",
			mcp.WithDescription("Delete an event permanently"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Event ID")),
		),
		s.handleDeleteEvent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_share_event",
			mcp.WithDescription("Create a share link for an event"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Event ID")),
		),
		s.handleShareEvent,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_server_time",
			mcp.WithDescription("Get the server clock used for every countdown"),
		),
		s.handleServerTime,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("countdowns_classify_remaining",
			mcp.WithDescription("Classify a remaining time in seconds into an urgency tier and display label"),
			mcp.WithNumber("seconds", mcp.Required(), mcp.Description("Remaining whole seconds, negative when overdue")),
		),
		s.handleClassify,
	)
}

func (s *Server) handleListEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.api.ListEvents(ctx, client.ListParams{
		Query:          req.GetString("query", ""),
		IncludeOverdue: req.GetBool("include_overdue", false),
		Limit:          req.GetInt("limit", 0),
		Cursor:         req.GetString("cursor", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
	}
	return mcp.NewToolResultText(formatEventList(list)), nil
}

func (s *Server) handleGetEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireID(req)
	if errResult != nil {
		return errResult, nil
	}
	detail, err := s.api.GetEvent(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get event %d: %v", id, err)), nil
	}
	return mcp.NewToolResultText(formatEventDetail(detail)), nil
}

func (s *Server) handleCreateEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := eventRequest(req)
	if body.Title == nil {
		return mcp.NewToolResultError("title is required"), nil
	}
	if body.EventDate == nil {
		return mcp.NewToolResultError("event_date is required"), nil
	}
	detail, err := s.api.CreateEvent(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create event: %v", err)), nil
	}
	return mcp.NewToolResultText("Created:\n" + formatEventDetail(detail)), nil
}

func (s *Server) handleUpdateEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireID(req)
	if errResult != nil {
		return errResult, nil
	}
	detail, err := s.api.UpdateEvent(ctx, id, eventRequest(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update event %d: %v", id, err)), nil
	}
	return mcp.NewToolResultText("Updated:\n" + formatEventDetail(detail)), nil
}

func (s *Server) handleDeleteEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireID(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.api.DeleteEvent(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete event %d: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Event %d deleted.", id)), nil
}

func (s *Server) handleShareEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireID(req)
	if errResult != nil {
		return errResult, nil
	}
	link, err := s.api.ShareEvent(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to share event %d: %v", id, err)), nil
	}
	text := "Share link: " + link.URL
	if link.ExpiresAt != nil {
		text += "\nExpires: " + link.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleServerTime(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now, err := s.api.ServerTime(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read server time: %v", err)), nil
	}
	return mcp.NewToolResultText("Server time: " + now), nil
}

func (s *Server) handleClassify(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if _, ok := args["seconds"]; !ok {
		return mcp.NewToolResultError("seconds is required"), nil
	}
	seconds := int64(req.GetFloat("seconds", 0))
	tier := countdown.Classify(seconds)
	return mcp.NewToolResultText(fmt.Sprintf("%s (%s)", tier, countdown.FormatRemaining(seconds))), nil
}

func requireID(req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	id := int64(req.GetFloat("id", -1))
	if id <= 0 {
		return 0, mcp.NewToolResultError("id is required and must be a positive number")
	}
	return id, nil
}

// eventRequest copies only the arguments that were actually passed.
func eventRequest(req mcp.CallToolRequest) client.EventRequest {
	args := req.GetArguments()
	field := func(name string) *string {
		v, ok := args[name].(string)
		if !ok {
			return nil
		}
		return &v
	}
	return client.EventRequest{
		Title:          field("title"),
		Description:    field("description"),
		EventDate:      field("event_date"),
		RepeatInterval: field("repeat_interval"),
		Timezone:       field("timezone"),
	}
}

func formatEventList(list *client.EventList) string {
	if len(list.Items) == 0 {
		return "No events found.\nServer time: " + list.ServerNow
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Events (server time %s):\n", list.ServerNow)
	for _, e := range list.Items {
		sb.WriteString(formatEventLine(e))
		sb.WriteString("\n")
	}
	if list.NextCursor != nil {
		fmt.Fprintf(&sb, "More events available, cursor: %s\n", *list.NextCursor)
	}
	return sb.String()
}

func formatEventDetail(d *client.EventDetail) string {
	e := d.Event
	var sb strings.Builder
	sb.WriteString(formatEventLine(e))
	sb.WriteString("\n")
	if e.Description != "" {
		fmt.Fprintf(&sb, "  %s\n", e.Description)
	}
	fmt.Fprintf(&sb, "  Anchor: %s\n", e.EventDate.UTC().Format(time.RFC3339))
	if e.Timezone != "" {
		fmt.Fprintf(&sb, "  Timezone: %s\n", e.Timezone)
	}
	fmt.Fprintf(&sb, "  Server time: %s\n", d.ServerNow)
	return sb.String()
}

func formatEventLine(e client.Event) string {
	line := fmt.Sprintf("#%d %s: %s [%s], due %s",
		e.ID, e.Title, countdown.FormatRemaining(e.RemainingSeconds), e.Tier,
		e.EffectiveDueAt.UTC().Format(time.RFC3339))
	if e.RepeatInterval != "" && e.RepeatInterval != string(countdown.RuleNone) {
		line += ", repeats " + e.RepeatInterval
	}
	return line
}
