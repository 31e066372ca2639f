package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// DefaultURL is used when no server is configured.
const DefaultURL = "https://caldav.icloud.com"

// Client pushes countdown events into one calendar collection.
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	httpClient   *http.Client

	mu     sync.Mutex
	client *caldav.Client
}

func NewClient(baseURL, username, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Transport: &basicAuthTransport{username: username, password: password},
			Timeout:   30 * time.Second,
		},
	}
}

func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != ""
}

func (c *Client) SetCalendarPath(path string) {
	c.calendarPath = path
}

func (c *Client) CalendarPath() string {
	return c.calendarPath
}

func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := caldav.NewClient(c.httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}
	c.client = client
	return client, nil
}

type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars lists the calendars in the current user's home set.
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		result = append(result, Calendar{
			Path:        cal.Path,
			DisplayName: cal.Name,
			Description: cal.Description,
		})
	}
	return result, nil
}

// SelectCalendar picks the calendar whose display name or path matches want, or
// the first one when want is empty, and uses it for subsequent writes.
func (c *Client) SelectCalendar(ctx context.Context, want string) (Calendar, error) {
	cals, err := c.DiscoverCalendars(ctx)
	if err != nil {
		return Calendar{}, err
	}
	if len(cals) == 0 {
		return Calendar{}, fmt.Errorf("no calendars found")
	}
	for _, cal := range cals {
		if want == "" || strings.EqualFold(cal.DisplayName, want) || cal.Path == want {
			c.SetCalendarPath(cal.Path)
			return cal, nil
		}
	}
	return Calendar{}, fmt.Errorf("calendar %q not found", want)
}

// Put stores cal under uid, replacing any previous version.
func (c *Client) Put(ctx context.Context, uid string, cal *ical.Calendar) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	path, err := c.objectPath(uid)
	if err != nil {
		return err
	}
	if _, err := client.PutCalendarObject(ctx, path, cal); err != nil {
		return fmt.Errorf("put %s: %w", uid, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, uid string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	path, err := c.objectPath(uid)
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, path); err != nil {
		return fmt.Errorf("delete %s: %w", uid, err)
	}
	return nil
}

func (c *Client) objectPath(uid string) (string, error) {
	if c.calendarPath == "" {
		return "", fmt.Errorf("calendar path not set")
	}
	return strings.TrimSuffix(c.calendarPath, "/") + "/" + uid + ".ics", nil
}
