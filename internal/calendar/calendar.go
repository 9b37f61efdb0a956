// Package calendar reads upcoming events from a CalDAV server and
// groups them into today, tomorrow and the rest of the week.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/nugget/daybreak/internal/httpkit"
)

// lookahead is how far past the start of today events are requested.
const lookahead = 7 * 24 * time.Hour

// Event is a single calendar entry.
type Event struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"allDay"`
}

// Agenda groups events by day. Each slice is sorted by start time.
type Agenda struct {
	TodayEvents    []Event `json:"todayEvents"`
	TomorrowEvents []Event `json:"tomorrowEvents"`
	UpcomingEvents []Event `json:"upcomingEvents"`
}

// Config identifies the CalDAV account.
type Config struct {
	URL          string
	Username     string
	Password     string
	CalendarPath string // empty means discover the first event calendar
}

type querier interface {
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
}

// Client fetches agendas from one CalDAV calendar.
type Client struct {
	dav      *caldav.Client
	query    querier
	logger   *slog.Logger
	location *time.Location

	mu   sync.Mutex
	path string
}

// NewClient creates a CalDAV-backed agenda client. Times are bucketed
// into days using loc.
func NewClient(cfg Config, loc *time.Location, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}

	var hc webdav.HTTPClient = httpkit.NewClient()
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, cfg.Username, cfg.Password)
	}
	dav, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}

	return &Client{
		dav:      dav,
		query:    dav,
		logger:   logger.With("component", "calendar"),
		location: loc,
		path:     cfg.CalendarPath,
	}, nil
}

// Fetch returns the agenda for the day containing now and the week
// after it.
func (c *Client) Fetch(ctx context.Context, now time.Time) (*Agenda, error) {
	path, err := c.calendarPath(ctx)
	if err != nil {
		return nil, err
	}

	start := startOfDay(now.In(c.location))
	end := start.Add(lookahead)

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{{
				Name:  "VEVENT",
				Props: []string{"UID", "SUMMARY", "DTSTART", "DTEND", "DURATION"},
			}},
			Expand: &caldav.CalendarExpandRequest{Start: start, End: end},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: start,
				End:   end,
			}},
		},
	}

	objects, err := c.query.QueryCalendar(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", path, err)
	}

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			e, err := toEvent(ev, c.location)
			if err != nil {
				c.logger.Debug("skipping unreadable event", "path", obj.Path, "error", err)
				continue
			}
			events = append(events, e)
		}
	}

	agenda := buildAgenda(events, now.In(c.location))
	c.logger.Debug("agenda fetched",
		"today", len(agenda.TodayEvents),
		"tomorrow", len(agenda.TomorrowEvents),
		"upcoming", len(agenda.UpcomingEvents),
	)
	return agenda, nil
}

// calendarPath returns the configured calendar or discovers the first
// one that holds events. The result is remembered.
func (c *Client) calendarPath(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		return c.path, nil
	}
	if c.dav == nil {
		return "", errors.New("no calendar path configured")
	}

	principal, err := c.dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := c.dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home: %w", err)
	}
	cals, err := c.dav.FindCalendars(ctx, home)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	for _, cal := range cals {
		if len(cal.SupportedComponentSet) == 0 || slices.Contains(cal.SupportedComponentSet, "VEVENT") {
			c.logger.Info("discovered calendar", "name", cal.Name, "path", cal.Path)
			c.path = cal.Path
			return c.path, nil
		}
	}
	return "", errors.New("no event calendar found")
}

func toEvent(ev ical.Event, loc *time.Location) (Event, error) {
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return Event{}, fmt.Errorf("DTSTART: %w", err)
	}
	if start.IsZero() {
		return Event{}, errors.New("missing DTSTART")
	}

	allDay := false
	if p := ev.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
		allDay = true
	}

	end, err := ev.DateTimeEnd(loc)
	if err != nil || end.IsZero() || end.Before(start) {
		end = start
		if allDay {
			end = start.AddDate(0, 0, 1)
		}
	}

	title, _ := ev.Props.Text(ical.PropSummary)
	if title == "" {
		title = "Untitled event"
	}
	uid, _ := ev.Props.Text(ical.PropUID)

	return Event{
		ID:     uid,
		Title:  title,
		Start:  start.In(loc),
		End:    end.In(loc),
		AllDay: allDay,
	}, nil
}

// buildAgenda buckets events relative to now's day. An event that is
// still running today counts as a today event even if it began earlier.
// Slices are never nil.
func buildAgenda(events []Event, now time.Time) *Agenda {
	today := startOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)
	horizon := today.Add(lookahead)

	a := &Agenda{
		TodayEvents:    []Event{},
		TomorrowEvents: []Event{},
		UpcomingEvents: []Event{},
	}
	for _, e := range events {
		end := e.End
		if end.Equal(e.Start) {
			end = e.Start.Add(time.Nanosecond)
		}
		switch {
		case e.Start.Before(tomorrow) && end.After(today):
			a.TodayEvents = append(a.TodayEvents, e)
		case !e.Start.Before(tomorrow) && e.Start.Before(dayAfter):
			a.TomorrowEvents = append(a.TomorrowEvents, e)
		case !e.Start.Before(dayAfter) && e.Start.Before(horizon):
			a.UpcomingEvents = append(a.UpcomingEvents, e)
		}
	}

	for _, list := range [][]Event{a.TodayEvents, a.TomorrowEvents, a.UpcomingEvents} {
		slices.SortStableFunc(list, func(x, y Event) int {
			return x.Start.Compare(y.Start)
		})
	}
	return a
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
