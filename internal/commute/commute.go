// Package commute estimates drive times for configured routes using a
// TomTom-compatible routing API with live traffic. Without an API key
// the client returns fixed demo estimates so a display can still be
// laid out and tested.
package commute

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/daybreak/internal/httpkit"
)

// Traffic delay thresholds, in minutes.
const (
	ModerateDelayMinutes = 5
	HeavyDelayMinutes    = 15
)

// TrafficStatus classifies how much traffic adds to a drive.
type TrafficStatus string

const (
	TrafficLight    TrafficStatus = "light"
	TrafficModerate TrafficStatus = "moderate"
	TrafficHeavy    TrafficStatus = "heavy"
)

// Classify maps a traffic delay to a status.
func Classify(delayMinutes int) TrafficStatus {
	switch {
	case delayMinutes < ModerateDelayMinutes:
		return TrafficLight
	case delayMinutes < HeavyDelayMinutes:
		return TrafficModerate
	default:
		return TrafficHeavy
	}
}

// Commute is the estimate for one route.
type Commute struct {
	Name                string        `json:"name"`
	DurationMinutes     int           `json:"durationMinutes"`
	TrafficDelayMinutes int           `json:"trafficDelayMinutes"`
	TrafficStatus       TrafficStatus `json:"trafficStatus"`
}

// Report holds estimates for every route that could be computed.
type Report struct {
	Commutes []Commute `json:"commutes"`
	IsDemo   bool      `json:"isDemo"`
}

// Route is a named origin/destination pair, each as "lat,lon".
type Route struct {
	Name        string
	Origin      string
	Destination string
}

// Client computes commute estimates.
type Client struct {
	apiKey     string
	baseURL    string
	routes     []Route
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a commute client. An empty apiKey selects demo mode.
func NewClient(apiKey, baseURL string, routes []Route, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		routes:     routes,
		httpClient: httpkit.NewClient(),
		logger:     logger.With("component", "commute"),
	}
}

// Demo reports whether the client returns demo data.
func (c *Client) Demo() bool {
	return c.apiKey == ""
}

// Fetch returns estimates for all routes. A route that fails is logged
// and omitted; Fetch fails when no route could be computed.
func (c *Client) Fetch(ctx context.Context) (*Report, error) {
	if len(c.routes) == 0 {
		return nil, fmt.Errorf("no commute routes configured")
	}
	if c.Demo() {
		return demoReport(c.routes), nil
	}

	report := &Report{Commutes: []Commute{}}
	var lastErr error
	for _, r := range c.routes {
		est, err := c.fetchRoute(ctx, r)
		if err != nil {
			c.logger.Warn("route estimate failed", "route", r.Name, "error", err)
			lastErr = err
			continue
		}
		report.Commutes = append(report.Commutes, *est)
	}
	if len(report.Commutes) == 0 {
		return nil, fmt.Errorf("all %d routes failed: %w", len(c.routes), lastErr)
	}
	return report, nil
}

type routingResponse struct {
	Routes []struct {
		Summary struct {
			TravelTimeInSeconds   int `json:"travelTimeInSeconds"`
			TrafficDelayInSeconds int `json:"trafficDelayInSeconds"`
		} `json:"summary"`
	} `json:"routes"`
}

func (c *Client) fetchRoute(ctx context.Context, r Route) (*Commute, error) {
	locations := strings.ReplaceAll(r.Origin, " ", "") + ":" + strings.ReplaceAll(r.Destination, " ", "")
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("traffic", "true")
	q.Set("travelMode", "car")
	q.Set("routeType", "fastest")

	endpoint := c.baseURL + "/routing/1/calculateRoute/" + locations + "/json?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calculate route: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if err := httpkit.CheckStatus(resp); err != nil {
		return nil, err
	}

	var rr routingResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode route: %w", err)
	}
	if len(rr.Routes) == 0 {
		return nil, fmt.Errorf("no route between %s and %s", r.Origin, r.Destination)
	}

	s := rr.Routes[0].Summary
	delay := minutes(s.TrafficDelayInSeconds)
	return &Commute{
		Name:                r.Name,
		DurationMinutes:     minutes(s.TravelTimeInSeconds),
		TrafficDelayMinutes: delay,
		TrafficStatus:       Classify(delay),
	}, nil
}

func minutes(seconds int) int {
	return int(math.Round(float64(seconds) / 60))
}

// demoReport returns stable, plausible estimates for each route.
func demoReport(routes []Route) *Report {
	report := &Report{Commutes: make([]Commute, 0, len(routes)), IsDemo: true}
	for i, r := range routes {
		delay := 3 + 4*i
		report.Commutes = append(report.Commutes, Commute{
			Name:                r.Name,
			DurationMinutes:     22 + delay,
			TrafficDelayMinutes: delay,
			TrafficStatus:       Classify(delay),
		})
	}
	return report
}

// Window is the part of the week in which commute data is worth
// fetching: weekdays with StartHour <= local hour < EndHour.
type Window struct {
	StartHour int
	EndHour   int
}

// Contains reports whether t (already in local time) falls inside the
// window.
func (w Window) Contains(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}
