// Package weather fetches current conditions and a short daily forecast
// from the Open-Meteo forecast API. Units are fixed to Fahrenheit and
// miles per hour.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nugget/daybreak/internal/httpkit"
)

// Current is the conditions at the time of the request.
type Current struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	WeatherCode int     `json:"weatherCode"`
	IsDay       bool    `json:"isDay"`
}

// Day is one day of the daily forecast.
type Day struct {
	Date                     string  `json:"date"` // YYYY-MM-DD, local to the forecast location
	TempHigh                 float64 `json:"tempHigh"`
	TempLow                  float64 `json:"tempLow"`
	WeatherCode              int     `json:"weatherCode"`
	PrecipitationProbability int     `json:"precipitationProbability"`
}

// Report is a weather snapshot. Daily[0] is today.
type Report struct {
	Current  Current `json:"current"`
	Daily    []Day   `json:"daily"`
	Location string  `json:"location"`
}

// Today returns today's forecast, if the report carries one.
func (r *Report) Today() (Day, bool) {
	if r == nil || len(r.Daily) == 0 {
		return Day{}, false
	}
	return r.Daily[0], true
}

// Tomorrow returns tomorrow's forecast, if the report carries one.
func (r *Report) Tomorrow() (Day, bool) {
	if r == nil || len(r.Daily) < 2 {
		return Day{}, false
	}
	return r.Daily[1], true
}

// Client queries Open-Meteo for one fixed location.
type Client struct {
	baseURL    string
	latitude   float64
	longitude  float64
	location   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a weather client for the given coordinates.
func NewClient(baseURL string, latitude, longitude float64, location string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		latitude:   latitude,
		longitude:  longitude,
		location:   location,
		httpClient: httpkit.NewClient(),
		logger:     logger.With("component", "weather"),
	}
}

// forecastResponse mirrors the subset of the Open-Meteo payload we use.
// Daily values are parallel arrays indexed by day.
type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		FeelsLike   float64 `json:"apparent_temperature"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
		IsDay       int     `json:"is_day"`
	} `json:"current"`
	Daily struct {
		Time          []string   `json:"time"`
		WeatherCode   []int      `json:"weather_code"`
		TempMax       []float64  `json:"temperature_2m_max"`
		TempMin       []float64  `json:"temperature_2m_min"`
		PrecipProbMax []*float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

// Fetch retrieves the current report.
func (c *Client) Fetch(ctx context.Context) (*Report, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(c.longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,weather_code,is_day")
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("wind_speed_unit", "mph")
	q.Set("timezone", "auto")
	q.Set("forecast_days", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if err := httpkit.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}

	report := toReport(&fr)
	report.Location = c.location

	c.logger.Debug("forecast fetched",
		"temperature", report.Current.Temperature,
		"code", report.Current.WeatherCode,
		"days", len(report.Daily),
	)
	return report, nil
}

func toReport(fr *forecastResponse) *Report {
	r := &Report{
		Current: Current{
			Temperature: fr.Current.Temperature,
			FeelsLike:   fr.Current.FeelsLike,
			Humidity:    fr.Current.Humidity,
			WindSpeed:   fr.Current.WindSpeed,
			WeatherCode: fr.Current.WeatherCode,
			IsDay:       fr.Current.IsDay == 1,
		},
		Daily: []Day{},
	}

	d := fr.Daily
	for i, date := range d.Time {
		day := Day{Date: date}
		if i < len(d.WeatherCode) {
			day.WeatherCode = d.WeatherCode[i]
		}
		if i < len(d.TempMax) {
			day.TempHigh = d.TempMax[i]
		}
		if i < len(d.TempMin) {
			day.TempLow = d.TempMin[i]
		}
		if i < len(d.PrecipProbMax) && d.PrecipProbMax[i] != nil {
			day.PrecipitationProbability = int(math.Round(*d.PrecipProbMax[i]))
		}
		r.Daily = append(r.Daily, day)
	}
	return r
}
