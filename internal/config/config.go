// Package config handles Daybreak configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/daybreak/config.yaml, /etc/daybreak/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "daybreak", "config.yaml"))
	}

	paths = append(paths, "/etc/daybreak/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Daybreak configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	Location  LocationConfig `yaml:"location"`
	AI        AIConfig       `yaml:"ai"`
	Weather   WeatherConfig  `yaml:"weather"`
	Calendar  CalendarConfig `yaml:"calendar"`
	News      NewsConfig     `yaml:"news"`
	Commute   CommuteConfig  `yaml:"commute"`
	Briefing  BriefingConfig `yaml:"briefing"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	DataDir   string         `yaml:"data_dir"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LocationConfig places the display in the world. Latitude and
// longitude feed the weather provider; Timezone decides which local
// hour the greeting and commute window are evaluated against.
type LocationConfig struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Timezone  string  `yaml:"timezone"` // IANA name; empty means system local
}

// AIConfig defines the generative backend. The backend speaks the
// OpenAI chat completions dialect (OpenRouter and compatible gateways).
type AIConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	SiteURL      string `yaml:"site_url"`  // sent as HTTP-Referer
	SiteName     string `yaml:"site_name"` // sent as X-Title
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// Configured reports whether a credential is present. Without one the
// AI path is skipped entirely.
func (c AIConfig) Configured() bool {
	return c.APIKey != ""
}

// WeatherConfig defines the Open-Meteo forecast endpoint.
type WeatherConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

// CalendarConfig defines the CalDAV calendar to read events from.
type CalendarConfig struct {
	URL          string `yaml:"url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	CalendarPath string `yaml:"calendar_path"`
}

// Configured reports whether a CalDAV endpoint was supplied.
func (c CalendarConfig) Configured() bool {
	return c.URL != ""
}

// NewsConfig lists the RSS/Atom feeds that supply headlines.
type NewsConfig struct {
	Feeds       []FeedConfig `yaml:"feeds"`
	MaxArticles int          `yaml:"max_articles"`
}

// FeedConfig is a single news feed.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// CommuteConfig defines the traffic routing client and the routes to
// report on. An empty APIKey puts the client in demo mode.
type CommuteConfig struct {
	Enabled          bool          `yaml:"enabled"`
	APIKey           string        `yaml:"api_key"`
	BaseURL          string        `yaml:"base_url"`
	Routes           []RouteConfig `yaml:"routes"`
	MorningStartHour int           `yaml:"morning_start_hour"`
	MorningEndHour   int           `yaml:"morning_end_hour"`
}

// RouteConfig is a named origin/destination pair in "lat,lon" form.
type RouteConfig struct {
	Name        string `yaml:"name"`
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
}

// BriefingConfig tunes summary composition.
type BriefingConfig struct {
	PrecipitationThreshold int     `yaml:"precipitation_threshold"` // percent
	FreezingCutoffF        float64 `yaml:"freezing_cutoff_f"`
	HotCutoffF             float64 `yaml:"hot_cutoff_f"`
	WindyCutoffMPH         float64 `yaml:"windy_cutoff_mph"`
	ProviderTimeoutSec     int     `yaml:"provider_timeout_sec"`
	SettingsTTLSec         int     `yaml:"settings_ttl_sec"`
}

// ProviderTimeout returns the per-source fetch deadline.
func (c BriefingConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

// SettingsTTL returns the behavior settings cache lifetime.
func (c BriefingConfig) SettingsTTL() time.Duration {
	return time.Duration(c.SettingsTTLSec) * time.Second
}

// MQTTConfig defines the optional MQTT publisher that exposes the
// current summary to Home Assistant as sensor entities.
type MQTTConfig struct {
	Broker             string `yaml:"broker"` // e.g. mqtt://host:1883 or mqtts://host:8883
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	DeviceName         string `yaml:"device_name"`
	DiscoveryPrefix    string `yaml:"discovery_prefix"`
	PublishIntervalSec int    `yaml:"publish_interval_sec"`
}

// Configured reports whether a broker URL was supplied.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file. A .env file next to the
// config (if present) is loaded into the environment first so that
// ${VAR} references resolve.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration with weather enabled and
// every other source off.
func Default() *Config {
	cfg := &Config{
		Weather: WeatherConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./db"
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.AI.DefaultModel == "" {
		c.AI.DefaultModel = "anthropic/claude-3-haiku"
	}
	if c.AI.SiteName == "" {
		c.AI.SiteName = "Daybreak"
	}
	if c.AI.TimeoutSec == 0 {
		c.AI.TimeoutSec = 30
	}
	if c.Weather.BaseURL == "" {
		c.Weather.BaseURL = "https://api.open-meteo.com"
	}
	if c.News.MaxArticles == 0 {
		c.News.MaxArticles = 5
	}
	if c.Commute.BaseURL == "" {
		c.Commute.BaseURL = "https://api.tomtom.com"
	}
	if c.Commute.MorningStartHour == 0 && c.Commute.MorningEndHour == 0 {
		c.Commute.MorningStartHour = 6
		c.Commute.MorningEndHour = 10
	}
	if c.Briefing.PrecipitationThreshold == 0 {
		c.Briefing.PrecipitationThreshold = 50
	}
	if c.Briefing.FreezingCutoffF == 0 {
		c.Briefing.FreezingCutoffF = 32
	}
	if c.Briefing.HotCutoffF == 0 {
		c.Briefing.HotCutoffF = 95
	}
	if c.Briefing.WindyCutoffMPH == 0 {
		c.Briefing.WindyCutoffMPH = 25
	}
	if c.Briefing.ProviderTimeoutSec == 0 {
		c.Briefing.ProviderTimeoutSec = 15
	}
	if c.Briefing.SettingsTTLSec == 0 {
		c.Briefing.SettingsTTLSec = 300
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "daybreak"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.PublishIntervalSec == 0 {
		c.MQTT.PublishIntervalSec = 300
	}
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	if c.Location.Timezone != "" {
		if _, err := time.LoadLocation(c.Location.Timezone); err != nil {
			return fmt.Errorf("location.timezone %q: %w", c.Location.Timezone, err)
		}
	}
	if c.Commute.MorningStartHour < 0 || c.Commute.MorningEndHour > 24 ||
		c.Commute.MorningStartHour >= c.Commute.MorningEndHour {
		return fmt.Errorf("commute morning window %d-%d is invalid",
			c.Commute.MorningStartHour, c.Commute.MorningEndHour)
	}
	if p := c.Briefing.PrecipitationThreshold; p < 0 || p > 100 {
		return fmt.Errorf("briefing.precipitation_threshold %d out of range 0-100", p)
	}
	for i, r := range c.Commute.Routes {
		if r.Origin == "" || r.Destination == "" {
			return fmt.Errorf("commute.routes[%d] (%s): origin and destination are required", i, r.Name)
		}
	}
	for i, f := range c.News.Feeds {
		if f.URL == "" {
			return fmt.Errorf("news.feeds[%d] (%s): url is required", i, f.Name)
		}
	}
	return nil
}

// TimeLocation resolves the configured timezone, falling back to the
// system local zone. Validate has already rejected unknown names.
func (c *Config) TimeLocation() *time.Location {
	if c.Location.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Location.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
