package briefing

import (
	"time"

	"github.com/nugget/daybreak/internal/behavior"
)

// Greeting is the time-of-day bucket used to open the briefing.
type Greeting string

const (
	GreetingMorning   Greeting = "morning"
	GreetingAfternoon Greeting = "afternoon"
	GreetingEvening   Greeting = "evening"
	GreetingNight     Greeting = "night"
)

// Phrase returns the spoken greeting, e.g. "Good morning".
func (g Greeting) Phrase() string {
	switch g {
	case GreetingMorning:
		return "Good morning"
	case GreetingAfternoon:
		return "Good afternoon"
	case GreetingEvening:
		return "Good evening"
	default:
		return "Good night"
	}
}

// GreetingFor buckets a local wall-clock hour:
// [5,12) morning, [12,17) afternoon, [17,21) evening, otherwise night.
func GreetingFor(hour int) Greeting {
	switch {
	case hour >= 5 && hour < 12:
		return GreetingMorning
	case hour >= 12 && hour < 17:
		return GreetingAfternoon
	case hour >= 17 && hour < 21:
		return GreetingEvening
	default:
		return GreetingNight
	}
}

// AdvisoryKind is a weather condition worth calling out.
type AdvisoryKind string

const (
	AdvisoryFreezing AdvisoryKind = "freezing"
	AdvisoryHot      AdvisoryKind = "hot"
	AdvisoryWindy    AdvisoryKind = "windy"
)

// StressEventThreshold is the number of events today that makes it a
// busy day.
const StressEventThreshold = 5

// Default advisory thresholds. Temperatures are °F, wind is mph.
const (
	DefaultPrecipitationThreshold = 50
	DefaultFreezingCutoffF        = 32.0
	DefaultHotCutoffF             = 95.0
	DefaultWindyCutoffMPH         = 25.0
)

// Thresholds tunes the weather advisories.
type Thresholds struct {
	// PrecipitationPercent: an advisory is raised when today's
	// probability is strictly greater.
	PrecipitationPercent int
	// FreezingBelowF: current temperature strictly below.
	FreezingBelowF float64
	// HotAtF: current temperature at or above.
	HotAtF float64
	// WindyAtMPH: current wind speed at or above.
	WindyAtMPH float64
}

// DefaultThresholds returns the built-in advisory cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PrecipitationPercent: DefaultPrecipitationThreshold,
		FreezingBelowF:       DefaultFreezingCutoffF,
		HotAtF:               DefaultHotCutoffF,
		WindyAtMPH:           DefaultWindyCutoffMPH,
	}
}

// ModeFlags are derived once per summary. Advisory fields are nil when
// no advisory applies, including when weather is absent.
type ModeFlags struct {
	Greeting              Greeting
	Weekday               time.Weekday
	StressMode            bool
	CelebrationMode       bool
	PrecipitationAdvisory *int
	TemperatureAdvisory   *AdvisoryKind
}

// Evaluate derives mode flags. It performs no I/O; now must already be
// in the display's local time zone.
func Evaluate(bundle *ContextBundle, settings behavior.Settings, now time.Time, th Thresholds) ModeFlags {
	flags := ModeFlags{
		Greeting: GreetingFor(now.Hour()),
		Weekday:  now.Weekday(),
	}

	if settings.StressAware && len(bundle.TodayEvents()) >= StressEventThreshold {
		flags.StressMode = true
	}
	if settings.CelebrationMode {
		switch now.Weekday() {
		case time.Saturday, time.Sunday:
			flags.CelebrationMode = true
		}
	}

	if bundle == nil || bundle.Weather == nil {
		return flags
	}

	if today, ok := bundle.Weather.Today(); ok && today.PrecipitationProbability > th.PrecipitationPercent {
		p := today.PrecipitationProbability
		flags.PrecipitationAdvisory = &p
	}

	cur := bundle.Weather.Current
	var kind AdvisoryKind
	switch {
	case cur.Temperature < th.FreezingBelowF:
		kind = AdvisoryFreezing
	case cur.Temperature >= th.HotAtF:
		kind = AdvisoryHot
	case cur.WindSpeed >= th.WindyAtMPH:
		kind = AdvisoryWindy
	}
	if kind != "" {
		flags.TemperatureAdvisory = &kind
	}
	return flags
}
