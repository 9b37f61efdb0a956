package briefing

import (
	"fmt"
	"math"
	"strings"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/calendar"
	"github.com/nugget/daybreak/internal/llm"
	"github.com/nugget/daybreak/internal/prompts"
	"github.com/nugget/daybreak/internal/weather"
)

const (
	maxPromptEvents    = 5
	maxPromptHeadlines = 3
)

// buildMessages renders the system and user messages for one briefing.
func buildMessages(bundle *ContextBundle, modes ModeFlags, settings behavior.Settings) []llm.Message {
	style := prompts.BriefingStyle{
		Tone:               string(settings.Tone),
		Humor:              string(settings.Humor),
		Verbosity:          string(settings.Verbosity),
		ToneOverride:       toneOverride(modes.Greeting, settings),
		UserNames:          settings.UserNames,
		CustomInstructions: settings.CustomInstructions,
		StressMode:         modes.StressMode,
		CelebrationMode:    modes.CelebrationMode,
	}
	return []llm.Message{
		llm.SystemMessage(prompts.BriefingSystemPrompt(style)),
		llm.UserMessage(prompts.BriefingUserPrompt(GreetingText(modes, settings), facts(bundle, modes))),
	}
}

func toneOverride(g Greeting, s behavior.Settings) string {
	switch g {
	case GreetingMorning:
		return s.MorningTone
	case GreetingEvening, GreetingNight:
		return s.EveningTone
	}
	return ""
}

// facts flattens the bundle into short factual lines. Absent sources
// contribute nothing.
func facts(bundle *ContextBundle, modes ModeFlags) []string {
	var out []string
	if bundle == nil {
		return out
	}

	if w := bundle.Weather; w != nil {
		c := w.Current
		out = append(out, fmt.Sprintf("Current weather: %d°F and %s, feels like %d°F, wind %d mph.",
			roundTemp(c.Temperature), weather.Describe(c.WeatherCode), roundTemp(c.FeelsLike), int(math.Round(c.WindSpeed))))
		if today, ok := w.Today(); ok {
			out = append(out, fmt.Sprintf("Today: high %d°F, low %d°F.", roundTemp(today.TempHigh), roundTemp(today.TempLow)))
		}
		if modes.TemperatureAdvisory != nil {
			out = append(out, "Weather advisory: "+string(*modes.TemperatureAdvisory)+".")
		}
	}
	if modes.PrecipitationAdvisory != nil {
		out = append(out, fmt.Sprintf("Chance of precipitation today: %d%%.", *modes.PrecipitationAdvisory))
	}

	if cal := bundle.Calendar; cal != nil {
		out = append(out, eventsFact(cal.TodayEvents))
		if len(cal.TomorrowEvents) > 0 {
			out = append(out, "Tomorrow starts with: "+eventLabel(cal.TomorrowEvents[0])+".")
		}
	}

	if cm := bundle.Commute; cm != nil {
		for _, c := range cm.Commutes {
			out = append(out, fmt.Sprintf("Commute to %s: %d minutes, %d minutes of delay, %s traffic.",
				c.Name, c.DurationMinutes, c.TrafficDelayMinutes, c.TrafficStatus))
		}
	}

	if n := bundle.News; n != nil {
		for i, a := range n.Articles {
			if i == maxPromptHeadlines {
				break
			}
			line := "Headline: " + headline(a.Title)
			if a.Source != "" {
				line += " (" + a.Source + ")"
			}
			out = append(out, line+".")
		}
	}
	return out
}

func eventsFact(events []calendar.Event) string {
	if len(events) == 0 {
		return "Calendar today: no events."
	}
	labels := make([]string, 0, maxPromptEvents)
	for i, e := range events {
		if i == maxPromptEvents {
			labels = append(labels, fmt.Sprintf("and %d more", len(events)-maxPromptEvents))
			break
		}
		labels = append(labels, eventLabel(e))
	}
	noun := "events"
	if len(events) == 1 {
		noun = "event"
	}
	return fmt.Sprintf("Calendar today: %d %s: %s.", len(events), noun, strings.Join(labels, "; "))
}

func eventLabel(e calendar.Event) string {
	if e.AllDay {
		return e.Title + " (all day)"
	}
	return e.Title + " at " + e.Start.Format("3:04 PM")
}
