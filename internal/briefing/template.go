package briefing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/calendar"
	"github.com/nugget/daybreak/internal/weather"
)

// GreetingText returns the greeting line without trailing punctuation,
// e.g. "Good morning, Alex and Sam".
func GreetingText(modes ModeFlags, settings behavior.Settings) string {
	g := modes.Greeting.Phrase()
	if len(settings.UserNames) > 0 {
		g += ", " + joinNames(settings.UserNames)
	}
	return g
}

// Compose builds the briefing from the data at hand. It is pure and
// total: the same inputs always give the same text, and the result is
// never empty. Clauses appear in a fixed order: greeting, weather,
// precipitation, calendar, commute, news.
func Compose(bundle *ContextBundle, modes ModeFlags, settings behavior.Settings) string {
	end := "!"
	if settings.Tone == behavior.ToneFormal {
		end = "."
	}

	parts := []string{GreetingText(modes, settings) + end}
	if modes.CelebrationMode {
		parts = append(parts, "Happy "+modes.Weekday.String()+end)
	}

	if bundle != nil && bundle.Weather != nil {
		cur := bundle.Weather.Current
		parts = append(parts, fmt.Sprintf("It's %d° and %s.",
			roundTemp(cur.Temperature), weather.Describe(cur.WeatherCode)))
		if modes.TemperatureAdvisory != nil {
			parts = append(parts, advisoryPhrase(*modes.TemperatureAdvisory))
		}
	}

	if modes.PrecipitationAdvisory != nil {
		p := *modes.PrecipitationAdvisory
		parts = append(parts, fmt.Sprintf("There's %s %d%% chance of precipitation today.", articleFor(p), p))
	}

	if bundle != nil && bundle.Calendar != nil {
		parts = append(parts, calendarClause(bundle.Calendar.TodayEvents))
		if modes.StressMode {
			parts = append(parts, "It's a full day, so take it one thing at a time.")
		}
	}

	if bundle != nil && bundle.Commute != nil && len(bundle.Commute.Commutes) > 0 {
		parts = append(parts, commuteClause(bundle))
	}

	if bundle != nil && bundle.News != nil && len(bundle.News.Articles) > 0 {
		if h := headline(bundle.News.Articles[0].Title); h != "" {
			parts = append(parts, "In the news: "+h+".")
		}
	}

	return strings.Join(parts, " ")
}

func calendarClause(events []calendar.Event) string {
	switch len(events) {
	case 0:
		return "Your calendar is clear today."
	case 1:
		return "You have 1 event on your calendar today: " + strings.TrimSpace(events[0].Title) + "."
	default:
		return fmt.Sprintf("You have %d events on your calendar today.", len(events))
	}
}

func commuteClause(bundle *ContextBundle) string {
	c := bundle.Commute.Commutes[0]
	subject := "Your commute"
	if c.Name != "" {
		subject += " to " + c.Name
	}
	if c.TrafficDelayMinutes <= 0 {
		return fmt.Sprintf("%s is %s with %s traffic.", subject, minutesText(c.DurationMinutes), c.TrafficStatus)
	}
	return fmt.Sprintf("%s is %s, including %s of %s traffic.",
		subject, minutesText(c.DurationMinutes), minutesText(c.TrafficDelayMinutes), c.TrafficStatus)
}

func advisoryPhrase(k AdvisoryKind) string {
	switch k {
	case AdvisoryFreezing:
		return "Bundle up, it's below freezing."
	case AdvisoryHot:
		return "Stay cool, it's a hot one."
	case AdvisoryWindy:
		return "Hold on to your hat, it's windy out."
	}
	return ""
}

func minutesText(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return strconv.Itoa(n) + " minutes"
}

// headline trims a title and drops trailing sentence punctuation so it
// can be closed with a period.
func headline(title string) string {
	return strings.TrimRight(strings.TrimSpace(title), ".!?;: ")
}

func roundTemp(f float64) int {
	return int(math.Round(f))
}

// articleFor picks "a" or "an" for a spoken percentage: an 8%, an 11%,
// an 18%, an 80-89%.
func articleFor(n int) string {
	s := strconv.Itoa(n)
	if strings.HasPrefix(s, "8") || n == 11 || n == 18 {
		return "an"
	}
	return "a"
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
