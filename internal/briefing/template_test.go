package briefing

import (
	"strings"
	"testing"
	"time"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/commute"
)

var monday8am = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func composeAt(bundle *ContextBundle, s behavior.Settings, now time.Time) string {
	return Compose(bundle, Evaluate(bundle, s, now, DefaultThresholds()), s)
}

func TestCompose_GreetingOnly(t *testing.T) {
	got := composeAt(&ContextBundle{}, behavior.Defaults("m"), monday8am)
	if got != "Good morning!" {
		t.Errorf("Compose = %q, want %q", got, "Good morning!")
	}

	got = composeAt(nil, settingsWith(func(s *behavior.Settings) { s.Tone = behavior.ToneFormal }),
		time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC))
	if got != "Good night." {
		t.Errorf("Compose(nil) = %q, want %q", got, "Good night.")
	}
}

func TestCompose_Names(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{[]string{"Alex"}, "Good morning, Alex!"},
		{[]string{"Alex", "Sam"}, "Good morning, Alex and Sam!"},
		{[]string{"Alex", "Sam", "Jo"}, "Good morning, Alex, Sam and Jo!"},
	}
	for _, tt := range tests {
		s := settingsWith(func(s *behavior.Settings) { s.UserNames = tt.names })
		if got := composeAt(&ContextBundle{}, s, monday8am); got != tt.want {
			t.Errorf("Compose(%v) = %q, want %q", tt.names, got, tt.want)
		}
	}
}

func TestCompose_WeatherScenario(t *testing.T) {
	bundle := &ContextBundle{
		Weather:  sampleWeather(72, 2, 10),
		Calendar: agendaWith("Team Meeting"),
	}
	s := settingsWith(func(s *behavior.Settings) { s.AIEnabled = false })

	got := composeAt(bundle, s, monday8am)
	for _, want := range []string{"72°", "partly cloudy", "1 event on your calendar today: Team Meeting"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "precipitation") {
		t.Errorf("summary %q mentions precipitation at 10%%", got)
	}
}

func TestCompose_Precipitation(t *testing.T) {
	s := behavior.Defaults("m")

	got := composeAt(&ContextBundle{Weather: sampleWeather(60, 61, 80)}, s, monday8am)
	if !strings.Contains(got, "There's an 80% chance of precipitation today.") {
		t.Errorf("summary %q missing precipitation clause", got)
	}

	got = composeAt(&ContextBundle{Weather: sampleWeather(60, 61, 60)}, s, monday8am)
	if !strings.Contains(got, "There's a 60% chance") {
		t.Errorf("summary %q has wrong article", got)
	}
}

func TestCompose_CalendarPluralization(t *testing.T) {
	s := behavior.Defaults("m")

	tests := []struct {
		name    string
		titles  []string
		want    string
		notWant string
	}{
		{"zero", nil, "Your calendar is clear today.", "event"},
		{"one", []string{"Team Meeting"}, "You have 1 event on your calendar today: Team Meeting.", ""},
		{"three", []string{"Standup", "Lunch", "Review"}, "You have 3 events on your calendar today.", "Review"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := composeAt(&ContextBundle{Calendar: agendaWith(tt.titles...)}, s, monday8am)
			if !strings.Contains(got, tt.want) {
				t.Errorf("summary %q missing %q", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("summary %q should not contain %q", got, tt.notWant)
			}
		})
	}
}

func TestCompose_StressAndCelebration(t *testing.T) {
	s := behavior.Defaults("m")
	saturday := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)

	got := composeAt(&ContextBundle{Calendar: agendaWith("a", "b", "c", "d", "e")}, s, saturday)
	if !strings.HasPrefix(got, "Good morning! Happy Saturday!") {
		t.Errorf("summary %q missing celebration", got)
	}
	if !strings.Contains(got, "You have 5 events") || !strings.Contains(got, "one thing at a time") {
		t.Errorf("summary %q missing stress clause", got)
	}
}

func TestCompose_Advisory(t *testing.T) {
	got := composeAt(&ContextBundle{Weather: sampleWeather(20.4, 71, 0)}, behavior.Defaults("m"), monday8am)
	if !strings.Contains(got, "It's 20° and snowing lightly. Bundle up, it's below freezing.") {
		t.Errorf("summary %q missing freezing advisory", got)
	}
}

func TestCompose_CommuteAndNews(t *testing.T) {
	bundle := &ContextBundle{
		Commute: &commute.Report{Commutes: []commute.Commute{{
			Name: "Work", DurationMinutes: 32, TrafficDelayMinutes: 7, TrafficStatus: commute.TrafficModerate,
		}}},
		News: digestWith("City council approves new park."),
	}
	got := composeAt(bundle, behavior.Defaults("m"), monday8am)

	want := "Good morning! Your commute to Work is 32 minutes, including 7 minutes of moderate traffic. In the news: City council approves new park."
	if got != want {
		t.Errorf("Compose =\n%q\nwant\n%q", got, want)
	}
}

func TestCompose_ClauseOrder(t *testing.T) {
	bundle := &ContextBundle{
		Weather:  sampleWeather(72, 2, 90),
		Calendar: agendaWith("Team Meeting"),
		Commute: &commute.Report{Commutes: []commute.Commute{{
			Name: "Work", DurationMinutes: 25, TrafficStatus: commute.TrafficLight,
		}}},
		News: digestWith("Headline"),
	}
	got := composeAt(bundle, behavior.Defaults("m"), monday8am)

	order := []string{"Good morning", "72°", "90% chance", "Team Meeting", "commute", "In the news"}
	last := -1
	for _, frag := range order {
		i := strings.Index(got, frag)
		if i < 0 {
			t.Fatalf("summary %q missing %q", got, frag)
		}
		if i < last {
			t.Errorf("%q out of order in %q", frag, got)
		}
		last = i
	}
	if !strings.Contains(got, "25 minutes with light traffic") {
		t.Errorf("zero-delay commute phrasing wrong: %q", got)
	}
}

func TestCompose_AbsentSourceDoesNotChangeOthers(t *testing.T) {
	s := behavior.Defaults("m")
	full := composeAt(&ContextBundle{Calendar: agendaWith("Team Meeting"), News: digestWith("Headline")}, s, monday8am)
	noNews := composeAt(&ContextBundle{Calendar: agendaWith("Team Meeting")}, s, monday8am)

	if !strings.HasPrefix(full, noNews) {
		t.Errorf("dropping news changed other clauses:\n%q\n%q", full, noNews)
	}
}

func TestCompose_Idempotent(t *testing.T) {
	bundle := &ContextBundle{
		Weather:  sampleWeather(72, 2, 80),
		Calendar: agendaWith("a", "b"),
		News:     digestWith("Headline"),
	}
	s := settingsWith(func(s *behavior.Settings) { s.UserNames = []string{"Alex"} })
	modes := Evaluate(bundle, s, monday8am, DefaultThresholds())

	first := Compose(bundle, modes, s)
	second := Compose(bundle, modes, s)
	if first != second {
		t.Errorf("Compose not deterministic:\n%q\n%q", first, second)
	}
}

func TestArticleFor(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{8, "an"}, {11, "an"}, {18, "an"}, {80, "an"}, {89, "an"},
		{51, "a"}, {60, "a"}, {100, "a"}, {90, "a"},
	}
	for _, tt := range tests {
		if got := articleFor(tt.n); got != tt.want {
			t.Errorf("articleFor(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
