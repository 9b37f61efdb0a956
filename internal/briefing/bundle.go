// Package briefing composes the one-paragraph daily briefing shown on
// a display. A [Generator] gathers context from independent sources,
// derives [ModeFlags], asks the generative backend for text and falls
// back to the deterministic [Compose] whenever that is not possible.
package briefing

import (
	"time"

	"github.com/nugget/daybreak/internal/calendar"
	"github.com/nugget/daybreak/internal/commute"
	"github.com/nugget/daybreak/internal/news"
	"github.com/nugget/daybreak/internal/weather"
)

// ContextBundle is the snapshot gathered for one summary. Any field
// may be nil when its source is disabled, failed or (for commute) was
// not due. Treat it as read-only once built.
type ContextBundle struct {
	Weather  *weather.Report
	Calendar *calendar.Agenda
	News     *news.Digest
	Commute  *commute.Report
}

// TodayEvents returns today's events, or nil when the calendar is absent.
func (b *ContextBundle) TodayEvents() []calendar.Event {
	if b == nil || b.Calendar == nil {
		return nil
	}
	return b.Calendar.TodayEvents
}

// SummaryResult is what the display receives.
type SummaryResult struct {
	Greeting    string    `json:"greeting"`
	Summary     string    `json:"summary"`
	LastUpdated time.Time `json:"lastUpdated"`
}
