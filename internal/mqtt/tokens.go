package mqtt

import (
	"sync"
	"time"
)

// DailyTally counts generated summaries and backend tokens, resetting
// at local midnight. It is safe for concurrent use.
type DailyTally struct {
	mu          sync.Mutex
	generations int64
	aiSummaries int64
	tokens      int64
	resetDay    int // day-of-year of last reset
	loc         *time.Location
	now         func() time.Time
}

// NewDailyTally creates a tally using loc for midnight detection. If
// loc is nil, [time.Local] is used.
func NewDailyTally(loc *time.Location) *DailyTally {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyTally{loc: loc, now: time.Now}
	d.resetDay = d.now().In(loc).YearDay()
	return d
}

// Observe records one generation. ai reports whether the backend wrote
// the text; tokens is the combined input and output count.
func (d *DailyTally) Observe(ai bool, tokens int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	d.generations++
	if ai {
		d.aiSummaries++
	}
	d.tokens += int64(tokens)
}

// Snapshot returns today's totals after checking for midnight rollover.
func (d *DailyTally) Snapshot() (generations, aiSummaries, tokens int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	return d.generations, d.aiSummaries, d.tokens
}

// maybeReset zeroes the counters if the local day has changed. Must be
// called with d.mu held.
func (d *DailyTally) maybeReset() {
	today := d.now().In(d.loc).YearDay()
	if today != d.resetDay {
		d.generations = 0
		d.aiSummaries = 0
		d.tokens = 0
		d.resetDay = today
	}
}
