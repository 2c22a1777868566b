// Package stats computes attendance percentages and streaks from a
// student's meeting-instance history. All computation is pure and
// re-evaluated per read: "now" advances and beacon rollout is ongoing, so
// nothing here is cached.
package stats

import (
	"math"
	"sort"
	"time"

	"beacontrack/internal/roster"
)

// Streak is a maximal run of consecutive eligible instances the student
// attended. End is the date of the first missed instance after the run
// (or the closing bound for a still-open run), not the last attended
// date.
type Streak struct {
	Start time.Time
	End   time.Time
}

// String renders the ISO-8601 interval shorthand, e.g.
// "2024-01-01/2024-01-15". Existing clients round-trip this form.
func (s Streak) String() string {
	return s.Start.Format("2006-01-02") + "/" + s.End.Format("2006-01-02")
}

// Days is the streak length; a single-day streak has length zero.
func (s Streak) Days() int {
	return int(s.End.Sub(s.Start).Hours() / 24)
}

// MarshalJSON emits the interval form.
func (s Streak) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Report bundles the two statistics for one scope.
type Report struct {
	Percentage float64  `json:"percentage"`
	Streaks    []Streak `json:"streaks"`
}

// countable reports whether an instance can ever produce an attendance
// signal: dated on or after registration, in a room with a beacon
// installed by that date. It deliberately ignores whether the instance
// has concluded.
func countable(f roster.InstanceFact, registeredOn time.Time) bool {
	if f.Date.Before(roster.DateOf(registeredOn)) {
		return false
	}
	return f.BeaconSince != nil && !f.BeaconSince.After(f.Date)
}

// concluded reports whether the instance is over relative to now: a past
// date, or today with the clock at or past the meeting's end.
func concluded(f roster.InstanceFact, now time.Time) bool {
	today := roster.DateOf(now)
	if f.Date.Before(today) {
		return true
	}
	return f.Date.Equal(today) && roster.ClockOf(now.UTC()) >= f.End
}

// Eligible selects the instances that count toward statistics right now,
// ascending by date then start time.
func Eligible(facts []roster.InstanceFact, registeredOn, now time.Time) []roster.InstanceFact {
	var out []roster.InstanceFact
	for _, f := range facts {
		if countable(f, registeredOn) && concluded(f, now) {
			out = append(out, f)
		}
	}
	sortFacts(out)
	return out
}

// Percentage is attended/eligible*100, rounded to two decimals. Zero
// eligible instances means 100.0: no opportunity to miss is vacuously
// perfect, a policy callers must preserve.
func Percentage(facts []roster.InstanceFact, registeredOn, now time.Time) float64 {
	eligible := Eligible(facts, registeredOn, now)
	if len(eligible) == 0 {
		return 100.0
	}
	attended := 0
	for _, f := range eligible {
		if f.Attended {
			attended++
		}
	}
	return math.Round(float64(attended)/float64(len(eligible))*10000) / 100
}

// Streaks runs a single pass over the eligible instances in date order,
// opening a streak at the first attended instance and closing it at the
// first miss. A run still open after the pass closes at today's date when
// a later countable instance is scheduled (the streak is current), else
// at the last countable instance's date (the scope has no more meetings).
// That closing bound intentionally looks at instances not yet concluded;
// only the iteration itself applies the concluded cutoff.
func Streaks(facts []roster.InstanceFact, registeredOn, now time.Time) []Streak {
	var streaks []Streak
	var open *time.Time
	for _, f := range Eligible(facts, registeredOn, now) {
		switch {
		case f.Attended && open == nil:
			d := f.Date
			open = &d
		case !f.Attended && open != nil:
			streaks = append(streaks, Streak{Start: *open, End: f.Date})
			open = nil
		}
	}
	if open == nil {
		return streaks
	}

	var last time.Time
	for _, f := range facts {
		if countable(f, registeredOn) && f.Date.After(last) {
			last = f.Date
		}
	}
	end := last
	if today := roster.DateOf(now); last.After(today) {
		end = today
	}
	return append(streaks, Streak{Start: *open, End: end})
}

// Compute builds the full report for one scope. Scope selection (one
// class or all, chronologically merged) happens at load time; the
// computation is identical either way.
func Compute(facts []roster.InstanceFact, registeredOn, now time.Time) Report {
	return Report{
		Percentage: Percentage(facts, registeredOn, now),
		Streaks:    Streaks(facts, registeredOn, now),
	}
}

func sortFacts(facts []roster.InstanceFact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if !facts[i].Date.Equal(facts[j].Date) {
			return facts[i].Date.Before(facts[j].Date)
		}
		return facts[i].Start < facts[j].Start
	})
}
