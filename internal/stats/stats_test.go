package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"beacontrack/internal/roster"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clock(h, m int) roster.TimeOfDay {
	return roster.TimeOfDay(h*3600 + m*60)
}

// fact builds a beacon-covered CS101 instance, 09:00-10:00.
func fact(day time.Time, attended bool) roster.InstanceFact {
	since := date(2020, time.January, 1)
	return roster.InstanceFact{
		ClassCode:   "CS101",
		Date:        day,
		Start:       clock(9, 0),
		End:         clock(10, 0),
		BeaconSince: &since,
		Attended:    attended,
	}
}

var (
	registered = date(2023, time.September, 1)
	// Mondays in January 2024.
	jan1  = date(2024, time.January, 1)
	jan8  = date(2024, time.January, 8)
	jan15 = date(2024, time.January, 15)
	// Well past all of them.
	later = time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC)
)

func TestPercentageVacuouslyPerfect(t *testing.T) {
	assert.Equal(t, 100.0, Percentage(nil, registered, later))

	// Instances that all fail eligibility also count as no opportunity.
	uncovered := fact(jan1, true)
	uncovered.BeaconSince = nil
	assert.Equal(t, 100.0, Percentage([]roster.InstanceFact{uncovered}, registered, later))
}

func TestPercentageTwoOfThree(t *testing.T) {
	facts := []roster.InstanceFact{fact(jan1, true), fact(jan8, false), fact(jan15, true)}
	assert.Equal(t, 66.67, Percentage(facts, registered, later))
}

func TestStreakEndsAtFirstMiss(t *testing.T) {
	facts := []roster.InstanceFact{fact(jan1, true), fact(jan8, true), fact(jan15, false)}
	streaks := Streaks(facts, registered, later)
	assert.Equal(t, []Streak{{Start: jan1, End: jan15}}, streaks)
	assert.Equal(t, "2024-01-01/2024-01-15", streaks[0].String())
	assert.Equal(t, 14, streaks[0].Days())
}

func TestStreakClosesAtLastInstanceWhenConcluded(t *testing.T) {
	// Attended, missed, attended; no later meetings scheduled. The open
	// run after jan15 closes at jan15 itself.
	facts := []roster.InstanceFact{fact(jan1, true), fact(jan8, false), fact(jan15, true)}
	streaks := Streaks(facts, registered, later)
	assert.Equal(t, []Streak{
		{Start: jan1, End: jan8},
		{Start: jan15, End: jan15},
	}, streaks)
	assert.Equal(t, 0, streaks[1].Days())
}

func TestStreakStillRunningClosesAtToday(t *testing.T) {
	// A future instance is scheduled, so the streak is current and the
	// closing bound is today, not the last attended date.
	future := fact(date(2024, time.February, 5), false)
	facts := []roster.InstanceFact{fact(jan1, true), fact(jan8, true), future}
	streaks := Streaks(facts, registered, later)
	assert.Equal(t, []Streak{{Start: jan1, End: date(2024, time.February, 1)}}, streaks)
}

func TestStreakLookAheadIgnoresConcludedFilter(t *testing.T) {
	// The future instance is not eligible for iteration (not concluded)
	// but must still drive the closing bound. If the look-ahead reused
	// the concluded filter, the streak would wrongly close at jan8.
	future := fact(date(2024, time.February, 5), false)
	facts := []roster.InstanceFact{fact(jan8, true), future}

	eligible := Eligible(facts, registered, later)
	assert.Len(t, eligible, 1)

	streaks := Streaks(facts, registered, later)
	assert.Equal(t, []Streak{{Start: jan8, End: date(2024, time.February, 1)}}, streaks)
}

func TestBeaconlessRoomExcluded(t *testing.T) {
	uncovered := fact(jan8, true)
	uncovered.BeaconSince = nil
	facts := []roster.InstanceFact{fact(jan1, true), uncovered, fact(jan15, true)}

	assert.Equal(t, 100.0, Percentage(facts, registered, later))
	// The uncovered miss-candidate never appears, so one unbroken run.
	assert.Equal(t, []Streak{{Start: jan1, End: jan15}}, Streaks(facts, registered, later))
}

func TestBeaconInstalledAfterInstanceExcluded(t *testing.T) {
	f := fact(jan1, true)
	since := jan8
	f.BeaconSince = &since
	assert.Empty(t, Eligible([]roster.InstanceFact{f}, registered, later))
}

func TestRegistrationCutoff(t *testing.T) {
	early := fact(date(2023, time.August, 28), true)
	facts := []roster.InstanceFact{early, fact(jan1, false)}

	eligible := Eligible(facts, registered, later)
	assert.Len(t, eligible, 1)
	assert.Equal(t, jan1, eligible[0].Date)
	assert.Equal(t, 0.0, Percentage(facts, registered, later))
}

func TestConcludedTodayByEndTime(t *testing.T) {
	today := fact(jan8, true)

	beforeEnd := time.Date(2024, time.January, 8, 9, 30, 0, 0, time.UTC)
	assert.Empty(t, Eligible([]roster.InstanceFact{today}, registered, beforeEnd))

	atEnd := time.Date(2024, time.January, 8, 10, 0, 0, 0, time.UTC)
	assert.Len(t, Eligible([]roster.InstanceFact{today}, registered, atEnd), 1)
}

func TestOverallScopeInterleavesClasses(t *testing.T) {
	// A miss in MATH2 on jan8 breaks the overall run even though CS101
	// itself was never missed.
	math := fact(jan8, false)
	math.ClassCode = "MATH2"
	math.Start = clock(11, 0)
	math.End = clock(12, 0)
	facts := []roster.InstanceFact{fact(jan1, true), math, fact(jan15, true)}

	assert.Equal(t, []Streak{
		{Start: jan1, End: jan8},
		{Start: jan15, End: jan15},
	}, Streaks(facts, registered, later))
}

func TestEndToEndExample(t *testing.T) {
	// CS101 every Monday 09:00-10:00 across three dates, attended on the
	// first and third.
	facts := []roster.InstanceFact{fact(jan1, true), fact(jan8, false), fact(jan15, true)}
	report := Compute(facts, registered, later)

	assert.Equal(t, 66.67, report.Percentage)
	assert.Equal(t, []Streak{
		{Start: jan1, End: jan8},
		{Start: jan15, End: jan15},
	}, report.Streaks)
}

func TestStreakJSONForm(t *testing.T) {
	data, err := Streak{Start: jan1, End: jan15}.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"2024-01-01/2024-01-15"`, string(data))
}
