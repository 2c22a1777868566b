package timetable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacontrack/internal/roster"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// lecture builds a canonical event for the given course and date.
func lecture(course string, date time.Time, startHour int) Event {
	return Event{
		Course:   course,
		Building: "BuildingA",
		RoomCode: "101",
		Start:    roster.TimeOfDay(startHour * 3600),
		End:      roster.TimeOfDay((startHour + 1) * 3600),
		Date:     date,
	}
}

func newStudent(t *testing.T, s roster.Store) roster.Student {
	t.Helper()
	student, err := s.CreateStudent(context.Background(), "2082442q", day(2023, time.September, 1))
	require.NoError(t, err)
	return student
}

// cs101Mondays is CS101 every Monday 09:00-10:00 across three dates.
var cs101Mondays = []Event{
	lecture("CS101", day(2024, time.January, 1), 9),
	lecture("CS101", day(2024, time.January, 8), 9),
	lecture("CS101", day(2024, time.January, 15), 9),
}

func TestReconcileBuildsSchedule(t *testing.T) {
	ctx := context.Background()
	store := roster.NewMemStore()
	student := newStudent(t, store)

	diff, err := NewReconciler(store).Reconcile(ctx, student, cs101Mondays)
	require.NoError(t, err)

	require.Len(t, diff.Activated, 1)
	assert.Empty(t, diff.Retained)
	assert.Empty(t, diff.Deactivated)
	m := diff.Activated[0]
	assert.Equal(t, "CS101", m.ClassCode)
	assert.Equal(t, roster.Weekday(0), m.Weekday)
	assert.True(t, m.Active)

	// Three instances of one meeting batch under the weekly slot.
	facts, err := store.StudentInstances(ctx, student.ID, "CS101")
	require.NoError(t, err)
	assert.Len(t, facts, 3)

	enrolled, err := store.EnrolledMeetings(ctx, student.ID)
	require.NoError(t, err)
	assert.Len(t, enrolled, 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := roster.NewMemStore()
	student := newStudent(t, store)
	rec := NewReconciler(store)

	_, err := rec.Reconcile(ctx, student, cs101Mondays)
	require.NoError(t, err)

	diff, err := rec.Reconcile(ctx, student, cs101Mondays)
	require.NoError(t, err)
	assert.Empty(t, diff.Activated)
	assert.Len(t, diff.Retained, 1)
	assert.Empty(t, diff.Deactivated)

	facts, err := store.StudentInstances(ctx, student.ID, "")
	require.NoError(t, err)
	assert.Len(t, facts, 3, "no duplicate instances on re-run")
}

func TestReconcileEmptyInputWithdrawsEverything(t *testing.T) {
	ctx := context.Background()
	store := roster.NewMemStore()
	student := newStudent(t, store)
	rec := NewReconciler(store)

	events := append([]Event{}, cs101Mondays...)
	events = append(events,
		lecture("MATH2", day(2024, time.January, 2), 11),
		lecture("MATH2", day(2024, time.January, 9), 11),
	)
	first, err := rec.Reconcile(ctx, student, events)
	require.NoError(t, err)
	require.Len(t, first.Activated, 2)

	diff, err := rec.Reconcile(ctx, student, nil)
	require.NoError(t, err)
	assert.Empty(t, diff.Activated)
	assert.Empty(t, diff.Retained)
	assert.Len(t, diff.Deactivated, 2)

	enrolled, err := store.EnrolledMeetings(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, enrolled)

	// Soft delete: instance history stays available for streaks.
	facts, err := store.StudentInstances(ctx, student.ID, "")
	require.NoError(t, err)
	assert.Len(t, facts, 5)
}

func TestReconcileReactivatesDroppedMeeting(t *testing.T) {
	ctx := context.Background()
	store := roster.NewMemStore()
	student := newStudent(t, store)
	rec := NewReconciler(store)

	_, err := rec.Reconcile(ctx, student, cs101Mondays)
	require.NoError(t, err)
	_, err = rec.Reconcile(ctx, student, nil)
	require.NoError(t, err)

	diff, err := rec.Reconcile(ctx, student, cs101Mondays)
	require.NoError(t, err)
	require.Len(t, diff.Activated, 1)
	assert.True(t, diff.Activated[0].Active)

	enrolled, err := store.EnrolledMeetings(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.True(t, enrolled[0].Active)
}

func TestReconcileSplitsDistinctSlots(t *testing.T) {
	ctx := context.Background()
	store := roster.NewMemStore()
	student := newStudent(t, store)

	events := []Event{
		lecture("CS101", day(2024, time.January, 1), 9),  // Monday 09:00
		lecture("CS101", day(2024, time.January, 3), 9),  // Wednesday 09:00
		lecture("CS101", day(2024, time.January, 8), 14), // Monday 14:00
	}
	diff, err := NewReconciler(store).Reconcile(ctx, student, events)
	require.NoError(t, err)
	assert.Len(t, diff.Activated, 3, "each (weekday, start, end) triple is its own meeting")
}

func TestReconcileOnlyTouchesGivenStudent(t *testing.T) {
	ctx := context.Background()
	store := roster.NewMemStore()
	rec := NewReconciler(store)

	alice, err := store.CreateStudent(ctx, "alice", day(2023, time.September, 1))
	require.NoError(t, err)
	bob, err := store.CreateStudent(ctx, "bob", day(2023, time.September, 1))
	require.NoError(t, err)

	_, err = rec.Reconcile(ctx, alice, cs101Mondays)
	require.NoError(t, err)
	_, err = rec.Reconcile(ctx, bob, cs101Mondays)
	require.NoError(t, err)

	// Alice drops the class; Bob's enrollment and the meeting survive.
	_, err = rec.Reconcile(ctx, alice, nil)
	require.NoError(t, err)

	enrolled, err := store.EnrolledMeetings(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.True(t, enrolled[0].Active)
}

func TestReconcileAttachesLecturer(t *testing.T) {
	ctx := context.Background()
	store := roster.NewMemStore()
	student := newStudent(t, store)

	ev := lecture("CS101", day(2024, time.January, 1), 9)
	ev.Lecturer = "Alan Turing"
	_, err := NewReconciler(store).Reconcile(ctx, student, []Event{ev})
	require.NoError(t, err)

	lect, err := store.GetOrCreateLecturer(ctx, "Alan Turing")
	require.NoError(t, err)
	assert.NotZero(t, lect.ID)
}
