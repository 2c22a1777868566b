package timetable

import (
	"context"
	"fmt"
	"sort"

	"beacontrack/internal/roster"
)

// meetingKey is the weekly-slot identity of a meeting within one course.
type meetingKey struct {
	Weekday roster.Weekday
	Start   roster.TimeOfDay
	End     roster.TimeOfDay
}

// Diff is the outcome of one reconciliation pass for one student. The
// reconciler reports the change set instead of mutating shared state
// behind the caller's back; Deactivated is what the caller surfaces as
// "dropped classes".
type Diff struct {
	Activated   []roster.Meeting
	Retained    []roster.Meeting
	Deactivated []roster.Meeting
}

// Reconciler merges normalized timetable events into the stored schedule.
type Reconciler struct {
	store roster.Store
}

// NewReconciler creates a reconciler over a storage collaborator.
func NewReconciler(store roster.Store) *Reconciler {
	return &Reconciler{store: store}
}

// groupEvents buckets events by course and, within a course, by weekly
// slot. The slot weekday derives from the event date.
func groupEvents(events []Event) map[string]map[meetingKey][]Event {
	courses := make(map[string]map[meetingKey][]Event)
	for _, ev := range events {
		byKey, ok := courses[ev.Course]
		if !ok {
			byKey = make(map[meetingKey][]Event)
			courses[ev.Course] = byKey
		}
		key := meetingKey{Weekday: roster.WeekdayOf(ev.Date), Start: ev.Start, End: ev.End}
		byKey[key] = append(byKey[key], ev)
	}
	return courses
}

// Reconcile runs one pass for a student: get-or-create every class,
// meeting and instance the events describe, enroll the student where
// missing, then deactivate the previously enrolled meetings the sync no
// longer mentions. An empty event list is a full withdrawal. Re-running
// with identical input creates nothing and deactivates nothing.
func (r *Reconciler) Reconcile(ctx context.Context, student roster.Student, events []Event) (Diff, error) {
	previous, err := r.store.EnrolledMeetings(ctx, student.ID)
	if err != nil {
		return Diff{}, fmt.Errorf("load enrolled meetings: %w", err)
	}
	wasEnrolled := make(map[int64]bool, len(previous))
	for _, m := range previous {
		wasEnrolled[m.ID] = true
	}

	touched := make(map[int64]roster.Meeting)
	for course, byKey := range groupEvents(events) {
		class, err := r.store.GetOrCreateClass(ctx, course)
		if err != nil {
			return Diff{}, fmt.Errorf("class %q: %w", course, err)
		}
		for key, group := range byKey {
			meeting, created, err := r.store.GetOrCreateMeeting(ctx, class.ID, key.Weekday, key.Start, key.End)
			if err != nil {
				return Diff{}, fmt.Errorf("meeting %s %s-%s for %q: %w", key.Weekday, key.Start, key.End, course, err)
			}
			if !created && !meeting.Active {
				if err := r.store.ActivateMeeting(ctx, meeting.ID); err != nil {
					return Diff{}, err
				}
				meeting.Active = true
			}
			if err := r.store.EnrollStudent(ctx, meeting.ID, student.ID); err != nil {
				return Diff{}, err
			}
			touched[meeting.ID] = meeting

			for _, ev := range group {
				if err := r.persistInstance(ctx, meeting, ev); err != nil {
					return Diff{}, err
				}
			}
		}
	}

	var diff Diff
	for _, m := range touched {
		if !wasEnrolled[m.ID] {
			diff.Activated = append(diff.Activated, m)
		}
	}
	for _, m := range previous {
		if _, ok := touched[m.ID]; ok {
			diff.Retained = append(diff.Retained, m)
			continue
		}
		if err := r.store.DeactivateForStudent(ctx, m.ID, student.ID); err != nil {
			return Diff{}, fmt.Errorf("deactivate meeting %d: %w", m.ID, err)
		}
		m.Active = false
		diff.Deactivated = append(diff.Deactivated, m)
	}
	sortMeetings(diff.Activated)
	sortMeetings(diff.Retained)
	sortMeetings(diff.Deactivated)
	return diff, nil
}

func (r *Reconciler) persistInstance(ctx context.Context, meeting roster.Meeting, ev Event) error {
	building, err := r.store.GetOrCreateBuilding(ctx, ev.Building)
	if err != nil {
		return fmt.Errorf("building %q: %w", ev.Building, err)
	}
	room, err := r.store.GetOrCreateRoom(ctx, building.ID, ev.RoomCode)
	if err != nil {
		return fmt.Errorf("room %q:%q: %w", ev.Building, ev.RoomCode, err)
	}
	var lecturerID *int64
	if ev.Lecturer != "" {
		lect, err := r.store.GetOrCreateLecturer(ctx, ev.Lecturer)
		if err != nil {
			return fmt.Errorf("lecturer %q: %w", ev.Lecturer, err)
		}
		lecturerID = &lect.ID
	}
	if _, err := r.store.GetOrCreateInstance(ctx, meeting, room.ID, ev.Date, lecturerID); err != nil {
		return err
	}
	return nil
}

func sortMeetings(ms []roster.Meeting) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}
