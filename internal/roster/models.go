package roster

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Weekday numbers Monday as 0 through Sunday as 6, matching the timetable
// provider's convention.
type Weekday int

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (w Weekday) String() string {
	if w < 0 || w > 6 {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// WeekdayOf converts from Go's Sunday-based weekday.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// DateOf truncates a timestamp to a UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Building is a campus building, unique by name.
type Building struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Room belongs to a building, unique per (building, code).
type Room struct {
	ID         int64  `json:"id"`
	BuildingID int64  `json:"building_id"`
	Code       string `json:"code"`
}

// Beacon is a physical Bluetooth beacon installed in a room. Presence is
// monotonic: a room is covered on any date at or after DateAdded. No
// removal date is modeled.
type Beacon struct {
	ID        int64     `json:"id"`
	UUID      uuid.UUID `json:"uuid"`
	Major     int       `json:"major"`
	Minor     int       `json:"minor"`
	RoomID    int64     `json:"room_id"`
	DateAdded time.Time `json:"date_added"`
}

// Class is a course, unique by code.
type Class struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

// Lecturer is a normalized lecturer name, unique by name.
type Lecturer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Meeting is a recurring weekly slot of a class. Identity is
// (class, weekday, start, end); all instances sharing that slot batch
// under one meeting. Inactive meetings are retained for history.
type Meeting struct {
	ID        int64     `json:"id"`
	ClassID   int64     `json:"class_id"`
	ClassCode string    `json:"class_code"`
	Weekday   Weekday   `json:"weekday"`
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
	Active    bool      `json:"active"`
}

// ValidateInstanceDate rejects dates whose weekday disagrees with the
// meeting's slot. Every storage backend calls this before persisting an
// instance.
func (m Meeting) ValidateInstanceDate(date time.Time) error {
	if got := WeekdayOf(date); got != m.Weekday {
		return &ConsistencyError{Date: DateOf(date), Got: got, Want: m.Weekday}
	}
	return nil
}

// MeetingInstance is one dated occurrence of a meeting, unique per
// (date, meeting, room).
type MeetingInstance struct {
	ID         int64     `json:"id"`
	MeetingID  int64     `json:"meeting_id"`
	RoomID     int64     `json:"room_id"`
	LecturerID *int64    `json:"lecturer_id,omitempty"`
	Date       time.Time `json:"date"`
}

// Student is an enrolled user. Instances dated before RegisteredOn never
// count toward statistics.
type Student struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	RegisteredOn time.Time `json:"registered_on"`
}

// AttendanceRecord marks that a student attended an instance. One record
// per (instance, student); absence of a record means not attended.
// Records are immutable once written.
type AttendanceRecord struct {
	ID              int64     `json:"id"`
	InstanceID      int64     `json:"instance_id"`
	StudentID       int64     `json:"student_id"`
	TimeAttended    time.Time `json:"time_attended"`
	ManuallyCreated bool      `json:"manually_created"`
}

// ConsistencyError reports a meeting-instance date that falls on the
// wrong weekday for its meeting.
type ConsistencyError struct {
	Date time.Time
	Got  Weekday
	Want Weekday
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("instance date %s falls on a %s, but its meeting is on a %s",
		e.Date.Format("2006-01-02"), e.Got, e.Want)
}
