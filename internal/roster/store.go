package roster

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that a referenced record does not exist. Callers
// propagate it unchanged.
var ErrNotFound = errors.New("not found")

// InstanceFact is the read-side view of one meeting instance for one
// student: everything the statistics engine needs, loaded in a single
// query. Attended is a set-membership fact over the student's attendance
// records, not a stored boolean.
type InstanceFact struct {
	ClassCode   string
	Date        time.Time
	Start       TimeOfDay
	End         TimeOfDay
	BeaconSince *time.Time // earliest date a beacon covered the room; nil means never instrumented
	Attended    bool
}

// Store is the persistence collaborator for schedules and attendance.
// All get-or-create operations are idempotent under the entity uniqueness
// keys so a full reconciliation pass can always be retried. Concurrent
// syncs for the same student must be serialized by the implementation.
type Store interface {
	// Students.
	CreateStudent(ctx context.Context, username string, registeredOn time.Time) (Student, error)
	StudentByID(ctx context.Context, id int64) (Student, error)
	StudentByUsername(ctx context.Context, username string) (Student, error)

	// Schedule get-or-create, keyed as documented on the entity types.
	GetOrCreateClass(ctx context.Context, code string) (Class, error)
	GetOrCreateBuilding(ctx context.Context, name string) (Building, error)
	GetOrCreateRoom(ctx context.Context, buildingID int64, code string) (Room, error)
	GetOrCreateLecturer(ctx context.Context, name string) (Lecturer, error)
	// GetOrCreateMeeting reports whether the meeting was created.
	GetOrCreateMeeting(ctx context.Context, classID int64, weekday Weekday, start, end TimeOfDay) (Meeting, bool, error)
	// GetOrCreateInstance validates the weekday invariant against the
	// given meeting before persisting.
	GetOrCreateInstance(ctx context.Context, meeting Meeting, roomID int64, date time.Time, lecturerID *int64) (MeetingInstance, error)
	ActivateMeeting(ctx context.Context, meetingID int64) error

	// Enrollment. Deactivation flags the student's enrollment inactive
	// and the meeting itself when nobody active remains; nothing is
	// deleted, so history stays available for streaks.
	EnrollStudent(ctx context.Context, meetingID, studentID int64) error
	EnrolledMeetings(ctx context.Context, studentID int64) ([]Meeting, error)
	DeactivateForStudent(ctx context.Context, meetingID, studentID int64) error

	// Beacons and read-only listings.
	CreateBeacon(ctx context.Context, b Beacon) (Beacon, error)
	ListBuildings(ctx context.Context) ([]Building, error)
	ListRooms(ctx context.Context) ([]Room, error)
	ListBeacons(ctx context.Context) ([]Beacon, error)

	// Attendance. RecordAttendance is idempotent per (instance, student).
	RecordAttendance(ctx context.Context, instanceID, studentID int64, at time.Time, manual bool) (AttendanceRecord, error)

	// StudentInstances returns every instance of every meeting the
	// student was ever enrolled in (active or not), ascending by date
	// then start time. classCode narrows to one class; empty means all.
	StudentInstances(ctx context.Context, studentID int64, classCode string) ([]InstanceFact, error)
}
