package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists roster data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateStudent inserts a student; the username is unique.
func (r *Repository) CreateStudent(ctx context.Context, username string, registeredOn time.Time) (Student, error) {
	if username == "" {
		return Student{}, errors.New("username required")
	}
	s := Student{Username: username, RegisteredOn: DateOf(registeredOn)}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (username, registered_on)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, registered_on
	`, username, s.RegisteredOn)
	if err := row.Scan(&s.ID, &s.RegisteredOn); err != nil {
		return Student{}, err
	}
	return s, nil
}

// StudentByID returns one student.
func (r *Repository) StudentByID(ctx context.Context, id int64) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, registered_on FROM students WHERE id = $1`, id)
	return scanStudent(row)
}

// StudentByUsername returns one student.
func (r *Repository) StudentByUsername(ctx context.Context, username string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, registered_on FROM students WHERE username = $1`, username)
	return scanStudent(row)
}

func scanStudent(row *sql.Row) (Student, error) {
	var s Student
	if err := row.Scan(&s.ID, &s.Username, &s.RegisteredOn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	return s, nil
}

// GetOrCreateClass resolves a class by course code.
func (r *Repository) GetOrCreateClass(ctx context.Context, code string) (Class, error) {
	c := Class{Code: code}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (class_code)
		VALUES ($1)
		ON CONFLICT (class_code) DO UPDATE SET class_code = EXCLUDED.class_code
		RETURNING id
	`, code)
	if err := row.Scan(&c.ID); err != nil {
		return Class{}, err
	}
	return c, nil
}

// GetOrCreateBuilding resolves a building by name.
func (r *Repository) GetOrCreateBuilding(ctx context.Context, name string) (Building, error) {
	b := Building{Name: name}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO buildings (building_name)
		VALUES ($1)
		ON CONFLICT (building_name) DO UPDATE SET building_name = EXCLUDED.building_name
		RETURNING id
	`, name)
	if err := row.Scan(&b.ID); err != nil {
		return Building{}, err
	}
	return b, nil
}

// GetOrCreateRoom resolves a room by (building, code).
func (r *Repository) GetOrCreateRoom(ctx context.Context, buildingID int64, code string) (Room, error) {
	rm := Room{BuildingID: buildingID, Code: code}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO rooms (building_id, room_code)
		VALUES ($1, $2)
		ON CONFLICT (building_id, room_code) DO UPDATE SET room_code = EXCLUDED.room_code
		RETURNING id
	`, buildingID, code)
	if err := row.Scan(&rm.ID); err != nil {
		return Room{}, err
	}
	return rm, nil
}

// GetOrCreateLecturer resolves a lecturer by normalized name.
func (r *Repository) GetOrCreateLecturer(ctx context.Context, name string) (Lecturer, error) {
	l := Lecturer{Name: name}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO lecturers (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name)
	if err := row.Scan(&l.ID); err != nil {
		return Lecturer{}, err
	}
	return l, nil
}

// GetOrCreateMeeting resolves a meeting by its identity key and reports
// whether it was created on this call.
func (r *Repository) GetOrCreateMeeting(ctx context.Context, classID int64, weekday Weekday, start, end TimeOfDay) (Meeting, bool, error) {
	m := Meeting{ClassID: classID, Weekday: weekday, Start: start, End: end, Active: true}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO meetings (class_id, day_of_week, time_start, time_end, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (class_id, day_of_week, time_start, time_end) DO NOTHING
		RETURNING id
	`, classID, int(weekday), start.String(), end.String())
	if err := row.Scan(&m.ID); err == nil {
		m.ClassCode, err = r.classCode(ctx, classID)
		return m, true, err
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, false, err
	}

	row = r.db.QueryRowContext(ctx, `
		SELECT m.id, m.active, c.class_code
		FROM meetings m JOIN classes c ON c.id = m.class_id
		WHERE m.class_id = $1 AND m.day_of_week = $2 AND m.time_start = $3 AND m.time_end = $4
	`, classID, int(weekday), start.String(), end.String())
	if err := row.Scan(&m.ID, &m.Active, &m.ClassCode); err != nil {
		return Meeting{}, false, err
	}
	return m, false, nil
}

func (r *Repository) classCode(ctx context.Context, classID int64) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx, `SELECT class_code FROM classes WHERE id = $1`, classID).Scan(&code)
	return code, err
}

// GetOrCreateInstance resolves an instance by (date, meeting, room) and
// attaches the lecturer reference, overwriting a previous one.
func (r *Repository) GetOrCreateInstance(ctx context.Context, meeting Meeting, roomID int64, date time.Time, lecturerID *int64) (MeetingInstance, error) {
	if err := meeting.ValidateInstanceDate(date); err != nil {
		return MeetingInstance{}, err
	}
	inst := MeetingInstance{MeetingID: meeting.ID, RoomID: roomID, Date: DateOf(date), LecturerID: lecturerID}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO meeting_instances (meeting_id, room_id, date, lecturer_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date, meeting_id, room_id) DO UPDATE SET lecturer_id = EXCLUDED.lecturer_id
		RETURNING id
	`, meeting.ID, roomID, inst.Date, lecturerID)
	if err := row.Scan(&inst.ID); err != nil {
		return MeetingInstance{}, err
	}
	return inst, nil
}

// ActivateMeeting clears a previous soft-delete.
func (r *Repository) ActivateMeeting(ctx context.Context, meetingID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE meetings SET active = TRUE WHERE id = $1`, meetingID)
	return err
}

// EnrollStudent adds (or revives) the student's enrollment in a meeting.
func (r *Repository) EnrollStudent(ctx context.Context, meetingID, studentID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (meeting_id, student_id, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (meeting_id, student_id) DO UPDATE SET active = TRUE
	`, meetingID, studentID)
	return err
}

// EnrolledMeetings returns the meetings the student is actively enrolled in.
func (r *Repository) EnrolledMeetings(ctx context.Context, studentID int64) ([]Meeting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.class_id, c.class_code, m.day_of_week, m.time_start::text, m.time_end::text, m.active
		FROM meetings m
		JOIN classes c ON c.id = m.class_id
		JOIN enrollments e ON e.meeting_id = m.id
		WHERE e.student_id = $1 AND e.active
		ORDER BY m.id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func scanMeeting(rows *sql.Rows) (Meeting, error) {
	var m Meeting
	var start, end string
	if err := rows.Scan(&m.ID, &m.ClassID, &m.ClassCode, &m.Weekday, &start, &end, &m.Active); err != nil {
		return Meeting{}, err
	}
	var err error
	if m.Start, err = ParseTimeOfDay(start); err != nil {
		return Meeting{}, fmt.Errorf("meeting %d time_start: %w", m.ID, err)
	}
	if m.End, err = ParseTimeOfDay(end); err != nil {
		return Meeting{}, fmt.Errorf("meeting %d time_end: %w", m.ID, err)
	}
	return m, nil
}

// DeactivateForStudent flags the student's enrollment inactive and soft-
// deletes the meeting once no active enrollments remain.
func (r *Repository) DeactivateForStudent(ctx context.Context, meetingID, studentID int64) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET active = FALSE WHERE meeting_id = $1 AND student_id = $2
	`, meetingID, studentID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE meetings SET active = FALSE
		WHERE id = $1 AND NOT EXISTS (
			SELECT 1 FROM enrollments WHERE meeting_id = $1 AND active
		)
	`, meetingID)
	return err
}

// CreateBeacon registers a beacon installation.
func (r *Repository) CreateBeacon(ctx context.Context, b Beacon) (Beacon, error) {
	if b.DateAdded.IsZero() {
		b.DateAdded = DateOf(time.Now())
	} else {
		b.DateAdded = DateOf(b.DateAdded)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO beacons (uuid, major, minor, room_id, date_added)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uuid, major, minor) DO UPDATE SET room_id = EXCLUDED.room_id
		RETURNING id
	`, b.UUID, b.Major, b.Minor, b.RoomID, b.DateAdded)
	if err := row.Scan(&b.ID); err != nil {
		return Beacon{}, err
	}
	return b, nil
}

// ListBuildings returns all buildings.
func (r *Repository) ListBuildings(ctx context.Context) ([]Building, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, building_name FROM buildings ORDER BY building_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Building
	for rows.Next() {
		var b Building
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// ListRooms returns all rooms.
func (r *Repository) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, building_id, room_code FROM rooms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.BuildingID, &rm.Code); err != nil {
			return nil, err
		}
		res = append(res, rm)
	}
	return res, rows.Err()
}

// ListBeacons returns all beacons.
func (r *Repository) ListBeacons(ctx context.Context) ([]Beacon, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, uuid, major, minor, room_id, date_added FROM beacons ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Beacon
	for rows.Next() {
		var b Beacon
		if err := rows.Scan(&b.ID, &b.UUID, &b.Major, &b.Minor, &b.RoomID, &b.DateAdded); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// RecordAttendance writes the attendance record for (instance, student)
// if none exists yet; an existing record is returned unchanged.
func (r *Repository) RecordAttendance(ctx context.Context, instanceID, studentID int64, at time.Time, manual bool) (AttendanceRecord, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (meeting_instance_id, student_id, time_attended, manually_created)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (meeting_instance_id, student_id) DO NOTHING
	`, instanceID, studentID, at.UTC(), manual); err != nil {
		return AttendanceRecord{}, err
	}
	rec := AttendanceRecord{InstanceID: instanceID, StudentID: studentID}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, time_attended, manually_created
		FROM attendance_records
		WHERE meeting_instance_id = $1 AND student_id = $2
	`, instanceID, studentID)
	if err := row.Scan(&rec.ID, &rec.TimeAttended, &rec.ManuallyCreated); err != nil {
		return AttendanceRecord{}, err
	}
	return rec, nil
}

// StudentInstances loads the statistics view: one row per instance of any
// meeting the student was ever enrolled in, with beacon coverage and
// attendance membership resolved in the same query.
func (r *Repository) StudentInstances(ctx context.Context, studentID int64, classCode string) ([]InstanceFact, error) {
	query := `
		SELECT c.class_code, mi.date, m.time_start::text, m.time_end::text,
		       (SELECT MIN(b.date_added) FROM beacons b WHERE b.room_id = mi.room_id),
		       EXISTS (
		           SELECT 1 FROM attendance_records ar
		           WHERE ar.meeting_instance_id = mi.id AND ar.student_id = $1
		       )
		FROM meeting_instances mi
		JOIN meetings m ON m.id = mi.meeting_id
		JOIN classes c ON c.id = m.class_id
		JOIN enrollments e ON e.meeting_id = m.id AND e.student_id = $1`
	args := []any{studentID}
	if classCode != "" {
		query += ` WHERE c.class_code = $2`
		args = append(args, classCode)
	}
	query += ` ORDER BY mi.date, m.time_start`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []InstanceFact
	for rows.Next() {
		var f InstanceFact
		var start, end string
		var since sql.NullTime
		if err := rows.Scan(&f.ClassCode, &f.Date, &start, &end, &since, &f.Attended); err != nil {
			return nil, err
		}
		if f.Start, err = ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if f.End, err = ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		if since.Valid {
			d := DateOf(since.Time)
			f.BeaconSince = &d
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
