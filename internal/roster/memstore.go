package roster

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is a map-backed Store for dev mode and tests. It mirrors the
// Postgres repository's semantics, including the uniqueness keys and the
// weekday invariant.
type MemStore struct {
	mu sync.Mutex

	nextID    int64
	students  map[int64]Student
	classes   map[int64]Class
	buildings map[int64]Building
	rooms     map[int64]Room
	lecturers map[int64]Lecturer
	meetings  map[int64]Meeting
	instances map[int64]MeetingInstance
	beacons   map[int64]Beacon
	records   map[int64]AttendanceRecord

	// enrollment keyed by (meeting, student); value is the active flag.
	enrollments map[[2]int64]bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		students:    make(map[int64]Student),
		classes:     make(map[int64]Class),
		buildings:   make(map[int64]Building),
		rooms:       make(map[int64]Room),
		lecturers:   make(map[int64]Lecturer),
		meetings:    make(map[int64]Meeting),
		instances:   make(map[int64]MeetingInstance),
		beacons:     make(map[int64]Beacon),
		records:     make(map[int64]AttendanceRecord),
		enrollments: make(map[[2]int64]bool),
	}
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

// CreateStudent inserts a student, reusing an existing row by username.
func (s *MemStore) CreateStudent(_ context.Context, username string, registeredOn time.Time) (Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.Username == username {
			return st, nil
		}
	}
	st := Student{ID: s.id(), Username: username, RegisteredOn: DateOf(registeredOn)}
	s.students[st.ID] = st
	return st, nil
}

// StudentByID returns one student.
func (s *MemStore) StudentByID(_ context.Context, id int64) (Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return st, nil
}

// StudentByUsername returns one student.
func (s *MemStore) StudentByUsername(_ context.Context, username string) (Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.Username == username {
			return st, nil
		}
	}
	return Student{}, ErrNotFound
}

// GetOrCreateClass resolves a class by course code.
func (s *MemStore) GetOrCreateClass(_ context.Context, code string) (Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.classes {
		if c.Code == code {
			return c, nil
		}
	}
	c := Class{ID: s.id(), Code: code}
	s.classes[c.ID] = c
	return c, nil
}

// GetOrCreateBuilding resolves a building by name.
func (s *MemStore) GetOrCreateBuilding(_ context.Context, name string) (Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buildings {
		if b.Name == name {
			return b, nil
		}
	}
	b := Building{ID: s.id(), Name: name}
	s.buildings[b.ID] = b
	return b, nil
}

// GetOrCreateRoom resolves a room by (building, code).
func (s *MemStore) GetOrCreateRoom(_ context.Context, buildingID int64, code string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.BuildingID == buildingID && r.Code == code {
			return r, nil
		}
	}
	r := Room{ID: s.id(), BuildingID: buildingID, Code: code}
	s.rooms[r.ID] = r
	return r, nil
}

// GetOrCreateLecturer resolves a lecturer by name.
func (s *MemStore) GetOrCreateLecturer(_ context.Context, name string) (Lecturer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lecturers {
		if l.Name == name {
			return l, nil
		}
	}
	l := Lecturer{ID: s.id(), Name: name}
	s.lecturers[l.ID] = l
	return l, nil
}

// GetOrCreateMeeting resolves a meeting by its identity key.
func (s *MemStore) GetOrCreateMeeting(_ context.Context, classID int64, weekday Weekday, start, end TimeOfDay) (Meeting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meetings {
		if m.ClassID == classID && m.Weekday == weekday && m.Start == start && m.End == end {
			return m, false, nil
		}
	}
	m := Meeting{ID: s.id(), ClassID: classID, Weekday: weekday, Start: start, End: end, Active: true}
	if c, ok := s.classes[classID]; ok {
		m.ClassCode = c.Code
	}
	s.meetings[m.ID] = m
	return m, true, nil
}

// GetOrCreateInstance resolves an instance by (date, meeting, room),
// enforcing the weekday invariant.
func (s *MemStore) GetOrCreateInstance(_ context.Context, meeting Meeting, roomID int64, date time.Time, lecturerID *int64) (MeetingInstance, error) {
	if err := meeting.ValidateInstanceDate(date); err != nil {
		return MeetingInstance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	day := DateOf(date)
	for id, inst := range s.instances {
		if inst.MeetingID == meeting.ID && inst.RoomID == roomID && inst.Date.Equal(day) {
			inst.LecturerID = lecturerID
			s.instances[id] = inst
			return inst, nil
		}
	}
	inst := MeetingInstance{ID: s.id(), MeetingID: meeting.ID, RoomID: roomID, Date: day, LecturerID: lecturerID}
	s.instances[inst.ID] = inst
	return inst, nil
}

// ActivateMeeting clears a previous soft-delete.
func (s *MemStore) ActivateMeeting(_ context.Context, meetingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return ErrNotFound
	}
	m.Active = true
	s.meetings[meetingID] = m
	return nil
}

// EnrollStudent adds (or revives) an enrollment.
func (s *MemStore) EnrollStudent(_ context.Context, meetingID, studentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[meetingID]; !ok {
		return ErrNotFound
	}
	s.enrollments[[2]int64{meetingID, studentID}] = true
	return nil
}

// EnrolledMeetings returns the student's actively enrolled meetings.
func (s *MemStore) EnrolledMeetings(_ context.Context, studentID int64) ([]Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Meeting
	for key, active := range s.enrollments {
		if key[1] != studentID || !active {
			continue
		}
		if m, ok := s.meetings[key[0]]; ok {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// DeactivateForStudent flags the enrollment inactive and soft-deletes the
// meeting when no active enrollments remain.
func (s *MemStore) DeactivateForStudent(_ context.Context, meetingID, studentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{meetingID, studentID}
	if _, ok := s.enrollments[key]; ok {
		s.enrollments[key] = false
	}
	for k, active := range s.enrollments {
		if k[0] == meetingID && active {
			return nil
		}
	}
	if m, ok := s.meetings[meetingID]; ok {
		m.Active = false
		s.meetings[meetingID] = m
	}
	return nil
}

// CreateBeacon registers a beacon installation.
func (s *MemStore) CreateBeacon(_ context.Context, b Beacon) (Beacon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.beacons {
		if existing.UUID == b.UUID && existing.Major == b.Major && existing.Minor == b.Minor {
			return existing, nil
		}
	}
	if b.DateAdded.IsZero() {
		b.DateAdded = DateOf(time.Now())
	} else {
		b.DateAdded = DateOf(b.DateAdded)
	}
	b.ID = s.id()
	s.beacons[b.ID] = b
	return b, nil
}

// ListBuildings returns all buildings.
func (s *MemStore) ListBuildings(_ context.Context) ([]Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Building, 0, len(s.buildings))
	for _, b := range s.buildings {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

// ListRooms returns all rooms.
func (s *MemStore) ListRooms(_ context.Context) ([]Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// ListBeacons returns all beacons.
func (s *MemStore) ListBeacons(_ context.Context) ([]Beacon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Beacon, 0, len(s.beacons))
	for _, b := range s.beacons {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// RecordAttendance writes the (instance, student) record once; an
// existing record is returned unchanged.
func (s *MemStore) RecordAttendance(_ context.Context, instanceID, studentID int64, at time.Time, manual bool) (AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[instanceID]; !ok {
		return AttendanceRecord{}, ErrNotFound
	}
	for _, rec := range s.records {
		if rec.InstanceID == instanceID && rec.StudentID == studentID {
			return rec, nil
		}
	}
	rec := AttendanceRecord{
		ID:              s.id(),
		InstanceID:      instanceID,
		StudentID:       studentID,
		TimeAttended:    at.UTC(),
		ManuallyCreated: manual,
	}
	s.records[rec.ID] = rec
	return rec, nil
}

// StudentInstances builds the statistics view over every meeting the
// student was ever enrolled in, active or not.
func (s *MemStore) StudentInstances(_ context.Context, studentID int64, classCode string) ([]InstanceFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enrolled := make(map[int64]bool)
	for key := range s.enrollments {
		if key[1] == studentID {
			enrolled[key[0]] = true
		}
	}

	attended := make(map[int64]bool)
	for _, rec := range s.records {
		if rec.StudentID == studentID {
			attended[rec.InstanceID] = true
		}
	}

	var res []InstanceFact
	for _, inst := range s.instances {
		m, ok := s.meetings[inst.MeetingID]
		if !ok || !enrolled[m.ID] {
			continue
		}
		if classCode != "" && m.ClassCode != classCode {
			continue
		}
		f := InstanceFact{
			ClassCode: m.ClassCode,
			Date:      inst.Date,
			Start:     m.Start,
			End:       m.End,
			Attended:  attended[inst.ID],
		}
		for _, b := range s.beacons {
			if b.RoomID != inst.RoomID {
				continue
			}
			if f.BeaconSince == nil || b.DateAdded.Before(*f.BeaconSince) {
				d := b.DateAdded
				f.BeaconSince = &d
			}
		}
		res = append(res, f)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.Before(res[j].Date)
		}
		return res[i].Start < res[j].Start
	})
	return res, nil
}
