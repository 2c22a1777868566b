package timetable

import (
	"fmt"
	"strings"
	"time"

	"beacontrack/internal/roster"
)

// RawEvent is one record as delivered by the timetable provider, already
// JSON-decoded by the sync collaborator.
type RawEvent struct {
	Course   string `json:"course"`
	Room     string `json:"room"` // "Building:Code"
	Start    string `json:"start"`
	End      string `json:"end"`
	Date     string `json:"date"`
	Lecturer string `json:"lecturer,omitempty"` // "Last, First"
}

// Event is the canonical form the reconciler consumes.
type Event struct {
	Course   string
	Building string
	RoomCode string
	Start    roster.TimeOfDay
	End      roster.TimeOfDay
	Date     time.Time
	Lecturer string // normalized "First Last"; empty means absent
}

// MalformedInputError reports a raw event that failed normalization. The
// whole batch is rejected; there is no partial success.
type MalformedInputError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event field %q (%q): %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("malformed event field %q (%q)", e.Field, e.Value)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// timestampLayout is the provider's fixed start/end format.
const timestampLayout = "2006-01-02 15:04:05"

// dateLayouts are accepted for the date field, most common first.
var dateLayouts = []string{"2006-01-02", timestampLayout, time.RFC3339}

// NormalizeEvents parses a batch of raw events into canonical form. Any
// failure rejects the batch. Output order matches input; downstream
// stages re-group anyway.
func NormalizeEvents(raw []RawEvent) ([]Event, error) {
	events := make([]Event, 0, len(raw))
	for _, re := range raw {
		ev, err := normalize(re)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func normalize(re RawEvent) (Event, error) {
	building, code, ok := strings.Cut(re.Room, ":")
	if !ok {
		return Event{}, &MalformedInputError{Field: "room", Value: re.Room}
	}

	start, err := parseClock(re.Start)
	if err != nil {
		return Event{}, &MalformedInputError{Field: "start", Value: re.Start, Err: err}
	}
	end, err := parseClock(re.End)
	if err != nil {
		return Event{}, &MalformedInputError{Field: "end", Value: re.End, Err: err}
	}

	date, err := parseDate(re.Date)
	if err != nil {
		return Event{}, &MalformedInputError{Field: "date", Value: re.Date, Err: err}
	}

	return Event{
		Course:   re.Course,
		Building: building,
		RoomCode: code,
		Start:    start,
		End:      end,
		Date:     date,
		Lecturer: NormalizeLecturer(re.Lecturer),
	}, nil
}

func parseClock(s string) (roster.TimeOfDay, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return 0, err
	}
	return roster.ClockOf(t), nil
}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return roster.DateOf(t), nil
		}
	}
	return time.Time{}, err
}

// NormalizeLecturer flips "Last, First" into "First Last", splitting on
// the first comma and trimming both parts. A value without a comma passes
// through trimmed; empty stays empty.
func NormalizeLecturer(s string) string {
	last, first, ok := strings.Cut(s, ",")
	if !ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
