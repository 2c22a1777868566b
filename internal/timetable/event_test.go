package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacontrack/internal/roster"
)

func TestNormalizeEvents(t *testing.T) {
	raw := []RawEvent{{
		Course:   "CS101",
		Room:     "BuildingA:101",
		Start:    "2024-01-01 09:00:00",
		End:      "2024-01-01 10:00:00",
		Date:     "2024-01-01",
		Lecturer: "Turing, Alan",
	}}

	events, err := NormalizeEvents(raw)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "CS101", ev.Course)
	assert.Equal(t, "BuildingA", ev.Building)
	assert.Equal(t, "101", ev.RoomCode)
	assert.Equal(t, roster.TimeOfDay(9*3600), ev.Start)
	assert.Equal(t, roster.TimeOfDay(10*3600), ev.End)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), ev.Date)
	assert.Equal(t, "Alan Turing", ev.Lecturer)
}

func TestNormalizeRoomSplitsOnFirstColon(t *testing.T) {
	events, err := NormalizeEvents([]RawEvent{{
		Course: "CS101",
		Room:   "Main Building: Annex:3",
		Start:  "2024-01-01 09:00:00",
		End:    "2024-01-01 10:00:00",
		Date:   "2024-01-01",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Main Building", events[0].Building)
	assert.Equal(t, " Annex:3", events[0].RoomCode)
}

func TestNormalizeRejectsMalformedRoom(t *testing.T) {
	_, err := NormalizeEvents([]RawEvent{{
		Course: "CS101",
		Room:   "NoColonHere",
		Start:  "2024-01-01 09:00:00",
		End:    "2024-01-01 10:00:00",
		Date:   "2024-01-01",
	}})
	var malformed *MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "room", malformed.Field)
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	_, err := NormalizeEvents([]RawEvent{{
		Course: "CS101",
		Room:   "A:1",
		Start:  "nine o'clock",
		End:    "2024-01-01 10:00:00",
		Date:   "2024-01-01",
	}})
	var malformed *MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "start", malformed.Field)
}

func TestNormalizeRejectsWholeBatch(t *testing.T) {
	good := RawEvent{Course: "CS101", Room: "A:1", Start: "2024-01-01 09:00:00", End: "2024-01-01 10:00:00", Date: "2024-01-01"}
	bad := good
	bad.Room = "broken"

	events, err := NormalizeEvents([]RawEvent{good, bad})
	assert.Error(t, err)
	assert.Nil(t, events)
}

func TestNormalizeLecturer(t *testing.T) {
	assert.Equal(t, "Alan Turing", NormalizeLecturer("Turing, Alan"))
	assert.Equal(t, "Alan Turing", NormalizeLecturer("  Turing ,  Alan  "))
	assert.Equal(t, "King, Ada Lovelace", NormalizeLecturer("Lovelace, King, Ada"))
	assert.Equal(t, "", NormalizeLecturer(""))
	assert.Equal(t, "Mononym", NormalizeLecturer("Mononym"))
}

func TestNormalizeAcceptsISOVariants(t *testing.T) {
	for _, val := range []string{"2024-01-01", "2024-01-01 00:00:00", "2024-01-01T00:00:00Z"} {
		events, err := NormalizeEvents([]RawEvent{{
			Course: "CS101",
			Room:   "A:1",
			Start:  "2024-01-01 09:00:00",
			End:    "2024-01-01 10:00:00",
			Date:   val,
		}})
		require.NoError(t, err, val)
		assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), events[0].Date)
	}
}
