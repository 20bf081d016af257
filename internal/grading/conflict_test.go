package grading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var examDay = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

func clock(t *testing.T, value string) int {
	t.Helper()
	minutes, err := ParseClock(value)
	require.NoError(t, err)
	return minutes
}

func TestDetectRoomConflict(t *testing.T) {
	existing := []Slot{{
		Ref: "sch-a", ExamID: "exam-1", ClassID: "class-1", SubjectID: "math",
		Date: examDay, Start: clock(t, "09:00"), End: clock(t, "10:00"),
		Room: "Room 101", Supervisors: []string{"teacher-x"},
	}}
	proposed := []Slot{{
		ExamID: "exam-1", ClassID: "class-2", SubjectID: "math",
		Date: examDay, Start: clock(t, "09:30"), End: clock(t, "10:30"),
		Room: "Room 101", Supervisors: []string{"teacher-y"},
	}}

	conflicts := Detect(proposed, existing)
	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{ProposedIndex: 0, ScheduleID: "sch-a", Type: ConflictRoom}, conflicts[0])
}

func TestDetectAllowsBackToBackSlots(t *testing.T) {
	existing := []Slot{{Ref: "sch-a", ClassID: "class-1", Date: examDay, Start: clock(t, "09:00"), End: clock(t, "10:00"), Room: "101", Supervisors: []string{"x"}}}
	proposed := []Slot{{ClassID: "class-1", Date: examDay, Start: clock(t, "10:00"), End: clock(t, "11:00"), Room: "101", Supervisors: []string{"x"}}}
	assert.Empty(t, Detect(proposed, existing))
}

func TestDetectIgnoresOtherDates(t *testing.T) {
	existing := []Slot{{Ref: "sch-a", ClassID: "class-1", Date: examDay, Start: 540, End: 600, Room: "101"}}
	proposed := []Slot{{ClassID: "class-1", Date: examDay.AddDate(0, 0, 1), Start: 540, End: 600, Room: "101"}}
	assert.Empty(t, Detect(proposed, existing))
}

func TestDetectSupervisorAndClassConflicts(t *testing.T) {
	existing := []Slot{{Ref: "sch-a", ClassID: "class-1", Date: examDay, Start: 540, End: 600, Room: "101", Supervisors: []string{"x", "z"}}}
	proposed := []Slot{{ClassID: "class-1", Date: examDay, Start: 570, End: 630, Room: "202", Supervisors: []string{"z"}}}

	conflicts := Detect(proposed, existing)
	types := make([]ConflictType, 0, len(conflicts))
	for _, c := range conflicts {
		types = append(types, c.Type)
	}
	assert.ElementsMatch(t, []ConflictType{ConflictSupervisor, ConflictClass}, types)
}

func TestDetectWithinBatch(t *testing.T) {
	proposed := []Slot{
		{ExamID: "exam-1", ClassID: "class-1", SubjectID: "math", Date: examDay, Start: 540, End: 600, Room: "101"},
		{ExamID: "exam-1", ClassID: "class-2", SubjectID: "math", Date: examDay, Start: 560, End: 620, Room: "101"},
		{ExamID: "exam-1", ClassID: "class-1", SubjectID: "math", Date: examDay.AddDate(0, 0, 1), Start: 540, End: 600},
	}
	conflicts := Detect(proposed, nil)
	require.Len(t, conflicts, 2)
	assert.Equal(t, Conflict{ProposedIndex: 1, ScheduleID: "proposed:0", Type: ConflictRoom}, conflicts[0])
	assert.Equal(t, Conflict{ProposedIndex: 2, ScheduleID: "proposed:0", Type: ConflictDuplicate}, conflicts[1])
}

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, minutes)
	assert.Equal(t, "09:30", FormatClock(minutes))

	minutes, err = ParseClock("13:05:00")
	require.NoError(t, err)
	assert.Equal(t, 785, minutes)

	for _, bad := range []string{"", "9", "24:00", "10:60", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
