package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type recordingArmer struct{ armed []string }

func (r *recordingArmer) ArmReminders(_ context.Context, exam *models.Exam) {
	r.armed = append(r.armed, exam.ID)
}

func strPtr(v string) *string { return &v }

// newScheduleHarness seeds schedule sch-a: class 10A, math, 09:00-10:00 in Room 101 supervised by teacher-x.
func newScheduleHarness(t *testing.T, status models.ExamStatus, published bool) (*school, *ExamScheduleService, *recordingArmer) {
	t.Helper()
	sc := newSchool()
	sc.addTerm("term-1", "year-1")
	sc.addClass("10A", "10", "s1")
	sc.addClass("10B", "10", "s2")
	sc.addExam("exam-1", "term-1", status, published)
	sch := sc.addSchedule("sch-a", "exam-1", "10A", "math", 100, 40)
	sch.Room = strPtr("Room 101")
	sch.SupervisorID = strPtr("teacher-x")

	armer := &recordingArmer{}
	svc := NewExamScheduleService(examStore{sc}, scheduleStore{sc}, classStore{sc}, &fakeTx{}, armer, nil, nil)
	return sc, svc, armer
}

func proposal(classID, subjectID, start, end, room string) ScheduleRequest {
	return ScheduleRequest{
		ClassID:      classID,
		SubjectID:    subjectID,
		Date:         "2025-03-10",
		StartTime:    start,
		EndTime:      end,
		Room:         strPtr(room),
		TotalMarks:   100,
		PassingMarks: 40,
	}
}

func conflictsOf(t *testing.T, err error) []grading.Conflict {
	t.Helper()
	require.Error(t, err)
	typed := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, typed.Code)
	conflicts, ok := typed.Details.([]grading.Conflict)
	require.True(t, ok)
	return conflicts
}

func TestScheduleRejectsRoomOverlap(t *testing.T) {
	sc, svc, _ := newScheduleHarness(t, models.ExamStatusScheduled, false)

	_, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{
		proposal("10B", "physics", "09:30", "10:30", "Room 101"),
	}})
	conflicts := conflictsOf(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, grading.ConflictRoom, conflicts[0].Type)
	assert.Equal(t, "sch-a", conflicts[0].ScheduleID)
	assert.Len(t, sc.schedules, 1)
}

func TestScheduleRejectsSupervisorOverlap(t *testing.T) {
	_, svc, _ := newScheduleHarness(t, models.ExamStatusScheduled, false)

	row := proposal("10B", "physics", "09:45", "10:15", "Room 202")
	row.SupervisorID = strPtr("teacher-x")
	_, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{row}})
	conflicts := conflictsOf(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, grading.ConflictSupervisor, conflicts[0].Type)
}

func TestScheduleAcceptsBackToBackSlotsAndMovesDraftForward(t *testing.T) {
	sc, svc, armer := newScheduleHarness(t, models.ExamStatusDraft, false)

	created, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{
		proposal("10A", "physics", "10:00", "11:00", "Room 101"),
		proposal("10B", "math", "09:00", "10:00", "Room 202"),
	}})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, 60, created[0].DurationMinutes)
	assert.NotEmpty(t, created[0].ID)
	assert.Equal(t, models.ExamStatusScheduled, sc.exams["exam-1"].Status)
	assert.Empty(t, armer.armed)
}

func TestScheduleRejectsProposalsClashingWithEachOther(t *testing.T) {
	_, svc, _ := newScheduleHarness(t, models.ExamStatusScheduled, false)

	_, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{
		proposal("10B", "physics", "11:00", "12:00", "Lab"),
		proposal("10B", "biology", "11:30", "12:30", "Hall"),
	}})
	conflicts := conflictsOf(t, err)
	require.NotEmpty(t, conflicts)
	assert.Equal(t, grading.ConflictClass, conflicts[0].Type)
}

func TestScheduleRejectsDuplicateSubjectOnAnotherDate(t *testing.T) {
	_, svc, _ := newScheduleHarness(t, models.ExamStatusScheduled, false)

	row := proposal("10A", "math", "09:00", "10:00", "Hall")
	row.Date = "2025-03-12"
	_, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{row}})
	conflicts := conflictsOf(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, grading.ConflictDuplicate, conflicts[0].Type)
}

func TestScheduleReportsEveryInvalidRow(t *testing.T) {
	_, svc, _ := newScheduleHarness(t, models.ExamStatusScheduled, false)

	outside := proposal("10A", "art", "08:00", "09:00", "Hall")
	outside.Date = "2025-05-01"
	inverted := proposal("10A", "music", "11:00", "10:00", "Hall")
	lowTotal := proposal("10A", "chem", "13:00", "14:00", "Hall")
	lowTotal.PassingMarks = 150
	_, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{
		outside, inverted, lowTotal, proposal("12Z", "math", "13:00", "14:00", "Hall"),
	}})
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
	problems, ok := typed.Details.([]RowProblem)
	require.True(t, ok)
	require.Len(t, problems, 4)
	assert.Equal(t, "date outside the exam window", problems[0].Message)
	assert.Equal(t, "start_time must be before end_time", problems[1].Message)
	assert.Equal(t, "passing_marks must not exceed total_marks", problems[2].Message)
	assert.Equal(t, "class not found", problems[3].Message)
}

func TestScheduleRequiresOpenExam(t *testing.T) {
	_, svc, _ := newScheduleHarness(t, models.ExamStatusCancelled, false)

	_, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{
		proposal("10B", "physics", "13:00", "14:00", "Hall"),
	}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrState.Code))
}

func TestScheduleArmsRemindersForPublishedExam(t *testing.T) {
	_, svc, armer := newScheduleHarness(t, models.ExamStatusScheduled, true)

	_, err := svc.Schedule(context.Background(), "exam-1", ScheduleExamRequest{Schedules: []ScheduleRequest{
		proposal("10B", "physics", "13:00", "14:00", "Hall"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"exam-1"}, armer.armed)
}

func TestDeactivateScheduleIsIdempotent(t *testing.T) {
	sc, svc, _ := newScheduleHarness(t, models.ExamStatusScheduled, false)
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, "sch-a"))
	require.NoError(t, svc.Deactivate(ctx, "sch-a"))
	assert.False(t, sc.schedules["sch-a"].IsActive)

	active, err := svc.List(ctx, "exam-1", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = svc.Deactivate(ctx, "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestSlotStartCombinesDateAndClock(t *testing.T) {
	at, err := slotStart(models.ExamSchedule{Date: testEpoch, StartTime: "09:30"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), at)
}
