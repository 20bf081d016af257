package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/jobs"
)

type fakeReminders struct {
	scheduled map[string]time.Time
	cancelled []string
}

func (f *fakeReminders) Schedule(job jobs.Job, when time.Time) error {
	if f.scheduled == nil {
		f.scheduled = map[string]time.Time{}
	}
	f.scheduled[job.ID] = when
	return nil
}

func (f *fakeReminders) Cancel(jobID string) bool {
	f.cancelled = append(f.cancelled, jobID)
	return true
}

func newExamHarness(t *testing.T) (*school, *ExamService, *fakeReminders) {
	t.Helper()
	sc := newSchool()
	sc.addTerm("term-1", "year-1")
	sc.addClass("10A", "10", "s1")
	reminders := &fakeReminders{}
	svc := NewExamService(examStore{sc}, termStore{sc}, scheduleStore{sc}, &fakeTx{}, ExamServiceConfig{
		Reminders:    reminders,
		ReminderLead: time.Hour,
		Clock:        sc.clock,
	}, nil, nil)
	return sc, svc, reminders
}

func TestCreateExamStartsAsDraftWithContributionWarning(t *testing.T) {
	sc, svc, _ := newExamHarness(t)

	out, err := svc.Create(context.Background(), CreateExamRequest{
		Name: "Midterm", ExamTypeID: "type-1", TermID: "term-1", StartDate: "2025-03-10", EndDate: "2025-03-20",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusDraft, out.Exam.Status)
	assert.Equal(t, "year-1", out.Exam.AcademicYearID)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "expected 100%")
	assert.Contains(t, sc.exams, out.Exam.ID)
}

func TestCreateExamRejectsInvertedWindow(t *testing.T) {
	_, svc, _ := newExamHarness(t)

	_, err := svc.Create(context.Background(), CreateExamRequest{
		Name: "Final", ExamTypeID: "type-1", TermID: "term-1", StartDate: "2025-03-20", EndDate: "2025-03-10",
	}, "admin-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Create(context.Background(), CreateExamRequest{
		Name: "Final", ExamTypeID: "type-1", TermID: "nope", StartDate: "2025-03-10", EndDate: "2025-03-20",
	}, "admin-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestUpdateExamFreezesOnceResultsExist(t *testing.T) {
	sc, svc, _ := newExamHarness(t)
	sc.addExam("exam-1", "term-1", models.ExamStatusScheduled, false)
	sc.addSchedule("sch-1", "exam-1", "10A", "math", 100, 40)
	ctx := context.Background()

	renamed, err := svc.Update(ctx, "exam-1", UpdateExamRequest{Name: strPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)

	require.NoError(t, resultStore{sc}.Upsert(ctx, &models.StudentExamResult{StudentID: "s1", ExamScheduleID: "sch-1", MarksObtained: 10}))
	_, err = svc.Update(ctx, "exam-1", UpdateExamRequest{Name: strPtr("Again")})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrState.Code))
}

func TestPublishArmsFutureReminders(t *testing.T) {
	sc, svc, reminders := newExamHarness(t)
	sc.addExam("exam-1", "term-1", models.ExamStatusScheduled, false)
	sc.addSchedule("sch-1", "exam-1", "10A", "math", 100, 40)
	past := sc.addSchedule("sch-0", "exam-1", "10A", "art", 100, 40)
	past.StartTime = "07:00"

	exam, err := svc.Publish(context.Background(), "exam-1")
	require.NoError(t, err)
	assert.True(t, exam.Published)
	assert.True(t, sc.exams["exam-1"].Published)

	require.Len(t, reminders.scheduled, 1)
	assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), reminders.scheduled["exam_reminder:sch-1"])
}

func TestPublishRequiresScheduledExam(t *testing.T) {
	sc, svc, _ := newExamHarness(t)
	sc.addExam("exam-1", "term-1", models.ExamStatusDraft, false)

	_, err := svc.Publish(context.Background(), "exam-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrState.Code))
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	sc, svc, reminders := newExamHarness(t)
	sc.addExam("exam-1", "term-1", models.ExamStatusScheduled, true)
	sc.addSchedule("sch-1", "exam-1", "10A", "math", 100, 40)
	ctx := context.Background()

	_, err := svc.Transition(ctx, "exam-1", models.ExamStatusCompleted)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrState.Code))

	_, err = svc.Transition(ctx, "exam-1", "PAUSED")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	exam, err := svc.Transition(ctx, "exam-1", models.ExamStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusCancelled, exam.Status)
	assert.False(t, exam.Published)
	assert.Equal(t, []string{"exam_reminder:sch-1"}, reminders.cancelled)
}

func TestRefreshProgressFloorsCompletedShare(t *testing.T) {
	sc, svc, _ := newExamHarness(t)
	sc.addClass("10B", "10", "s2", "s3")
	sc.addExam("exam-1", "term-1", models.ExamStatusOngoing, false)
	sc.addSchedule("sch-1", "exam-1", "10A", "math", 100, 40).IsCompleted = true
	sc.addSchedule("sch-2", "exam-1", "10B", "math", 100, 40)
	sc.addSchedule("sch-3", "exam-1", "10B", "art", 100, 40)

	require.NoError(t, svc.RefreshProgress(context.Background(), "exam-1"))
	assert.Equal(t, [2]int{3, 1}, sc.progress["exam-1"])
}
