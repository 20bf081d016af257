package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

func TestRecomputeRanksIgnoresCompletion(t *testing.T) {
	sc := newSchool()
	sc.addTerm("term-1", "year-1")
	sc.addClass("10A", "10", "s1", "s2")
	sc.addClass("10B", "10", "s3")
	sc.addExam("exam-1", "term-1", models.ExamStatusOngoing, false)
	sc.addSchedule("sch-a", "exam-1", "10A", "math", 100, 40)
	sc.addSchedule("sch-b", "exam-1", "10B", "math", 100, 40)
	ctx := context.Background()
	for _, r := range []models.StudentExamResult{
		{StudentID: "s1", ExamScheduleID: "sch-a", Percentage: 55, MarksObtained: 55},
		{StudentID: "s2", ExamScheduleID: "sch-a", Percentage: 81, MarksObtained: 81},
		{StudentID: "s3", ExamScheduleID: "sch-b", Percentage: 67, MarksObtained: 67},
	} {
		r := r
		require.NoError(t, resultStore{sc}.Upsert(ctx, &r))
	}

	tx := &fakeTx{}
	svc := NewRankingService(scheduleStore{sc}, resultStore{sc}, tx, nil)
	summary, err := svc.Recompute(ctx, "exam-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Schedules)
	assert.Equal(t, 1, summary.GradeGroups)
	assert.Equal(t, 3, summary.Results)
	assert.Equal(t, 1, tx.calls)

	for student, want := range map[string][2]int{"s2": {1, 1}, "s1": {2, 3}} {
		r := sc.resultFor(student, "sch-a")
		require.NotNil(t, r.ClassRank)
		require.NotNil(t, r.GradeRank)
		assert.Equal(t, want[0], *r.ClassRank, student)
		assert.Equal(t, want[1], *r.GradeRank, student)
	}
	assert.Equal(t, 2, *sc.resultFor("s3", "sch-b").GradeRank)
}

func TestRankScheduleWaitsForCompletedSiblings(t *testing.T) {
	sc := newSchool()
	sc.addTerm("term-1", "year-1")
	sc.addClass("10A", "10", "s1")
	sc.addClass("10B", "10", "s2")
	sc.addExam("exam-1", "term-1", models.ExamStatusOngoing, false)
	sc.addSchedule("sch-a", "exam-1", "10A", "math", 100, 40).IsCompleted = true
	sc.addSchedule("sch-b", "exam-1", "10B", "math", 100, 40)
	ctx := context.Background()
	require.NoError(t, resultStore{sc}.Upsert(ctx, &models.StudentExamResult{StudentID: "s1", ExamScheduleID: "sch-a", Percentage: 70}))

	svc := NewRankingService(scheduleStore{sc}, resultStore{sc}, &fakeTx{}, nil)
	require.NoError(t, svc.RankSchedule(ctx, "sch-a"))
	r := sc.resultFor("s1", "sch-a")
	require.NotNil(t, r.ClassRank)
	assert.Nil(t, r.GradeRank)

	err := svc.RankSchedule(ctx, "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestRecomputeRequiresActiveSchedules(t *testing.T) {
	sc := newSchool()
	svc := NewRankingService(scheduleStore{sc}, resultStore{sc}, &fakeTx{}, nil)

	_, err := svc.Recompute(context.Background(), "exam-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestGradeRanksCoverEverySubjectOnceGradeCompletes(t *testing.T) {
	sc := newSchool()
	sc.addTerm("term-1", "year-1")
	sc.addClass("10A", "10", "s1", "s2")
	sc.addExam("exam-1", "term-1", models.ExamStatusOngoing, false)
	math := sc.addSchedule("sch-math", "exam-1", "10A", "math", 100, 40)
	phys := sc.addSchedule("sch-phys", "exam-1", "10A", "physics", 100, 40)
	ctx := context.Background()
	for _, r := range []models.StudentExamResult{
		{StudentID: "s1", ExamScheduleID: "sch-math", Percentage: 62, MarksObtained: 62},
		{StudentID: "s2", ExamScheduleID: "sch-math", Percentage: 88, MarksObtained: 88},
		{StudentID: "s1", ExamScheduleID: "sch-phys", Percentage: 91, MarksObtained: 91},
		{StudentID: "s2", ExamScheduleID: "sch-phys", Percentage: 45, MarksObtained: 45},
	} {
		r := r
		require.NoError(t, resultStore{sc}.Upsert(ctx, &r))
	}
	svc := NewRankingService(scheduleStore{sc}, resultStore{sc}, &fakeTx{}, nil)

	math.IsCompleted = true
	require.NoError(t, svc.RankSchedule(ctx, "sch-math"))
	assert.Nil(t, sc.resultFor("s2", "sch-math").GradeRank, "physics still open")

	phys.IsCompleted = true
	require.NoError(t, svc.RankSchedule(ctx, "sch-phys"))

	for _, tc := range []struct {
		student, schedule string
		want              int
	}{
		{"s2", "sch-math", 1},
		{"s1", "sch-math", 2},
		{"s1", "sch-phys", 1},
		{"s2", "sch-phys", 2},
	} {
		r := sc.resultFor(tc.student, tc.schedule)
		require.NotNil(t, r.GradeRank, tc.schedule+"/"+tc.student)
		assert.Equal(t, tc.want, *r.GradeRank, tc.schedule+"/"+tc.student)
	}
}
