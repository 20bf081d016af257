package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
)

func TestDifficultyIndex(t *testing.T) {
	assert.Equal(t, DifficultyEasy, DifficultyIndex(70, 80))
	assert.Equal(t, DifficultyModerate, DifficultyIndex(45, 55))
	assert.Equal(t, DifficultyDifficult, DifficultyIndex(30, 40))
}

func TestAnalyzeAggregatesFacts(t *testing.T) {
	facts := []models.ResultFact{
		{StudentID: "s1", StudentName: "Ani", SubjectID: "math", SubjectName: "Math", ClassID: "c1", ClassGrade: "X", TermID: "t1", Percentage: 90, Grade: "A+", IsPass: true},
		{StudentID: "s2", StudentName: "Budi", SubjectID: "math", SubjectName: "Math", ClassID: "c1", ClassGrade: "X", TermID: "t1", Percentage: 30, Grade: "D", IsPass: false},
		{StudentID: "s1", StudentName: "Ani", SubjectID: "bio", SubjectName: "Biology", ClassID: "c1", ClassGrade: "X", TermID: "t1", Percentage: 80, Grade: "A", IsPass: true},
		{StudentID: "s2", StudentName: "Budi", SubjectID: "bio", SubjectName: "Biology", ClassID: "c1", ClassGrade: "X", TermID: "t1", IsAbsent: true, Grade: GradeAbsent},
		{StudentID: "s3", StudentName: "Citra", SubjectID: "bio", SubjectName: "Biology", ClassID: "c2", ClassGrade: "X", TermID: "t1", IsExempted: true, Grade: GradeExempt},
	}

	got := Analyze(facts, 1)
	assert.Equal(t, 4, got.Overall.Count)
	assert.Equal(t, 50.0, got.Overall.Average)
	assert.Equal(t, 0.0, got.Overall.Min)
	assert.Equal(t, 90.0, got.Overall.Max)
	assert.Equal(t, 50.0, got.Overall.PassRate)
	assert.Equal(t, 75.0, got.Overall.AttendanceRate)
	assert.Equal(t, map[string]int{"A+": 1, "D": 1, "A": 1, GradeAbsent: 1}, got.Overall.GradeDistribution)

	require.Len(t, got.Subjects, 2)
	assert.Equal(t, "bio", got.Subjects[0].SubjectID)
	assert.Equal(t, 2, got.Subjects[0].Count)
	assert.Equal(t, 40.0, got.Subjects[0].Average)
	assert.Equal(t, DifficultyDifficult, got.Subjects[0].DifficultyIndex)
	assert.Equal(t, "math", got.Subjects[1].SubjectID)
	assert.Equal(t, 60.0, got.Subjects[1].Average)
	assert.Equal(t, 50.0, got.Subjects[1].PassRate)

	require.Len(t, got.ImprovementAreas, 2)
	assert.Equal(t, "bio", got.ImprovementAreas[0].SubjectID)
	assert.Equal(t, "math", got.ImprovementAreas[1].SubjectID)

	require.Len(t, got.TopPerformers, 1)
	assert.Equal(t, "s1", got.TopPerformers[0].StudentID)
	assert.Equal(t, 85.0, got.TopPerformers[0].Average)
}

func TestAnalyzeCountsAbsentAsFailed(t *testing.T) {
	facts := []models.ResultFact{
		{StudentID: "s1", SubjectID: "math", SubjectName: "Math", ClassID: "c1", ClassGrade: "X", TermID: "t1", Percentage: 80, Grade: "A", IsPass: true},
		{StudentID: "s2", SubjectID: "math", SubjectName: "Math", ClassID: "c1", ClassGrade: "X", TermID: "t1", IsAbsent: true, Grade: GradeAbsent},
		{StudentID: "s3", SubjectID: "math", SubjectName: "Math", ClassID: "c1", ClassGrade: "X", TermID: "t1", IsAbsent: true, Grade: GradeAbsent},
		{StudentID: "s4", SubjectID: "math", SubjectName: "Math", ClassID: "c1", ClassGrade: "X", TermID: "t1", IsExempted: true, Grade: GradeExempt},
	}

	got := Analyze(facts, 5)
	assert.Equal(t, 3, got.Overall.Count)
	assert.Equal(t, 33.33, got.Overall.PassRate)
	assert.Equal(t, 26.67, got.Overall.Average)
	assert.Equal(t, 33.33, got.Overall.AttendanceRate)
	assert.Equal(t, map[string]int{"A": 1, GradeAbsent: 2}, got.Overall.GradeDistribution)

	require.Len(t, got.Subjects, 1)
	assert.Equal(t, 33.33, got.Subjects[0].PassRate)
	require.Len(t, got.ImprovementAreas, 1)
	assert.Equal(t, "math", got.ImprovementAreas[0].SubjectID)
	for _, groups := range [][]models.GroupStats{got.Classes, got.Grades, got.Terms} {
		require.Len(t, groups, 1)
		assert.Equal(t, 3, groups[0].Count)
		assert.Equal(t, 33.33, groups[0].PassRate)
	}
	require.Len(t, got.TopPerformers, 3)
	assert.Equal(t, "s1", got.TopPerformers[0].StudentID)
	assert.Zero(t, got.TopPerformers[2].Average)
}

func TestAnalyzeEmpty(t *testing.T) {
	got := Analyze(nil, 5)
	assert.Equal(t, 0, got.Overall.Count)
	assert.Empty(t, got.Subjects)
	assert.NotNil(t, got.Overall.GradeDistribution)
}

func TestTrend(t *testing.T) {
	assert.Equal(t, "improving", Trend([]float64{60, 65, 72}))
	assert.Equal(t, "declining", Trend([]float64{80, 70}))
	assert.Equal(t, "stable", Trend([]float64{70}))
}
