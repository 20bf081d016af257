package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveSubjects() []SubjectScore {
	marks := []float64{90, 80, 70, 60, 50}
	scores := make([]SubjectScore, 0, len(marks))
	for i, m := range marks {
		scores = append(scores, SubjectScore{SubjectID: string(rune('a' + i)), TotalMarks: 100, MarksObtained: m, IsPass: m >= 40})
	}
	return scores
}

func TestAggregateCardWithConfiguredScale(t *testing.T) {
	scale, err := NewScale([]Band{
		{Name: "A+", Min: 90, Max: 100, Point: 3.7},
		{Name: "A", Min: 80, Max: 89.99, Point: 3.0},
		{Name: "B+", Min: 70, Max: 79.99, Point: 3.0},
		{Name: "B", Min: 60, Max: 69.99, Point: 2.3},
		{Name: "C+", Min: 50, Max: 59.99, Point: 2.3},
		{Name: "C", Min: 40, Max: 49.99, Point: 2.0},
		{Name: "D", Min: 30, Max: 39.99, Point: 1.0},
		{Name: "F", Min: 0, Max: 29.99, Point: 0},
	})
	require.NoError(t, err)

	totals, err := AggregateCard(scale, fiveSubjects())
	require.NoError(t, err)
	assert.Equal(t, 500.0, totals.TotalMarks)
	assert.Equal(t, 350.0, totals.MarksObtained)
	assert.Equal(t, 70.0, totals.Percentage)
	assert.Equal(t, "B+", totals.Grade)
	assert.Equal(t, 2.86, totals.GradePointAverage)
	assert.Equal(t, 5, totals.SubjectCount)
	assert.Equal(t, 0, totals.FailedSubjects)
}

func TestAggregateCardWithFallbackScale(t *testing.T) {
	totals, err := AggregateCard(FallbackScale(), fiveSubjects())
	require.NoError(t, err)
	assert.Equal(t, 70.0, totals.Percentage)
	assert.Equal(t, "B+", totals.Grade)
	assert.Equal(t, 3.34, totals.GradePointAverage)
}

func TestAggregateCardExcludesExempted(t *testing.T) {
	scores := []SubjectScore{
		{SubjectID: "math", TotalMarks: 100, MarksObtained: 80, IsPass: true},
		{SubjectID: "art", TotalMarks: 50, IsExempted: true},
		{SubjectID: "bio", TotalMarks: 100, IsAbsent: true},
	}
	totals, err := AggregateCard(FallbackScale(), scores)
	require.NoError(t, err)
	assert.Equal(t, 200.0, totals.TotalMarks)
	assert.Equal(t, 80.0, totals.MarksObtained)
	assert.Equal(t, 40.0, totals.Percentage)
	assert.Equal(t, 2, totals.SubjectCount)
	assert.Equal(t, 1, totals.FailedSubjects)
	assert.Equal(t, 1.85, totals.GradePointAverage)
}

func TestAggregateCardAllAbsent(t *testing.T) {
	scores := []SubjectScore{
		{SubjectID: "math", TotalMarks: 100, IsAbsent: true},
		{SubjectID: "bio", TotalMarks: 100, IsAbsent: true},
	}
	totals, err := AggregateCard(FallbackScale(), scores)
	require.NoError(t, err)
	assert.Equal(t, 0.0, totals.Percentage)
	assert.Equal(t, "F", totals.Grade)
	assert.Equal(t, 2, totals.FailedSubjects)
}

func TestAggregateCardNoSubjects(t *testing.T) {
	totals, err := AggregateCard(FallbackScale(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, totals.Percentage)
	assert.Equal(t, 0.0, totals.GradePointAverage)
	assert.False(t, LowPerformance(totals, 40, 3))
}

func TestAggregateCardIsIdempotent(t *testing.T) {
	first, err := AggregateCard(FallbackScale(), fiveSubjects())
	require.NoError(t, err)
	second, err := AggregateCard(FallbackScale(), fiveSubjects())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRankCardsTieBreaks(t *testing.T) {
	ranks := RankCards([]CardRankEntry{
		{Key: "c", Percentage: 70, GPA: 3.0, AdmissionNumber: "003"},
		{Key: "b", Percentage: 70, GPA: 3.0, AdmissionNumber: "002"},
		{Key: "a", Percentage: 70, GPA: 3.3, AdmissionNumber: "009"},
		{Key: "d", Percentage: 90, GPA: 2.0, AdmissionNumber: "004"},
	})
	assert.Equal(t, map[string]int{"d": 1, "a": 2, "b": 3, "c": 4}, ranks)
}

func TestLowPerformance(t *testing.T) {
	assert.True(t, LowPerformance(CardTotals{SubjectCount: 5, Percentage: 39.99}, 40, 3))
	assert.False(t, LowPerformance(CardTotals{SubjectCount: 5, Percentage: 40}, 40, 3))
	assert.True(t, LowPerformance(CardTotals{SubjectCount: 5, Percentage: 60, FailedSubjects: 3}, 40, 3))
}
