package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

func TestCalculatePassOnBoundary(t *testing.T) {
	derived, err := Calculate(FallbackScale(), ResultInput{MarksObtained: 40, TotalMarks: 100, PassingMarks: 40})
	require.NoError(t, err)
	assert.Equal(t, 40.0, derived.Percentage)
	assert.Equal(t, "C", derived.Grade)
	assert.Equal(t, 2.3, derived.GradePoint)
	assert.True(t, derived.IsPass)
}

func TestCalculateAbsent(t *testing.T) {
	derived, err := Calculate(FallbackScale(), ResultInput{MarksObtained: 0, TotalMarks: 100, PassingMarks: 40, IsAbsent: true})
	require.NoError(t, err)
	assert.Equal(t, 0.0, derived.Percentage)
	assert.Equal(t, GradeAbsent, derived.Grade)
	assert.False(t, derived.IsPass)
}

func TestCalculateAbsentIgnoresSuppliedMarks(t *testing.T) {
	derived, err := Calculate(FallbackScale(), ResultInput{MarksObtained: 75, TotalMarks: 100, PassingMarks: 40, IsAbsent: true})
	require.NoError(t, err)
	assert.Equal(t, 0.0, derived.MarksObtained)
	assert.Equal(t, GradeAbsent, derived.Grade)
}

func TestCalculateExempted(t *testing.T) {
	derived, err := Calculate(FallbackScale(), ResultInput{TotalMarks: 100, PassingMarks: 40, IsExempted: true})
	require.NoError(t, err)
	assert.Equal(t, GradeExempt, derived.Grade)
	assert.False(t, derived.IsPass)
}

func TestCalculatePassingEqualsTotal(t *testing.T) {
	derived, err := Calculate(FallbackScale(), ResultInput{MarksObtained: 50, TotalMarks: 50, PassingMarks: 50})
	require.NoError(t, err)
	assert.True(t, derived.IsPass)
	assert.Equal(t, 100.0, derived.Percentage)

	derived, err = Calculate(FallbackScale(), ResultInput{MarksObtained: 49.5, TotalMarks: 50, PassingMarks: 50})
	require.NoError(t, err)
	assert.False(t, derived.IsPass)
	assert.Equal(t, 99.0, derived.Percentage)
}

func TestCalculateRoundsPercentage(t *testing.T) {
	derived, err := Calculate(FallbackScale(), ResultInput{MarksObtained: 1, TotalMarks: 3, PassingMarks: 1})
	require.NoError(t, err)
	assert.Equal(t, 33.33, derived.Percentage)
	assert.Equal(t, "D", derived.Grade)
}

func TestCalculateIsIdempotent(t *testing.T) {
	in := ResultInput{MarksObtained: 67.5, TotalMarks: 80, PassingMarks: 32}
	first, err := Calculate(FallbackScale(), in)
	require.NoError(t, err)
	second, err := Calculate(FallbackScale(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	cases := map[string]ResultInput{
		"marks above total":  {MarksObtained: 101, TotalMarks: 100, PassingMarks: 40},
		"negative marks":     {MarksObtained: -1, TotalMarks: 100, PassingMarks: 40},
		"absent and exempt":  {TotalMarks: 100, PassingMarks: 40, IsAbsent: true, IsExempted: true},
		"zero total":         {MarksObtained: 0, TotalMarks: 0},
		"passing over total": {MarksObtained: 10, TotalMarks: 20, PassingMarks: 21},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Calculate(FallbackScale(), in)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
		})
	}
}

func TestRound2UsesBankersRounding(t *testing.T) {
	assert.Equal(t, 0.12, Round2(0.125))
	assert.Equal(t, 0.38, Round2(0.375))
	assert.Equal(t, 0.0, Percentage(10, 0))
}
