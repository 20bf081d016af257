package grading

import (
	"fmt"
	"math"

	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

// Sentinel grades for rows that carry no score.
const (
	GradeAbsent = "ABSENT"
	GradeExempt = "EXEMPT"
)

// Round2 rounds half-to-even to two decimals.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// Percentage returns obtained/total*100 rounded to two decimals, or 0 when total is 0.
func Percentage(obtained, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return Round2(obtained / total * 100)
}

// ResultInput is a raw result row.
type ResultInput struct {
	MarksObtained float64
	TotalMarks    float64
	PassingMarks  float64
	IsAbsent      bool
	IsExempted    bool
}

// Derived holds the computed fields of a result row.
type Derived struct {
	MarksObtained float64
	Percentage    float64
	Grade         string
	GradePoint    float64
	IsPass        bool
}

// Validate checks the raw row against the schedule limits.
func (in ResultInput) Validate() error {
	if in.TotalMarks <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "total marks must be positive")
	}
	if in.PassingMarks < 0 || in.PassingMarks > in.TotalMarks {
		return appErrors.Clone(appErrors.ErrValidation, "passing marks must be within [0, total marks]")
	}
	if in.IsAbsent && in.IsExempted {
		return appErrors.Clone(appErrors.ErrValidation, "result cannot be both absent and exempted")
	}
	if in.IsAbsent || in.IsExempted {
		return nil
	}
	if math.IsNaN(in.MarksObtained) || in.MarksObtained < 0 || in.MarksObtained > in.TotalMarks {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("marks %.2f outside [0, %.2f]", in.MarksObtained, in.TotalMarks))
	}
	return nil
}

// Calculate derives percentage, grade and pass flag. Absent rows score zero with
// the ABSENT grade; exempted rows carry the EXEMPT grade and no score.
func Calculate(scale *Scale, in ResultInput) (Derived, error) {
	if err := in.Validate(); err != nil {
		return Derived{}, err
	}
	switch {
	case in.IsAbsent:
		return Derived{Grade: GradeAbsent}, nil
	case in.IsExempted:
		return Derived{Grade: GradeExempt}, nil
	}

	marks := Round2(in.MarksObtained)
	percentage := Percentage(marks, in.TotalMarks)
	band, err := scale.Resolve(percentage)
	if err != nil {
		return Derived{}, err
	}
	return Derived{
		MarksObtained: marks,
		Percentage:    percentage,
		Grade:         band.Name,
		GradePoint:    band.Point,
		IsPass:        marks >= in.PassingMarks,
	}, nil
}
