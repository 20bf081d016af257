package models

import "time"

// GradingSystem groups the grade bands used in an academic year.
type GradingSystem struct {
	ID             string       `db:"id" json:"id"`
	AcademicYearID string       `db:"academic_year_id" json:"academic_year_id"`
	Name           string       `db:"name" json:"name"`
	IsDefault      bool         `db:"is_default" json:"is_default"`
	Active         bool         `db:"active" json:"active"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	Scales         []GradeScale `db:"-" json:"scales"`
}

// GradeScale is one band of a grading system.
type GradeScale struct {
	ID              string  `db:"id" json:"id"`
	GradingSystemID string  `db:"grading_system_id" json:"grading_system_id"`
	GradeName       string  `db:"grade_name" json:"grade_name"`
	MinPercentage   float64 `db:"min_percentage" json:"min_percentage"`
	MaxPercentage   float64 `db:"max_percentage" json:"max_percentage"`
	GradePoint      float64 `db:"grade_point" json:"grade_point"`
	Color           string  `db:"color" json:"color"`
}
