package models

import "time"

// Term models a subdivision of an academic year.
type Term struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
	IsActive       bool      `db:"is_active" json:"is_active"`
}

// Contains reports whether day lies within the term.
func (t Term) Contains(day time.Time) bool {
	return !day.Before(t.StartDate) && !day.After(t.EndDate)
}
