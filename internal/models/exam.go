package models

import "time"

// ExamStatus is the lifecycle status of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusScheduled ExamStatus = "SCHEDULED"
	ExamStatusOngoing   ExamStatus = "ONGOING"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusCancelled ExamStatus = "CANCELLED"
)

var examTransitions = map[ExamStatus][]ExamStatus{
	ExamStatusDraft:     {ExamStatusScheduled, ExamStatusCancelled},
	ExamStatusScheduled: {ExamStatusOngoing, ExamStatusCancelled},
	ExamStatusOngoing:   {ExamStatusCompleted, ExamStatusCancelled},
}

// Valid reports whether s is a known status.
func (s ExamStatus) Valid() bool {
	switch s {
	case ExamStatusDraft, ExamStatusScheduled, ExamStatusOngoing, ExamStatusCompleted, ExamStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ExamStatus) Terminal() bool {
	return s == ExamStatusCompleted || s == ExamStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s ExamStatus) CanTransitionTo(next ExamStatus) bool {
	for _, candidate := range examTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ExamType is a reusable exam descriptor.
type ExamType struct {
	ID                     string    `db:"id" json:"id"`
	Name                   string    `db:"name" json:"name"`
	ContributionPercentage float64   `db:"contribution_percentage" json:"contribution_percentage"`
	IsTermBased            bool      `db:"is_term_based" json:"is_term_based"`
	Frequency              string    `db:"frequency" json:"frequency"`
	IsOnline               bool      `db:"is_online" json:"is_online"`
	DurationMinutes        int       `db:"duration_minutes" json:"duration_minutes"`
	MaxAttempts            int       `db:"max_attempts" json:"max_attempts"`
	Active                 bool      `db:"active" json:"active"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}

// Exam is a named assessment event within a term.
type Exam struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	ExamTypeID     string     `db:"exam_type_id" json:"exam_type_id"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	TermID         string     `db:"term_id" json:"term_id"`
	StartDate      time.Time  `db:"start_date" json:"start_date"`
	EndDate        time.Time  `db:"end_date" json:"end_date"`
	Status         ExamStatus `db:"status" json:"status"`
	Published      bool       `db:"published" json:"published"`
	TotalStudents  int        `db:"total_students" json:"total_students"`
	CompletedCount int        `db:"completed_count" json:"completed_count"`
	Instructions   *string    `db:"instructions" json:"instructions,omitempty"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// CoversDate reports whether day falls inside the exam window.
func (e Exam) CoversDate(day time.Time) bool {
	d := DateOnly(day)
	return !d.Before(DateOnly(e.StartDate)) && !d.After(DateOnly(e.EndDate))
}

// ExamFilter narrows exam listings.
type ExamFilter struct {
	AcademicYearID string
	TermID         string
	Status         ExamStatus
	Page           int
	PageSize       int
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
