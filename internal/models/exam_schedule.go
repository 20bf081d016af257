package models

import (
	"time"

	"github.com/lib/pq"
)

// ExamSchedule is a concrete (exam, class, subject) slot. StartTime and EndTime are "HH:MM".
type ExamSchedule struct {
	ID                    string         `db:"id" json:"id"`
	ExamID                string         `db:"exam_id" json:"exam_id"`
	ClassID               string         `db:"class_id" json:"class_id"`
	SubjectID             string         `db:"subject_id" json:"subject_id"`
	Date                  time.Time      `db:"date" json:"date"`
	StartTime             string         `db:"start_time" json:"start_time"`
	EndTime               string         `db:"end_time" json:"end_time"`
	DurationMinutes       int            `db:"duration_minutes" json:"duration_minutes"`
	Room                  *string        `db:"room" json:"room,omitempty"`
	SupervisorID          *string        `db:"supervisor_id" json:"supervisor_id,omitempty"`
	AdditionalSupervisors pq.StringArray `db:"additional_supervisors" json:"additional_supervisors"`
	TotalMarks            float64        `db:"total_marks" json:"total_marks"`
	PassingMarks          float64        `db:"passing_marks" json:"passing_marks"`
	IsCompleted           bool           `db:"is_completed" json:"is_completed"`
	IsActive              bool           `db:"is_active" json:"is_active"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// Supervisors returns the primary and additional supervisors.
func (s ExamSchedule) Supervisors() []string {
	out := make([]string, 0, len(s.AdditionalSupervisors)+1)
	if s.SupervisorID != nil && *s.SupervisorID != "" {
		out = append(out, *s.SupervisorID)
	}
	for _, id := range s.AdditionalSupervisors {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ScheduleContext joins a schedule with the exam and class facts needed by ingestion and ranking.
type ScheduleContext struct {
	ExamSchedule
	TermID         string     `db:"term_id" json:"term_id"`
	AcademicYearID string     `db:"academic_year_id" json:"academic_year_id"`
	ExamStatus     ExamStatus `db:"exam_status" json:"exam_status"`
	ExamPublished  bool       `db:"exam_published" json:"exam_published"`
	ClassGrade     string     `db:"class_grade" json:"class_grade"`
}
