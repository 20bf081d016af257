package models

import "time"

// ReportCardStatus is the publication status of a report card.
type ReportCardStatus string

const (
	ReportCardDraft     ReportCardStatus = "DRAFT"
	ReportCardPublished ReportCardStatus = "PUBLISHED"
	ReportCardArchived  ReportCardStatus = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s ReportCardStatus) Valid() bool {
	return s == ReportCardDraft || s == ReportCardPublished || s == ReportCardArchived
}

// ReportCard aggregates a student's results for one term in one class.
type ReportCard struct {
	ID                   string           `db:"id" json:"id"`
	StudentID            string           `db:"student_id" json:"student_id"`
	ClassID              string           `db:"class_id" json:"class_id"`
	AcademicYearID       string           `db:"academic_year_id" json:"academic_year_id"`
	TermID               string           `db:"term_id" json:"term_id"`
	TotalMarks           float64          `db:"total_marks" json:"total_marks"`
	MarksObtained        float64          `db:"marks_obtained" json:"marks_obtained"`
	Percentage           float64          `db:"percentage" json:"percentage"`
	Grade                string           `db:"grade" json:"grade"`
	GradePointAverage    float64          `db:"grade_point_average" json:"grade_point_average"`
	SubjectCount         int              `db:"subject_count" json:"subject_count"`
	FailedSubjects       int              `db:"failed_subjects" json:"failed_subjects"`
	ClassRank            *int             `db:"class_rank" json:"class_rank,omitempty"`
	ClassSize            int              `db:"class_size" json:"class_size"`
	GradeRank            *int             `db:"grade_rank" json:"grade_rank,omitempty"`
	GradeSize            int              `db:"grade_size" json:"grade_size"`
	AttendancePercentage float64          `db:"attendance_percentage" json:"attendance_percentage"`
	DaysPresent          int              `db:"days_present" json:"days_present"`
	DaysAbsent           int              `db:"days_absent" json:"days_absent"`
	TotalDays            int              `db:"total_days" json:"total_days"`
	TeacherRemarks       *string          `db:"teacher_remarks" json:"teacher_remarks,omitempty"`
	PrincipalRemarks     *string          `db:"principal_remarks" json:"principal_remarks,omitempty"`
	Status               ReportCardStatus `db:"status" json:"status"`
	GenerationDate       time.Time        `db:"generation_date" json:"generation_date"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// ReportCardRow is a report card joined with student and class names for listings and exports.
type ReportCardRow struct {
	ReportCard
	AdmissionNumber string `db:"nis" json:"admission_number"`
	StudentName     string `db:"student_name" json:"student_name"`
	ClassName       string `db:"class_name" json:"class_name"`
	ClassGrade      string `db:"class_grade" json:"class_grade"`
}

// ReportCardFilter narrows report card listings.
type ReportCardFilter struct {
	TermID         string
	ClassID        string
	StudentID      string
	AcademicYearID string
	Status         ReportCardStatus
	Page           int
	PageSize       int
}
