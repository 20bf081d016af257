package models

import "time"

// StudentExamResult is a per-subject score for one schedule.
type StudentExamResult struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	ExamScheduleID string    `db:"exam_schedule_id" json:"exam_schedule_id"`
	TermID         string    `db:"term_id" json:"term_id"`
	MarksObtained  float64   `db:"marks_obtained" json:"marks_obtained"`
	Percentage     float64   `db:"percentage" json:"percentage"`
	Grade          string    `db:"grade" json:"grade"`
	GradePoint     float64   `db:"grade_point" json:"grade_point"`
	IsPass         bool      `db:"is_pass" json:"is_pass"`
	IsAbsent       bool      `db:"is_absent" json:"is_absent"`
	IsExempted     bool      `db:"is_exempted" json:"is_exempted"`
	ClassRank      *int      `db:"class_rank" json:"class_rank,omitempty"`
	GradeRank      *int      `db:"grade_rank" json:"grade_rank,omitempty"`
	Remarks        *string   `db:"remarks" json:"remarks,omitempty"`
	EnteredBy      string    `db:"entered_by" json:"entered_by"`
	EntryDate      time.Time `db:"entry_date" json:"entry_date"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Ranked reports whether the result participates in rankings.
func (r StudentExamResult) Ranked() bool {
	return !r.IsAbsent && !r.IsExempted
}

// RankAssignment is a rank update produced by the ranking engine.
type RankAssignment struct {
	ResultID string `db:"id"`
	Rank     *int   `db:"rank"`
}

// ResultFact is a denormalised result row used by report cards and analytics.
type ResultFact struct {
	ResultID       string    `db:"result_id" json:"result_id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	StudentName    string    `db:"student_name" json:"student_name"`
	ExamID         string    `db:"exam_id" json:"exam_id"`
	ExamName       string    `db:"exam_name" json:"exam_name"`
	ScheduleID     string    `db:"exam_schedule_id" json:"exam_schedule_id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	ClassName      string    `db:"class_name" json:"class_name"`
	ClassGrade     string    `db:"class_grade" json:"class_grade"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	SubjectName    string    `db:"subject_name" json:"subject_name"`
	TermID         string    `db:"term_id" json:"term_id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	TotalMarks     float64   `db:"total_marks" json:"total_marks"`
	MarksObtained  float64   `db:"marks_obtained" json:"marks_obtained"`
	Percentage     float64   `db:"percentage" json:"percentage"`
	Grade          string    `db:"grade" json:"grade"`
	GradePoint     float64   `db:"grade_point" json:"grade_point"`
	IsPass         bool      `db:"is_pass" json:"is_pass"`
	IsAbsent       bool      `db:"is_absent" json:"is_absent"`
	IsExempted     bool      `db:"is_exempted" json:"is_exempted"`
	EntryDate      time.Time `db:"entry_date" json:"entry_date"`
}

// ResultFactFilter narrows result fact queries. Empty fields are ignored.
type ResultFactFilter struct {
	AcademicYearID string
	TermID         string
	ExamID         string
	ClassID        string
	SubjectID      string
	StudentID      string
}
