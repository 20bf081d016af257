package models

// AttendanceStatus represents the status for daily attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "H"
	AttendanceStatusSick    AttendanceStatus = "S"
	AttendanceStatusExcused AttendanceStatus = "I"
	AttendanceStatusAbsent  AttendanceStatus = "A"
)

// AttendanceSummary rolls up a student's daily attendance over a term.
type AttendanceSummary struct {
	StudentID string `db:"student_id" json:"student_id"`
	Present   int    `db:"present" json:"present"`
	Absent    int    `db:"absent" json:"absent"`
	Total     int    `db:"total" json:"total"`
}

// Percentage returns present/total as a percentage, or 100 when nothing was recorded.
func (s AttendanceSummary) Percentage() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Present) / float64(s.Total) * 100
}
