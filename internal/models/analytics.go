package models

import "time"

// AnalyticsFilter scopes result analytics. Empty fields are ignored.
type AnalyticsFilter struct {
	AcademicYearID string `form:"academicYearId" json:"academic_year_id,omitempty"`
	TermID         string `form:"termId" json:"term_id,omitempty"`
	ClassID        string `form:"classId" json:"class_id,omitempty"`
	SubjectID      string `form:"subjectId" json:"subject_id,omitempty"`
	ExamID         string `form:"examId" json:"exam_id,omitempty"`
	TopN           int    `form:"top" json:"top,omitempty"`
}

// FactFilter converts the analytics filter into a result fact filter.
func (f AnalyticsFilter) FactFilter() ResultFactFilter {
	return ResultFactFilter{
		AcademicYearID: f.AcademicYearID,
		TermID:         f.TermID,
		ExamID:         f.ExamID,
		ClassID:        f.ClassID,
		SubjectID:      f.SubjectID,
	}
}

// OverallStats summarises every result in scope.
type OverallStats struct {
	Count             int            `json:"count"`
	Average           float64        `json:"average"`
	Min               float64        `json:"min"`
	Max               float64        `json:"max"`
	PassRate          float64        `json:"pass_rate"`
	AttendanceRate    float64        `json:"attendance_rate"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}

// SubjectStats aggregates results per subject.
type SubjectStats struct {
	SubjectID       string  `json:"subject_id"`
	SubjectName     string  `json:"subject_name"`
	Count           int     `json:"count"`
	Average         float64 `json:"average"`
	PassRate        float64 `json:"pass_rate"`
	DifficultyIndex string  `json:"difficulty_index"`
}

// GroupStats aggregates results per class, grade or term.
type GroupStats struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Count    int     `json:"count"`
	Average  float64 `json:"average"`
	PassRate float64 `json:"pass_rate"`
}

// Performer ranks a student by average percentage.
type Performer struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	Average     float64 `json:"average"`
	Subjects    int     `json:"subjects"`
}

// ResultAnalytics is the full analytics view over a filtered result set.
type ResultAnalytics struct {
	Filter           AnalyticsFilter `json:"filter"`
	Overall          OverallStats    `json:"overall"`
	Subjects         []SubjectStats  `json:"subjects"`
	Classes          []GroupStats    `json:"classes"`
	Grades           []GroupStats    `json:"grades"`
	Terms            []GroupStats    `json:"terms"`
	TopPerformers    []Performer     `json:"top_performers"`
	ImprovementAreas []SubjectStats  `json:"improvement_areas"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// StudentProgress tracks a student across the terms of an academic year.
type StudentProgress struct {
	StudentID      string          `json:"student_id"`
	AcademicYearID string          `json:"academic_year_id"`
	ReportCards    []ReportCardRow `json:"report_cards"`
	Subjects       []SubjectStats  `json:"subjects"`
	Trend          string          `json:"trend"`
}

// AnalyticsSystemMetrics is a point-in-time view of the engine's instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ResultsEntered           uint64    `json:"results_entered"`
	ReportCardsGenerated     uint64    `json:"report_cards_generated"`
	AttemptsGraded           uint64    `json:"attempts_graded"`
	NotificationsSent        uint64    `json:"notifications_sent"`
	NotificationsFailed      uint64    `json:"notifications_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
