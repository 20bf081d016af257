package models

import (
	"time"

	"github.com/lib/pq"
)

// OnlineExam configures the online delivery of one exam schedule.
type OnlineExam struct {
	ID                     string         `db:"id" json:"id"`
	ExamScheduleID         string         `db:"exam_schedule_id" json:"exam_schedule_id"`
	TimeLimitMinutes       int            `db:"time_limit_minutes" json:"time_limit_minutes"`
	MaxAttempts            int            `db:"max_attempts" json:"max_attempts"`
	ShuffleQuestions       bool           `db:"shuffle_questions" json:"shuffle_questions"`
	ShuffleOptions         bool           `db:"shuffle_options" json:"shuffle_options"`
	ShowResultsImmediately bool           `db:"show_results_immediately" json:"show_results_immediately"`
	ProctoringEnabled      bool           `db:"proctoring_enabled" json:"proctoring_enabled"`
	WebcamRequired         bool           `db:"webcam_required" json:"webcam_required"`
	FullscreenRequired     bool           `db:"fullscreen_required" json:"fullscreen_required"`
	AccessCodeHash         *string        `db:"access_code_hash" json:"-"`
	IPRestrictions         pq.StringArray `db:"ip_restrictions" json:"ip_restrictions"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
}

// RequiresAccessCode reports whether an access code must be presented to start.
func (o OnlineExam) RequiresAccessCode() bool {
	return o.AccessCodeHash != nil && *o.AccessCodeHash != ""
}

// TimeLimit returns the attempt duration.
func (o OnlineExam) TimeLimit() time.Duration {
	return time.Duration(o.TimeLimitMinutes) * time.Minute
}

// OnlineExamQuestion places a bank question into an online exam.
type OnlineExamQuestion struct {
	OnlineExamID string  `db:"online_exam_id" json:"online_exam_id"`
	QuestionID   string  `db:"question_id" json:"question_id"`
	Order        int     `db:"question_order" json:"order"`
	Marks        float64 `db:"marks" json:"marks"`
}

// OnlineExamQuestionDetail joins an exam question slot with its bank item.
type OnlineExamQuestionDetail struct {
	OnlineExamQuestion
	Type          QuestionType   `db:"type" json:"type"`
	Text          string         `db:"text" json:"text"`
	Options       pq.StringArray `db:"options" json:"options"`
	CorrectAnswer string         `db:"correct_answer" json:"-"`
}

// OnlineExamContext joins an online exam with its schedule facts.
type OnlineExamContext struct {
	OnlineExam
	ClassID      string     `db:"class_id"`
	ExamID       string     `db:"exam_id"`
	TermID       string     `db:"term_id"`
	TotalMarks   float64    `db:"total_marks"`
	PassingMarks float64    `db:"passing_marks"`
	ExamStatus   ExamStatus `db:"exam_status"`
}
