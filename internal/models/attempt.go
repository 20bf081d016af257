package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AttemptStatus is the state of an online exam attempt.
type AttemptStatus string

const (
	AttemptStarted    AttemptStatus = "STARTED"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
	AttemptTimedOut   AttemptStatus = "TIMED_OUT"
	AttemptGraded     AttemptStatus = "GRADED"
	AttemptVoid       AttemptStatus = "VOID"
)

// Live reports whether the attempt still accepts responses.
func (s AttemptStatus) Live() bool {
	return s == AttemptStarted || s == AttemptInProgress
}

// AwaitingGrade reports whether the attempt is closed but not yet graded.
func (s AttemptStatus) AwaitingGrade() bool {
	return s == AttemptSubmitted || s == AttemptTimedOut
}

// Attempt is one student session of an online exam.
type Attempt struct {
	ID                string          `db:"id" json:"id"`
	StudentID         string          `db:"student_id" json:"student_id"`
	OnlineExamID      string          `db:"online_exam_id" json:"online_exam_id"`
	AttemptNumber     int             `db:"attempt_number" json:"attempt_number"`
	StartTime         time.Time       `db:"start_time" json:"start_time"`
	SubmitTime        *time.Time      `db:"submit_time" json:"submit_time,omitempty"`
	LastSavedAt       *time.Time      `db:"last_saved_at" json:"last_saved_at,omitempty"`
	Responses         Responses       `db:"responses" json:"responses"`
	Snapshot          AttemptSnapshot `db:"snapshot" json:"questions"`
	Breakdown         GradeBreakdown  `db:"breakdown" json:"breakdown,omitempty"`
	AutoGradedMarks   float64         `db:"auto_graded_marks" json:"auto_graded_marks"`
	ManualGradedMarks float64         `db:"manual_graded_marks" json:"manual_graded_marks"`
	MarksObtained     float64         `db:"marks_obtained" json:"marks_obtained"`
	TotalMarks        float64         `db:"total_marks" json:"total_marks"`
	Status            AttemptStatus   `db:"status" json:"status"`
	IsGraded          bool            `db:"is_graded" json:"is_graded"`
	ViolationCount    int             `db:"violation_count" json:"violation_count"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// SnapshotQuestion is a question as presented within one attempt.
// OptionOrder maps a presented option position to the original option index.
type SnapshotQuestion struct {
	QuestionID    string       `json:"question_id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	OptionOrder   []int        `json:"option_order,omitempty"`
	Marks         float64      `json:"marks"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	CorrectIndex  *int         `json:"correct_index,omitempty"`
}

// AttemptSnapshot is the ordered question list materialised at attempt start.
type AttemptSnapshot []SnapshotQuestion

// Redacted strips answer keys and option permutations for student views.
func (s AttemptSnapshot) Redacted() AttemptSnapshot {
	out := make(AttemptSnapshot, len(s))
	for i, q := range s {
		q.CorrectAnswer = ""
		q.CorrectIndex = nil
		q.OptionOrder = nil
		out[i] = q
	}
	return out
}

// TotalMarks sums the marks of every question.
func (s AttemptSnapshot) TotalMarks() float64 {
	var total float64
	for _, q := range s {
		total += q.Marks
	}
	return total
}

// Find returns the question with the given id.
func (s AttemptSnapshot) Find(questionID string) (SnapshotQuestion, bool) {
	for _, q := range s {
		if q.QuestionID == questionID {
			return q, true
		}
	}
	return SnapshotQuestion{}, false
}

// Value marshals the snapshot for a JSONB column.
func (s AttemptSnapshot) Value() (driver.Value, error) {
	if s == nil {
		s = AttemptSnapshot{}
	}
	return marshalJSONColumn(s, "attempt snapshot")
}

// Scan unmarshals the snapshot from a JSONB column.
func (s *AttemptSnapshot) Scan(value interface{}) error {
	*s = AttemptSnapshot{}
	return scanJSONColumn(value, s, "attempt snapshot")
}

// QuestionGrade records how one question of an attempt was marked.
type QuestionGrade struct {
	Awarded float64 `json:"awarded"`
	Max     float64 `json:"max"`
	Manual  bool    `json:"manual"`
	Pending bool    `json:"pending"`
}

// GradeBreakdown maps question ids to their marks.
type GradeBreakdown map[string]QuestionGrade

// PendingManual reports whether any manually graded question still lacks marks.
func (b GradeBreakdown) PendingManual() bool {
	for _, g := range b {
		if g.Pending {
			return true
		}
	}
	return false
}

// Value marshals the breakdown for a JSONB column.
func (b GradeBreakdown) Value() (driver.Value, error) {
	if b == nil {
		b = GradeBreakdown{}
	}
	return marshalJSONColumn(map[string]QuestionGrade(b), "grade breakdown")
}

// Scan unmarshals the breakdown from a JSONB column.
func (b *GradeBreakdown) Scan(value interface{}) error {
	*b = GradeBreakdown{}
	return scanJSONColumn(value, b, "grade breakdown")
}

// ManualGrade is a reviewer's mark for one question.
type ManualGrade struct {
	QuestionID string  `json:"question_id" validate:"required"`
	Marks      float64 `json:"marks" validate:"gte=0"`
}

func marshalJSONColumn(v interface{}, what string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", what, err)
	}
	return data, nil
}

func scanJSONColumn(value interface{}, dst interface{}, what string) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, what)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
