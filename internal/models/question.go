package models

import (
	"time"

	"github.com/lib/pq"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "MCQ"
	QuestionTrueFalse   QuestionType = "TRUE_FALSE"
	QuestionFillBlank   QuestionType = "FILL_BLANK"
	QuestionShortAnswer QuestionType = "SHORT_ANSWER"
	QuestionEssay       QuestionType = "ESSAY"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMCQ, QuestionTrueFalse, QuestionFillBlank, QuestionShortAnswer, QuestionEssay:
		return true
	}
	return false
}

// ManuallyGraded reports whether answers need a human reviewer.
func (t QuestionType) ManuallyGraded() bool {
	return t == QuestionShortAnswer || t == QuestionEssay
}

// Difficulty grades question hardness.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// ExamQuestion is an item in the question bank.
type ExamQuestion struct {
	ID            string         `db:"id" json:"id"`
	SubjectID     string         `db:"subject_id" json:"subject_id"`
	Grade         string         `db:"grade" json:"grade"`
	Text          string         `db:"text" json:"text"`
	Type          QuestionType   `db:"type" json:"type"`
	Difficulty    Difficulty     `db:"difficulty" json:"difficulty"`
	Marks         float64        `db:"marks" json:"marks"`
	Options       pq.StringArray `db:"options" json:"options"`
	CorrectAnswer string         `db:"correct_answer" json:"correct_answer,omitempty"`
	Explanation   *string        `db:"explanation" json:"explanation,omitempty"`
	Topic         *string        `db:"topic" json:"topic,omitempty"`
	Active        bool           `db:"active" json:"active"`
	UsageCount    int            `db:"usage_count" json:"usage_count"`
	CreatedBy     string         `db:"created_by" json:"created_by"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// QuestionFilter narrows question bank listings.
type QuestionFilter struct {
	SubjectID  string
	Grade      string
	Type       QuestionType
	Difficulty Difficulty
	Topic      string
	ActiveOnly bool
	Page       int
	PageSize   int
}
