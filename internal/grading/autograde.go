package grading

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

var (
	trueTokens  = map[string]struct{}{"true": {}, "t": {}, "yes": {}, "y": {}, "1": {}}
	falseTokens = map[string]struct{}{"false": {}, "f": {}, "no": {}, "n": {}, "0": {}}
)

// ParseTrueFalse interprets a true/false answer, accepting common synonyms.
func ParseTrueFalse(value string) (bool, bool) {
	token := strings.ToLower(strings.TrimSpace(value))
	if _, ok := trueTokens[token]; ok {
		return true, true
	}
	if _, ok := falseTokens[token]; ok {
		return false, true
	}
	return false, false
}

// strategy grades one objective question and reports whether the answer is correct.
type strategy func(q models.SnapshotQuestion, resp models.Response) bool

var strategies = map[models.QuestionType]strategy{
	models.QuestionMCQ:       gradeMCQ,
	models.QuestionTrueFalse: gradeTrueFalse,
	models.QuestionFillBlank: gradeFillBlank,
}

func gradeMCQ(q models.SnapshotQuestion, resp models.Response) bool {
	if resp.Kind != models.ResponseMCQ || resp.ChosenIndex == nil {
		return false
	}
	chosen := *resp.ChosenIndex
	if chosen < 0 || chosen >= len(q.Options) {
		return false
	}
	original := chosen
	if len(q.OptionOrder) == len(q.Options) {
		original = q.OptionOrder[chosen]
	}
	correct, ok := CorrectOptionIndex(q)
	return ok && original == correct
}

func gradeTrueFalse(q models.SnapshotQuestion, resp models.Response) bool {
	if resp.Kind != models.ResponseTrueFalse || resp.Value == nil {
		return false
	}
	given, ok := ParseTrueFalse(*resp.Value)
	if !ok {
		return false
	}
	expected, ok := ParseTrueFalse(q.CorrectAnswer)
	return ok && given == expected
}

func gradeFillBlank(q models.SnapshotQuestion, resp models.Response) bool {
	if resp.Kind != models.ResponseText || resp.Text == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*resp.Text), strings.TrimSpace(q.CorrectAnswer))
}

// CorrectOptionIndex resolves an MCQ answer key to the original option index. The key
// is matched against the option texts first and then read as a zero-based index.
func CorrectOptionIndex(q models.SnapshotQuestion) (int, bool) {
	if q.CorrectIndex != nil {
		return *q.CorrectIndex, *q.CorrectIndex >= 0 && *q.CorrectIndex < len(q.Options)
	}
	key := strings.TrimSpace(q.CorrectAnswer)
	for pos, option := range q.Options {
		if strings.EqualFold(strings.TrimSpace(option), key) {
			if len(q.OptionOrder) == len(q.Options) {
				return q.OptionOrder[pos], true
			}
			return pos, true
		}
	}
	if idx, err := strconv.Atoi(key); err == nil && idx >= 0 && idx < len(q.Options) {
		return idx, true
	}
	return 0, false
}

// AutoGrade marks every objective question with full or zero marks. Manually graded
// questions are recorded as pending.
func AutoGrade(snapshot models.AttemptSnapshot, responses models.Responses) (float64, models.GradeBreakdown) {
	breakdown := make(models.GradeBreakdown, len(snapshot))
	var total float64
	for _, q := range snapshot {
		if q.Type.ManuallyGraded() {
			_, answered := responses[q.QuestionID]
			breakdown[q.QuestionID] = models.QuestionGrade{Max: q.Marks, Manual: true, Pending: answered}
			continue
		}
		grade := models.QuestionGrade{Max: q.Marks}
		resp, answered := responses[q.QuestionID]
		if grader := strategies[q.Type]; answered && grader != nil && grader(q, resp) {
			grade.Awarded = q.Marks
			total += q.Marks
		}
		breakdown[q.QuestionID] = grade
	}
	return Round2(total), breakdown
}

// ApplyManualGrades records reviewer marks on manually graded questions and returns the manual total.
func ApplyManualGrades(snapshot models.AttemptSnapshot, breakdown models.GradeBreakdown, grades []models.ManualGrade) (float64, models.GradeBreakdown, error) {
	out := make(models.GradeBreakdown, len(breakdown))
	for k, v := range breakdown {
		out[k] = v
	}
	var problems []string
	for _, g := range grades {
		q, ok := snapshot.Find(g.QuestionID)
		if !ok {
			problems = append(problems, fmt.Sprintf("question %s is not part of the attempt", g.QuestionID))
			continue
		}
		if !q.Type.ManuallyGraded() {
			problems = append(problems, fmt.Sprintf("question %s is auto-graded", g.QuestionID))
			continue
		}
		if g.Marks < 0 || g.Marks > q.Marks {
			problems = append(problems, fmt.Sprintf("marks for question %s must be within [0, %.2f]", g.QuestionID, q.Marks))
			continue
		}
		out[q.QuestionID] = models.QuestionGrade{Awarded: Round2(g.Marks), Max: q.Marks, Manual: true}
	}
	if len(problems) > 0 {
		return 0, nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid manual grades", problems)
	}
	var manual float64
	for _, g := range out {
		if g.Manual {
			manual += g.Awarded
		}
	}
	return Round2(manual), out, nil
}

// BuildSnapshot materialises the question order for an attempt. Shuffling is seeded
// from the attempt id so the order is stable for the attempt's lifetime.
func BuildSnapshot(attemptID string, questions []models.OnlineExamQuestionDetail, shuffleQuestions, shuffleOptions bool) models.AttemptSnapshot {
	rng := rand.New(rand.NewSource(seedFor(attemptID)))
	snapshot := make(models.AttemptSnapshot, 0, len(questions))
	for _, q := range questions {
		item := models.SnapshotQuestion{
			QuestionID:    q.QuestionID,
			Type:          q.Type,
			Text:          q.Text,
			Marks:         q.Marks,
			CorrectAnswer: q.CorrectAnswer,
		}
		if len(q.Options) > 0 {
			item.Options = append([]string(nil), q.Options...)
			item.OptionOrder = identity(len(q.Options))
			if q.Type == models.QuestionMCQ {
				if idx, ok := CorrectOptionIndex(item); ok {
					item.CorrectIndex = &idx
				}
				if shuffleOptions {
					rng.Shuffle(len(item.Options), func(i, j int) {
						item.Options[i], item.Options[j] = item.Options[j], item.Options[i]
						item.OptionOrder[i], item.OptionOrder[j] = item.OptionOrder[j], item.OptionOrder[i]
					})
				}
			}
		}
		snapshot = append(snapshot, item)
	}
	if shuffleQuestions {
		rng.Shuffle(len(snapshot), func(i, j int) { snapshot[i], snapshot[j] = snapshot[j], snapshot[i] })
	}
	return snapshot
}

// ScaleMarks converts attempt marks onto a schedule's total marks.
func ScaleMarks(obtained, attemptTotal, scheduleTotal float64) float64 {
	if attemptTotal <= 0 {
		return 0
	}
	scaled := Round2(obtained / attemptTotal * scheduleTotal)
	if scaled > scheduleTotal {
		return scheduleTotal
	}
	return scaled
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func seedFor(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
