package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

// questionBank is an in-memory question bank and online exam table.
type questionBank struct {
	questions   map[string]models.ExamQuestion
	onlineExams map[string]*models.OnlineExam
	lists       map[string][]models.OnlineExamQuestion
	seq         int
}

func newQuestionBank() *questionBank {
	return &questionBank{
		questions:   map[string]models.ExamQuestion{},
		onlineExams: map[string]*models.OnlineExam{},
		lists:       map[string][]models.OnlineExamQuestion{},
	}
}

func (b *questionBank) add(id, subjectID string, difficulty models.Difficulty, active bool) {
	b.questions[id] = models.ExamQuestion{ID: id, SubjectID: subjectID, Grade: "10", Type: models.QuestionEssay,
		Difficulty: difficulty, Marks: 4, Text: "Question " + id, Active: active}
}

func (b *questionBank) Create(_ context.Context, q *models.ExamQuestion) error {
	b.seq++
	q.ID = fmt.Sprintf("q-new-%d", b.seq)
	b.questions[q.ID] = *q
	return nil
}

func (b *questionBank) List(_ context.Context, f models.QuestionFilter) ([]models.ExamQuestion, int, error) {
	var out []models.ExamQuestion
	for _, q := range b.questions {
		if f.SubjectID == "" || q.SubjectID == f.SubjectID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (b *questionBank) FindByIDs(_ context.Context, ids []string) ([]models.ExamQuestion, error) {
	var out []models.ExamQuestion
	for _, id := range ids {
		if q, ok := b.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (b *questionBank) RandomSelect(_ context.Context, subjectID, grade string, difficulty models.Difficulty, limit int) ([]models.ExamQuestion, error) {
	var out []models.ExamQuestion
	ids := make([]string, 0, len(b.questions))
	for id := range b.questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		q := b.questions[id]
		if !q.Active || q.SubjectID != subjectID || q.Grade != grade || (difficulty != "" && q.Difficulty != difficulty) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, q)
	}
	return out, nil
}

func (b *questionBank) IncrementUsage(context.Context, []string) error { return nil }

func (b *questionBank) createOnline(_ context.Context, exam *models.OnlineExam) error {
	for _, existing := range b.onlineExams {
		if existing.ExamScheduleID == exam.ExamScheduleID {
			return &pq.Error{Code: "23505"}
		}
	}
	exam.ID = "oe-" + exam.ExamScheduleID
	c := *exam
	b.onlineExams[exam.ID] = &c
	return nil
}

type onlineExamTable struct{ *questionBank }

func (t onlineExamTable) Create(ctx context.Context, exam *models.OnlineExam) error {
	return t.createOnline(ctx, exam)
}

func (t onlineExamTable) FindByID(_ context.Context, id string) (*models.OnlineExam, error) {
	oe, ok := t.onlineExams[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *oe
	return &c, nil
}

func (t onlineExamTable) FindContext(ctx context.Context, id string) (*models.OnlineExamContext, error) {
	oe, err := t.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.OnlineExamContext{OnlineExam: *oe}, nil
}

func (t onlineExamTable) ReplaceQuestions(_ context.Context, id string, questions []models.OnlineExamQuestion) error {
	for i := range questions {
		questions[i].OnlineExamID = id
	}
	t.lists[id] = questions
	return nil
}

func (t onlineExamTable) ListQuestionDetails(_ context.Context, id string) ([]models.OnlineExamQuestionDetail, error) {
	var out []models.OnlineExamQuestionDetail
	for _, slot := range t.lists[id] {
		q := t.questions[slot.QuestionID]
		out = append(out, models.OnlineExamQuestionDetail{OnlineExamQuestion: slot, Type: q.Type, Text: q.Text, Options: q.Options, CorrectAnswer: q.CorrectAnswer})
	}
	return out, nil
}

func newOnlineExamHarness(t *testing.T) (*school, *questionBank, *OnlineExamService) {
	t.Helper()
	sc := newSchool()
	sc.addTerm("term-1", "year-1")
	sc.addClass("10A", "10", "s1")
	sc.addExam("exam-1", "term-1", models.ExamStatusScheduled, false)
	sc.addSchedule("sch-1", "exam-1", "10A", "physics", 100, 40)

	bank := newQuestionBank()
	bank.add("q1", "physics", models.DifficultyEasy, true)
	bank.add("q2", "physics", models.DifficultyEasy, true)
	bank.add("q3", "physics", models.DifficultyHard, true)
	bank.add("q4", "physics", models.DifficultyHard, false)
	bank.add("q9", "biology", models.DifficultyEasy, true)
	svc := NewOnlineExamService(onlineExamTable{bank}, scheduleStore{sc}, bank, &fakeTx{}, nil, nil)
	return sc, bank, svc
}

func TestCreateOnlineExamHashesAccessCodeAndNormalizesNetworks(t *testing.T) {
	_, _, svc := newOnlineExamHarness(t)
	code := " exam-key "

	exam, err := svc.Create(context.Background(), CreateOnlineExamRequest{
		ExamScheduleID:   "sch-1",
		TimeLimitMinutes: 45,
		MaxAttempts:      2,
		AccessCode:       &code,
		IPRestrictions:   []string{"10.0.0.0/8", "192.168.1.20", " "},
	})
	require.NoError(t, err)
	require.NotNil(t, exam.AccessCodeHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*exam.AccessCodeHash), []byte("exam-key")))
	assert.Equal(t, pq.StringArray{"10.0.0.0/8", "192.168.1.20/32"}, exam.IPRestrictions)
	assert.True(t, accessCodeMatches(*exam, &code))
	assert.True(t, ipAllowed(exam.IPRestrictions, "192.168.1.20"))
	assert.False(t, ipAllowed(exam.IPRestrictions, "192.168.1.21"))
}

func TestCreateOnlineExamValidatesConfiguration(t *testing.T) {
	_, _, svc := newOnlineExamHarness(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 301, MaxAttempts: 1})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 30, MaxAttempts: 6})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 30, MaxAttempts: 1, IPRestrictions: []string{"10.0.0.0/33"}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-9", TimeLimitMinutes: 30, MaxAttempts: 1})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 30, MaxAttempts: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 30, MaxAttempts: 1})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestSetQuestionsChecksBankMembership(t *testing.T) {
	_, bank, svc := newOnlineExamHarness(t)
	ctx := context.Background()
	exam, err := svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 30, MaxAttempts: 1})
	require.NoError(t, err)

	_, err = svc.SetQuestions(ctx, exam.ID, SetQuestionsRequest{Questions: []QuestionSlot{
		{QuestionID: "q1"}, {QuestionID: "q4"}, {QuestionID: "q9"}, {QuestionID: "missing"},
	}})
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
	assert.Len(t, typed.Details, 3)

	_, err = svc.SetQuestions(ctx, exam.ID, SetQuestionsRequest{Questions: []QuestionSlot{{QuestionID: "q1"}, {QuestionID: "q1"}}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	override := 7.5
	slots, err := svc.SetQuestions(ctx, exam.ID, SetQuestionsRequest{Questions: []QuestionSlot{
		{QuestionID: "q3", Marks: &override}, {QuestionID: "q1"},
	}})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 1, slots[0].Order)
	assert.Equal(t, 7.5, slots[0].Marks)
	assert.Equal(t, 4.0, slots[1].Marks)
	assert.Len(t, bank.lists[exam.ID], 2)
}

func TestAutoSelectDrawsByDifficulty(t *testing.T) {
	_, _, svc := newOnlineExamHarness(t)
	ctx := context.Background()
	exam, err := svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 30, MaxAttempts: 1})
	require.NoError(t, err)

	slots, err := svc.AutoSelect(ctx, exam.ID, AutoSelectRequest{Distribution: map[string]int{"EASY": 2, "HARD": 1}})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{slots[0].Order, slots[1].Order, slots[2].Order})
	assert.Equal(t, "q3", slots[2].QuestionID)

	_, err = svc.AutoSelect(ctx, exam.ID, AutoSelectRequest{Distribution: map[string]int{"HARD": 2}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.AutoSelect(ctx, exam.ID, AutoSelectRequest{Distribution: map[string]int{"TRIVIAL": 1}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.AutoSelect(ctx, exam.ID, AutoSelectRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	slots, err = svc.AutoSelect(ctx, exam.ID, AutoSelectRequest{Total: 3})
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestOnlineExamEditsBlockedForClosedExam(t *testing.T) {
	sc, _, svc := newOnlineExamHarness(t)
	ctx := context.Background()
	exam, err := svc.Create(ctx, CreateOnlineExamRequest{ExamScheduleID: "sch-1", TimeLimitMinutes: 30, MaxAttempts: 1})
	require.NoError(t, err)
	sc.exams["exam-1"].Status = models.ExamStatusCompleted

	_, err = svc.AutoSelect(ctx, exam.ID, AutoSelectRequest{Total: 1})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrState.Code))
}
