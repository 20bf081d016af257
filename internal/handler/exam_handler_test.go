package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type fakeExams struct {
	createdBy string
	next      models.ExamStatus
}

func (f *fakeExams) Create(_ context.Context, req service.CreateExamRequest, createdBy string) (*service.ExamCreated, error) {
	f.createdBy = createdBy
	return &service.ExamCreated{Exam: &models.Exam{ID: "exam-1", Name: req.Name, Status: models.ExamStatusDraft},
		Warnings: []string{"exam type contributions total 60%, expected 100%"}}, nil
}

func (f *fakeExams) Update(context.Context, string, service.UpdateExamRequest) (*models.Exam, error) {
	return nil, appErrors.Clone(appErrors.ErrState, "exam has results")
}

func (f *fakeExams) Get(context.Context, string) (*models.Exam, error) {
	return &models.Exam{ID: "exam-1"}, nil
}

func (f *fakeExams) List(_ context.Context, filter models.ExamFilter) ([]models.Exam, *models.Pagination, error) {
	return nil, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *fakeExams) Publish(context.Context, string) (*models.Exam, error) {
	return &models.Exam{ID: "exam-1", Published: true}, nil
}

func (f *fakeExams) Transition(_ context.Context, _ string, next models.ExamStatus) (*models.Exam, error) {
	f.next = next
	return &models.Exam{ID: "exam-1", Status: next}, nil
}

type fakeSchedules struct{ err error }

func (f fakeSchedules) Schedule(context.Context, string, service.ScheduleExamRequest) ([]models.ExamSchedule, error) {
	return nil, f.err
}

func (f fakeSchedules) List(context.Context, string, bool) ([]models.ScheduleContext, error) {
	return nil, nil
}

func (f fakeSchedules) Deactivate(context.Context, string) error { return f.err }

func TestExamCreateReportsWarningsInMeta(t *testing.T) {
	fake := &fakeExams{}
	h := NewExamHandler(fake, fakeSchedules{}, nil)
	c, rec := newTestContext(http.MethodPost, "/exams",
		`{"name":"Midterm","exam_type_id":"type-1","term_id":"term-1","start_date":"2025-03-10","end_date":"2025-03-20"}`,
		&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	h.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "admin-1", fake.createdBy)
	env := decodeEnvelope(t, rec)
	assert.Len(t, env.Meta["warnings"], 1)
}

func TestExamTransitionUppercasesStatus(t *testing.T) {
	fake := &fakeExams{}
	h := NewExamHandler(fake, fakeSchedules{}, nil)
	c, rec := newTestContext(http.MethodPost, "/exams/exam-1/status", `{"status":"ongoing"}`, nil)

	h.Transition(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ExamStatusOngoing, fake.next)
}

func TestExamScheduleConflictCarriesDetails(t *testing.T) {
	conflict := appErrors.WithDetails(appErrors.ErrConflict, "schedule conflicts", []string{"room Room 101 is booked"})
	h := NewExamHandler(&fakeExams{}, fakeSchedules{err: conflict}, nil)
	c, rec := newTestContext(http.MethodPost, "/exams/exam-1/schedules",
		`{"schedules":[{"class_id":"10B","subject_id":"math","date":"2025-03-10","start_time":"09:30","end_time":"10:30","total_marks":100,"passing_marks":40}]}`, nil)

	h.Schedule(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error struct {
			Code    string   `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Error.Code)
	assert.Equal(t, []string{"room Room 101 is booked"}, body.Error.Details)
}

func TestRecomputeRanksWithoutRankingService(t *testing.T) {
	h := NewExamHandler(&fakeExams{}, fakeSchedules{}, nil)
	c, rec := newTestContext(http.MethodPost, "/exams/exam-1/ranks/recompute", "", nil)

	h.RecomputeRanks(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExamUpdateFrozen(t *testing.T) {
	h := NewExamHandler(&fakeExams{}, fakeSchedules{}, nil)
	c, rec := newTestContext(http.MethodPut, "/exams/exam-1", `{"name":"Renamed"}`, nil)

	h.Update(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
