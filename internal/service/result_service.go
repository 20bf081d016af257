package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type resultScheduleRepository interface {
	FindContext(ctx context.Context, id string) (*models.ScheduleContext, error)
	LockContext(ctx context.Context, id string) (*models.ScheduleContext, error)
	SetCompleted(ctx context.Context, id string, completed bool) error
}

type resultRepository interface {
	Upsert(ctx context.Context, result *models.StudentExamResult) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.StudentExamResult, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListClassMembers(ctx context.Context, classID, termID string) ([]models.ClassMember, error)
}

type scheduleRanker interface {
	RankWithinTx(ctx context.Context, schedule *models.ScheduleContext) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ResultRow is one student's raw result in a batch.
type ResultRow struct {
	StudentID     string   `json:"student_id" validate:"required"`
	MarksObtained *float64 `json:"marks_obtained" validate:"omitempty,gte=0"`
	IsAbsent      bool     `json:"is_absent"`
	IsExempted    bool     `json:"is_exempted"`
	Remarks       *string  `json:"remarks" validate:"omitempty,max=500"`
}

// EnterResultsRequest is the payload of a bulk result entry.
type EnterResultsRequest struct {
	Results []ResultRow `json:"results" validate:"dive"`
}

// EnterResultsSummary describes a committed batch.
type EnterResultsSummary struct {
	ScheduleID string                     `json:"schedule_id"`
	Accepted   int                        `json:"accepted"`
	Completed  bool                       `json:"completed"`
	Results    []models.StudentExamResult `json:"results"`
}

// ResultServiceConfig tunes ingestion.
type ResultServiceConfig struct {
	BulkDeadline time.Duration
	MaxBatchSize int
	Clock        clock.Clock
}

// ResultService ingests exam results and keeps ranks, completion and progress consistent.
type ResultService struct {
	schedules resultScheduleRepository
	results   resultRepository
	students  studentDirectory
	exams     examProgressStore
	scales    scaleProvider
	ranker    scheduleRanker
	tx        database.Transactor
	publisher eventPublisher
	cache     cacheInvalidator
	metrics   *MetricsService
	cfg       ResultServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// ResultServiceDeps groups the collaborators of ResultService.
type ResultServiceDeps struct {
	Schedules resultScheduleRepository
	Results   resultRepository
	Students  studentDirectory
	Exams     examProgressStore
	Scales    scaleProvider
	Ranker    scheduleRanker
	Tx        database.Transactor
	Publisher eventPublisher
	Cache     cacheInvalidator
	Metrics   *MetricsService
}

// NewResultService constructs the ingestion service.
func NewResultService(deps ResultServiceDeps, cfg ResultServiceConfig, validate *validator.Validate, logger *zap.Logger) *ResultService {
	if cfg.BulkDeadline <= 0 {
		cfg.BulkDeadline = 30 * time.Second
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		schedules: deps.Schedules,
		results:   deps.Results,
		students:  deps.Students,
		exams:     deps.Exams,
		scales:    deps.Scales,
		ranker:    deps.Ranker,
		tx:        deps.Tx,
		publisher: deps.Publisher,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// EnterResults validates every row, then stores the batch atomically. Any invalid row rejects
// the whole batch with per-row details.
func (s *ResultService) EnterResults(ctx context.Context, scheduleID string, req EnterResultsRequest, enteredBy string) (*EnterResultsSummary, error) {
	summary := &EnterResultsSummary{ScheduleID: scheduleID, Results: []models.StudentExamResult{}}
	if len(req.Results) == 0 {
		return summary, nil
	}
	if len(req.Results) > s.cfg.MaxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrLimit, fmt.Sprintf("batch exceeds %d rows", s.cfg.MaxBatchSize))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid result payload")
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BulkDeadline)
	defer cancel()

	schedule, err := s.schedules.FindContext(ctx, scheduleID)
	if err != nil {
		return nil, notFoundOr(err, "schedule")
	}
	if err := acceptsResults(schedule); err != nil {
		return nil, err
	}
	if err := s.validateRows(ctx, schedule, req.Results); err != nil {
		return nil, err
	}
	scale, err := s.scales.ScaleFor(ctx, schedule.AcademicYearID)
	if err != nil {
		return nil, err
	}

	var stored []models.StudentExamResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		stored = stored[:0]
		locked, err := s.schedules.LockContext(ctx, scheduleID)
		if err != nil {
			return notFoundOr(err, "schedule")
		}
		if err := acceptsResults(locked); err != nil {
			return err
		}
		for _, row := range req.Results {
			result, err := buildResult(scale, locked, row, enteredBy)
			if err != nil {
				return err
			}
			if err := s.results.Upsert(ctx, result); err != nil {
				return err
			}
			stored = append(stored, *result)
		}
		completed, err := s.syncCompletion(ctx, locked)
		if err != nil {
			return err
		}
		summary.Completed = completed
		if err := s.ranker.RankWithinTx(ctx, locked); err != nil {
			return err
		}
		if stored, err = s.reloadRanked(ctx, scheduleID, stored); err != nil {
			return err
		}
		return refreshExamProgress(ctx, s.exams, locked.ExamID)
	})
	if err != nil {
		if isDeadline(err) || isDeadline(ctx.Err()) {
			return nil, appErrors.Wrap(err, appErrors.ErrLimit.Code, appErrors.ErrLimit.Status, "bulk deadline exceeded")
		}
		s.logger.Error("enter results failed", zap.String("schedule_id", scheduleID), zap.Error(err))
		return nil, persistenceError(err, "failed to store results")
	}

	summary.Accepted = len(stored)
	summary.Results = stored
	s.metrics.ObserveResultBatch(len(stored), time.Since(started))
	s.afterCommit(context.WithoutCancel(ctx), schedule, stored, enteredBy)
	s.logger.Info("results entered",
		zap.String("schedule_id", scheduleID),
		zap.Int("rows", len(stored)),
		zap.Bool("completed", summary.Completed))
	return summary, nil
}

// reloadRanked re-reads the batch's rows after ranking, keeping batch order.
func (s *ResultService) reloadRanked(ctx context.Context, scheduleID string, batch []models.StudentExamResult) ([]models.StudentExamResult, error) {
	current, err := s.results.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	byStudent := make(map[string]models.StudentExamResult, len(current))
	for _, r := range current {
		byStudent[r.StudentID] = r
	}
	out := make([]models.StudentExamResult, len(batch))
	for i, r := range batch {
		if ranked, ok := byStudent[r.StudentID]; ok {
			r = ranked
		}
		out[i] = r
	}
	return out, nil
}

// UpsertResult enters a single result as a one-row batch.
func (s *ResultService) UpsertResult(ctx context.Context, scheduleID string, row ResultRow, enteredBy string) (*models.StudentExamResult, error) {
	summary, err := s.EnterResults(ctx, scheduleID, EnterResultsRequest{Results: []ResultRow{row}}, enteredBy)
	if err != nil {
		return nil, err
	}
	return &summary.Results[0], nil
}

// ListResults returns the results of a schedule ordered by class rank.
func (s *ResultService) ListResults(ctx context.Context, scheduleID string) ([]models.StudentExamResult, error) {
	if _, err := s.schedules.FindContext(ctx, scheduleID); err != nil {
		return nil, notFoundOr(err, "schedule")
	}
	results, err := s.results.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list results")
	}
	return results, nil
}

func acceptsResults(schedule *models.ScheduleContext) error {
	if !schedule.IsActive {
		return appErrors.Clone(appErrors.ErrState, "schedule is not active")
	}
	if schedule.ExamStatus == models.ExamStatusCancelled || schedule.ExamStatus == models.ExamStatusDraft {
		return appErrors.Clone(appErrors.ErrState, fmt.Sprintf("exam is %s", schedule.ExamStatus))
	}
	return nil
}

func (s *ResultService) validateRows(ctx context.Context, schedule *models.ScheduleContext, rows []ResultRow) error {
	members, err := s.students.ListClassMembers(ctx, schedule.ClassID, schedule.TermID)
	if err != nil {
		return appErrors.Internal(err, "failed to load class members")
	}
	enrolled := make(map[string]struct{}, len(members))
	for _, m := range members {
		enrolled[m.StudentID] = struct{}{}
	}

	var problems []RowProblem
	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		fail := func(msg string) {
			problems = append(problems, RowProblem{Index: i, StudentID: row.StudentID, Message: msg})
		}
		if first, dup := seen[row.StudentID]; dup {
			fail(fmt.Sprintf("duplicate student in batch (row %d)", first))
			continue
		}
		seen[row.StudentID] = i

		if _, ok := enrolled[row.StudentID]; !ok {
			if _, err := s.students.FindByID(ctx, row.StudentID); err != nil {
				if mapped := notFoundOr(err, "student"); appErrors.HasCode(mapped, appErrors.ErrNotFound.Code) {
					fail("student not found")
					continue
				}
				return appErrors.Internal(err, "failed to load student")
			}
			fail("student is not enrolled in the schedule's class")
			continue
		}

		input := rowInput(schedule, row)
		if !row.IsAbsent && !row.IsExempted && row.MarksObtained == nil {
			fail("marks_obtained is required unless absent or exempted")
			continue
		}
		if err := input.Validate(); err != nil {
			fail(appErrors.FromError(err).Message)
		}
	}
	if len(problems) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid result rows", problems)
	}
	return nil
}

func rowInput(schedule *models.ScheduleContext, row ResultRow) grading.ResultInput {
	input := grading.ResultInput{
		TotalMarks:   schedule.TotalMarks,
		PassingMarks: schedule.PassingMarks,
		IsAbsent:     row.IsAbsent,
		IsExempted:   row.IsExempted,
	}
	if row.MarksObtained != nil {
		input.MarksObtained = *row.MarksObtained
	}
	return input
}

func buildResult(scale *grading.Scale, schedule *models.ScheduleContext, row ResultRow, enteredBy string) (*models.StudentExamResult, error) {
	derived, err := grading.Calculate(scale, rowInput(schedule, row))
	if err != nil {
		return nil, err
	}
	return &models.StudentExamResult{
		StudentID:      row.StudentID,
		ExamScheduleID: schedule.ID,
		TermID:         schedule.TermID,
		MarksObtained:  derived.MarksObtained,
		Percentage:     derived.Percentage,
		Grade:          derived.Grade,
		GradePoint:     derived.GradePoint,
		IsPass:         derived.IsPass,
		IsAbsent:       row.IsAbsent,
		IsExempted:     row.IsExempted,
		Remarks:        trimmedOrNil(row.Remarks),
		EnteredBy:      enteredBy,
	}, nil
}

// syncCompletion flags the schedule completed once every active class member has a row.
func (s *ResultService) syncCompletion(ctx context.Context, schedule *models.ScheduleContext) (bool, error) {
	members, err := s.students.ListClassMembers(ctx, schedule.ClassID, schedule.TermID)
	if err != nil {
		return false, err
	}
	results, err := s.results.ListBySchedule(ctx, schedule.ID)
	if err != nil {
		return false, err
	}
	have := make(map[string]struct{}, len(results))
	for _, r := range results {
		have[r.StudentID] = struct{}{}
	}
	completed := len(members) > 0
	for _, m := range members {
		if _, ok := have[m.StudentID]; !ok {
			completed = false
			break
		}
	}
	if completed != schedule.IsCompleted {
		if err := s.schedules.SetCompleted(ctx, schedule.ID, completed); err != nil {
			return false, err
		}
		schedule.IsCompleted = completed
	}
	return completed, nil
}

func (s *ResultService) afterCommit(ctx context.Context, schedule *models.ScheduleContext, stored []models.StudentExamResult, actor string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, analyticsCachePattern); err != nil {
			s.logger.Warn("analytics cache not invalidated", zap.Error(err))
		}
	}
	if s.publisher == nil || !schedule.ExamPublished {
		return
	}
	now := s.cfg.Clock.Now()
	for _, r := range stored {
		s.publisher.Publish(ctx, models.NotificationEvent{
			EventType:  models.EventResultPublished,
			EntityType: "student_exam_result",
			EntityID:   r.ID,
			Timestamp:  now,
			ActorID:    optionalString(actor),
			Details: map[string]interface{}{
				"student_id":       r.StudentID,
				"exam_id":          schedule.ExamID,
				"exam_schedule_id": schedule.ID,
				"subject_id":       schedule.SubjectID,
				"percentage":       r.Percentage,
				"grade":            r.Grade,
				"is_pass":          r.IsPass,
			},
		})
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
