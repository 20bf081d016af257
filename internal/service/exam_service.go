package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/repository"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/jobs"
)

const dateLayout = "2006-01-02"

type examRepository interface {
	FindExamType(ctx context.Context, id string) (*models.ExamType, error)
	TermContributionTotal(ctx context.Context, termID string) (float64, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	FindForUpdate(ctx context.Context, id string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
	UpdateStatus(ctx context.Context, id string, status models.ExamStatus, published bool) error
	HasResults(ctx context.Context, examID string) (bool, error)
	Progress(ctx context.Context, examID string) (repository.ExamProgress, error)
	UpdateProgress(ctx context.Context, examID string, totalStudents, completedCount int) error
}

type examProgressStore interface {
	Progress(ctx context.Context, examID string) (repository.ExamProgress, error)
	UpdateProgress(ctx context.Context, examID string, totalStudents, completedCount int) error
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type scheduleLister interface {
	ListByExam(ctx context.Context, examID string, activeOnly bool) ([]models.ScheduleContext, error)
}

// CreateExamRequest defines a new exam.
type CreateExamRequest struct {
	Name         string  `json:"name" validate:"required,max=200"`
	ExamTypeID   string  `json:"exam_type_id" validate:"required"`
	TermID       string  `json:"term_id" validate:"required"`
	StartDate    string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	Instructions *string `json:"instructions"`
}

// UpdateExamRequest changes an exam definition. Empty fields are left unchanged.
type UpdateExamRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=200"`
	ExamTypeID   *string `json:"exam_type_id" validate:"omitempty,min=1"`
	StartDate    *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate      *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Instructions *string `json:"instructions"`
}

// ExamCreated is the outcome of CreateExam. Warnings never block creation.
type ExamCreated struct {
	Exam     *models.Exam `json:"exam"`
	Warnings []string     `json:"warnings,omitempty"`
}

// ExamService manages the exam lifecycle.
type ExamService struct {
	exams        examRepository
	terms        termReader
	schedules    scheduleLister
	tx           database.Transactor
	reminders    reminderScheduler
	reminderLead time.Duration
	clock        clock.Clock
	validator    *validator.Validate
	logger       *zap.Logger
}

// ExamServiceConfig carries optional collaborators.
type ExamServiceConfig struct {
	Reminders    reminderScheduler
	ReminderLead time.Duration
	Clock        clock.Clock
}

// NewExamService constructs the service.
func NewExamService(exams examRepository, terms termReader, schedules scheduleLister, tx database.Transactor, cfg ExamServiceConfig, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = 24 * time.Hour
	}
	return &ExamService{
		exams:        exams,
		terms:        terms,
		schedules:    schedules,
		tx:           tx,
		reminders:    cfg.Reminders,
		reminderLead: cfg.ReminderLead,
		clock:        cfg.Clock,
		validator:    validate,
		logger:       logger,
	}
}

// Create stores a DRAFT exam. A term whose term-based contributions do not add up to 100 yields a warning.
func (s *ExamService) Create(ctx context.Context, req CreateExamRequest, createdBy string) (*ExamCreated, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid exam payload")
	}
	start, end, err := parseExamWindow(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	examType, err := s.exams.FindExamType(ctx, req.ExamTypeID)
	if err != nil {
		return nil, notFoundOr(err, "exam type")
	}
	if !examType.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam type is inactive")
	}
	term, err := s.terms.FindByID(ctx, req.TermID)
	if err != nil {
		return nil, notFoundOr(err, "term")
	}

	exam := &models.Exam{
		Name:           req.Name,
		ExamTypeID:     examType.ID,
		AcademicYearID: term.AcademicYearID,
		TermID:         term.ID,
		StartDate:      start,
		EndDate:        end,
		Status:         models.ExamStatusDraft,
		Instructions:   req.Instructions,
		CreatedBy:      createdBy,
	}
	var contribution float64
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.exams.Create(ctx, exam); err != nil {
			return err
		}
		contribution, err = s.exams.TermContributionTotal(ctx, term.ID)
		return err
	})
	if err != nil {
		return nil, persistenceError(err, "failed to create exam")
	}

	out := &ExamCreated{Exam: exam}
	if examType.IsTermBased && math.Abs(contribution-100) > 0.005 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("term-based exam contributions for term %s total %.2f%%, expected 100%%", term.ID, contribution))
	}
	if !term.Contains(start) || !term.Contains(end) {
		out.Warnings = append(out.Warnings, "exam window extends beyond the term dates")
	}
	s.logger.Info("exam created", zap.String("exam_id", exam.ID), zap.String("term_id", exam.TermID), zap.Int("warnings", len(out.Warnings)))
	return out, nil
}

// Update edits an exam definition. Definitions freeze once any result exists.
func (s *ExamService) Update(ctx context.Context, id string, req UpdateExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid exam payload")
	}
	var exam *models.Exam
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.exams.FindForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "exam")
		}
		if found.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrState, fmt.Sprintf("exam is %s", found.Status))
		}
		hasResults, err := s.exams.HasResults(ctx, id)
		if err != nil {
			return err
		}
		if hasResults {
			return appErrors.Clone(appErrors.ErrState, "exam already has results")
		}

		if req.Name != nil {
			found.Name = *req.Name
		}
		if req.ExamTypeID != nil && *req.ExamTypeID != found.ExamTypeID {
			examType, err := s.exams.FindExamType(ctx, *req.ExamTypeID)
			if err != nil {
				return notFoundOr(err, "exam type")
			}
			if !examType.Active {
				return appErrors.Clone(appErrors.ErrValidation, "exam type is inactive")
			}
			found.ExamTypeID = examType.ID
		}
		startRaw, endRaw := found.StartDate.Format(dateLayout), found.EndDate.Format(dateLayout)
		if req.StartDate != nil {
			startRaw = *req.StartDate
		}
		if req.EndDate != nil {
			endRaw = *req.EndDate
		}
		if found.StartDate, found.EndDate, err = parseExamWindow(startRaw, endRaw); err != nil {
			return err
		}
		if req.Instructions != nil {
			found.Instructions = req.Instructions
		}
		if err := s.exams.Update(ctx, found); err != nil {
			return err
		}
		exam = found
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to update exam")
	}
	return exam, nil
}

// Get returns an exam.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Exam, error) {
	exam, err := s.exams.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "exam")
	}
	return exam, nil
}

// List returns exams with pagination metadata.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown exam status")
	}
	exams, total, err := s.exams.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list exams")
	}
	page, size, _ := models.Page(filter.Page, filter.PageSize, 100)
	return exams, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Publish makes a SCHEDULED exam visible and arms reminders for its slots.
func (s *ExamService) Publish(ctx context.Context, id string) (*models.Exam, error) {
	var exam *models.Exam
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.exams.FindForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "exam")
		}
		if found.Status != models.ExamStatusScheduled {
			return appErrors.Clone(appErrors.ErrState, "only scheduled exams can be published")
		}
		if found.Published {
			exam = found
			return nil
		}
		if err := s.exams.UpdateStatus(ctx, id, found.Status, true); err != nil {
			return err
		}
		found.Published = true
		exam = found
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to publish exam")
	}
	s.ArmReminders(ctx, exam)
	return exam, nil
}

// Transition moves an exam along its lifecycle.
func (s *ExamService) Transition(ctx context.Context, id string, next models.ExamStatus) (*models.Exam, error) {
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown exam status")
	}
	var exam *models.Exam
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.exams.FindForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "exam")
		}
		if !found.Status.CanTransitionTo(next) {
			return appErrors.Clone(appErrors.ErrState, fmt.Sprintf("exam cannot move from %s to %s", found.Status, next))
		}
		published := found.Published && next != models.ExamStatusCancelled
		if err := s.exams.UpdateStatus(ctx, id, next, published); err != nil {
			return err
		}
		found.Status = next
		found.Published = published
		exam = found
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to change exam status")
	}
	if next == models.ExamStatusCancelled {
		s.disarmReminders(ctx, exam.ID)
	}
	s.logger.Info("exam status changed", zap.String("exam_id", exam.ID), zap.String("status", string(next)))
	return exam, nil
}

// RefreshProgress recomputes the exam's student and completion counters.
// completed_count is the floor of the completed share of schedules applied to the student count.
func (s *ExamService) RefreshProgress(ctx context.Context, examID string) error {
	return refreshExamProgress(ctx, s.exams, examID)
}

func refreshExamProgress(ctx context.Context, exams examProgressStore, examID string) error {
	progress, err := exams.Progress(ctx, examID)
	if err != nil {
		return err
	}
	completed := 0
	if progress.TotalSchedules > 0 {
		completed = int(math.Floor(float64(progress.CompletedSchedules) / float64(progress.TotalSchedules) * float64(progress.TotalStudents)))
	}
	return exams.UpdateProgress(ctx, examID, progress.TotalStudents, completed)
}

// ArmReminders schedules exam_reminder jobs for the future slots of a published exam.
func (s *ExamService) ArmReminders(ctx context.Context, exam *models.Exam) {
	if s.reminders == nil || s.schedules == nil {
		return
	}
	schedules, err := s.schedules.ListByExam(ctx, exam.ID, true)
	if err != nil {
		s.logger.Warn("reminders not scheduled", zap.String("exam_id", exam.ID), zap.Error(err))
		return
	}
	now := s.clock.Now()
	for _, sch := range schedules {
		startsAt, err := slotStart(sch.ExamSchedule)
		if err != nil || !startsAt.After(now) {
			continue
		}
		event := models.NotificationEvent{
			EventType:  models.EventExamReminder,
			EntityType: "exam_schedule",
			EntityID:   sch.ID,
			Details: map[string]interface{}{
				"exam_id":    exam.ID,
				"exam_name":  exam.Name,
				"class_id":   sch.ClassID,
				"subject_id": sch.SubjectID,
				"starts_at":  startsAt.Format(time.RFC3339),
			},
		}
		job := jobs.Job{ID: reminderJobID(sch.ID), Type: string(models.EventExamReminder), Payload: event}
		if err := s.reminders.Schedule(job, startsAt.Add(-s.reminderLead)); err != nil {
			s.logger.Warn("reminder not scheduled", zap.String("schedule_id", sch.ID), zap.Error(err))
		}
	}
}

func (s *ExamService) disarmReminders(ctx context.Context, examID string) {
	if s.reminders == nil || s.schedules == nil {
		return
	}
	schedules, err := s.schedules.ListByExam(ctx, examID, false)
	if err != nil {
		s.logger.Warn("reminders not cancelled", zap.String("exam_id", examID), zap.Error(err))
		return
	}
	for _, sch := range schedules {
		s.reminders.Cancel(reminderJobID(sch.ID))
	}
}

func reminderJobID(scheduleID string) string {
	return "exam_reminder:" + scheduleID
}

func slotStart(sch models.ExamSchedule) (time.Time, error) {
	minutes, err := grading.ParseClock(sch.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return models.DateOnly(sch.Date).Add(time.Duration(minutes) * time.Minute), nil
}

func parseExamWindow(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, validationError(err, "invalid start date")
	}
	end, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, validationError(err, "invalid end date")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start date must not be after end date")
	}
	return start, end, nil
}
