package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type attemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	FindByID(ctx context.Context, id string) (*models.Attempt, error)
	FindForUpdate(ctx context.Context, id string) (*models.Attempt, error)
	FindLiveForUpdate(ctx context.Context, studentID, onlineExamID string) (*models.Attempt, error)
	CountByStudentExam(ctx context.Context, studentID, onlineExamID string) (int, error)
	Update(ctx context.Context, attempt *models.Attempt) error
	ListStale(ctx context.Context, now time.Time) ([]string, error)
	ListAwaitingGrade(ctx context.Context) ([]string, error)
	BestGraded(ctx context.Context, studentID, onlineExamID string) (*models.Attempt, error)
}

type onlineExamReader interface {
	FindContext(ctx context.Context, id string) (*models.OnlineExamContext, error)
	ListQuestionDetails(ctx context.Context, onlineExamID string) ([]models.OnlineExamQuestionDetail, error)
}

type enrollmentReader interface {
	CurrentClassID(ctx context.Context, studentID, termID string) (string, error)
}

type usageRecorder interface {
	IncrementUsage(ctx context.Context, ids []string) error
}

type attemptResultWriter interface {
	Upsert(ctx context.Context, result *models.StudentExamResult) error
	Delete(ctx context.Context, studentID, scheduleID string) error
}

type scheduleLocker interface {
	LockContext(ctx context.Context, id string) (*models.ScheduleContext, error)
}

// Actor identifies who drives an attempt operation. Students may only touch their own attempts.
type Actor struct {
	UserID    string
	StudentID string
	Staff     bool
}

// ActorFromClaims derives the actor from verified token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, StudentID: claims.StudentID, Staff: claims.Role.IsStaff()}
}

// StartAttemptRequest opens a new attempt. SourceIP is supplied by the transport.
type StartAttemptRequest struct {
	StudentID  string  `json:"student_id"`
	AccessCode *string `json:"access_code"`
	SourceIP   string  `json:"-"`
}

// SaveResponsesRequest carries answers keyed by question id.
type SaveResponsesRequest struct {
	Responses models.Responses `json:"responses"`
}

// GradeAttemptRequest carries reviewer marks for manually graded questions.
type GradeAttemptRequest struct {
	Grades []models.ManualGrade `json:"grades" validate:"required,min=1,dive"`
}

// ViolationRequest reports a client-side proctoring event.
type ViolationRequest struct {
	Kind string `json:"kind" validate:"required,max=50"`
}

// SweepSummary reports the work done by a pending-attempt sweep.
type SweepSummary struct {
	TimedOut  int `json:"timed_out"`
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
}

// AttemptServiceConfig tunes the attempt engine.
type AttemptServiceConfig struct {
	AutosaveInterval time.Duration
	Clock            clock.Clock
}

// AttemptServiceDeps groups the collaborators of AttemptService.
type AttemptServiceDeps struct {
	Attempts    attemptRepository
	OnlineExams onlineExamReader
	Enrollments enrollmentReader
	Questions   usageRecorder
	Results     attemptResultWriter
	Schedules   scheduleLocker
	Scales      scaleProvider
	Ranker      scheduleRanker
	Tx          database.Transactor
	Publisher   eventPublisher
	Cache       cacheInvalidator
	Metrics     *MetricsService
}

// AttemptService runs the online attempt state machine.
type AttemptService struct {
	deps   AttemptServiceDeps
	cfg    AttemptServiceConfig
	logger *zap.Logger
}

// NewAttemptService constructs the attempt engine.
func NewAttemptService(deps AttemptServiceDeps, cfg AttemptServiceConfig, logger *zap.Logger) *AttemptService {
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptService{deps: deps, cfg: cfg, logger: logger}
}

var errTimeLimit = appErrors.Clone(appErrors.ErrLimit, "time limit elapsed; attempt was submitted automatically")

// Start opens an attempt after checking access code, network and enrolment. An expired live
// attempt is timed out first; a running one is a conflict.
func (s *AttemptService) Start(ctx context.Context, onlineExamID string, req StartAttemptRequest, actor Actor) (*models.Attempt, error) {
	studentID := req.StudentID
	if !actor.Staff || studentID == "" {
		studentID = actor.StudentID
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	oc, err := s.deps.OnlineExams.FindContext(ctx, onlineExamID)
	if err != nil {
		return nil, notFoundOr(err, "online exam")
	}
	if oc.ExamStatus != models.ExamStatusScheduled && oc.ExamStatus != models.ExamStatusOngoing {
		return nil, appErrors.Clone(appErrors.ErrState, fmt.Sprintf("exam is %s", oc.ExamStatus))
	}
	if !accessCodeMatches(oc.OnlineExam, req.AccessCode) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid access code")
	}
	if !ipAllowed(oc.IPRestrictions, req.SourceIP) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "address not allowed for this exam")
	}
	classID, err := s.deps.Enrollments.CurrentClassID(ctx, studentID, oc.TermID)
	if err != nil {
		if mapped := notFoundOr(err, "enrollment"); !appErrors.HasCode(mapped, appErrors.ErrNotFound.Code) {
			return nil, mapped
		}
	}
	if classID != oc.ClassID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in the exam's class")
	}

	var attempt *models.Attempt
	err = s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.cfg.Clock.Now()
		live, err := s.deps.Attempts.FindLiveForUpdate(ctx, studentID, onlineExamID)
		if err != nil {
			return err
		}
		if live != nil {
			timedOut, err := s.enforceLimit(ctx, live, oc, now)
			if err != nil {
				return err
			}
			if !timedOut {
				return appErrors.Clone(appErrors.ErrConflict, "an attempt is already in progress")
			}
		}
		prior, err := s.deps.Attempts.CountByStudentExam(ctx, studentID, onlineExamID)
		if err != nil {
			return err
		}
		if prior+1 > oc.MaxAttempts {
			return appErrors.Clone(appErrors.ErrLimit, fmt.Sprintf("maximum of %d attempts reached", oc.MaxAttempts))
		}
		details, err := s.deps.OnlineExams.ListQuestionDetails(ctx, onlineExamID)
		if err != nil {
			return err
		}
		if len(details) == 0 {
			return appErrors.Clone(appErrors.ErrState, "online exam has no questions")
		}
		id := uuid.NewString()
		snapshot := grading.BuildSnapshot(id, details, oc.ShuffleQuestions, oc.ShuffleOptions)
		attempt = &models.Attempt{
			ID:            id,
			StudentID:     studentID,
			OnlineExamID:  onlineExamID,
			AttemptNumber: prior + 1,
			StartTime:     now,
			Responses:     models.Responses{},
			Snapshot:      snapshot,
			Breakdown:     models.GradeBreakdown{},
			TotalMarks:    grading.Round2(snapshot.TotalMarks()),
			Status:        models.AttemptInProgress,
		}
		if err := s.deps.Attempts.Create(ctx, attempt); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrConflict, "an attempt is already in progress")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to start attempt")
	}
	s.deps.Metrics.ObserveAttemptTransition(attempt.Status)
	s.logger.Info("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("student_id", studentID),
		zap.Int("attempt_number", attempt.AttemptNumber))
	return presentAttempt(attempt, oc.OnlineExam, actor), nil
}

// Autosave merges responses into a live attempt without changing its status.
func (s *AttemptService) Autosave(ctx context.Context, attemptID string, req SaveResponsesRequest, actor Actor) (*models.Attempt, error) {
	return s.mutate(ctx, attemptID, actor, func(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, now time.Time) (*models.ScheduleContext, error) {
		if a.Status != models.AttemptInProgress {
			return nil, appErrors.Clone(appErrors.ErrState, fmt.Sprintf("attempt is %s", a.Status))
		}
		if a.LastSavedAt != nil && now.Sub(*a.LastSavedAt) < s.cfg.AutosaveInterval {
			return nil, appErrors.Clone(appErrors.ErrLimit, "autosave too frequent")
		}
		if err := mergeResponses(a, req.Responses); err != nil {
			return nil, err
		}
		a.LastSavedAt = &now
		return nil, s.deps.Attempts.Update(ctx, a)
	})
}

// Submit closes an in-progress attempt within its time limit and auto-grades it.
func (s *AttemptService) Submit(ctx context.Context, attemptID string, req SaveResponsesRequest, actor Actor) (*models.Attempt, error) {
	return s.mutate(ctx, attemptID, actor, func(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, now time.Time) (*models.ScheduleContext, error) {
		if a.Status != models.AttemptInProgress {
			return nil, appErrors.Clone(appErrors.ErrState, fmt.Sprintf("attempt is %s", a.Status))
		}
		if err := mergeResponses(a, req.Responses); err != nil {
			return nil, err
		}
		return nil, s.close(ctx, a, models.AttemptSubmitted, now)
	})
}

// Violation records a proctoring event on an in-progress attempt.
func (s *AttemptService) Violation(ctx context.Context, attemptID string, req ViolationRequest, actor Actor) (*models.Attempt, error) {
	if req.Kind == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "violation kind is required")
	}
	return s.mutate(ctx, attemptID, actor, func(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, now time.Time) (*models.ScheduleContext, error) {
		if a.Status != models.AttemptInProgress {
			return nil, appErrors.Clone(appErrors.ErrState, fmt.Sprintf("attempt is %s", a.Status))
		}
		a.ViolationCount++
		s.logger.Info("attempt violation recorded",
			zap.String("attempt_id", a.ID),
			zap.String("kind", req.Kind),
			zap.Int("count", a.ViolationCount))
		return nil, s.deps.Attempts.Update(ctx, a)
	})
}

// Grade applies manual marks, finalizes the attempt and refreshes the student's schedule result.
func (s *AttemptService) Grade(ctx context.Context, attemptID string, req GradeAttemptRequest, actor Actor) (*models.Attempt, error) {
	if !actor.Staff {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may grade attempts")
	}
	if len(req.Grades) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grades are required")
	}
	return s.mutate(ctx, attemptID, actor, func(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, now time.Time) (*models.ScheduleContext, error) {
		if !a.Status.AwaitingGrade() && a.Status != models.AttemptGraded {
			return nil, appErrors.Clone(appErrors.ErrState, fmt.Sprintf("attempt is %s", a.Status))
		}
		manual, breakdown, err := grading.ApplyManualGrades(a.Snapshot, a.Breakdown, req.Grades)
		if err != nil {
			return nil, err
		}
		if breakdown.PendingManual() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "every answered essay and short-answer question needs marks")
		}
		a.Breakdown = breakdown
		return s.finalize(ctx, a, oc, manual, actor.UserID)
	})
}

// Void cancels an attempt from any state and recomputes the student's schedule result.
func (s *AttemptService) Void(ctx context.Context, attemptID string, actor Actor) (*models.Attempt, error) {
	if !actor.Staff {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may void attempts")
	}
	var (
		attempt *models.Attempt
		oc      *models.OnlineExamContext
		sync    *models.ScheduleContext
	)
	err := s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		a, ctxOC, err := s.lock(ctx, attemptID)
		if err != nil {
			return err
		}
		attempt, oc = a, ctxOC
		if a.Status == models.AttemptVoid {
			return nil
		}
		wasGraded := a.Status == models.AttemptGraded
		a.Status = models.AttemptVoid
		if err := s.deps.Attempts.Update(ctx, a); err != nil {
			return err
		}
		if wasGraded {
			sync, err = s.syncResult(ctx, a.StudentID, oc, actor.UserID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to void attempt")
	}
	s.deps.Metrics.ObserveAttemptTransition(models.AttemptVoid)
	s.afterResultSync(ctx, sync, attempt.StudentID, actor.UserID)
	s.logger.Info("attempt voided", zap.String("attempt_id", attempt.ID), zap.String("actor", actor.UserID))
	return presentAttempt(attempt, oc.OnlineExam, actor), nil
}

// Get returns an attempt, timing it out first when its limit has passed.
func (s *AttemptService) Get(ctx context.Context, attemptID string, actor Actor) (*models.Attempt, error) {
	attempt, err := s.deps.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, notFoundOr(err, "attempt")
	}
	if err := authorize(attempt, actor); err != nil {
		return nil, err
	}
	oc, err := s.deps.OnlineExams.FindContext(ctx, attempt.OnlineExamID)
	if err != nil {
		return nil, notFoundOr(err, "online exam")
	}
	if attempt.Status.Live() && s.expired(attempt, oc, s.cfg.Clock.Now()) {
		if _, err := s.mutate(ctx, attemptID, actor, noStep); err != nil && !appErrors.HasCode(err, appErrors.ErrLimit.Code) {
			return nil, err
		}
		if attempt, err = s.deps.Attempts.FindByID(ctx, attemptID); err != nil {
			return nil, notFoundOr(err, "attempt")
		}
	}
	return presentAttempt(attempt, oc.OnlineExam, actor), nil
}

// Sweep times out stale attempts and finalizes closed attempts that need no manual marking.
func (s *AttemptService) Sweep(ctx context.Context) (*SweepSummary, error) {
	summary := &SweepSummary{}
	stale, err := s.deps.Attempts.ListStale(ctx, s.cfg.Clock.Now())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list stale attempts")
	}
	for _, id := range stale {
		_, err := s.mutate(ctx, id, Actor{Staff: true}, noStep)
		switch {
		case err == nil:
		case appErrors.HasCode(err, appErrors.ErrLimit.Code):
			summary.TimedOut++
		default:
			summary.Failed++
			s.logger.Warn("stale attempt not timed out", zap.String("attempt_id", id), zap.Error(err))
		}
	}

	awaiting, err := s.deps.Attempts.ListAwaitingGrade(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list attempts awaiting grade")
	}
	for _, id := range awaiting {
		finalized := false
		_, err := s.mutate(ctx, id, Actor{Staff: true}, func(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, now time.Time) (*models.ScheduleContext, error) {
			if !a.Status.AwaitingGrade() || a.Breakdown.PendingManual() {
				return nil, nil
			}
			finalized = true
			return s.finalize(ctx, a, oc, manualTotal(a.Breakdown), "")
		})
		if err != nil {
			summary.Failed++
			s.logger.Warn("attempt not finalized", zap.String("attempt_id", id), zap.Error(err))
			continue
		}
		if finalized {
			summary.Finalized++
		}
	}
	s.logger.Info("attempt sweep finished",
		zap.Int("timed_out", summary.TimedOut),
		zap.Int("finalized", summary.Finalized),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// attemptStep mutates a locked attempt and returns the schedule whose result it rewrote, if any.
type attemptStep func(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, now time.Time) (*models.ScheduleContext, error)

func noStep(context.Context, *models.Attempt, *models.OnlineExamContext, time.Time) (*models.ScheduleContext, error) {
	return nil, nil
}

// mutate locks the attempt, enforces the time limit and runs step. A timeout is committed and
// reported to the caller as LIMIT without running step.
func (s *AttemptService) mutate(ctx context.Context, attemptID string, actor Actor, step attemptStep) (*models.Attempt, error) {
	var (
		attempt  *models.Attempt
		oc       *models.OnlineExamContext
		timedOut bool
		before   models.AttemptStatus
		sync     *models.ScheduleContext
	)
	err := s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		timedOut = false
		a, ctxOC, err := s.lock(ctx, attemptID)
		if err != nil {
			return err
		}
		if err := authorize(a, actor); err != nil {
			return err
		}
		attempt, oc, before, sync = a, ctxOC, a.Status, nil
		now := s.cfg.Clock.Now()
		if timedOut, err = s.enforceLimit(ctx, a, oc, now); err != nil || timedOut {
			return err
		}
		sync, err = step(ctx, a, oc, now)
		return err
	})
	if err != nil {
		return nil, persistenceError(err, "failed to update attempt")
	}
	if attempt.Status != before {
		s.deps.Metrics.ObserveAttemptTransition(attempt.Status)
	}
	if sync != nil {
		s.afterResultSync(ctx, sync, attempt.StudentID, actor.UserID)
	}
	if timedOut {
		s.logger.Info("attempt timed out", zap.String("attempt_id", attempt.ID))
		return presentAttempt(attempt, oc.OnlineExam, actor), errTimeLimit
	}
	return presentAttempt(attempt, oc.OnlineExam, actor), nil
}

func (s *AttemptService) lock(ctx context.Context, attemptID string) (*models.Attempt, *models.OnlineExamContext, error) {
	attempt, err := s.deps.Attempts.FindForUpdate(ctx, attemptID)
	if err != nil {
		return nil, nil, notFoundOr(err, "attempt")
	}
	oc, err := s.deps.OnlineExams.FindContext(ctx, attempt.OnlineExamID)
	if err != nil {
		return nil, nil, notFoundOr(err, "online exam")
	}
	return attempt, oc, nil
}

func (s *AttemptService) expired(a *models.Attempt, oc *models.OnlineExamContext, now time.Time) bool {
	return now.Sub(a.StartTime) > oc.TimeLimit()
}

// enforceLimit times out a live attempt past its limit, grading the captured responses.
func (s *AttemptService) enforceLimit(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, now time.Time) (bool, error) {
	if !a.Status.Live() || !s.expired(a, oc, now) {
		return false, nil
	}
	return true, s.close(ctx, a, models.AttemptTimedOut, a.StartTime.Add(oc.TimeLimit()))
}

func (s *AttemptService) close(ctx context.Context, a *models.Attempt, status models.AttemptStatus, submitted time.Time) error {
	auto, breakdown := grading.AutoGrade(a.Snapshot, a.Responses)
	a.Breakdown = breakdown
	a.AutoGradedMarks = auto
	a.ManualGradedMarks = 0
	a.MarksObtained = auto
	a.SubmitTime = &submitted
	a.Status = status
	if err := s.deps.Attempts.Update(ctx, a); err != nil {
		return err
	}
	ids := make([]string, len(a.Snapshot))
	for i, q := range a.Snapshot {
		ids[i] = q.QuestionID
	}
	return s.deps.Questions.IncrementUsage(ctx, ids)
}

func (s *AttemptService) finalize(ctx context.Context, a *models.Attempt, oc *models.OnlineExamContext, manual float64, actorID string) (*models.ScheduleContext, error) {
	a.ManualGradedMarks = manual
	a.MarksObtained = grading.Round2(a.AutoGradedMarks + manual)
	a.IsGraded = true
	a.Status = models.AttemptGraded
	if err := s.deps.Attempts.Update(ctx, a); err != nil {
		return nil, err
	}
	return s.syncResult(ctx, a.StudentID, oc, actorID)
}

// syncResult rewrites the student's schedule result from the best graded attempt and re-ranks.
func (s *AttemptService) syncResult(ctx context.Context, studentID string, oc *models.OnlineExamContext, actorID string) (*models.ScheduleContext, error) {
	schedule, err := s.deps.Schedules.LockContext(ctx, oc.ExamScheduleID)
	if err != nil {
		return nil, err
	}
	best, err := s.deps.Attempts.BestGraded(ctx, studentID, oc.ID)
	if err != nil {
		return nil, err
	}
	if best == nil {
		if err := s.deps.Results.Delete(ctx, studentID, schedule.ID); err != nil {
			return nil, err
		}
		return schedule, s.deps.Ranker.RankWithinTx(ctx, schedule)
	}
	scale, err := s.deps.Scales.ScaleFor(ctx, schedule.AcademicYearID)
	if err != nil {
		return nil, err
	}
	derived, err := grading.Calculate(scale, grading.ResultInput{
		MarksObtained: grading.ScaleMarks(best.MarksObtained, best.TotalMarks, schedule.TotalMarks),
		TotalMarks:    schedule.TotalMarks,
		PassingMarks:  schedule.PassingMarks,
	})
	if err != nil {
		return nil, err
	}
	enteredBy := actorID
	if enteredBy == "" {
		enteredBy = "system"
	}
	result := &models.StudentExamResult{
		StudentID:      studentID,
		ExamScheduleID: schedule.ID,
		TermID:         schedule.TermID,
		MarksObtained:  derived.MarksObtained,
		Percentage:     derived.Percentage,
		Grade:          derived.Grade,
		GradePoint:     derived.GradePoint,
		IsPass:         derived.IsPass,
		EnteredBy:      enteredBy,
	}
	if err := s.deps.Results.Upsert(ctx, result); err != nil {
		return nil, err
	}
	return schedule, s.deps.Ranker.RankWithinTx(ctx, schedule)
}

func (s *AttemptService) afterResultSync(ctx context.Context, schedule *models.ScheduleContext, studentID, actorID string) {
	if schedule == nil {
		return
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Invalidate(ctx, analyticsCachePattern); err != nil {
			s.logger.Warn("analytics cache not invalidated", zap.Error(err))
		}
	}
	if s.deps.Publisher == nil || !schedule.ExamPublished {
		return
	}
	s.deps.Publisher.Publish(ctx, models.NotificationEvent{
		EventType:  models.EventResultPublished,
		EntityType: "exam_schedule",
		EntityID:   schedule.ID,
		Timestamp:  s.cfg.Clock.Now(),
		ActorID:    optionalString(actorID),
		Details: map[string]interface{}{
			"student_id": studentID,
			"exam_id":    schedule.ExamID,
			"source":     "online_attempt",
		},
	})
}

func authorize(a *models.Attempt, actor Actor) error {
	if actor.Staff {
		return nil
	}
	if actor.StudentID == "" || actor.StudentID != a.StudentID {
		return appErrors.Clone(appErrors.ErrForbidden, "attempt belongs to another student")
	}
	return nil
}

func mergeResponses(a *models.Attempt, incoming models.Responses) error {
	if len(incoming) == 0 {
		return nil
	}
	var problems []string
	for questionID, resp := range incoming {
		q, ok := a.Snapshot.Find(questionID)
		if !ok {
			problems = append(problems, fmt.Sprintf("question %s is not part of the attempt", questionID))
			continue
		}
		if err := resp.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("question %s: %v", questionID, err))
			continue
		}
		if !resp.Accepts(q.Type) {
			problems = append(problems, fmt.Sprintf("question %s expects a %s answer", questionID, q.Type))
		}
	}
	if len(problems) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid responses", problems)
	}
	if a.Responses == nil {
		a.Responses = models.Responses{}
	}
	for questionID, resp := range incoming {
		a.Responses[questionID] = resp
	}
	return nil
}

func manualTotal(b models.GradeBreakdown) float64 {
	var total float64
	for _, g := range b {
		if g.Manual {
			total += g.Awarded
		}
	}
	return grading.Round2(total)
}

// presentAttempt hides answer keys from students and the breakdown until results may be shown.
func presentAttempt(a *models.Attempt, exam models.OnlineExam, actor Actor) *models.Attempt {
	if a == nil || actor.Staff {
		return a
	}
	view := *a
	view.Snapshot = a.Snapshot.Redacted()
	if !exam.ShowResultsImmediately && a.Status != models.AttemptGraded {
		view.Breakdown = nil
		view.AutoGradedMarks = 0
		view.MarksObtained = 0
	}
	return &view
}
