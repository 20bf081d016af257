package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type examScheduleRepository interface {
	LockDate(ctx context.Context, date time.Time) error
	ListActiveOnDates(ctx context.Context, dates []time.Time) ([]models.ExamSchedule, error)
	ExistsForExamClassSubject(ctx context.Context, examID, classID, subjectID string) (string, bool, error)
	Create(ctx context.Context, schedule *models.ExamSchedule) error
	FindByID(ctx context.Context, id string) (*models.ExamSchedule, error)
	ListByExam(ctx context.Context, examID string, activeOnly bool) ([]models.ScheduleContext, error)
	Deactivate(ctx context.Context, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type reminderArmer interface {
	ArmReminders(ctx context.Context, exam *models.Exam)
}

// ScheduleRequest proposes one (class, subject) slot of an exam.
type ScheduleRequest struct {
	ClassID               string   `json:"class_id" validate:"required"`
	SubjectID             string   `json:"subject_id" validate:"required"`
	Date                  string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime             string   `json:"start_time" validate:"required"`
	EndTime               string   `json:"end_time" validate:"required"`
	Room                  *string  `json:"room" validate:"omitempty,max=50"`
	SupervisorID          *string  `json:"supervisor_id"`
	AdditionalSupervisors []string `json:"additional_supervisors"`
	TotalMarks            float64  `json:"total_marks" validate:"gt=0"`
	PassingMarks          float64  `json:"passing_marks" validate:"gte=0"`
}

// ScheduleExamRequest carries a batch of proposed slots accepted all or nothing.
type ScheduleExamRequest struct {
	Schedules []ScheduleRequest `json:"schedules" validate:"required,min=1,dive"`
}

// RowProblem describes why one row of a batch was rejected.
type RowProblem struct {
	Index     int    `json:"index"`
	StudentID string `json:"student_id,omitempty"`
	Message   string `json:"message"`
}

// ExamScheduleService accepts exam schedules after conflict detection.
type ExamScheduleService struct {
	exams     examRepository
	schedules examScheduleRepository
	classes   classReader
	tx        database.Transactor
	reminders reminderArmer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamScheduleService constructs the service. reminders may be nil.
func NewExamScheduleService(exams examRepository, schedules examScheduleRepository, classes classReader, tx database.Transactor, reminders reminderArmer, validate *validator.Validate, logger *zap.Logger) *ExamScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamScheduleService{exams: exams, schedules: schedules, classes: classes, tx: tx, reminders: reminders, validator: validate, logger: logger}
}

type proposedSchedule struct {
	schedule models.ExamSchedule
	slot     grading.Slot
}

// Schedule validates, conflict-checks and stores a batch of schedules. Acceptance is serialised
// per exam date; a DRAFT exam moves to SCHEDULED.
func (s *ExamScheduleService) Schedule(ctx context.Context, examID string, req ScheduleExamRequest) ([]models.ExamSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid schedule payload")
	}

	var (
		created []models.ExamSchedule
		exam    *models.Exam
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.exams.FindForUpdate(ctx, examID)
		if err != nil {
			return notFoundOr(err, "exam")
		}
		if found.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrState, fmt.Sprintf("exam is %s", found.Status))
		}
		exam = found

		proposals, err := s.buildProposals(ctx, found, req.Schedules)
		if err != nil {
			return err
		}
		dates := distinctDates(proposals)
		for _, day := range dates {
			if err := s.schedules.LockDate(ctx, day); err != nil {
				return err
			}
		}
		existing, err := s.schedules.ListActiveOnDates(ctx, dates)
		if err != nil {
			return err
		}
		if conflicts, err := s.detect(ctx, proposals, existing); err != nil {
			return err
		} else if len(conflicts) > 0 {
			return appErrors.WithDetails(appErrors.ErrConflict, "schedule conflicts detected", conflicts)
		}

		for _, p := range proposals {
			schedule := p.schedule
			if err := s.schedules.Create(ctx, &schedule); err != nil {
				return err
			}
			created = append(created, schedule)
		}
		if found.Status == models.ExamStatusDraft {
			if err := s.exams.UpdateStatus(ctx, found.ID, models.ExamStatusScheduled, found.Published); err != nil {
				return err
			}
			found.Status = models.ExamStatusScheduled
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to schedule exam")
	}

	s.logger.Info("exam scheduled", zap.String("exam_id", examID), zap.Int("schedules", len(created)))
	if exam.Published && s.reminders != nil {
		s.reminders.ArmReminders(ctx, exam)
	}
	return created, nil
}

func (s *ExamScheduleService) buildProposals(ctx context.Context, exam *models.Exam, rows []ScheduleRequest) ([]proposedSchedule, error) {
	var problems []RowProblem
	proposals := make([]proposedSchedule, 0, len(rows))
	seenClass := make(map[string]bool)
	for i, row := range rows {
		fail := func(msg string) { problems = append(problems, RowProblem{Index: i, Message: msg}) }

		day, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			fail("invalid date")
			continue
		}
		if !exam.CoversDate(day) {
			fail("date outside the exam window")
		}
		start, errStart := grading.ParseClock(row.StartTime)
		end, errEnd := grading.ParseClock(row.EndTime)
		if errStart != nil || errEnd != nil {
			fail("start_time and end_time must be HH:MM")
			continue
		}
		if start >= end {
			fail("start_time must be before end_time")
		}
		if row.PassingMarks > row.TotalMarks {
			fail("passing_marks must not exceed total_marks")
		}
		if !seenClass[row.ClassID] {
			if _, err := s.classes.FindByID(ctx, row.ClassID); err != nil {
				if notFound := notFoundOr(err, "class"); appErrors.HasCode(notFound, appErrors.ErrNotFound.Code) {
					fail("class not found")
					continue
				}
				return nil, err
			}
			seenClass[row.ClassID] = true
		}

		schedule := models.ExamSchedule{
			ExamID:                exam.ID,
			ClassID:               row.ClassID,
			SubjectID:             row.SubjectID,
			Date:                  day,
			StartTime:             grading.FormatClock(start),
			EndTime:               grading.FormatClock(end),
			DurationMinutes:       end - start,
			Room:                  trimmedOrNil(row.Room),
			SupervisorID:          trimmedOrNil(row.SupervisorID),
			AdditionalSupervisors: row.AdditionalSupervisors,
			TotalMarks:            grading.Round2(row.TotalMarks),
			PassingMarks:          grading.Round2(row.PassingMarks),
			IsActive:              true,
		}
		proposals = append(proposals, proposedSchedule{schedule: schedule, slot: slotOf(schedule, "")})
	}
	if len(problems) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid schedules", problems)
	}
	return proposals, nil
}

func (s *ExamScheduleService) detect(ctx context.Context, proposals []proposedSchedule, existing []models.ExamSchedule) ([]grading.Conflict, error) {
	slots := make([]grading.Slot, len(proposals))
	for i, p := range proposals {
		slots[i] = p.slot
	}
	existingSlots := make([]grading.Slot, len(existing))
	onDates := make(map[string]struct{}, len(existing))
	for i, e := range existing {
		existingSlots[i] = slotOf(e, e.ID)
		onDates[e.ID] = struct{}{}
	}
	conflicts := grading.Detect(slots, existingSlots)

	// Duplicates on other dates are not in the date-scoped set.
	for i, p := range proposals {
		id, found, err := s.schedules.ExistsForExamClassSubject(ctx, p.schedule.ExamID, p.schedule.ClassID, p.schedule.SubjectID)
		if err != nil {
			return nil, err
		}
		if _, seen := onDates[id]; found && !seen {
			conflicts = append(conflicts, grading.Conflict{ProposedIndex: i, ScheduleID: id, Type: grading.ConflictDuplicate})
		}
	}
	sort.SliceStable(conflicts, func(i, j int) bool { return conflicts[i].ProposedIndex < conflicts[j].ProposedIndex })
	return conflicts, nil
}

// List returns the schedules of an exam.
func (s *ExamScheduleService) List(ctx context.Context, examID string, activeOnly bool) ([]models.ScheduleContext, error) {
	if _, err := s.exams.FindByID(ctx, examID); err != nil {
		return nil, notFoundOr(err, "exam")
	}
	schedules, err := s.schedules.ListByExam(ctx, examID, activeOnly)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list schedules")
	}
	return schedules, nil
}

// Deactivate withdraws a schedule; its results drop out of report cards and analytics.
func (s *ExamScheduleService) Deactivate(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		schedule, err := s.schedules.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "schedule")
		}
		if !schedule.IsActive {
			return nil
		}
		return s.schedules.Deactivate(ctx, id)
	})
	return persistenceError(err, "failed to deactivate schedule")
}

func slotOf(schedule models.ExamSchedule, ref string) grading.Slot {
	start, _ := grading.ParseClock(schedule.StartTime)
	end, _ := grading.ParseClock(schedule.EndTime)
	room := ""
	if schedule.Room != nil {
		room = *schedule.Room
	}
	return grading.Slot{
		Ref:         ref,
		ExamID:      schedule.ExamID,
		ClassID:     schedule.ClassID,
		SubjectID:   schedule.SubjectID,
		Date:        schedule.Date,
		Start:       start,
		End:         end,
		Room:        room,
		Supervisors: schedule.Supervisors(),
	}
}

func distinctDates(proposals []proposedSchedule) []time.Time {
	seen := make(map[string]time.Time)
	for _, p := range proposals {
		day := models.DateOnly(p.schedule.Date)
		seen[day.Format(dateLayout)] = day
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dates := make([]time.Time, len(keys))
	for i, k := range keys {
		dates[i] = seen[k]
	}
	return dates
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
