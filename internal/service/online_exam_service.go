package service

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type onlineExamRepository interface {
	Create(ctx context.Context, exam *models.OnlineExam) error
	FindByID(ctx context.Context, id string) (*models.OnlineExam, error)
	FindContext(ctx context.Context, id string) (*models.OnlineExamContext, error)
	ReplaceQuestions(ctx context.Context, onlineExamID string, questions []models.OnlineExamQuestion) error
	ListQuestionDetails(ctx context.Context, onlineExamID string) ([]models.OnlineExamQuestionDetail, error)
}

type scheduleContextReader interface {
	FindContext(ctx context.Context, id string) (*models.ScheduleContext, error)
}

// CreateOnlineExamRequest configures online delivery for a schedule.
type CreateOnlineExamRequest struct {
	ExamScheduleID         string   `json:"exam_schedule_id" validate:"required"`
	TimeLimitMinutes       int      `json:"time_limit_minutes" validate:"min=1,max=300"`
	MaxAttempts            int      `json:"max_attempts" validate:"min=1,max=5"`
	ShuffleQuestions       bool     `json:"shuffle_questions"`
	ShuffleOptions         bool     `json:"shuffle_options"`
	ShowResultsImmediately bool     `json:"show_results_immediately"`
	ProctoringEnabled      bool     `json:"proctoring_enabled"`
	WebcamRequired         bool     `json:"webcam_required"`
	FullscreenRequired     bool     `json:"fullscreen_required"`
	AccessCode             *string  `json:"access_code" validate:"omitempty,min=4,max=64"`
	IPRestrictions         []string `json:"ip_restrictions"`
}

// QuestionSlot places a bank question at the next position; Marks overrides the bank marks.
type QuestionSlot struct {
	QuestionID string   `json:"question_id" validate:"required"`
	Marks      *float64 `json:"marks" validate:"omitempty,gt=0"`
}

// SetQuestionsRequest replaces the ordered question list of an online exam.
type SetQuestionsRequest struct {
	Questions []QuestionSlot `json:"questions" validate:"required,min=1,dive"`
}

// AutoSelectRequest picks random active bank questions for the schedule's subject and grade,
// either per difficulty or as a plain total.
type AutoSelectRequest struct {
	Distribution map[string]int `json:"distribution"`
	Total        int            `json:"total" validate:"gte=0,lte=200"`
}

// OnlineExamService configures online exams and their question lists.
type OnlineExamService struct {
	exams     onlineExamRepository
	schedules scheduleContextReader
	questions questionRepository
	tx        database.Transactor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOnlineExamService constructs the service.
func NewOnlineExamService(exams onlineExamRepository, schedules scheduleContextReader, questions questionRepository, tx database.Transactor, validate *validator.Validate, logger *zap.Logger) *OnlineExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnlineExamService{exams: exams, schedules: schedules, questions: questions, tx: tx, validator: validate, logger: logger}
}

// Create binds an online configuration to a schedule. The access code is stored as a bcrypt hash.
func (s *OnlineExamService) Create(ctx context.Context, req CreateOnlineExamRequest) (*models.OnlineExam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid online exam payload")
	}
	restrictions, err := normalizeRestrictions(req.IPRestrictions)
	if err != nil {
		return nil, err
	}
	schedule, err := s.schedules.FindContext(ctx, req.ExamScheduleID)
	if err != nil {
		return nil, notFoundOr(err, "schedule")
	}
	if !schedule.IsActive || schedule.ExamStatus.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrState, "schedule does not accept online delivery")
	}

	exam := &models.OnlineExam{
		ExamScheduleID:         req.ExamScheduleID,
		TimeLimitMinutes:       req.TimeLimitMinutes,
		MaxAttempts:            req.MaxAttempts,
		ShuffleQuestions:       req.ShuffleQuestions,
		ShuffleOptions:         req.ShuffleOptions,
		ShowResultsImmediately: req.ShowResultsImmediately,
		ProctoringEnabled:      req.ProctoringEnabled,
		WebcamRequired:         req.WebcamRequired,
		FullscreenRequired:     req.FullscreenRequired,
		IPRestrictions:         restrictions,
	}
	if code := trimmedOrNil(req.AccessCode); code != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*code), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to hash access code")
		}
		hashed := string(hash)
		exam.AccessCodeHash = &hashed
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "schedule already has an online exam")
		}
		return nil, persistenceError(err, "failed to create online exam")
	}
	s.logger.Info("online exam created", zap.String("online_exam_id", exam.ID), zap.String("schedule_id", exam.ExamScheduleID))
	return exam, nil
}

// SetQuestions replaces the question list. Attempts already started keep their snapshot.
func (s *OnlineExamService) SetQuestions(ctx context.Context, onlineExamID string, req SetQuestionsRequest) ([]models.OnlineExamQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid question list")
	}
	exam, schedule, err := s.load(ctx, onlineExamID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(req.Questions))
	seen := make(map[string]struct{}, len(req.Questions))
	for _, slot := range req.Questions {
		if _, dup := seen[slot.QuestionID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s listed twice", slot.QuestionID))
		}
		seen[slot.QuestionID] = struct{}{}
		ids = append(ids, slot.QuestionID)
	}
	bank, err := s.questions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load questions")
	}
	byID := make(map[string]models.ExamQuestion, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}

	var problems []string
	slots := make([]models.OnlineExamQuestion, 0, len(req.Questions))
	for i, slot := range req.Questions {
		q, ok := byID[slot.QuestionID]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("question %s not found", slot.QuestionID))
			continue
		case !q.Active:
			problems = append(problems, fmt.Sprintf("question %s is inactive", slot.QuestionID))
			continue
		case q.SubjectID != schedule.SubjectID:
			problems = append(problems, fmt.Sprintf("question %s belongs to another subject", slot.QuestionID))
			continue
		}
		marks := q.Marks
		if slot.Marks != nil {
			marks = grading.Round2(*slot.Marks)
		}
		slots = append(slots, models.OnlineExamQuestion{QuestionID: q.ID, Order: i + 1, Marks: marks})
	}
	if len(problems) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid question list", problems)
	}
	return s.replace(ctx, exam.ID, slots)
}

// AutoSelect draws random questions from the bank and replaces the question list.
func (s *OnlineExamService) AutoSelect(ctx context.Context, onlineExamID string, req AutoSelectRequest) ([]models.OnlineExamQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid selection request")
	}
	exam, schedule, err := s.load(ctx, onlineExamID)
	if err != nil {
		return nil, err
	}

	type draw struct {
		difficulty models.Difficulty
		count      int
	}
	var draws []draw
	if len(req.Distribution) > 0 {
		for key, n := range req.Distribution {
			if !models.Difficulty(key).Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown difficulty %q", key))
			}
			if n < 0 {
				return nil, appErrors.Clone(appErrors.ErrValidation, "distribution counts must not be negative")
			}
		}
		for _, level := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
			if n := req.Distribution[string(level)]; n > 0 {
				draws = append(draws, draw{difficulty: level, count: n})
			}
		}
	} else if req.Total > 0 {
		draws = append(draws, draw{count: req.Total})
	}
	if len(draws) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "distribution or total is required")
	}

	var slots []models.OnlineExamQuestion
	for _, d := range draws {
		picked, err := s.questions.RandomSelect(ctx, schedule.SubjectID, schedule.ClassGrade, d.difficulty, d.count)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to select questions")
		}
		if len(picked) < d.count {
			label := "any difficulty"
			if d.difficulty != "" {
				label = string(d.difficulty)
			}
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("question bank has %d of %d requested questions for %s", len(picked), d.count, label))
		}
		for _, q := range picked {
			slots = append(slots, models.OnlineExamQuestion{QuestionID: q.ID, Order: len(slots) + 1, Marks: q.Marks})
		}
	}
	return s.replace(ctx, exam.ID, slots)
}

// Questions returns the question list with answer keys, for staff.
func (s *OnlineExamService) Questions(ctx context.Context, onlineExamID string) ([]models.OnlineExamQuestionDetail, error) {
	if _, err := s.exams.FindByID(ctx, onlineExamID); err != nil {
		return nil, notFoundOr(err, "online exam")
	}
	details, err := s.exams.ListQuestionDetails(ctx, onlineExamID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list questions")
	}
	return details, nil
}

func (s *OnlineExamService) load(ctx context.Context, onlineExamID string) (*models.OnlineExam, *models.ScheduleContext, error) {
	exam, err := s.exams.FindByID(ctx, onlineExamID)
	if err != nil {
		return nil, nil, notFoundOr(err, "online exam")
	}
	schedule, err := s.schedules.FindContext(ctx, exam.ExamScheduleID)
	if err != nil {
		return nil, nil, notFoundOr(err, "schedule")
	}
	if schedule.ExamStatus.Terminal() {
		return nil, nil, appErrors.Clone(appErrors.ErrState, fmt.Sprintf("exam is %s", schedule.ExamStatus))
	}
	return exam, schedule, nil
}

func (s *OnlineExamService) replace(ctx context.Context, onlineExamID string, slots []models.OnlineExamQuestion) ([]models.OnlineExamQuestion, error) {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.exams.ReplaceQuestions(ctx, onlineExamID, slots)
	})
	if err != nil {
		return nil, persistenceError(err, "failed to store question list")
	}
	s.logger.Info("online exam questions set", zap.String("online_exam_id", onlineExamID), zap.Int("questions", len(slots)))
	return slots, nil
}

// normalizeRestrictions parses CIDRs; a bare address is treated as a single host.
func normalizeRestrictions(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	var problems []string
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				problems = append(problems, fmt.Sprintf("invalid address %q", entry))
				continue
			}
			if ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid CIDR %q", entry))
			continue
		}
		out = append(out, network.String())
	}
	if len(problems) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid ip restrictions", problems)
	}
	return out, nil
}

// ipAllowed reports whether source falls inside one of the CIDRs. No restrictions allow every address.
func ipAllowed(restrictions []string, source string) bool {
	if len(restrictions) == 0 {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(source))
	if ip == nil {
		return false
	}
	for _, cidr := range restrictions {
		if _, network, err := net.ParseCIDR(cidr); err == nil && network.Contains(ip) {
			return true
		}
	}
	return false
}

// accessCodeMatches compares a presented code with the stored bcrypt hash.
func accessCodeMatches(exam models.OnlineExam, presented *string) bool {
	if !exam.RequiresAccessCode() {
		return true
	}
	if presented == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*exam.AccessCodeHash), []byte(strings.TrimSpace(*presented))) == nil
}
