package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type questionRepository interface {
	Create(ctx context.Context, q *models.ExamQuestion) error
	List(ctx context.Context, filter models.QuestionFilter) ([]models.ExamQuestion, int, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.ExamQuestion, error)
	RandomSelect(ctx context.Context, subjectID, grade string, difficulty models.Difficulty, limit int) ([]models.ExamQuestion, error)
	IncrementUsage(ctx context.Context, ids []string) error
}

// CreateQuestionRequest adds an item to the question bank.
type CreateQuestionRequest struct {
	SubjectID     string   `json:"subject_id" validate:"required"`
	Grade         string   `json:"grade" validate:"required"`
	Text          string   `json:"text" validate:"required"`
	Type          string   `json:"type" validate:"required,oneof=MCQ TRUE_FALSE FILL_BLANK SHORT_ANSWER ESSAY"`
	Difficulty    string   `json:"difficulty" validate:"required,oneof=EASY MEDIUM HARD"`
	Marks         float64  `json:"marks" validate:"gt=0"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   *string  `json:"explanation"`
	Topic         *string  `json:"topic"`
}

// QuestionService manages the question bank.
type QuestionService struct {
	repo      questionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestionService constructs the service.
func NewQuestionService(repo questionRepository, validate *validator.Validate, logger *zap.Logger) *QuestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionService{repo: repo, validator: validate, logger: logger}
}

// Create validates the answer key against the question type and stores the question.
func (s *QuestionService) Create(ctx context.Context, req CreateQuestionRequest, createdBy string) (*models.ExamQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid question payload")
	}
	question := &models.ExamQuestion{
		SubjectID:     req.SubjectID,
		Grade:         strings.TrimSpace(req.Grade),
		Text:          strings.TrimSpace(req.Text),
		Type:          models.QuestionType(req.Type),
		Difficulty:    models.Difficulty(req.Difficulty),
		Marks:         grading.Round2(req.Marks),
		Options:       req.Options,
		CorrectAnswer: strings.TrimSpace(req.CorrectAnswer),
		Explanation:   req.Explanation,
		Topic:         trimmedOrNil(req.Topic),
		Active:        true,
		CreatedBy:     createdBy,
	}
	if err := validateAnswerKey(question); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, question); err != nil {
		return nil, persistenceError(err, "failed to create question")
	}
	s.logger.Info("question created", zap.String("question_id", question.ID), zap.String("type", string(question.Type)))
	return question, nil
}

// List returns bank questions with pagination metadata. Answer keys stay in the payload for staff.
func (s *QuestionService) List(ctx context.Context, filter models.QuestionFilter) ([]models.ExamQuestion, *models.Pagination, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid question type")
	}
	if filter.Difficulty != "" && !filter.Difficulty.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid difficulty")
	}
	questions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list questions")
	}
	page, size, _ := models.Page(filter.Page, filter.PageSize, 200)
	return questions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func validateAnswerKey(q *models.ExamQuestion) error {
	invalid := func(msg string) error { return appErrors.Clone(appErrors.ErrValidation, msg) }
	switch q.Type {
	case models.QuestionMCQ:
		if len(q.Options) < 2 {
			return invalid("multiple choice questions need at least two options")
		}
		for _, option := range q.Options {
			if strings.TrimSpace(option) == "" {
				return invalid("options must not be blank")
			}
		}
		if _, ok := grading.CorrectOptionIndex(models.SnapshotQuestion{Options: q.Options, CorrectAnswer: q.CorrectAnswer}); !ok {
			return invalid("correct_answer must match an option text or index")
		}
	case models.QuestionTrueFalse:
		if _, ok := grading.ParseTrueFalse(q.CorrectAnswer); !ok {
			return invalid("correct_answer must be true or false")
		}
		q.Options = nil
	case models.QuestionFillBlank:
		if q.CorrectAnswer == "" {
			return invalid("correct_answer is required")
		}
		q.Options = nil
	case models.QuestionShortAnswer, models.QuestionEssay:
		if len(q.Options) > 0 {
			return invalid("manually graded questions take no options")
		}
	}
	return nil
}
