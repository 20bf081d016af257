package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

const questionColumns = `id, subject_id, grade, text, type, difficulty, marks, options, correct_answer, explanation, topic,
        active, usage_count, created_by, created_at`

// QuestionRepository persists the question bank.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository creates the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create inserts a question.
func (r *QuestionRepository) Create(ctx context.Context, q *models.ExamQuestion) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO exam_questions (id, subject_id, grade, text, type, difficulty, marks, options, correct_answer,
        explanation, topic, active, usage_count, created_by, created_at)
        VALUES (:id, :subject_id, :grade, :text, :type, :difficulty, :marks, :options, :correct_answer, :explanation, :topic,
        :active, :usage_count, :created_by, :created_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, q); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// List returns questions matching the filter together with the total count.
func (r *QuestionRepository) List(ctx context.Context, filter models.QuestionFilter) ([]models.ExamQuestion, int, error) {
	var conditions []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("subject_id", filter.SubjectID)
	add("grade", filter.Grade)
	add("type", string(filter.Type))
	add("difficulty", string(filter.Difficulty))
	add("topic", filter.Topic)
	if filter.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	_, size, offset := models.Page(filter.Page, filter.PageSize, 200)
	conn := database.Conn(ctx, r.db)
	var questions []models.ExamQuestion
	query := fmt.Sprintf("SELECT %s FROM exam_questions %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d", questionColumns, where, size, offset)
	if err := conn.SelectContext(ctx, &questions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, "SELECT COUNT(*) FROM exam_questions "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}
	return questions, total, nil
}

// FindByIDs loads the given questions in no particular order.
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []string) ([]models.ExamQuestion, error) {
	if len(ids) == 0 {
		return []models.ExamQuestion{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+questionColumns+` FROM exam_questions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build questions query: %w", err)
	}
	conn := database.Conn(ctx, r.db)
	var questions []models.ExamQuestion
	if err := conn.SelectContext(ctx, &questions, conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	return questions, nil
}

// RandomSelect picks up to limit active questions of a subject and grade. An empty difficulty matches any.
func (r *QuestionRepository) RandomSelect(ctx context.Context, subjectID, grade string, difficulty models.Difficulty, limit int) ([]models.ExamQuestion, error) {
	query := `SELECT ` + questionColumns + ` FROM exam_questions
        WHERE subject_id = $1 AND grade = $2 AND active = TRUE AND ($3::text = '' OR difficulty = $3::text)
        ORDER BY random() LIMIT $4`
	var questions []models.ExamQuestion
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &questions, query, subjectID, grade, string(difficulty), limit); err != nil {
		return nil, fmt.Errorf("select random questions: %w", err)
	}
	return questions, nil
}

// IncrementUsage bumps usage_count once per listed question.
func (r *QuestionRepository) IncrementUsage(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE exam_questions SET usage_count = usage_count + 1 WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build usage query: %w", err)
	}
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx, conn.Rebind(query), args...); err != nil {
		return fmt.Errorf("increment question usage: %w", err)
	}
	return nil
}
