package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

const onlineExamColumns = `o.id, o.exam_schedule_id, o.time_limit_minutes, o.max_attempts, o.shuffle_questions, o.shuffle_options,
        o.show_results_immediately, o.proctoring_enabled, o.webcam_required, o.fullscreen_required, o.access_code_hash,
        o.ip_restrictions, o.created_at, o.updated_at`

// OnlineExamRepository persists online exam configuration and question lists.
type OnlineExamRepository struct {
	db *sqlx.DB
}

// NewOnlineExamRepository creates the repository.
func NewOnlineExamRepository(db *sqlx.DB) *OnlineExamRepository {
	return &OnlineExamRepository{db: db}
}

// Create inserts an online exam.
func (r *OnlineExamRepository) Create(ctx context.Context, exam *models.OnlineExam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exam.CreatedAt = now
	exam.UpdatedAt = now
	const query = `INSERT INTO online_exams (id, exam_schedule_id, time_limit_minutes, max_attempts, shuffle_questions,
        shuffle_options, show_results_immediately, proctoring_enabled, webcam_required, fullscreen_required, access_code_hash,
        ip_restrictions, created_at, updated_at)
        VALUES (:id, :exam_schedule_id, :time_limit_minutes, :max_attempts, :shuffle_questions, :shuffle_options,
        :show_results_immediately, :proctoring_enabled, :webcam_required, :fullscreen_required, :access_code_hash,
        :ip_restrictions, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create online exam: %w", err)
	}
	return nil
}

// FindByID returns an online exam.
func (r *OnlineExamRepository) FindByID(ctx context.Context, id string) (*models.OnlineExam, error) {
	var exam models.OnlineExam
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exam, `SELECT `+onlineExamColumns+` FROM online_exams o WHERE o.id = $1`, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// FindContext returns an online exam joined with its schedule and exam.
func (r *OnlineExamRepository) FindContext(ctx context.Context, id string) (*models.OnlineExamContext, error) {
	query := `SELECT ` + onlineExamColumns + `, s.class_id, s.exam_id, e.term_id, s.total_marks, s.passing_marks, e.status AS exam_status
        FROM online_exams o
        JOIN exam_schedules s ON s.id = o.exam_schedule_id
        JOIN exams e ON e.id = s.exam_id
        WHERE o.id = $1`
	var oc models.OnlineExamContext
	if err := database.Conn(ctx, r.db).GetContext(ctx, &oc, query, id); err != nil {
		return nil, err
	}
	return &oc, nil
}

// ReplaceQuestions swaps the exam's question list for the given ordered slots.
func (r *OnlineExamRepository) ReplaceQuestions(ctx context.Context, onlineExamID string, questions []models.OnlineExamQuestion) error {
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx, `DELETE FROM online_exam_questions WHERE online_exam_id = $1`, onlineExamID); err != nil {
		return fmt.Errorf("clear online exam questions: %w", err)
	}
	const insert = `INSERT INTO online_exam_questions (online_exam_id, question_id, question_order, marks)
        VALUES (:online_exam_id, :question_id, :question_order, :marks)`
	for i := range questions {
		questions[i].OnlineExamID = onlineExamID
		if _, err := conn.NamedExecContext(ctx, insert, questions[i]); err != nil {
			return fmt.Errorf("insert online exam question: %w", err)
		}
	}
	return nil
}

// ListQuestionDetails returns the exam's questions in presentation order.
func (r *OnlineExamRepository) ListQuestionDetails(ctx context.Context, onlineExamID string) ([]models.OnlineExamQuestionDetail, error) {
	const query = `SELECT oq.online_exam_id, oq.question_id, oq.question_order, oq.marks, q.type, q.text, q.options, q.correct_answer
        FROM online_exam_questions oq
        JOIN exam_questions q ON q.id = oq.question_id
        WHERE oq.online_exam_id = $1
        ORDER BY oq.question_order`
	var details []models.OnlineExamQuestionDetail
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &details, query, onlineExamID); err != nil {
		return nil, fmt.Errorf("list online exam questions: %w", err)
	}
	return details, nil
}
