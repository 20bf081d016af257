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

const scheduleColumns = `s.id, s.exam_id, s.class_id, s.subject_id, s.date, s.start_time, s.end_time, s.duration_minutes,
        s.room, s.supervisor_id, s.additional_supervisors, s.total_marks, s.passing_marks, s.is_completed, s.is_active,
        s.created_at, s.updated_at`

const scheduleContextSelect = `SELECT ` + scheduleColumns + `, e.term_id, e.academic_year_id, e.status AS exam_status,
        e.published AS exam_published, c.grade AS class_grade
        FROM exam_schedules s
        JOIN exams e ON e.id = s.exam_id
        JOIN classes c ON c.id = s.class_id`

// ExamScheduleRepository persists exam schedules.
type ExamScheduleRepository struct {
	db *sqlx.DB
}

// NewExamScheduleRepository creates a new schedule repository.
func NewExamScheduleRepository(db *sqlx.DB) *ExamScheduleRepository {
	return &ExamScheduleRepository{db: db}
}

// LockDate serialises schedule acceptance for a calendar date until the transaction ends.
func (r *ExamScheduleRepository) LockDate(ctx context.Context, date time.Time) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, "exam_schedule:"+date.UTC().Format("2006-01-02")); err != nil {
		return fmt.Errorf("lock schedule date: %w", err)
	}
	return nil
}

// ListActiveOnDates returns active schedules on any of the given dates.
func (r *ExamScheduleRepository) ListActiveOnDates(ctx context.Context, dates []time.Time) ([]models.ExamSchedule, error) {
	if len(dates) == 0 {
		return []models.ExamSchedule{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+scheduleColumns+` FROM exam_schedules s WHERE s.is_active = TRUE AND s.date IN (?) ORDER BY s.date, s.start_time`, dates)
	if err != nil {
		return nil, fmt.Errorf("build schedules query: %w", err)
	}
	conn := database.Conn(ctx, r.db)
	var schedules []models.ExamSchedule
	if err := conn.SelectContext(ctx, &schedules, conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list schedules by date: %w", err)
	}
	return schedules, nil
}

// ExistsForExamClassSubject reports whether an active schedule already covers the triple.
func (r *ExamScheduleRepository) ExistsForExamClassSubject(ctx context.Context, examID, classID, subjectID string) (string, bool, error) {
	const query = `SELECT id FROM exam_schedules WHERE exam_id = $1 AND class_id = $2 AND subject_id = $3 AND is_active = TRUE LIMIT 1`
	var id string
	err := database.Conn(ctx, r.db).GetContext(ctx, &id, query, examID, classID, subjectID)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("check schedule duplicate: %w", err)
	}
	return id, true, nil
}

// Create inserts a schedule.
func (r *ExamScheduleRepository) Create(ctx context.Context, schedule *models.ExamSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	const query = `INSERT INTO exam_schedules (id, exam_id, class_id, subject_id, date, start_time, end_time, duration_minutes,
        room, supervisor_id, additional_supervisors, total_marks, passing_marks, is_completed, is_active, created_at, updated_at)
        VALUES (:id, :exam_id, :class_id, :subject_id, :date, :start_time, :end_time, :duration_minutes,
        :room, :supervisor_id, :additional_supervisors, :total_marks, :passing_marks, :is_completed, :is_active, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// FindByID returns a schedule by id.
func (r *ExamScheduleRepository) FindByID(ctx context.Context, id string) (*models.ExamSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM exam_schedules s WHERE s.id = $1`
	var schedule models.ExamSchedule
	if err := database.Conn(ctx, r.db).GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FindContext returns a schedule joined with its exam and class.
func (r *ExamScheduleRepository) FindContext(ctx context.Context, id string) (*models.ScheduleContext, error) {
	var schedule models.ScheduleContext
	if err := database.Conn(ctx, r.db).GetContext(ctx, &schedule, scheduleContextSelect+` WHERE s.id = $1`, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// LockContext returns a schedule context holding an exclusive lock on the schedule row.
func (r *ExamScheduleRepository) LockContext(ctx context.Context, id string) (*models.ScheduleContext, error) {
	var schedule models.ScheduleContext
	if err := database.Conn(ctx, r.db).GetContext(ctx, &schedule, scheduleContextSelect+` WHERE s.id = $1 FOR UPDATE OF s`, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// LockSiblingsForShare share-locks the active schedules of an exam and subject whose class is in the grade.
func (r *ExamScheduleRepository) LockSiblingsForShare(ctx context.Context, examID, subjectID, grade string) ([]models.ScheduleContext, error) {
	var schedules []models.ScheduleContext
	query := scheduleContextSelect + ` WHERE s.exam_id = $1 AND s.subject_id = $2 AND c.grade = $3 AND s.is_active = TRUE
        ORDER BY s.id FOR SHARE OF s`
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &schedules, query, examID, subjectID, grade); err != nil {
		return nil, fmt.Errorf("lock sibling schedules: %w", err)
	}
	return schedules, nil
}

// ListByExam returns the schedules of an exam, joined with exam facts.
func (r *ExamScheduleRepository) ListByExam(ctx context.Context, examID string, activeOnly bool) ([]models.ScheduleContext, error) {
	query := scheduleContextSelect + ` WHERE s.exam_id = $1`
	if activeOnly {
		query += ` AND s.is_active = TRUE`
	}
	query += ` ORDER BY s.date, s.start_time, s.id`
	var schedules []models.ScheduleContext
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &schedules, query, examID); err != nil {
		return nil, fmt.Errorf("list exam schedules: %w", err)
	}
	return schedules, nil
}

// SetCompleted flags whether every student of the class has a result.
func (r *ExamScheduleRepository) SetCompleted(ctx context.Context, id string, completed bool) error {
	const query = `UPDATE exam_schedules SET is_completed = $1, updated_at = $2 WHERE id = $3`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, completed, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update schedule completion: %w", err)
	}
	return nil
}

// Deactivate marks a schedule inactive.
func (r *ExamScheduleRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE exam_schedules SET is_active = FALSE, updated_at = $1 WHERE id = $2`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	return nil
}
