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

const resultColumns = `id, student_id, exam_schedule_id, term_id, marks_obtained, percentage, grade, grade_point, is_pass,
        is_absent, is_exempted, class_rank, grade_rank, remarks, entered_by, entry_date, updated_at`

// ResultRepository persists student exam results.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a result repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Upsert inserts or updates the result for (student, schedule). Ranks are left untouched and the
// original entry date is kept on update. The stored id and entry date are written back.
func (r *ResultRepository) Upsert(ctx context.Context, result *models.StudentExamResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if result.EntryDate.IsZero() {
		result.EntryDate = now
	}
	result.UpdatedAt = now
	const query = `INSERT INTO student_exam_results (id, student_id, exam_schedule_id, term_id, marks_obtained, percentage, grade,
        grade_point, is_pass, is_absent, is_exempted, remarks, entered_by, entry_date, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (student_id, exam_schedule_id) DO UPDATE SET
            marks_obtained = EXCLUDED.marks_obtained,
            percentage = EXCLUDED.percentage,
            grade = EXCLUDED.grade,
            grade_point = EXCLUDED.grade_point,
            is_pass = EXCLUDED.is_pass,
            is_absent = EXCLUDED.is_absent,
            is_exempted = EXCLUDED.is_exempted,
            remarks = EXCLUDED.remarks,
            entered_by = EXCLUDED.entered_by,
            updated_at = EXCLUDED.updated_at
        RETURNING id, entry_date`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		result.ID, result.StudentID, result.ExamScheduleID, result.TermID, result.MarksObtained, result.Percentage, result.Grade,
		result.GradePoint, result.IsPass, result.IsAbsent, result.IsExempted, result.Remarks, result.EnteredBy, result.EntryDate, result.UpdatedAt)
	if err := row.Scan(&result.ID, &result.EntryDate); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// ListBySchedule returns the results of a schedule.
func (r *ResultRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.StudentExamResult, error) {
	query := `SELECT ` + resultColumns + ` FROM student_exam_results WHERE exam_schedule_id = $1 ORDER BY class_rank NULLS LAST, entry_date, student_id`
	var results []models.StudentExamResult
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &results, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule results: %w", err)
	}
	return results, nil
}

// ListBySchedules returns the results of several schedules.
func (r *ResultRepository) ListBySchedules(ctx context.Context, scheduleIDs []string) ([]models.StudentExamResult, error) {
	if len(scheduleIDs) == 0 {
		return []models.StudentExamResult{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+resultColumns+` FROM student_exam_results WHERE exam_schedule_id IN (?)`, scheduleIDs)
	if err != nil {
		return nil, fmt.Errorf("build results query: %w", err)
	}
	conn := database.Conn(ctx, r.db)
	var results []models.StudentExamResult
	if err := conn.SelectContext(ctx, &results, conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list results by schedules: %w", err)
	}
	return results, nil
}

// FindByStudentSchedule returns a student's result on a schedule.
func (r *ResultRepository) FindByStudentSchedule(ctx context.Context, studentID, scheduleID string) (*models.StudentExamResult, error) {
	query := `SELECT ` + resultColumns + ` FROM student_exam_results WHERE student_id = $1 AND exam_schedule_id = $2`
	var result models.StudentExamResult
	if err := database.Conn(ctx, r.db).GetContext(ctx, &result, query, studentID, scheduleID); err != nil {
		return nil, err
	}
	return &result, nil
}

// CountBySchedule returns the number of results entered for a schedule.
func (r *ResultRepository) CountBySchedule(ctx context.Context, scheduleID string) (int, error) {
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, `SELECT COUNT(*) FROM student_exam_results WHERE exam_schedule_id = $1`, scheduleID); err != nil {
		return 0, fmt.Errorf("count schedule results: %w", err)
	}
	return count, nil
}

// UpdateClassRanks writes class ranks.
func (r *ResultRepository) UpdateClassRanks(ctx context.Context, ranks []models.RankAssignment) error {
	return r.updateRanks(ctx, "class_rank", ranks)
}

// UpdateGradeRanks writes grade ranks.
func (r *ResultRepository) UpdateGradeRanks(ctx context.Context, ranks []models.RankAssignment) error {
	return r.updateRanks(ctx, "grade_rank", ranks)
}

func (r *ResultRepository) updateRanks(ctx context.Context, column string, ranks []models.RankAssignment) error {
	conn := database.Conn(ctx, r.db)
	query := fmt.Sprintf(`UPDATE student_exam_results SET %s = $1 WHERE id = $2`, column)
	for _, rank := range ranks {
		if _, err := conn.ExecContext(ctx, query, rank.Rank, rank.ResultID); err != nil {
			return fmt.Errorf("update %s: %w", column, err)
		}
	}
	return nil
}

// Delete removes a student's result on a schedule.
func (r *ResultRepository) Delete(ctx context.Context, studentID, scheduleID string) error {
	const query = `DELETE FROM student_exam_results WHERE student_id = $1 AND exam_schedule_id = $2`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, studentID, scheduleID); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

// Facts returns denormalised result rows for report cards and analytics.
func (r *ResultRepository) Facts(ctx context.Context, filter models.ResultFactFilter) ([]models.ResultFact, error) {
	var conditions []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("e.academic_year_id", filter.AcademicYearID)
	add("r.term_id", filter.TermID)
	add("e.id", filter.ExamID)
	add("s.class_id", filter.ClassID)
	add("s.subject_id", filter.SubjectID)
	add("r.student_id", filter.StudentID)

	query := `SELECT r.id AS result_id, r.student_id, st.full_name AS student_name, e.id AS exam_id, e.name AS exam_name,
        s.id AS exam_schedule_id, s.class_id, c.name AS class_name, c.grade AS class_grade, s.subject_id, sub.name AS subject_name,
        r.term_id, e.academic_year_id, s.total_marks, r.marks_obtained, r.percentage, r.grade, r.grade_point, r.is_pass,
        r.is_absent, r.is_exempted, r.entry_date
        FROM student_exam_results r
        JOIN exam_schedules s ON s.id = r.exam_schedule_id
        JOIN exams e ON e.id = s.exam_id
        JOIN classes c ON c.id = s.class_id
        JOIN subjects sub ON sub.id = s.subject_id
        JOIN students st ON st.id = r.student_id
        WHERE s.is_active = TRUE AND e.status <> 'CANCELLED'`
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.student_id, s.subject_id, s.date"

	var facts []models.ResultFact
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &facts, query, args...); err != nil {
		return nil, fmt.Errorf("list result facts: %w", err)
	}
	return facts, nil
}
