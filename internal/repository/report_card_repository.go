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

const reportCardColumns = `rc.id, rc.student_id, rc.class_id, rc.academic_year_id, rc.term_id, rc.total_marks, rc.marks_obtained,
        rc.percentage, rc.grade, rc.grade_point_average, rc.subject_count, rc.failed_subjects, rc.class_rank, rc.class_size,
        rc.grade_rank, rc.grade_size, rc.attendance_percentage, rc.days_present, rc.days_absent, rc.total_days,
        rc.teacher_remarks, rc.principal_remarks, rc.status, rc.generation_date, rc.updated_at`

const reportCardRowSelect = `SELECT ` + reportCardColumns + `, s.nis, s.full_name AS student_name, c.name AS class_name, c.grade AS class_grade
        FROM report_cards rc
        JOIN students s ON s.id = rc.student_id
        JOIN classes c ON c.id = rc.class_id`

// ReportCardRepository persists report cards.
type ReportCardRepository struct {
	db *sqlx.DB
}

// NewReportCardRepository creates the repository.
func NewReportCardRepository(db *sqlx.DB) *ReportCardRepository {
	return &ReportCardRepository{db: db}
}

// Upsert writes the derived fields of a report card keyed by (student, class, year, term).
// Remarks are never overwritten and archived cards are left untouched; in that case
// the returned flag is false.
func (r *ReportCardRepository) Upsert(ctx context.Context, card *models.ReportCard) (bool, error) {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	card.GenerationDate = now
	card.UpdatedAt = now
	const query = `INSERT INTO report_cards (id, student_id, class_id, academic_year_id, term_id, total_marks, marks_obtained,
        percentage, grade, grade_point_average, subject_count, failed_subjects, class_rank, class_size, grade_rank, grade_size,
        attendance_percentage, days_present, days_absent, total_days, status, generation_date, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
        ON CONFLICT (student_id, class_id, academic_year_id, term_id) DO UPDATE SET
            total_marks = EXCLUDED.total_marks,
            marks_obtained = EXCLUDED.marks_obtained,
            percentage = EXCLUDED.percentage,
            grade = EXCLUDED.grade,
            grade_point_average = EXCLUDED.grade_point_average,
            subject_count = EXCLUDED.subject_count,
            failed_subjects = EXCLUDED.failed_subjects,
            class_rank = EXCLUDED.class_rank,
            class_size = EXCLUDED.class_size,
            attendance_percentage = EXCLUDED.attendance_percentage,
            days_present = EXCLUDED.days_present,
            days_absent = EXCLUDED.days_absent,
            total_days = EXCLUDED.total_days,
            status = EXCLUDED.status,
            generation_date = EXCLUDED.generation_date,
            updated_at = EXCLUDED.updated_at
        WHERE report_cards.status <> 'ARCHIVED'
        RETURNING id, teacher_remarks, principal_remarks, grade_rank, grade_size`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		card.ID, card.StudentID, card.ClassID, card.AcademicYearID, card.TermID, card.TotalMarks, card.MarksObtained,
		card.Percentage, card.Grade, card.GradePointAverage, card.SubjectCount, card.FailedSubjects, card.ClassRank, card.ClassSize,
		card.GradeRank, card.GradeSize, card.AttendancePercentage, card.DaysPresent, card.DaysAbsent, card.TotalDays,
		card.Status, card.GenerationDate, card.UpdatedAt)
	if err := row.Scan(&card.ID, &card.TeacherRemarks, &card.PrincipalRemarks, &card.GradeRank, &card.GradeSize); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("upsert report card: %w", err)
	}
	return true, nil
}

// ListForGrade returns the term's non-archived cards of every class in a grade.
func (r *ReportCardRepository) ListForGrade(ctx context.Context, termID, grade string) ([]models.ReportCardRow, error) {
	query := reportCardRowSelect + ` WHERE rc.term_id = $1 AND c.grade = $2 AND rc.status <> 'ARCHIVED' ORDER BY rc.id`
	var rows []models.ReportCardRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, termID, grade); err != nil {
		return nil, fmt.Errorf("list grade report cards: %w", err)
	}
	return rows, nil
}

// UpdateGradeRank writes the grade-wide rank of a card.
func (r *ReportCardRepository) UpdateGradeRank(ctx context.Context, id string, rank, size int) error {
	const query = `UPDATE report_cards SET grade_rank = $1, grade_size = $2 WHERE id = $3 AND status <> 'ARCHIVED'`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, rank, size, id); err != nil {
		return fmt.Errorf("update grade rank: %w", err)
	}
	return nil
}

// FindByID returns a report card joined with student and class names.
func (r *ReportCardRepository) FindByID(ctx context.Context, id string) (*models.ReportCardRow, error) {
	var row models.ReportCardRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, reportCardRowSelect+` WHERE rc.id = $1`, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns report cards matching the filter with the total count.
func (r *ReportCardRepository) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardRow, int, error) {
	where, args := reportCardWhere(filter)
	_, size, offset := models.Page(filter.Page, filter.PageSize, 500)
	query := fmt.Sprintf("%s %s ORDER BY c.name, rc.class_rank NULLS LAST, s.nis LIMIT %d OFFSET %d", reportCardRowSelect, where, size, offset)

	conn := database.Conn(ctx, r.db)
	var rows []models.ReportCardRow
	if err := conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list report cards: %w", err)
	}
	var total int
	countQuery := `SELECT COUNT(*) FROM report_cards rc JOIN students s ON s.id = rc.student_id JOIN classes c ON c.id = rc.class_id ` + where
	if err := conn.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count report cards: %w", err)
	}
	return rows, total, nil
}

func reportCardWhere(filter models.ReportCardFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("rc.term_id", filter.TermID)
	add("rc.class_id", filter.ClassID)
	add("rc.student_id", filter.StudentID)
	add("rc.academic_year_id", filter.AcademicYearID)
	add("rc.status", string(filter.Status))
	where := "WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// UpdateRemarks sets teacher and principal remarks. Nil leaves a remark unchanged.
func (r *ReportCardRepository) UpdateRemarks(ctx context.Context, id string, teacher, principal *string) error {
	const query = `UPDATE report_cards SET teacher_remarks = COALESCE($1, teacher_remarks),
        principal_remarks = COALESCE($2, principal_remarks), updated_at = $3 WHERE id = $4`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, teacher, principal, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update report card remarks: %w", err)
	}
	return nil
}

// ArchiveByTerm archives every card of a term and returns the number archived.
func (r *ReportCardRepository) ArchiveByTerm(ctx context.Context, termID string) (int64, error) {
	const query = `UPDATE report_cards SET status = 'ARCHIVED', updated_at = $1 WHERE term_id = $2 AND status <> 'ARCHIVED'`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), termID)
	if err != nil {
		return 0, fmt.Errorf("archive report cards: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive report cards: %w", err)
	}
	return affected, nil
}

// ListByStudentYear returns a student's report cards for an academic year ordered by term start.
func (r *ReportCardRepository) ListByStudentYear(ctx context.Context, studentID, academicYearID string) ([]models.ReportCardRow, error) {
	query := reportCardRowSelect + ` JOIN terms t ON t.id = rc.term_id
        WHERE rc.student_id = $1 AND rc.academic_year_id = $2 ORDER BY t.start_date`
	var rows []models.ReportCardRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, studentID, academicYearID); err != nil {
		return nil, fmt.Errorf("list student report cards: %w", err)
	}
	return rows, nil
}
