package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

// DailyAttendanceRepository aggregates daily attendance for report cards.
type DailyAttendanceRepository struct {
	db *sqlx.DB
}

// NewDailyAttendanceRepository constructs the repository.
func NewDailyAttendanceRepository(db *sqlx.DB) *DailyAttendanceRepository {
	return &DailyAttendanceRepository{db: db}
}

// StudentSummary counts a student's attendance within a term. Sick and excused days count as absent.
func (r *DailyAttendanceRepository) StudentSummary(ctx context.Context, studentID, termID string) (*models.AttendanceSummary, error) {
	const query = `SELECT da.status, COUNT(*) AS cnt
FROM daily_attendance da
JOIN enrollments e ON e.id = da.enrollment_id
WHERE e.student_id = $1 AND e.term_id = $2
GROUP BY da.status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("student attendance summary: %w", err)
	}
	summary := &models.AttendanceSummary{StudentID: studentID}
	for _, row := range rows {
		if models.AttendanceStatus(row.Status) == models.AttendanceStatusPresent {
			summary.Present += row.Count
		} else {
			summary.Absent += row.Count
		}
		summary.Total += row.Count
	}
	return summary, nil
}
