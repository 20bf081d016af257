package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type dailyAttendanceRepository interface {
	StudentSummary(ctx context.Context, studentID, termID string) (*models.AttendanceSummary, error)
}

// attendanceProvider supplies per-term attendance for report cards.
type attendanceProvider interface {
	GetAttendance(ctx context.Context, studentID, termID string) (*models.AttendanceSummary, error)
}

// AttendanceService exposes daily attendance as the report-card attendance provider.
type AttendanceService struct {
	dailyRepo dailyAttendanceRepository
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance provider.
func NewAttendanceService(daily dailyAttendanceRepository, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{dailyRepo: daily, logger: logger}
}

// GetAttendance returns the student's present, absent and total day counts for the term.
func (s *AttendanceService) GetAttendance(ctx context.Context, studentID, termID string) (*models.AttendanceSummary, error) {
	summary, err := s.dailyRepo.StudentSummary(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "attendance unavailable")
	}
	return summary, nil
}

// attendanceOrDefault falls back to full attendance over zero days when the provider is absent or failing.
func attendanceOrDefault(ctx context.Context, provider attendanceProvider, studentID, termID string, logger *zap.Logger) models.AttendanceSummary {
	fallback := models.AttendanceSummary{StudentID: studentID}
	if provider == nil {
		return fallback
	}
	summary, err := provider.GetAttendance(ctx, studentID, termID)
	if err != nil || summary == nil {
		logger.Warn("attendance fallback applied", zap.String("student_id", studentID), zap.String("term_id", termID), zap.Error(err))
		return fallback
	}
	return *summary
}
