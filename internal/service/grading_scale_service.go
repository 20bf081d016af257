package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type gradingSystemRepository interface {
	Create(ctx context.Context, system *models.GradingSystem) error
	FindByID(ctx context.Context, id string) (*models.GradingSystem, error)
	FindDefault(ctx context.Context, academicYearID string) (*models.GradingSystem, error)
	List(ctx context.Context, academicYearID string) ([]models.GradingSystem, error)
	SetDefault(ctx context.Context, academicYearID, id string) error
}

// scaleProvider resolves the grading scale of an academic year.
type scaleProvider interface {
	ScaleFor(ctx context.Context, academicYearID string) (*grading.Scale, error)
}

// GradeBandRequest is one band of a new grading system.
type GradeBandRequest struct {
	GradeName     string  `json:"grade_name" validate:"required,max=8"`
	MinPercentage float64 `json:"min_percentage" validate:"gte=0,lte=100"`
	MaxPercentage float64 `json:"max_percentage" validate:"gte=0,lte=100"`
	GradePoint    float64 `json:"grade_point" validate:"gte=0,lte=10"`
	Color         string  `json:"color" validate:"omitempty,max=16"`
}

// CreateGradingSystemRequest defines a grading system with its bands.
type CreateGradingSystemRequest struct {
	AcademicYearID string             `json:"academic_year_id" validate:"required"`
	Name           string             `json:"name" validate:"required,max=100"`
	IsDefault      bool               `json:"is_default"`
	Bands          []GradeBandRequest `json:"bands" validate:"required,min=1,dive"`
}

// GradingScaleService manages grading systems and resolves grade bands.
type GradingScaleService struct {
	repo      gradingSystemRepository
	tx        database.Transactor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradingScaleService constructs the service.
func NewGradingScaleService(repo gradingSystemRepository, tx database.Transactor, validate *validator.Validate, logger *zap.Logger) *GradingScaleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingScaleService{repo: repo, tx: tx, validator: validate, logger: logger}
}

// Create validates the band set and stores the grading system. A default system replaces the year's previous default.
func (s *GradingScaleService) Create(ctx context.Context, req CreateGradingSystemRequest) (*models.GradingSystem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grading system payload")
	}
	bands := make([]grading.Band, len(req.Bands))
	for i, b := range req.Bands {
		bands[i] = grading.Band{Name: b.GradeName, Min: b.MinPercentage, Max: b.MaxPercentage, Point: b.GradePoint, Color: b.Color}
	}
	scale, err := grading.NewScale(bands)
	if err != nil {
		return nil, err
	}

	system := &models.GradingSystem{AcademicYearID: req.AcademicYearID, Name: req.Name, Active: true}
	for _, b := range scale.Bands() {
		system.Scales = append(system.Scales, models.GradeScale{
			GradeName: b.Name, MinPercentage: b.Min, MaxPercentage: b.Max, GradePoint: b.Point, Color: b.Color,
		})
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, system); err != nil {
			return err
		}
		if !req.IsDefault {
			return nil
		}
		system.IsDefault = true
		return s.repo.SetDefault(ctx, system.AcademicYearID, system.ID)
	})
	if err != nil {
		return nil, persistenceError(err, "failed to create grading system")
	}
	s.logger.Info("grading system created",
		zap.String("grading_system_id", system.ID),
		zap.String("academic_year_id", system.AcademicYearID),
		zap.Bool("default", system.IsDefault))
	return system, nil
}

// List returns the grading systems of an academic year.
func (s *GradingScaleService) List(ctx context.Context, academicYearID string) ([]models.GradingSystem, error) {
	systems, err := s.repo.List(ctx, academicYearID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list grading systems")
	}
	return systems, nil
}

// SetDefault makes an active grading system the default of its academic year.
func (s *GradingScaleService) SetDefault(ctx context.Context, id string) (*models.GradingSystem, error) {
	var system *models.GradingSystem
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "grading system")
		}
		if !found.Active {
			return appErrors.Clone(appErrors.ErrState, "inactive grading system cannot be the default")
		}
		if err := s.repo.SetDefault(ctx, found.AcademicYearID, found.ID); err != nil {
			return err
		}
		found.IsDefault = true
		system = found
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to set default grading system")
	}
	return system, nil
}

// ScaleFor returns the default scale of an academic year, or the built-in table when none is configured.
func (s *GradingScaleService) ScaleFor(ctx context.Context, academicYearID string) (*grading.Scale, error) {
	system, err := s.repo.FindDefault(ctx, academicYearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.FallbackScale(), nil
		}
		return nil, appErrors.Internal(err, "failed to load grading system")
	}
	scale, err := grading.ScaleFromModels(system.Scales)
	if err != nil {
		s.logger.Error("stored grading system is invalid", zap.String("grading_system_id", system.ID), zap.Error(err))
		return nil, appErrors.Internal(err, "stored grading system is invalid")
	}
	return scale, nil
}

// Resolve maps a percentage to its band for an academic year.
func (s *GradingScaleService) Resolve(ctx context.Context, academicYearID string, percentage float64) (grading.Band, error) {
	scale, err := s.ScaleFor(ctx, academicYearID)
	if err != nil {
		return grading.Band{}, err
	}
	return scale.Resolve(percentage)
}

// ScaleLookup memoises scales per academic year for the duration of one batch.
type ScaleLookup struct {
	source scaleProvider
	scales map[string]*grading.Scale
}

// NewScaleLookup starts an empty per-batch memo.
func NewScaleLookup(source scaleProvider) *ScaleLookup {
	return &ScaleLookup{source: source, scales: make(map[string]*grading.Scale)}
}

// ScaleFor returns the memoised scale of an academic year.
func (l *ScaleLookup) ScaleFor(ctx context.Context, academicYearID string) (*grading.Scale, error) {
	if scale, ok := l.scales[academicYearID]; ok {
		return scale, nil
	}
	scale, err := l.source.ScaleFor(ctx, academicYearID)
	if err != nil {
		return nil, err
	}
	l.scales[academicYearID] = scale
	return scale, nil
}
