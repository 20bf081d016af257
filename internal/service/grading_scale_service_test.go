package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type memoryGradingSystems struct {
	systems map[string]*models.GradingSystem
	lookups int
}

func newMemoryGradingSystems() *memoryGradingSystems {
	return &memoryGradingSystems{systems: map[string]*models.GradingSystem{}}
}

func (m *memoryGradingSystems) Create(_ context.Context, system *models.GradingSystem) error {
	system.ID = fmt.Sprintf("gs-%d", len(m.systems)+1)
	stored := *system
	m.systems[system.ID] = &stored
	return nil
}

func (m *memoryGradingSystems) FindByID(_ context.Context, id string) (*models.GradingSystem, error) {
	if s, ok := m.systems[id]; ok {
		out := *s
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryGradingSystems) FindDefault(_ context.Context, yearID string) (*models.GradingSystem, error) {
	m.lookups++
	for _, s := range m.systems {
		if s.AcademicYearID == yearID && s.IsDefault {
			out := *s
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryGradingSystems) List(_ context.Context, yearID string) ([]models.GradingSystem, error) {
	var out []models.GradingSystem
	for _, s := range m.systems {
		if s.AcademicYearID == yearID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memoryGradingSystems) SetDefault(_ context.Context, yearID, id string) error {
	for _, s := range m.systems {
		if s.AcademicYearID == yearID {
			s.IsDefault = s.ID == id
		}
	}
	return nil
}

func fourBandRequest(isDefault bool) CreateGradingSystemRequest {
	return CreateGradingSystemRequest{
		AcademicYearID: "2024/2025",
		Name:           "Kurikulum Merdeka",
		IsDefault:      isDefault,
		Bands: []GradeBandRequest{
			{GradeName: "A", MinPercentage: 85, MaxPercentage: 100, GradePoint: 4},
			{GradeName: "B", MinPercentage: 70, MaxPercentage: 84.99, GradePoint: 3},
			{GradeName: "C", MinPercentage: 55, MaxPercentage: 69.99, GradePoint: 2},
			{GradeName: "D", MinPercentage: 0, MaxPercentage: 54.99, GradePoint: 1},
		},
	}
}

func TestGradingScaleDefaultReplacesFallback(t *testing.T) {
	repo := newMemoryGradingSystems()
	svc := NewGradingScaleService(repo, &fakeTx{}, nil, nil)
	ctx := context.Background()

	band, err := svc.Resolve(ctx, "2024/2025", 82)
	require.NoError(t, err)
	assert.Equal(t, "A", band.Name, "fallback table")

	system, err := svc.Create(ctx, fourBandRequest(true))
	require.NoError(t, err)
	assert.True(t, system.IsDefault)
	assert.Len(t, system.Scales, 4)

	band, err = svc.Resolve(ctx, "2024/2025", 82)
	require.NoError(t, err)
	assert.Equal(t, "B", band.Name)
	assert.Equal(t, 3.0, band.Point)
}

func TestGradingScaleRejectsGappedBands(t *testing.T) {
	svc := NewGradingScaleService(newMemoryGradingSystems(), &fakeTx{}, nil, nil)
	req := fourBandRequest(false)
	req.Bands[1].MinPercentage = 72

	_, err := svc.Create(context.Background(), req)

	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestGradingScaleSetDefaultRequiresActive(t *testing.T) {
	repo := newMemoryGradingSystems()
	svc := NewGradingScaleService(repo, &fakeTx{}, nil, nil)
	created, err := svc.Create(context.Background(), fourBandRequest(false))
	require.NoError(t, err)
	repo.systems[created.ID].Active = false

	_, err = svc.SetDefault(context.Background(), created.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrState.Code))

	_, err = svc.SetDefault(context.Background(), "gs-missing")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestScaleLookupMemoisesPerYear(t *testing.T) {
	repo := newMemoryGradingSystems()
	lookup := NewScaleLookup(NewGradingScaleService(repo, &fakeTx{}, nil, nil))

	for i := 0; i < 3; i++ {
		_, err := lookup.ScaleFor(context.Background(), "2024/2025")
		require.NoError(t, err)
	}
	_, err := lookup.ScaleFor(context.Background(), "2025/2026")
	require.NoError(t, err)

	assert.Equal(t, 2, repo.lookups)
}
