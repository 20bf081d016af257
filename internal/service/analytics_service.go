package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/cache"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

const (
	analyticsNamespace    = "analytics"
	analyticsCachePattern = analyticsNamespace + ":*"
	defaultTopPerformers  = 10
)

type analyticsFactReader interface {
	Facts(ctx context.Context, filter models.ResultFactFilter) ([]models.ResultFact, error)
}

type examFinder interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type progressCardReader interface {
	ListByStudentYear(ctx context.Context, studentID, academicYearID string) ([]models.ReportCardRow, error)
}

// AnalyticsService aggregates results for dashboards. Responses are cached until the next
// result ingestion or report-card generation invalidates the namespace.
type AnalyticsService struct {
	facts   analyticsFactReader
	exams   examFinder
	cards   progressCardReader
	cache   *CacheService
	metrics *MetricsService
	clock   clock.Clock
	logger  *zap.Logger
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(facts analyticsFactReader, exams examFinder, cards progressCardReader, cache *CacheService, metrics *MetricsService, clk clock.Clock, logger *zap.Logger) *AnalyticsService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{facts: facts, exams: exams, cards: cards, cache: cache, metrics: metrics, clock: clk, logger: logger}
}

// GetResultsAnalytics returns aggregates over the filtered results. The boolean reports a cache hit.
func (s *AnalyticsService) GetResultsAnalytics(ctx context.Context, filter models.AnalyticsFilter) (*models.ResultAnalytics, bool, error) {
	if filter.TopN <= 0 {
		filter.TopN = defaultTopPerformers
	}
	key := cache.Key(analyticsNamespace, "results", filter.AcademicYearID, filter.TermID, filter.ExamID,
		filter.ClassID, filter.SubjectID, strconv.Itoa(filter.TopN))

	var out models.ResultAnalytics
	hit, err := s.cache.Remember(ctx, key, &out, func(ctx context.Context) error {
		facts, err := s.facts.Facts(ctx, filter.FactFilter())
		if err != nil {
			return appErrors.Internal(err, "failed to load results")
		}
		out = grading.Analyze(facts, filter.TopN)
		out.Filter = filter
		out.GeneratedAt = s.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, hit, nil
}

// GetExamAnalytics scopes result analytics to one exam.
func (s *AnalyticsService) GetExamAnalytics(ctx context.Context, examID string, topN int) (*models.ResultAnalytics, bool, error) {
	if _, err := s.exams.FindByID(ctx, examID); err != nil {
		return nil, false, notFoundOr(err, "exam")
	}
	return s.GetResultsAnalytics(ctx, models.AnalyticsFilter{ExamID: examID, TopN: topN})
}

// GetStudentProgress lists a student's report cards for a year with per-subject averages.
func (s *AnalyticsService) GetStudentProgress(ctx context.Context, studentID, academicYearID string) (*models.StudentProgress, error) {
	if academicYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academicYearId is required")
	}
	key := cache.Key(analyticsNamespace, "progress", studentID, academicYearID)

	var out models.StudentProgress
	_, err := s.cache.Remember(ctx, key, &out, func(ctx context.Context) error {
		cards, err := s.cards.ListByStudentYear(ctx, studentID, academicYearID)
		if err != nil {
			return appErrors.Internal(err, "failed to load report cards")
		}
		facts, err := s.facts.Facts(ctx, models.ResultFactFilter{StudentID: studentID, AcademicYearID: academicYearID})
		if err != nil {
			return appErrors.Internal(err, "failed to load results")
		}
		if len(cards) == 0 && len(facts) == 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "no results for student in academic year")
		}
		series := make([]float64, len(cards))
		for i, card := range cards {
			series[i] = card.Percentage
		}
		out = models.StudentProgress{
			StudentID:      studentID,
			AcademicYearID: academicYearID,
			ReportCards:    cards,
			Subjects:       grading.Analyze(facts, 0).Subjects,
			Trend:          grading.Trend(series),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SystemMetrics returns the instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{GeneratedAt: time.Now().UTC()}
	}
	return s.metrics.Snapshot()
}
