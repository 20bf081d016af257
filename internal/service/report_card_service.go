package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

const exportPageSize = 500

type reportCardRepository interface {
	Upsert(ctx context.Context, card *models.ReportCard) (bool, error)
	ListForGrade(ctx context.Context, termID, grade string) ([]models.ReportCardRow, error)
	UpdateGradeRank(ctx context.Context, id string, rank, size int) error
	FindByID(ctx context.Context, id string) (*models.ReportCardRow, error)
	List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardRow, int, error)
	UpdateRemarks(ctx context.Context, id string, teacher, principal *string) error
	ArchiveByTerm(ctx context.Context, termID string) (int64, error)
}

type termClassDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListWithEnrollments(ctx context.Context, termID string) ([]models.Class, error)
}

type classMemberLocker interface {
	ListClassMembers(ctx context.Context, classID, termID string) ([]models.ClassMember, error)
	LockClassMembers(ctx context.Context, classID, termID string) ([]models.ClassMember, error)
}

type resultFactReader interface {
	Facts(ctx context.Context, filter models.ResultFactFilter) ([]models.ResultFact, error)
}

type reportCardExporter interface {
	RenderReportCards(ctx context.Context, ref string, title string, cards []models.ReportCardRow, format ExportFormat) (*ExportResult, error)
	Open(token string) (*os.File, string, error)
}

// GenerateReportCardsRequest selects the term and optionally a subset of classes.
type GenerateReportCardsRequest struct {
	TermID   string   `json:"term_id" validate:"required"`
	ClassIDs []string `json:"class_ids"`
}

// GenerateReportCardsSummary reports the outcome of a generation run.
type GenerateReportCardsSummary struct {
	TermID         string                  `json:"term_id"`
	Status         models.ReportCardStatus `json:"status"`
	Classes        int                     `json:"classes"`
	Generated      int                     `json:"generated"`
	SkippedArchive int                     `json:"skipped_archived"`
	LowPerformance int                     `json:"low_performance"`
}

// UpdateRemarksRequest carries teacher and principal remarks; nil leaves a remark unchanged.
type UpdateRemarksRequest struct {
	TeacherRemarks   *string `json:"teacher_remarks" validate:"omitempty,max=2000"`
	PrincipalRemarks *string `json:"principal_remarks" validate:"omitempty,max=2000"`
}

// ExportReportCardsRequest selects the cards to export.
type ExportReportCardsRequest struct {
	TermID  string       `json:"term_id" validate:"required"`
	ClassID string       `json:"class_id"`
	Format  ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportCardServiceConfig tunes generation.
type ReportCardServiceConfig struct {
	DefaultStatus       models.ReportCardStatus
	LowPerformanceBelow float64
	LowPerformanceFails int
	BulkDeadline        time.Duration
	Clock               clock.Clock
}

// ReportCardServiceDeps groups the collaborators of ReportCardService.
type ReportCardServiceDeps struct {
	Cards      reportCardRepository
	Terms      termReader
	Classes    termClassDirectory
	Members    classMemberLocker
	Facts      resultFactReader
	Scales     scaleProvider
	Attendance attendanceProvider
	Exporter   reportCardExporter
	Tx         database.Transactor
	Publisher  eventPublisher
	Cache      cacheInvalidator
	Metrics    *MetricsService
}

// ReportCardService aggregates results into per-term report cards.
type ReportCardService struct {
	deps      ReportCardServiceDeps
	cfg       ReportCardServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportCardService constructs the aggregator.
func NewReportCardService(deps ReportCardServiceDeps, cfg ReportCardServiceConfig, validate *validator.Validate, logger *zap.Logger) *ReportCardService {
	if !cfg.DefaultStatus.Valid() || cfg.DefaultStatus == models.ReportCardArchived {
		cfg.DefaultStatus = models.ReportCardPublished
	}
	if cfg.LowPerformanceBelow <= 0 {
		cfg.LowPerformanceBelow = 40
	}
	if cfg.LowPerformanceFails <= 0 {
		cfg.LowPerformanceFails = 3
	}
	if cfg.BulkDeadline <= 0 {
		cfg.BulkDeadline = 2 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportCardService{deps: deps, cfg: cfg, validator: validate, logger: logger}
}

type generatedCard struct {
	card   models.ReportCard
	totals grading.CardTotals
}

// Generate rebuilds the report cards of a term, one transaction per class. Grade ranks are
// computed after every class of the run has been written.
func (s *ReportCardService) Generate(ctx context.Context, req GenerateReportCardsRequest) (*GenerateReportCardsSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid generation request")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BulkDeadline)
	defer cancel()

	term, err := s.deps.Terms.FindByID(ctx, req.TermID)
	if err != nil {
		return nil, notFoundOr(err, "term")
	}
	classes, err := s.resolveClasses(ctx, req)
	if err != nil {
		return nil, err
	}
	scale, err := NewScaleLookup(s.deps.Scales).ScaleFor(ctx, term.AcademicYearID)
	if err != nil {
		return nil, err
	}

	summary := &GenerateReportCardsSummary{TermID: term.ID, Status: s.cfg.DefaultStatus}
	var written []generatedCard
	grades := make(map[string]struct{})
	for _, class := range classes {
		cards, skipped, err := s.generateClass(ctx, term, class, scale)
		if err != nil {
			return nil, s.generationError(err, class.ID)
		}
		summary.Classes++
		summary.SkippedArchive += skipped
		written = append(written, cards...)
		grades[class.Grade] = struct{}{}
	}
	for _, grade := range sortedKeys(grades) {
		if err := s.rankGrade(ctx, term.ID, grade); err != nil {
			return nil, s.generationError(err, "")
		}
	}
	summary.Generated = len(written)

	s.deps.Metrics.ObserveReportCards(s.cfg.DefaultStatus, len(written))
	summary.LowPerformance = s.afterGenerate(context.WithoutCancel(ctx), term, written)
	s.logger.Info("report cards generated",
		zap.String("term_id", term.ID),
		zap.Int("classes", summary.Classes),
		zap.Int("generated", summary.Generated),
		zap.Int("skipped_archived", summary.SkippedArchive))
	return summary, nil
}

func (s *ReportCardService) generationError(err error, classID string) error {
	if appErrors.HasCode(err, appErrors.ErrNotFound.Code) || appErrors.HasCode(err, appErrors.ErrValidation.Code) {
		return err
	}
	if isDeadline(err) {
		return appErrors.Wrap(err, appErrors.ErrLimit.Code, appErrors.ErrLimit.Status, "report card generation deadline exceeded")
	}
	s.logger.Error("report card generation failed", zap.String("class_id", classID), zap.Error(err))
	return persistenceError(err, "failed to generate report cards")
}

func (s *ReportCardService) resolveClasses(ctx context.Context, req GenerateReportCardsRequest) ([]models.Class, error) {
	if len(req.ClassIDs) == 0 {
		classes, err := s.deps.Classes.ListWithEnrollments(ctx, req.TermID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list classes")
		}
		return classes, nil
	}
	seen := make(map[string]struct{}, len(req.ClassIDs))
	classes := make([]models.Class, 0, len(req.ClassIDs))
	for _, id := range req.ClassIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		class, err := s.deps.Classes.FindByID(ctx, id)
		if err != nil {
			return nil, notFoundOr(err, "class")
		}
		classes = append(classes, *class)
	}
	return classes, nil
}

func (s *ReportCardService) generateClass(ctx context.Context, term *models.Term, class models.Class, scale *grading.Scale) ([]generatedCard, int, error) {
	var (
		written []generatedCard
		skipped int
	)
	prefetched, err := s.classAttendance(ctx, class.ID, term.ID)
	if err != nil {
		return nil, 0, err
	}
	err = s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		written, skipped = nil, 0
		members, err := s.deps.Members.LockClassMembers(ctx, class.ID, term.ID)
		if err != nil {
			return err
		}
		facts, err := s.deps.Facts.Facts(ctx, models.ResultFactFilter{TermID: term.ID, ClassID: class.ID})
		if err != nil {
			return err
		}
		byStudent := make(map[string][]grading.SubjectScore, len(members))
		for _, f := range facts {
			byStudent[f.StudentID] = append(byStudent[f.StudentID], grading.SubjectScore{
				SubjectID:     f.SubjectID,
				TotalMarks:    f.TotalMarks,
				MarksObtained: f.MarksObtained,
				IsPass:        f.IsPass,
				IsAbsent:      f.IsAbsent,
				IsExempted:    f.IsExempted,
			})
		}

		drafts := make([]generatedCard, 0, len(members))
		rankEntries := make([]grading.CardRankEntry, 0, len(members))
		for _, m := range members {
			totals, err := grading.AggregateCard(scale, byStudent[m.StudentID])
			if err != nil {
				return err
			}
			attendance, ok := prefetched[m.StudentID]
			if !ok {
				attendance = models.AttendanceSummary{StudentID: m.StudentID}
			}
			card := models.ReportCard{
				StudentID:            m.StudentID,
				ClassID:              class.ID,
				AcademicYearID:       term.AcademicYearID,
				TermID:               term.ID,
				TotalMarks:           totals.TotalMarks,
				MarksObtained:        totals.MarksObtained,
				Percentage:           totals.Percentage,
				Grade:                totals.Grade,
				GradePointAverage:    totals.GradePointAverage,
				SubjectCount:         totals.SubjectCount,
				FailedSubjects:       totals.FailedSubjects,
				ClassSize:            len(members),
				AttendancePercentage: grading.Round2(attendance.Percentage()),
				DaysPresent:          attendance.Present,
				DaysAbsent:           attendance.Absent,
				TotalDays:            attendance.Total,
				Status:               s.cfg.DefaultStatus,
			}
			drafts = append(drafts, generatedCard{card: card, totals: totals})
			rankEntries = append(rankEntries, grading.CardRankEntry{
				Key:             m.StudentID,
				Percentage:      totals.Percentage,
				GPA:             totals.GradePointAverage,
				AdmissionNumber: m.AdmissionNumber,
			})
		}

		ranks := grading.RankCards(rankEntries)
		for i := range drafts {
			rank := ranks[drafts[i].card.StudentID]
			drafts[i].card.ClassRank = &rank
			ok, err := s.deps.Cards.Upsert(ctx, &drafts[i].card)
			if err != nil {
				return err
			}
			if !ok {
				skipped++
				continue
			}
			written = append(written, drafts[i])
		}
		return nil
	})
	return written, skipped, err
}

// classAttendance reads attendance for the class before its transaction opens, so a
// failing provider cannot poison the transaction. Students enrolled after this read
// get the fallback.
func (s *ReportCardService) classAttendance(ctx context.Context, classID, termID string) (map[string]models.AttendanceSummary, error) {
	members, err := s.deps.Members.ListClassMembers(ctx, classID, termID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.AttendanceSummary, len(members))
	for _, m := range members {
		out[m.StudentID] = attendanceOrDefault(ctx, s.deps.Attendance, m.StudentID, termID, s.logger)
	}
	return out, nil
}

func (s *ReportCardService) rankGrade(ctx context.Context, termID, grade string) error {
	return s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		rows, err := s.deps.Cards.ListForGrade(ctx, termID, grade)
		if err != nil {
			return err
		}
		entries := make([]grading.CardRankEntry, len(rows))
		for i, r := range rows {
			entries[i] = grading.CardRankEntry{Key: r.ID, Percentage: r.Percentage, GPA: r.GradePointAverage, AdmissionNumber: r.AdmissionNumber}
		}
		ranks := grading.RankCards(entries)
		for _, r := range rows {
			if err := s.deps.Cards.UpdateGradeRank(ctx, r.ID, ranks[r.ID], len(rows)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ReportCardService) afterGenerate(ctx context.Context, term *models.Term, written []generatedCard) int {
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Invalidate(ctx, analyticsCachePattern); err != nil {
			s.logger.Warn("analytics cache not invalidated", zap.Error(err))
		}
	}
	low := 0
	now := s.cfg.Clock.Now()
	for _, g := range written {
		alert := grading.LowPerformance(g.totals, s.cfg.LowPerformanceBelow, s.cfg.LowPerformanceFails)
		if alert {
			low++
		}
		if s.deps.Publisher == nil {
			continue
		}
		if g.card.Status == models.ReportCardPublished {
			s.deps.Publisher.Publish(ctx, models.NotificationEvent{
				EventType:  models.EventReportCardReady,
				EntityType: "report_card",
				EntityID:   g.card.ID,
				Timestamp:  now,
				Details: map[string]interface{}{
					"student_id": g.card.StudentID,
					"class_id":   g.card.ClassID,
					"term_id":    term.ID,
					"percentage": g.card.Percentage,
					"grade":      g.card.Grade,
				},
			})
		}
		if alert {
			s.deps.Publisher.Publish(ctx, models.NotificationEvent{
				EventType:  models.EventLowPerformanceAlert,
				EntityType: "student",
				EntityID:   g.card.StudentID,
				Timestamp:  now,
				Details: map[string]interface{}{
					"report_card_id":  g.card.ID,
					"term_id":         term.ID,
					"class_id":        g.card.ClassID,
					"average":         g.card.Percentage,
					"failed_subjects": g.card.FailedSubjects,
				},
			})
		}
	}
	return low
}

// Get returns a report card.
func (s *ReportCardService) Get(ctx context.Context, id string) (*models.ReportCardRow, error) {
	card, err := s.deps.Cards.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "report card")
	}
	return card, nil
}

// List returns report cards with pagination metadata.
func (s *ReportCardService) List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardRow, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid report card status")
	}
	cards, total, err := s.deps.Cards.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list report cards")
	}
	page, size, _ := models.Page(filter.Page, filter.PageSize, exportPageSize)
	return cards, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateRemarks sets remarks on a non-archived card.
func (s *ReportCardService) UpdateRemarks(ctx context.Context, id string, req UpdateRemarksRequest) (*models.ReportCardRow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid remarks")
	}
	if req.TeacherRemarks == nil && req.PrincipalRemarks == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one remark is required")
	}
	var updated *models.ReportCardRow
	err := s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		card, err := s.deps.Cards.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "report card")
		}
		if card.Status == models.ReportCardArchived {
			return appErrors.Clone(appErrors.ErrState, "report card is archived")
		}
		if err := s.deps.Cards.UpdateRemarks(ctx, id, req.TeacherRemarks, req.PrincipalRemarks); err != nil {
			return err
		}
		updated, err = s.deps.Cards.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, persistenceError(err, "failed to update remarks")
	}
	return updated, nil
}

// Archive freezes every card of a term; regeneration leaves archived cards untouched.
func (s *ReportCardService) Archive(ctx context.Context, termID string) (int64, error) {
	if _, err := s.deps.Terms.FindByID(ctx, termID); err != nil {
		return 0, notFoundOr(err, "term")
	}
	archived, err := s.deps.Cards.ArchiveByTerm(ctx, termID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to archive report cards")
	}
	s.logger.Info("report cards archived", zap.String("term_id", termID), zap.Int64("count", archived))
	return archived, nil
}

// Export renders the selected cards and returns a signed download link.
func (s *ReportCardService) Export(ctx context.Context, req ExportReportCardsRequest) (*ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid export request")
	}
	if s.deps.Exporter == nil {
		return nil, appErrors.Clone(appErrors.ErrDependency, "exports are not configured")
	}
	term, err := s.deps.Terms.FindByID(ctx, req.TermID)
	if err != nil {
		return nil, notFoundOr(err, "term")
	}
	var cards []models.ReportCardRow
	for page := 1; ; page++ {
		batch, total, err := s.deps.Cards.List(ctx, models.ReportCardFilter{TermID: req.TermID, ClassID: req.ClassID, Page: page, PageSize: exportPageSize})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load report cards")
		}
		cards = append(cards, batch...)
		if len(batch) == 0 || len(cards) >= total {
			break
		}
	}
	if len(cards) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no report cards to export")
	}
	ref := req.TermID
	if req.ClassID != "" {
		ref += "_" + req.ClassID
	}
	return s.deps.Exporter.RenderReportCards(ctx, ref, fmt.Sprintf("Report Cards - %s", term.Name), cards, req.Format)
}

// Download resolves a signed export token to the stored file.
func (s *ReportCardService) Download(token string) (*os.File, string, error) {
	if s.deps.Exporter == nil {
		return nil, "", appErrors.Clone(appErrors.ErrDependency, "exports are not configured")
	}
	return s.deps.Exporter.Open(token)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
