package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type rankScheduleRepository interface {
	LockContext(ctx context.Context, id string) (*models.ScheduleContext, error)
	LockSiblingsForShare(ctx context.Context, examID, subjectID, grade string) ([]models.ScheduleContext, error)
	ListByExam(ctx context.Context, examID string, activeOnly bool) ([]models.ScheduleContext, error)
}

type rankResultRepository interface {
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.StudentExamResult, error)
	ListBySchedules(ctx context.Context, scheduleIDs []string) ([]models.StudentExamResult, error)
	UpdateClassRanks(ctx context.Context, ranks []models.RankAssignment) error
	UpdateGradeRanks(ctx context.Context, ranks []models.RankAssignment) error
}

// RecomputeSummary reports what an explicit rank recomputation touched.
type RecomputeSummary struct {
	ExamID      string `json:"exam_id"`
	Schedules   int    `json:"schedules"`
	GradeGroups int    `json:"grade_groups"`
	Results     int    `json:"results"`
}

// RankingService owns every write to class_rank and grade_rank.
type RankingService struct {
	schedules rankScheduleRepository
	results   rankResultRepository
	tx        database.Transactor
	logger    *zap.Logger
}

// NewRankingService constructs the ranking engine.
func NewRankingService(schedules rankScheduleRepository, results rankResultRepository, tx database.Transactor, logger *zap.Logger) *RankingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankingService{schedules: schedules, results: results, tx: tx, logger: logger}
}

// RankWithinTx re-ranks a schedule whose row is already locked by the caller's transaction.
// Once every active schedule of the exam in that grade is completed, grade ranks are
// rebuilt for every subject of the grade, not only the schedule's own.
func (s *RankingService) RankWithinTx(ctx context.Context, schedule *models.ScheduleContext) error {
	if _, err := s.rankClass(ctx, schedule.ID); err != nil {
		return err
	}
	subjects, err := s.readySubjects(ctx, schedule.ExamID, schedule.ClassGrade)
	if err != nil {
		return err
	}
	for _, subjectID := range subjects {
		if _, err := s.rankGrade(ctx, schedule.ExamID, subjectID, schedule.ClassGrade); err != nil {
			return err
		}
	}
	return nil
}

// RankSchedule locks a schedule and re-ranks it in its own transaction.
func (s *RankingService) RankSchedule(ctx context.Context, scheduleID string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		schedule, err := s.schedules.LockContext(ctx, scheduleID)
		if err != nil {
			return notFoundOr(err, "schedule")
		}
		return s.RankWithinTx(ctx, schedule)
	})
	return persistenceError(err, "failed to rank schedule")
}

// Recompute rebuilds class ranks for every active schedule of an exam and grade ranks for
// every (subject, grade) group, regardless of completion.
func (s *RankingService) Recompute(ctx context.Context, examID string) (*RecomputeSummary, error) {
	summary := &RecomputeSummary{ExamID: examID}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		*summary = RecomputeSummary{ExamID: examID}
		schedules, err := s.schedules.ListByExam(ctx, examID, true)
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "exam has no active schedules")
		}
		type groupKey struct{ subject, grade string }
		groups := make(map[groupKey]struct{})
		var order []groupKey
		for _, sch := range schedules {
			if _, err := s.schedules.LockContext(ctx, sch.ID); err != nil {
				return err
			}
			ranked, err := s.rankClass(ctx, sch.ID)
			if err != nil {
				return err
			}
			summary.Schedules++
			summary.Results += ranked
			key := groupKey{subject: sch.SubjectID, grade: sch.ClassGrade}
			if _, seen := groups[key]; !seen {
				groups[key] = struct{}{}
				order = append(order, key)
			}
		}
		for _, key := range order {
			if _, err := s.rankGrade(ctx, examID, key.subject, key.grade); err != nil {
				return err
			}
			summary.GradeGroups++
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to recompute ranks")
	}
	s.logger.Info("ranks recomputed",
		zap.String("exam_id", examID),
		zap.Int("schedules", summary.Schedules),
		zap.Int("grade_groups", summary.GradeGroups))
	return summary, nil
}

func (s *RankingService) rankClass(ctx context.Context, scheduleID string) (int, error) {
	results, err := s.results.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	ranks := grading.Rank(rankEntries(results))
	return len(results), s.results.UpdateClassRanks(ctx, assignments(results, func(r models.StudentExamResult) *int {
		return ranks[r.ID]
	}))
}

// readySubjects returns the subjects of (exam, grade) in first-seen order, or nil
// while any active schedule of that grade is still open.
func (s *RankingService) readySubjects(ctx context.Context, examID, grade string) ([]string, error) {
	schedules, err := s.schedules.ListByExam(ctx, examID, true)
	if err != nil {
		return nil, err
	}
	var subjects []string
	seen := make(map[string]bool)
	for _, sch := range schedules {
		if sch.ClassGrade != grade {
			continue
		}
		if !sch.IsCompleted {
			return nil, nil
		}
		if !seen[sch.SubjectID] {
			seen[sch.SubjectID] = true
			subjects = append(subjects, sch.SubjectID)
		}
	}
	return subjects, nil
}

func (s *RankingService) rankGrade(ctx context.Context, examID, subjectID, grade string) (int, error) {
	siblings, err := s.schedules.LockSiblingsForShare(ctx, examID, subjectID, grade)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(siblings))
	for i, sch := range siblings {
		ids[i] = sch.ID
	}
	results, err := s.results.ListBySchedules(ctx, ids)
	if err != nil {
		return 0, err
	}
	best := grading.DedupeByStudent(rankEntries(results))
	ranks := grading.Rank(best)
	byStudent := make(map[string]*int, len(best))
	for _, e := range best {
		byStudent[e.StudentID] = ranks[e.ResultID]
	}
	return len(results), s.results.UpdateGradeRanks(ctx, assignments(results, func(r models.StudentExamResult) *int {
		if !r.Ranked() {
			return nil
		}
		return byStudent[r.StudentID]
	}))
}

func rankEntries(results []models.StudentExamResult) []grading.RankEntry {
	entries := make([]grading.RankEntry, len(results))
	for i, r := range results {
		entries[i] = grading.RankEntry{
			ResultID:   r.ID,
			StudentID:  r.StudentID,
			Percentage: r.Percentage,
			Marks:      r.MarksObtained,
			EntryDate:  r.EntryDate,
			Excluded:   !r.Ranked(),
		}
	}
	return entries
}

func assignments(results []models.StudentExamResult, rankOf func(models.StudentExamResult) *int) []models.RankAssignment {
	out := make([]models.RankAssignment, len(results))
	for i, r := range results {
		out[i] = models.RankAssignment{ResultID: r.ID, Rank: rankOf(r)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResultID < out[j].ResultID })
	return out
}
