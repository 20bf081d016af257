package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/sma-exam-engine/internal/grading"
	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/repository"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
)

var testEpoch = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeTx struct{ calls int }

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type staticScales struct{ scale *grading.Scale }

func (s staticScales) ScaleFor(context.Context, string) (*grading.Scale, error) {
	if s.scale == nil {
		return grading.FallbackScale(), nil
	}
	return s.scale, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event models.NotificationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(t models.EventType) []models.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.NotificationEvent
	for _, e := range p.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingCache struct{ patterns []string }

func (c *recordingCache) Invalidate(_ context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	return nil
}

// school is an in-memory stand-in for the Postgres schema. Views below expose the
// repository method sets the services depend on.
type school struct {
	mu          sync.Mutex
	clock       *clock.Fake
	seq         int
	exams       map[string]*models.Exam
	schedules   map[string]*models.ScheduleContext
	classes     map[string]*models.Class
	students    map[string]*models.Student
	members     map[string][]models.ClassMember
	terms       map[string]*models.Term
	subjects    map[string]string
	results     map[string]*models.StudentExamResult
	cards       map[string]*models.ReportCardRow
	attendance  map[string]models.AttendanceSummary
	onlineExams map[string]*models.OnlineExamContext
	questions   map[string][]models.OnlineExamQuestionDetail
	attempts    map[string]*models.Attempt
	usage       map[string]int
	completed   map[string]bool
	progress    map[string][2]int
}

func newSchool() *school {
	return &school{
		clock:       clock.NewFake(testEpoch),
		exams:       map[string]*models.Exam{},
		schedules:   map[string]*models.ScheduleContext{},
		classes:     map[string]*models.Class{},
		students:    map[string]*models.Student{},
		members:     map[string][]models.ClassMember{},
		terms:       map[string]*models.Term{},
		subjects:    map[string]string{},
		results:     map[string]*models.StudentExamResult{},
		cards:       map[string]*models.ReportCardRow{},
		attendance:  map[string]models.AttendanceSummary{},
		onlineExams: map[string]*models.OnlineExamContext{},
		questions:   map[string][]models.OnlineExamQuestionDetail{},
		attempts:    map[string]*models.Attempt{},
		usage:       map[string]int{},
		completed:   map[string]bool{},
		progress:    map[string][2]int{},
	}
}

func (s *school) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

func (s *school) addTerm(id, yearID string) *models.Term {
	t := &models.Term{ID: id, Name: "Term " + id, AcademicYearID: yearID, StartDate: testEpoch.AddDate(0, -2, 0), EndDate: testEpoch.AddDate(0, 3, 0), IsActive: true}
	s.terms[id] = t
	return t
}

func (s *school) addClass(id, grade string, studentIDs ...string) {
	s.classes[id] = &models.Class{ID: id, Name: "Class " + id, Grade: grade}
	for _, sid := range studentIDs {
		s.students[sid] = &models.Student{ID: sid, AdmissionNumber: "NIS-" + sid, FullName: "Student " + sid, Active: true}
		s.members[id] = append(s.members[id], models.ClassMember{StudentID: sid, AdmissionNumber: "NIS-" + sid, FullName: "Student " + sid, ClassID: id, EnrollmentID: "en-" + sid})
	}
}

func (s *school) addExam(id, termID string, status models.ExamStatus, published bool) *models.Exam {
	term := s.terms[termID]
	e := &models.Exam{ID: id, Name: "Exam " + id, ExamTypeID: "type-1", AcademicYearID: term.AcademicYearID, TermID: termID,
		StartDate: models.DateOnly(testEpoch), EndDate: models.DateOnly(testEpoch.AddDate(0, 0, 14)), Status: status, Published: published}
	s.exams[id] = e
	return e
}

func (s *school) addSchedule(id, examID, classID, subjectID string, total, passing float64) *models.ScheduleContext {
	exam := s.exams[examID]
	room := "R-" + id
	sch := &models.ScheduleContext{
		ExamSchedule: models.ExamSchedule{
			ID: id, ExamID: examID, ClassID: classID, SubjectID: subjectID,
			Date: models.DateOnly(testEpoch), StartTime: "09:00", EndTime: "10:00", DurationMinutes: 60,
			Room: &room, TotalMarks: total, PassingMarks: passing, IsActive: true,
		},
		TermID:         exam.TermID,
		AcademicYearID: exam.AcademicYearID,
		ExamStatus:     exam.Status,
		ExamPublished:  exam.Published,
		ClassGrade:     s.classes[classID].Grade,
	}
	s.schedules[id] = sch
	if _, ok := s.subjects[subjectID]; !ok {
		s.subjects[subjectID] = "Subject " + subjectID
	}
	return sch
}

func (s *school) resultFor(studentID, scheduleID string) *models.StudentExamResult {
	for _, r := range s.results {
		if r.StudentID == studentID && r.ExamScheduleID == scheduleID {
			c := *r
			return &c
		}
	}
	return nil
}

func (s *school) countResults(scheduleID string) int {
	n := 0
	for _, r := range s.results {
		if r.ExamScheduleID == scheduleID {
			n++
		}
	}
	return n
}

func (s *school) scheduleContext(id string) (*models.ScheduleContext, error) {
	sch, ok := s.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *sch
	if exam, ok := s.exams[c.ExamID]; ok {
		c.ExamStatus = exam.Status
		c.ExamPublished = exam.Published
	}
	return &c, nil
}

// scheduleStore implements the schedule repository method sets.
type scheduleStore struct{ *school }

func (s scheduleStore) FindContext(_ context.Context, id string) (*models.ScheduleContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleContext(id)
}

func (s scheduleStore) LockContext(ctx context.Context, id string) (*models.ScheduleContext, error) {
	return s.FindContext(ctx, id)
}

func (s scheduleStore) SetCompleted(_ context.Context, id string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[id].IsCompleted = completed
	return nil
}

func (s scheduleStore) ListByExam(_ context.Context, examID string, activeOnly bool) ([]models.ScheduleContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduleContext
	for _, id := range s.sortedScheduleIDs() {
		sch := s.schedules[id]
		if sch.ExamID != examID || (activeOnly && !sch.IsActive) {
			continue
		}
		c, _ := s.scheduleContext(id)
		out = append(out, *c)
	}
	return out, nil
}

func (s scheduleStore) LockSiblingsForShare(_ context.Context, examID, subjectID, grade string) ([]models.ScheduleContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduleContext
	for _, id := range s.sortedScheduleIDs() {
		sch := s.schedules[id]
		if sch.ExamID == examID && sch.SubjectID == subjectID && sch.ClassGrade == grade && sch.IsActive {
			out = append(out, *sch)
		}
	}
	return out, nil
}

func (s scheduleStore) FindByID(_ context.Context, id string) (*models.ExamSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := sch.ExamSchedule
	return &c, nil
}

func (s scheduleStore) LockDate(context.Context, time.Time) error { return nil }

func (s scheduleStore) ListActiveOnDates(_ context.Context, dates []time.Time) ([]models.ExamSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ExamSchedule
	for _, id := range s.sortedScheduleIDs() {
		sch := s.schedules[id]
		if !sch.IsActive {
			continue
		}
		for _, d := range dates {
			if models.DateOnly(d).Equal(models.DateOnly(sch.Date)) {
				out = append(out, sch.ExamSchedule)
				break
			}
		}
	}
	return out, nil
}

func (s scheduleStore) ExistsForExamClassSubject(_ context.Context, examID, classID, subjectID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sch := range s.schedules {
		if sch.ExamID == examID && sch.ClassID == classID && sch.SubjectID == subjectID {
			return sch.ID, true, nil
		}
	}
	return "", false, nil
}

func (s scheduleStore) Create(_ context.Context, schedule *models.ExamSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule.ID = s.nextID("sch")
	exam := s.exams[schedule.ExamID]
	s.schedules[schedule.ID] = &models.ScheduleContext{
		ExamSchedule:   *schedule,
		TermID:         exam.TermID,
		AcademicYearID: exam.AcademicYearID,
		ClassGrade:     s.classes[schedule.ClassID].Grade,
	}
	return nil
}

func (s scheduleStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[id].IsActive = false
	return nil
}

func (s *school) sortedScheduleIDs() []string {
	ids := make([]string, 0, len(s.schedules))
	for id := range s.schedules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// resultStore implements the result repository method sets.
type resultStore struct{ *school }

func (s resultStore) Upsert(_ context.Context, result *models.StudentExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.results {
		if existing.StudentID == result.StudentID && existing.ExamScheduleID == result.ExamScheduleID {
			result.ID = existing.ID
			result.EntryDate = existing.EntryDate
			result.ClassRank, result.GradeRank = existing.ClassRank, existing.GradeRank
			c := *result
			s.results[c.ID] = &c
			return nil
		}
	}
	result.ID = s.nextID("res")
	result.EntryDate = s.clock.Now().Add(time.Duration(s.seq) * time.Second)
	c := *result
	s.results[c.ID] = &c
	return nil
}

func (s resultStore) ListBySchedule(_ context.Context, scheduleID string) ([]models.StudentExamResult, error) {
	return s.ListBySchedules(context.Background(), []string{scheduleID})
}

func (s resultStore) ListBySchedules(_ context.Context, scheduleIDs []string) ([]models.StudentExamResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, id := range scheduleIDs {
		want[id] = true
	}
	var out []models.StudentExamResult
	for _, r := range s.results {
		if want[r.ExamScheduleID] {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s resultStore) UpdateClassRanks(_ context.Context, ranks []models.RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ranks {
		s.results[r.ResultID].ClassRank = r.Rank
	}
	return nil
}

func (s resultStore) UpdateGradeRanks(_ context.Context, ranks []models.RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ranks {
		s.results[r.ResultID].GradeRank = r.Rank
	}
	return nil
}

func (s resultStore) Delete(_ context.Context, studentID, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.results {
		if r.StudentID == studentID && r.ExamScheduleID == scheduleID {
			delete(s.results, id)
		}
	}
	return nil
}

func (s resultStore) Facts(_ context.Context, f models.ResultFactFilter) ([]models.ResultFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match := func(want, got string) bool { return want == "" || want == got }
	var out []models.ResultFact
	for _, r := range s.results {
		sch := s.schedules[r.ExamScheduleID]
		if sch == nil || !sch.IsActive {
			continue
		}
		if !match(f.TermID, sch.TermID) || !match(f.ClassID, sch.ClassID) || !match(f.ExamID, sch.ExamID) ||
			!match(f.SubjectID, sch.SubjectID) || !match(f.StudentID, r.StudentID) || !match(f.AcademicYearID, sch.AcademicYearID) {
			continue
		}
		out = append(out, models.ResultFact{
			ResultID: r.ID, StudentID: r.StudentID, StudentName: s.students[r.StudentID].FullName,
			ExamID: sch.ExamID, ScheduleID: sch.ID, ClassID: sch.ClassID, ClassName: s.classes[sch.ClassID].Name,
			ClassGrade: sch.ClassGrade, SubjectID: sch.SubjectID, SubjectName: s.subjects[sch.SubjectID],
			TermID: sch.TermID, AcademicYearID: sch.AcademicYearID, TotalMarks: sch.TotalMarks,
			MarksObtained: r.MarksObtained, Percentage: r.Percentage, Grade: r.Grade, GradePoint: r.GradePoint,
			IsPass: r.IsPass, IsAbsent: r.IsAbsent, IsExempted: r.IsExempted, EntryDate: r.EntryDate,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResultID < out[j].ResultID })
	return out, nil
}

// studentStore implements the student directory method sets.
type studentStore struct{ *school }

func (s studentStore) FindByID(_ context.Context, id string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *st
	return &c, nil
}

func (s studentStore) ListClassMembers(_ context.Context, classID, _ string) ([]models.ClassMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ClassMember(nil), s.members[classID]...), nil
}

func (s studentStore) LockClassMembers(ctx context.Context, classID, termID string) ([]models.ClassMember, error) {
	return s.ListClassMembers(ctx, classID, termID)
}

func (s studentStore) CurrentClassID(_ context.Context, studentID, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for classID, members := range s.members {
		for _, m := range members {
			if m.StudentID == studentID {
				return classID, nil
			}
		}
	}
	return "", sql.ErrNoRows
}

type classStore struct{ *school }

func (s classStore) FindByID(_ context.Context, id string) (*models.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (s classStore) ListWithEnrollments(context.Context, string) ([]models.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Class
	for id, c := range s.classes {
		if len(s.members[id]) > 0 {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type termStore struct{ *school }

func (s termStore) FindByID(_ context.Context, id string) (*models.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *t
	return &c, nil
}

// examStore implements examRepository.
type examStore struct{ *school }

func (s examStore) FindExamType(_ context.Context, id string) (*models.ExamType, error) {
	return &models.ExamType{ID: id, Name: "Midterm", ContributionPercentage: 30, IsTermBased: true, Active: true}, nil
}

func (s examStore) TermContributionTotal(context.Context, string) (float64, error) { return 0, nil }

func (s examStore) Create(_ context.Context, exam *models.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exam.ID = s.nextID("exam")
	c := *exam
	s.exams[c.ID] = &c
	return nil
}

func (s examStore) Update(_ context.Context, exam *models.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *exam
	s.exams[c.ID] = &c
	return nil
}

func (s examStore) FindByID(_ context.Context, id string) (*models.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *e
	return &c, nil
}

func (s examStore) FindForUpdate(ctx context.Context, id string) (*models.Exam, error) {
	return s.FindByID(ctx, id)
}

func (s examStore) List(context.Context, models.ExamFilter) ([]models.Exam, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Exam
	for _, e := range s.exams {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (s examStore) UpdateStatus(_ context.Context, id string, status models.ExamStatus, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[id].Status = status
	s.exams[id].Published = published
	return nil
}

func (s examStore) HasResults(_ context.Context, examID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if sch := s.schedules[r.ExamScheduleID]; sch != nil && sch.ExamID == examID {
			return true, nil
		}
	}
	return false, nil
}

func (s examStore) Progress(_ context.Context, examID string) (repository.ExamProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p repository.ExamProgress
	seen := map[string]bool{}
	for _, sch := range s.schedules {
		if sch.ExamID != examID || !sch.IsActive {
			continue
		}
		p.TotalSchedules++
		if sch.IsCompleted {
			p.CompletedSchedules++
		}
		for _, m := range s.members[sch.ClassID] {
			seen[m.StudentID] = true
		}
	}
	p.TotalStudents = len(seen)
	return p, nil
}

func (s examStore) UpdateProgress(_ context.Context, examID string, totalStudents, completedCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[examID] = [2]int{totalStudents, completedCount}
	return nil
}

// cardStore implements reportCardRepository with archived rows left untouched on upsert.
type cardStore struct{ *school }

func (s cardStore) Upsert(_ context.Context, card *models.ReportCard) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cards {
		if existing.StudentID != card.StudentID || existing.TermID != card.TermID {
			continue
		}
		if existing.Status == models.ReportCardArchived {
			return false, nil
		}
		card.ID = existing.ID
		card.TeacherRemarks, card.PrincipalRemarks = existing.TeacherRemarks, existing.PrincipalRemarks
		card.GradeRank, card.GradeSize = existing.GradeRank, existing.GradeSize
		existing.ReportCard = *card
		return true, nil
	}
	card.ID = s.nextID("rc")
	card.GenerationDate = s.clock.Now()
	st := s.students[card.StudentID]
	cl := s.classes[card.ClassID]
	s.cards[card.ID] = &models.ReportCardRow{ReportCard: *card, AdmissionNumber: st.AdmissionNumber, StudentName: st.FullName, ClassName: cl.Name, ClassGrade: cl.Grade}
	return true, nil
}

func (s cardStore) ListForGrade(_ context.Context, termID, grade string) ([]models.ReportCardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReportCardRow
	for _, c := range s.cards {
		if c.TermID == termID && c.ClassGrade == grade && c.Status != models.ReportCardArchived {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s cardStore) UpdateGradeRank(_ context.Context, id string, rank, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[id].GradeRank = &rank
	s.cards[id].GradeSize = size
	return nil
}

func (s cardStore) FindByID(_ context.Context, id string) (*models.ReportCardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (s cardStore) List(_ context.Context, f models.ReportCardFilter) ([]models.ReportCardRow, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReportCardRow
	for _, c := range s.cards {
		if (f.TermID == "" || c.TermID == f.TermID) && (f.ClassID == "" || c.ClassID == f.ClassID) && (f.StudentID == "" || c.StudentID == f.StudentID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	_, size, offset := models.Page(f.Page, f.PageSize, exportPageSize)
	total := len(out)
	if offset >= total {
		return []models.ReportCardRow{}, total, nil
	}
	end := offset + size
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (s cardStore) UpdateRemarks(_ context.Context, id string, teacher, principal *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if teacher != nil {
		s.cards[id].TeacherRemarks = teacher
	}
	if principal != nil {
		s.cards[id].PrincipalRemarks = principal
	}
	return nil
}

func (s cardStore) ArchiveByTerm(_ context.Context, termID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.cards {
		if c.TermID == termID && c.Status != models.ReportCardArchived {
			c.Status = models.ReportCardArchived
			n++
		}
	}
	return n, nil
}

func (s cardStore) ListByStudentYear(_ context.Context, studentID, yearID string) ([]models.ReportCardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReportCardRow
	for _, c := range s.cards {
		if c.StudentID == studentID && c.AcademicYearID == yearID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.terms[out[i].TermID].StartDate.Before(s.terms[out[j].TermID].StartDate)
	})
	return out, nil
}

type attendanceStore struct{ *school }

func (s attendanceStore) GetAttendance(_ context.Context, studentID, _ string) (*models.AttendanceSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := s.attendance[studentID]
	summary.StudentID = studentID
	return &summary, nil
}

// attemptStore implements attemptRepository including the live-attempt unique index.
type attemptStore struct{ *school }

func copyAttempt(a *models.Attempt) *models.Attempt {
	c := *a
	c.Responses = models.Responses{}
	for k, v := range a.Responses {
		c.Responses[k] = v
	}
	c.Breakdown = models.GradeBreakdown{}
	for k, v := range a.Breakdown {
		c.Breakdown[k] = v
	}
	c.Snapshot = append(models.AttemptSnapshot(nil), a.Snapshot...)
	return &c
}

func (s attemptStore) Create(_ context.Context, a *models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.StudentID == a.StudentID && existing.OnlineExamID == a.OnlineExamID && existing.Status.Live() {
			return &pq.Error{Code: "23505", Constraint: "uniq_live_attempt"}
		}
	}
	s.attempts[a.ID] = copyAttempt(a)
	return nil
}

func (s attemptStore) FindByID(_ context.Context, id string) (*models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copyAttempt(a), nil
}

func (s attemptStore) FindForUpdate(ctx context.Context, id string) (*models.Attempt, error) {
	return s.FindByID(ctx, id)
}

func (s attemptStore) FindLiveForUpdate(_ context.Context, studentID, onlineExamID string) (*models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.OnlineExamID == onlineExamID && a.Status.Live() {
			return copyAttempt(a), nil
		}
	}
	return nil, nil
}

func (s attemptStore) CountByStudentExam(_ context.Context, studentID, onlineExamID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.OnlineExamID == onlineExamID {
			n++
		}
	}
	return n, nil
}

func (s attemptStore) Update(_ context.Context, a *models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; !ok {
		return sql.ErrNoRows
	}
	s.attempts[a.ID] = copyAttempt(a)
	return nil
}

func (s attemptStore) ListStale(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, a := range s.attempts {
		oe := s.onlineExams[a.OnlineExamID]
		if a.Status.Live() && now.Sub(a.StartTime) > oe.TimeLimit() {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s attemptStore) ListAwaitingGrade(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, a := range s.attempts {
		if a.Status.AwaitingGrade() {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s attemptStore) BestGraded(_ context.Context, studentID, onlineExamID string) (*models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Attempt
	for _, a := range s.attempts {
		if a.StudentID != studentID || a.OnlineExamID != onlineExamID || a.Status != models.AttemptGraded {
			continue
		}
		if best == nil || grading.Percentage(a.MarksObtained, a.TotalMarks) > grading.Percentage(best.MarksObtained, best.TotalMarks) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyAttempt(best), nil
}

type onlineExamStore struct{ *school }

func (s onlineExamStore) FindContext(_ context.Context, id string) (*models.OnlineExamContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oe, ok := s.onlineExams[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *oe
	if exam, ok := s.exams[c.ExamID]; ok {
		c.ExamStatus = exam.Status
	}
	return &c, nil
}

func (s onlineExamStore) ListQuestionDetails(_ context.Context, id string) ([]models.OnlineExamQuestionDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OnlineExamQuestionDetail(nil), s.questions[id]...), nil
}

type usageStore struct{ *school }

func (s usageStore) IncrementUsage(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.usage[id]++
	}
	return nil
}
