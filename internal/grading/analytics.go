package grading

import (
	"math"
	"sort"

	"github.com/noah-isme/sma-exam-engine/internal/models"
)

// Difficulty tags derived from (average + pass rate) / 2.
const (
	DifficultyEasy      = "Easy"
	DifficultyModerate  = "Moderate"
	DifficultyDifficult = "Difficult"
)

// Improvement thresholds for subjects.
const (
	ImprovementAverageBelow  = 50.0
	ImprovementPassRateBelow = 60.0
)

// DifficultyIndex tags a subject by its average and pass rate.
func DifficultyIndex(average, passRate float64) string {
	score := (average + passRate) / 2
	switch {
	case score >= 75:
		return DifficultyEasy
	case score >= 50:
		return DifficultyModerate
	default:
		return DifficultyDifficult
	}
}

type accumulator struct {
	key, label string
	count      int
	passed     int
	sum        float64
}

func (a *accumulator) add(f models.ResultFact) {
	a.count++
	a.sum += f.Percentage
	if f.IsPass {
		a.passed++
	}
}

func (a *accumulator) average() float64 {
	if a.count == 0 {
		return 0
	}
	return Round2(a.sum / float64(a.count))
}

func (a *accumulator) passRate() float64 {
	if a.count == 0 {
		return 0
	}
	return Round2(float64(a.passed) / float64(a.count) * 100)
}

func (a *accumulator) group() models.GroupStats {
	return models.GroupStats{Key: a.key, Label: a.label, Count: a.count, Average: a.average(), PassRate: a.passRate()}
}

// Analyze aggregates result facts. Exempted rows are ignored; absent rows count
// as 0% and failed in every group and lower the attendance rate.
func Analyze(facts []models.ResultFact, topN int) models.ResultAnalytics {
	out := models.ResultAnalytics{
		Overall:          models.OverallStats{GradeDistribution: map[string]int{}},
		Subjects:         []models.SubjectStats{},
		Classes:          []models.GroupStats{},
		Grades:           []models.GroupStats{},
		Terms:            []models.GroupStats{},
		TopPerformers:    []models.Performer{},
		ImprovementAreas: []models.SubjectStats{},
	}

	overall := &accumulator{}
	subjects := map[string]*accumulator{}
	classes := map[string]*accumulator{}
	grades := map[string]*accumulator{}
	terms := map[string]*accumulator{}
	students := map[string]*accumulator{}
	var sat, absent int
	lo, hi := math.Inf(1), math.Inf(-1)

	for _, f := range facts {
		if f.IsExempted {
			continue
		}
		if f.IsAbsent {
			absent++
			f.Percentage, f.IsPass = 0, false
		} else {
			sat++
		}
		overall.add(f)
		out.Overall.GradeDistribution[f.Grade]++
		lo = math.Min(lo, f.Percentage)
		hi = math.Max(hi, f.Percentage)
		bucket(subjects, f.SubjectID, f.SubjectName).add(f)
		bucket(classes, f.ClassID, f.ClassName).add(f)
		bucket(grades, f.ClassGrade, f.ClassGrade).add(f)
		bucket(terms, f.TermID, f.TermID).add(f)
		bucket(students, f.StudentID, f.StudentName).add(f)
	}

	out.Overall.Count = overall.count
	out.Overall.Average = overall.average()
	out.Overall.PassRate = overall.passRate()
	if overall.count > 0 {
		out.Overall.Min = Round2(lo)
		out.Overall.Max = Round2(hi)
	}
	if sat+absent > 0 {
		out.Overall.AttendanceRate = Round2(float64(sat) / float64(sat+absent) * 100)
	}

	for _, acc := range sorted(subjects) {
		stats := models.SubjectStats{
			SubjectID:       acc.key,
			SubjectName:     acc.label,
			Count:           acc.count,
			Average:         acc.average(),
			PassRate:        acc.passRate(),
			DifficultyIndex: DifficultyIndex(acc.average(), acc.passRate()),
		}
		out.Subjects = append(out.Subjects, stats)
		if stats.Average < ImprovementAverageBelow || stats.PassRate < ImprovementPassRateBelow {
			out.ImprovementAreas = append(out.ImprovementAreas, stats)
		}
	}
	for _, acc := range sorted(classes) {
		out.Classes = append(out.Classes, acc.group())
	}
	for _, acc := range sorted(grades) {
		out.Grades = append(out.Grades, acc.group())
	}
	for _, acc := range sorted(terms) {
		out.Terms = append(out.Terms, acc.group())
	}
	out.TopPerformers = topPerformers(students, topN)
	return out
}

func topPerformers(students map[string]*accumulator, n int) []models.Performer {
	performers := make([]models.Performer, 0, len(students))
	for _, acc := range students {
		performers = append(performers, models.Performer{StudentID: acc.key, StudentName: acc.label, Average: acc.average(), Subjects: acc.count})
	}
	sort.Slice(performers, func(i, j int) bool {
		if performers[i].Average != performers[j].Average {
			return performers[i].Average > performers[j].Average
		}
		return performers[i].StudentID < performers[j].StudentID
	})
	if n > 0 && len(performers) > n {
		performers = performers[:n]
	}
	return performers
}

// Trend compares the first and last values of a series.
func Trend(series []float64) string {
	if len(series) < 2 {
		return "stable"
	}
	delta := series[len(series)-1] - series[0]
	switch {
	case delta > 1:
		return "improving"
	case delta < -1:
		return "declining"
	default:
		return "stable"
	}
}

func bucket(m map[string]*accumulator, key, label string) *accumulator {
	acc, ok := m[key]
	if !ok {
		acc = &accumulator{key: key, label: label}
		m[key] = acc
	}
	return acc
}

func sorted(m map[string]*accumulator) []*accumulator {
	out := make([]*accumulator, 0, len(m))
	for _, acc := range m {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
