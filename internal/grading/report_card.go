package grading

import "sort"

// SubjectScore is one subject result feeding a report card.
type SubjectScore struct {
	SubjectID     string
	TotalMarks    float64
	MarksObtained float64
	IsPass        bool
	IsAbsent      bool
	IsExempted    bool
}

// CardTotals are the derived fields of a report card.
type CardTotals struct {
	TotalMarks        float64
	MarksObtained     float64
	Percentage        float64
	Grade             string
	GradePointAverage float64
	SubjectCount      int
	FailedSubjects    int
}

// AggregateCard rolls subject scores into report card totals. Absent subjects count as zero;
// exempted subjects are left out of every sum and of the GPA denominator.
func AggregateCard(scale *Scale, scores []SubjectScore) (CardTotals, error) {
	var totals CardTotals
	var pointSum float64
	for _, score := range scores {
		if score.IsExempted {
			continue
		}
		obtained := score.MarksObtained
		if score.IsAbsent {
			obtained = 0
		}
		totals.TotalMarks += score.TotalMarks
		totals.MarksObtained += obtained
		totals.SubjectCount++
		if score.IsAbsent || !score.IsPass {
			totals.FailedSubjects++
		}
		band, err := scale.Resolve(Percentage(obtained, score.TotalMarks))
		if err != nil {
			return CardTotals{}, err
		}
		pointSum += band.Point
	}

	totals.TotalMarks = Round2(totals.TotalMarks)
	totals.MarksObtained = Round2(totals.MarksObtained)
	totals.Percentage = Percentage(totals.MarksObtained, totals.TotalMarks)
	band, err := scale.Resolve(totals.Percentage)
	if err != nil {
		return CardTotals{}, err
	}
	totals.Grade = band.Name
	if totals.SubjectCount > 0 {
		totals.GradePointAverage = Round2(pointSum / float64(totals.SubjectCount))
	}
	return totals, nil
}

// CardRankEntry is a report card competing for class or grade rank.
type CardRankEntry struct {
	Key             string
	Percentage      float64
	GPA             float64
	AdmissionNumber string
}

// RankCards orders cards by percentage DESC, GPA DESC and admission number ASC, returning ranks 1..n by key.
func RankCards(entries []CardRankEntry) map[string]int {
	ordered := make([]CardRankEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Percentage != b.Percentage {
			return a.Percentage > b.Percentage
		}
		if a.GPA != b.GPA {
			return a.GPA > b.GPA
		}
		return a.AdmissionNumber < b.AdmissionNumber
	})
	ranks := make(map[string]int, len(ordered))
	for i, e := range ordered {
		ranks[e.Key] = i + 1
	}
	return ranks
}

// LowPerformance reports whether a card should raise an alert.
func LowPerformance(totals CardTotals, percentageBelow float64, failedAtLeast int) bool {
	if totals.SubjectCount == 0 {
		return false
	}
	if totals.Percentage < percentageBelow {
		return true
	}
	return failedAtLeast > 0 && totals.FailedSubjects >= failedAtLeast
}
