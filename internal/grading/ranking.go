package grading

import (
	"sort"
	"time"
)

// RankEntry is one result competing for a rank.
type RankEntry struct {
	ResultID   string
	StudentID  string
	Percentage float64
	Marks      float64
	EntryDate  time.Time
	Excluded   bool
}

// Rank orders entries by percentage DESC, marks DESC, entry date ASC and student id ASC
// and returns the rank per result id. Excluded entries map to nil. Entries equal on
// every key share a rank.
func Rank(entries []RankEntry) map[string]*int {
	ranks := make(map[string]*int, len(entries))
	ranked := make([]RankEntry, 0, len(entries))
	for _, e := range entries {
		if e.Excluded {
			ranks[e.ResultID] = nil
			continue
		}
		ranked = append(ranked, e)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return lessEntry(ranked[i], ranked[j]) })

	current := 0
	for i, e := range ranked {
		if i == 0 || lessEntry(ranked[i-1], e) {
			current = i + 1
		}
		rank := current
		ranks[e.ResultID] = &rank
	}
	return ranks
}

// DedupeByStudent keeps the best-ordered entry per student.
func DedupeByStudent(entries []RankEntry) []RankEntry {
	best := make(map[string]RankEntry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Excluded {
			continue
		}
		current, ok := best[e.StudentID]
		if !ok {
			order = append(order, e.StudentID)
			best[e.StudentID] = e
			continue
		}
		if lessEntry(e, current) {
			best[e.StudentID] = e
		}
	}
	out := make([]RankEntry, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

func lessEntry(a, b RankEntry) bool {
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	if a.Marks != b.Marks {
		return a.Marks > b.Marks
	}
	if !a.EntryDate.Equal(b.EntryDate) {
		return a.EntryDate.Before(b.EntryDate)
	}
	return a.StudentID < b.StudentID
}
