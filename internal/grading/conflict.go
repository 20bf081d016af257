package grading

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConflictType names the shared resource of two overlapping schedules.
type ConflictType string

const (
	ConflictSupervisor ConflictType = "supervisor"
	ConflictRoom       ConflictType = "room"
	ConflictClass      ConflictType = "class"
	ConflictDuplicate  ConflictType = "duplicate"
)

// Slot is a schedule reduced to the facts conflict detection needs. Start and End are minutes after midnight.
type Slot struct {
	Ref         string
	ExamID      string
	ClassID     string
	SubjectID   string
	Date        time.Time
	Start       int
	End         int
	Room        string
	Supervisors []string
}

// Conflict links a proposed slot to the schedule it collides with.
// ScheduleID is an existing schedule id, or "proposed:<n>" for another slot in the same batch.
type Conflict struct {
	ProposedIndex int          `json:"proposed_index"`
	ScheduleID    string       `json:"schedule_id"`
	Type          ConflictType `json:"conflict_type"`
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes after midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Overlaps reports whether two half-open intervals on the same date intersect.
func (s Slot) Overlaps(other Slot) bool {
	if !sameDay(s.Date, other.Date) {
		return false
	}
	return s.Start < other.End && other.Start < s.End
}

// Detect returns every conflict of the proposed slots against existing slots and against each other.
func Detect(proposed, existing []Slot) []Conflict {
	var conflicts []Conflict
	for i, p := range proposed {
		for _, e := range existing {
			conflicts = append(conflicts, collide(i, e.Ref, p, e)...)
		}
		for j := 0; j < i; j++ {
			conflicts = append(conflicts, collide(i, fmt.Sprintf("proposed:%d", j), p, proposed[j])...)
		}
	}
	return conflicts
}

func collide(index int, ref string, p, other Slot) []Conflict {
	var out []Conflict
	if p.ExamID != "" && p.ExamID == other.ExamID && p.ClassID == other.ClassID && p.SubjectID == other.SubjectID {
		out = append(out, Conflict{ProposedIndex: index, ScheduleID: ref, Type: ConflictDuplicate})
	}
	if !p.Overlaps(other) {
		return out
	}
	if sharesSupervisor(p.Supervisors, other.Supervisors) {
		out = append(out, Conflict{ProposedIndex: index, ScheduleID: ref, Type: ConflictSupervisor})
	}
	if p.Room != "" && strings.EqualFold(strings.TrimSpace(p.Room), strings.TrimSpace(other.Room)) {
		out = append(out, Conflict{ProposedIndex: index, ScheduleID: ref, Type: ConflictRoom})
	}
	if p.ClassID != "" && p.ClassID == other.ClassID {
		out = append(out, Conflict{ProposedIndex: index, ScheduleID: ref, Type: ConflictClass})
	}
	return out
}

func sharesSupervisor(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
