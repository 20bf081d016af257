package grading

import (
	"fmt"
	"math"
	"sort"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

// bandGapTolerance is the largest gap allowed between adjacent bands (e.g. 79.99 -> 80).
const bandGapTolerance = 0.01

const floatEpsilon = 1e-9

// Band is a single grade band.
type Band struct {
	Name  string  `json:"grade"`
	Min   float64 `json:"min_percentage"`
	Max   float64 `json:"max_percentage"`
	Point float64 `json:"grade_point"`
	Color string  `json:"color,omitempty"`
}

// Scale is an ordered, validated set of bands covering [0,100].
type Scale struct {
	bands []Band
}

var fallbackBands = []Band{
	{Name: "F", Min: 0, Max: 29.99, Point: 0.0},
	{Name: "D", Min: 30, Max: 39.99, Point: 2.0},
	{Name: "C", Min: 40, Max: 49.99, Point: 2.3},
	{Name: "C+", Min: 50, Max: 59.99, Point: 2.7},
	{Name: "B", Min: 60, Max: 69.99, Point: 3.0},
	{Name: "B+", Min: 70, Max: 79.99, Point: 3.3},
	{Name: "A", Min: 80, Max: 89.99, Point: 3.7},
	{Name: "A+", Min: 90, Max: 100, Point: 4.0},
}

// FallbackScale returns the built-in table used when an academic year has no default grading system.
func FallbackScale() *Scale {
	bands := make([]Band, len(fallbackBands))
	copy(bands, fallbackBands)
	return &Scale{bands: bands}
}

// NewScale validates bands and returns a scale ordered by minimum percentage.
func NewScale(bands []Band) (*Scale, error) {
	if err := ValidateBands(bands); err != nil {
		return nil, err
	}
	ordered := make([]Band, len(bands))
	copy(ordered, bands)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Min < ordered[j].Min })
	return &Scale{bands: ordered}, nil
}

// ScaleFromModels builds a scale from persisted grade bands.
func ScaleFromModels(scales []models.GradeScale) (*Scale, error) {
	bands := make([]Band, 0, len(scales))
	for _, s := range scales {
		bands = append(bands, Band{Name: s.GradeName, Min: s.MinPercentage, Max: s.MaxPercentage, Point: s.GradePoint, Color: s.Color})
	}
	return NewScale(bands)
}

// ValidateBands checks that bands jointly cover [0,100] once, without gaps or overlaps.
func ValidateBands(bands []Band) error {
	if len(bands) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "grading system requires at least one band")
	}
	ordered := make([]Band, len(bands))
	copy(ordered, bands)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Min < ordered[j].Min })

	var problems []string
	names := make(map[string]struct{}, len(ordered))
	for i, band := range ordered {
		if band.Name == "" {
			problems = append(problems, fmt.Sprintf("band %d has no grade name", i))
		}
		if _, dup := names[band.Name]; dup {
			problems = append(problems, fmt.Sprintf("grade %q defined twice", band.Name))
		}
		names[band.Name] = struct{}{}
		if band.Min < 0 || band.Max > 100 || band.Min > band.Max {
			problems = append(problems, fmt.Sprintf("grade %q has invalid range [%.2f, %.2f]", band.Name, band.Min, band.Max))
		}
		if band.Point < 0 {
			problems = append(problems, fmt.Sprintf("grade %q has negative grade point", band.Name))
		}
		if i == 0 {
			continue
		}
		prev := ordered[i-1]
		gap := band.Min - prev.Max
		switch {
		case band.Min <= prev.Min+floatEpsilon:
			problems = append(problems, fmt.Sprintf("grades %q and %q share a minimum", prev.Name, band.Name))
		case gap < -floatEpsilon:
			problems = append(problems, fmt.Sprintf("grades %q and %q overlap", prev.Name, band.Name))
		case gap > bandGapTolerance+floatEpsilon:
			problems = append(problems, fmt.Sprintf("gap between %q and %q", prev.Name, band.Name))
		}
	}
	if math.Abs(ordered[0].Min) > floatEpsilon {
		problems = append(problems, "bands must start at 0")
	}
	if math.Abs(ordered[len(ordered)-1].Max-100) > floatEpsilon {
		problems = append(problems, "bands must end at 100")
	}
	if len(problems) > 0 {
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid grade bands", problems)
	}
	return nil
}

// Bands returns the ordered bands.
func (s *Scale) Bands() []Band {
	out := make([]Band, len(s.bands))
	copy(out, s.bands)
	return out
}

// Resolve maps a percentage onto its band. At a shared boundary the band with the higher minimum wins.
func (s *Scale) Resolve(percentage float64) (Band, error) {
	if math.IsNaN(percentage) || percentage < 0 || percentage > 100 {
		return Band{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("percentage %.2f outside [0,100]", percentage))
	}
	idx := sort.Search(len(s.bands), func(i int) bool { return s.bands[i].Min > percentage+floatEpsilon }) - 1
	if idx < 0 {
		return Band{}, appErrors.Clone(appErrors.ErrInternal, "grading scale does not cover percentage")
	}
	return s.bands[idx], nil
}
