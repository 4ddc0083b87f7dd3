// Package extract projects a refined export into the school dimension rows
// and the long-format score facts.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/data-for-good-bg/semantic-schools/refine"
)

var (
	// ErrOddSubjectColumns means the header did not produce people/score pairs.
	ErrOddSubjectColumns = errors.New("subject column count must be positive and even")

	// ErrUnpairedSubject means two adjacent subject columns name different subjects.
	ErrUnpairedSubject = errors.New("subject columns are not paired")
)

// Score scales of the exams. The scale is never in the file and is inferred
// from the highest average found.
var (
	QualitativeScale = decimal.NewFromInt(6)
	OldNVOScale      = decimal.NewFromInt(65)
	NVOScale         = decimal.NewFromInt(100)
)

// SchoolRow is the dimension part of one refined row.
type SchoolRow struct {
	Region        string
	Municipality  string
	Place         string
	School        string
	SchoolAdminID string
}

// ScoreFact is the result of one school in one subject.
type ScoreFact struct {
	SchoolAdminID    string
	Subject          string
	MaxPossibleScore decimal.Decimal
	People           int32
	Score            decimal.Decimal
}

// Extractor builds schools and facts from refined tables.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Schools returns the dimension columns of every row, in file order.
func (e *Extractor) Schools(t *refine.Table) []SchoolRow {
	out := make([]SchoolRow, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = SchoolRow{
			Region:        r.Region,
			Municipality:  r.Municipality,
			Place:         r.Place,
			School:        r.School,
			SchoolAdminID: r.SchoolAdminID,
		}
	}
	return out
}

// Scores returns one fact per school and subject with a positive score,
// sorted by school admin id. The scale is inferred per subject.
func (e *Extractor) Scores(t *refine.Table) ([]ScoreFact, error) {
	count := len(t.Subjects)
	if count == 0 || count%2 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrOddSubjectColumns, count)
	}

	var facts []ScoreFact
	for i := 0; i < count/2; i++ {
		peopleIdx, scoreIdx := i*2, i*2+1
		people, score := t.Subjects[peopleIdx], t.Subjects[scoreIdx]
		if people.Subject != score.Subject || !people.IsPeople() || score.IsPeople() {
			return nil, fmt.Errorf("%w: %q and %q", ErrUnpairedSubject, people.Name(), score.Name())
		}

		scores := make([]decimal.NullDecimal, len(t.Rows))
		for j, row := range t.Rows {
			scores[j] = row.Cells[scoreIdx].Score
		}
		maxScore := InferMaxPossibleScore(scores)
		e.logger.Debug("Inferred max possible score", "subject", people.Subject, "max_possible_score", maxScore.String())

		for _, row := range t.Rows {
			s := row.Cells[scoreIdx].Score
			if !s.Valid || !s.Decimal.IsPositive() {
				continue
			}
			facts = append(facts, ScoreFact{
				SchoolAdminID:    row.SchoolAdminID,
				Subject:          people.Subject,
				MaxPossibleScore: maxScore,
				People:           row.Cells[peopleIdx].People,
				Score:            s.Decimal,
			})
		}
	}

	sort.SliceStable(facts, func(i, j int) bool { return facts[i].SchoolAdminID < facts[j].SchoolAdminID })
	return facts, nil
}

// InferMaxPossibleScore maps the highest observed score to a scale:
// up to 6 is the qualitative 2..6 scale, up to 65 the old NVO scale and
// anything above is the 100 point scale. Without any score it is 100.
//
// A weak cohort on a 100 point exam whose best average stays at or below 65
// is classified as a 65 point exam.
func InferMaxPossibleScore(scores []decimal.NullDecimal) decimal.Decimal {
	var observed decimal.Decimal
	found := false
	for _, s := range scores {
		if !s.Valid {
			continue
		}
		if !found || s.Decimal.GreaterThan(observed) {
			observed = s.Decimal
			found = true
		}
	}

	switch {
	case !found:
		return NVOScale
	case observed.LessThanOrEqual(QualitativeScale):
		return QualitativeScale
	case observed.LessThanOrEqual(OldNVOScale):
		return OldNVOScale
	default:
		return NVOScale
	}
}

// MaxOf returns the highest scale among facts, or zero when there are none.
func MaxOf(facts []ScoreFact) decimal.Decimal {
	var out decimal.Decimal
	for _, f := range facts {
		if f.MaxPossibleScore.GreaterThan(out) {
			out = f.MaxPossibleScore
		}
	}
	return out
}
