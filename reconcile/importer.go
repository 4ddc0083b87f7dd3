package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/data-for-good-bg/semantic-schools/extract"
	"github.com/data-for-good-bg/semantic-schools/pipeline"
	"github.com/data-for-good-bg/semantic-schools/storage"
)

// ErrInvalidExam is returned for an unknown exam type, grade or year.
var ErrInvalidExam = errors.New("invalid exam")

// Exam types.
const (
	ExamNVO = "nvo"
	ExamDZI = "dzi"
)

var examGrades = map[string][]int{
	ExamNVO: {4, 7, 10},
	ExamDZI: {12},
}

// Exam identifies one examination session.
type Exam struct {
	Type  string
	Grade int
	Year  int
}

// ID is the examination key, e.g. "nvo-7-2023".
func (e Exam) ID() string {
	return fmt.Sprintf("%s-%d-%d", e.Type, e.Grade, e.Year)
}

// DisplayType is the stored type name.
func (e Exam) DisplayType() string {
	switch e.Type {
	case ExamNVO:
		return "НВО"
	case ExamDZI:
		return "ДЗИ"
	default:
		return strings.ToUpper(e.Type)
	}
}

// Validate checks type, grade and year.
func (e Exam) Validate() error {
	grades, ok := examGrades[e.Type]
	if !ok {
		return fmt.Errorf("%w: type %q, want nvo or dzi", ErrInvalidExam, e.Type)
	}
	if !slices.Contains(grades, e.Grade) {
		return fmt.Errorf("%w: grade %d for %s, want one of %v", ErrInvalidExam, e.Grade, e.Type, grades)
	}
	if e.Year < 2000 || e.Year > 2100 {
		return fmt.Errorf("%w: year %d", ErrInvalidExam, e.Year)
	}
	return nil
}

// Importer writes the result of one exam file.
type Importer struct {
	upserter *Upserter
	matcher  *Matcher
	logger   *slog.Logger
}

// NewImporter creates an importer. The matcher must be loaded.
func NewImporter(upserter *Upserter, matcher *Matcher, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{upserter: upserter, matcher: matcher, logger: logger}
}

// Import upserts schools, the examination and its scores.
func (im *Importer) Import(ctx context.Context, exam Exam, result *pipeline.Result) error {
	if err := exam.Validate(); err != nil {
		return err
	}
	im.logger.Info("Importing examination",
		"examination", exam.ID(),
		"schools", len(result.Schools),
		"facts", len(result.Facts))

	if err := im.importSchools(ctx, result.Schools); err != nil {
		return err
	}

	examination := storage.Record{
		"id":                 exam.ID(),
		"type":               exam.DisplayType(),
		"year":               exam.Year,
		"grade_level":        exam.Grade,
		"max_possible_score": extract.MaxOf(result.Facts),
	}
	if _, err := im.upserter.Upsert(ctx, storage.Examinations, examination); err != nil {
		return fmt.Errorf("upsert examination %s: %w", exam.ID(), err)
	}

	for _, f := range result.Facts {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Failures are counted; a missing school is reported by the store.
		_, _ = im.upserter.Upsert(ctx, storage.ExaminationScores, storage.Record{
			"examination_id":     exam.ID(),
			"school_id":          f.SchoolAdminID,
			"subject":            f.Subject,
			"people":             f.People,
			"score":              f.Score,
			"max_possible_score": f.MaxPossibleScore,
		})
	}
	return nil
}

func (im *Importer) importSchools(ctx context.Context, schools []extract.SchoolRow) error {
	sorted := slices.Clone(schools)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Municipality != b.Municipality {
			return a.Municipality < b.Municipality
		}
		return a.Place < b.Place
	})

	seen := make(map[string]bool)
	for _, s := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.SchoolAdminID == "" {
			im.logger.Error("School without admin id", "school", s.School, "place", s.Place)
			im.upserter.Summary().Add(storage.Schools.Name, Failed)
			continue
		}

		res, err := im.matcher.Resolve(s)
		if err != nil {
			im.upserter.Summary().Add(storage.Schools.Name, Failed)
			continue
		}
		if res.Synthetic && !seen[res.PlaceID()] {
			seen[res.PlaceID()] = true
			if err := im.upsertDimensions(ctx, res); err != nil {
				im.upserter.Summary().Add(storage.Schools.Name, Failed)
				continue
			}
		}

		name := s.School
		existing, err := im.upserter.Lookup(ctx, storage.Schools, storage.Record{"id": s.SchoolAdminID})
		switch {
		case err == nil:
			name = fmt.Sprint(existing["name"])
		case !errors.Is(err, storage.ErrNotFound):
			im.logger.Error("Look up school", "school_admin_id", s.SchoolAdminID, "error", err)
			im.upserter.Summary().Add(storage.Schools.Name, Failed)
			continue
		}

		_, _ = im.upserter.Upsert(ctx, storage.Schools, storage.Record{
			"id":       s.SchoolAdminID,
			"name":     name,
			"place_id": res.PlaceID(),
		})
	}
	return nil
}

func (im *Importer) upsertDimensions(ctx context.Context, res Resolution) error {
	for _, step := range []struct {
		table  storage.Table
		record storage.Record
	}{
		{storage.Regions, res.Region},
		{storage.Municipalities, res.Municipality},
		{storage.Places, res.Place},
	} {
		if action, err := im.upserter.Upsert(ctx, step.table, step.record); action == Failed {
			return err
		}
	}
	return nil
}
