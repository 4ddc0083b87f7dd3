// Package pipeline runs one exam export through loading, header
// normalization, refinement and extraction.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/data-for-good-bg/semantic-schools/csvload"
	"github.com/data-for-good-bg/semantic-schools/extract"
	"github.com/data-for-good-bg/semantic-schools/header"
	"github.com/data-for-good-bg/semantic-schools/refine"
	"github.com/data-for-good-bg/semantic-schools/subject"
)

// Result holds everything extracted from one file.
type Result struct {
	Table   *refine.Table
	Schools []extract.SchoolRow
	Facts   []extract.ScoreFact
}

// Pipeline is safe for sequential reuse across files.
type Pipeline struct {
	logger     *slog.Logger
	loader     *csvload.Loader
	normalizer *header.Normalizer
	refiner    *refine.Refiner
	extractor  *extract.Extractor
}

// New creates a pipeline that resolves subjects through subjects.
func New(subjects subject.Map, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:     logger,
		loader:     csvload.NewLoader(logger),
		normalizer: header.NewNormalizer(logger),
		refiner:    refine.NewRefiner(subjects, logger),
		extractor:  extract.NewExtractor(logger),
	}
}

// Run loads and processes the file at path.
func (p *Pipeline) Run(path string) (*Result, error) {
	text, err := p.loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	result, err := p.Process(text)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", path, err)
	}
	p.logger.Info("Processed exam file",
		"path", path,
		"schools", len(result.Schools),
		"facts", len(result.Facts))
	return result, nil
}

// Process runs already decoded text through the pipeline.
func (p *Pipeline) Process(text string) (*Result, error) {
	canonical, err := p.normalizer.Normalize(csvload.Lines(text))
	if err != nil {
		return nil, fmt.Errorf("normalize header: %w", err)
	}

	table, err := p.refiner.Refine(canonical)
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}

	facts, err := p.extractor.Scores(table)
	if err != nil {
		return nil, fmt.Errorf("extract scores: %w", err)
	}

	return &Result{
		Table:   table,
		Schools: p.extractor.Schools(table),
		Facts:   facts,
	}, nil
}
