// Package refine parses a normalized exam export into typed rows.
//
// The refiner cleans identifiers, fills gaps in the administrative hierarchy,
// patches known export defects, canonicalizes region, municipality and place
// names, coerces people and score cells to numbers, sorts and filters the
// subject columns and finally renames every subject to its catalogue id.
package refine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/shopspring/decimal"

	"github.com/data-for-good-bg/semantic-schools/header"
	"github.com/data-for-good-bg/semantic-schools/subject"
)

var (
	// ErrUnknownSubject is returned for a subject abbreviation missing from the catalogue.
	ErrUnknownSubject = errors.New("unknown subject abbreviation")

	// ErrMalformedPlace is returned for a place with an unexpected dot layout.
	ErrMalformedPlace = errors.New("malformed place name")

	// ErrMissingColumn is returned when a dimension column is absent from the header.
	ErrMissingColumn = errors.New("missing dimension column")
)

// MissingPeople marks an empty people cell.
const MissingPeople int32 = -1

// RemovedSubjects are aggregate columns that look like subjects but are not:
// "2дзи" sums the second state exam, "общо" sums all of them.
var RemovedSubjects = []string{"2дзи", "общо"}

// dimensionColumns are the columns every supported export carries.
var dimensionColumns = []string{
	header.ColRegion,
	header.ColMunicipality,
	header.ColPlace,
	header.ColSchool,
	header.ColAdminID,
}

// SubjectColumn is one people or score column after canonicalization.
type SubjectColumn struct {
	// Subject is the catalogue id, e.g. "БЕЛ".
	Subject string
	// Attribute is header.AttrPeople or header.AttrScore.
	Attribute string
	// Source is the column name as found in the normalized header.
	Source string
}

// Name returns the canonical column name, e.g. "БЕЛ score".
func (c SubjectColumn) Name() string {
	return c.Subject + " " + c.Attribute
}

// IsPeople reports whether the column counts examinees.
func (c SubjectColumn) IsPeople() bool {
	return c.Attribute == header.AttrPeople
}

// Cell holds one subject value. People columns set People, score columns set Score.
type Cell struct {
	People int32
	Score  decimal.NullDecimal
}

// Row is one school of an export.
type Row struct {
	Region        string `csv:"region"`
	Municipality  string `csv:"municipality"`
	Place         string `csv:"place"`
	School        string `csv:"school"`
	SchoolAdminID string `csv:"school_admin_id"`

	// Extra holds the values of Table.Extra.
	Extra []string `csv:"-"`
	// Cells holds the values of Table.Subjects.
	Cells []Cell `csv:"-"`
}

// Table is a refined export.
type Table struct {
	// Extra lists non-subject columns other than the dimensions, in file order.
	Extra []string
	// Subjects lists subject columns sorted by their source name.
	Subjects []SubjectColumn
	Rows     []Row
}

// Columns returns the dimension, extra and subject column names in order.
func (t *Table) Columns() []string {
	cols := append([]string(nil), dimensionColumns...)
	cols = append(cols, t.Extra...)
	for _, s := range t.Subjects {
		cols = append(cols, s.Name())
	}
	return cols
}

// Refiner turns canonical CSV into a Table.
type Refiner struct {
	logger   *slog.Logger
	subjects subject.Map
	quirks   []Quirk
}

// NewRefiner creates a refiner resolving abbreviations through subjects.
func NewRefiner(subjects subject.Map, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{
		logger:   logger,
		subjects: subjects,
		quirks:   Quirks,
	}
}

// WithQuirks replaces the quirk table.
func (r *Refiner) WithQuirks(quirks []Quirk) *Refiner {
	r.quirks = quirks
	return r
}

type indexedColumn struct {
	name  string
	index int
}

// Refine parses and cleans a canonical export.
func (r *Refiner) Refine(c *header.Canonical) (*Table, error) {
	for _, col := range dimensionColumns {
		if !slices.Contains(c.Columns, col) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var extra, subjects []indexedColumn
	for i, col := range c.Columns {
		switch {
		case header.IsSubject(col):
			subjects = append(subjects, indexedColumn{name: col, index: i})
		case !slices.Contains(dimensionColumns, col):
			extra = append(extra, indexedColumn{name: col, index: i})
		}
	}

	r.logger.Debug("Subject columns before sorting", "columns", names(subjects))
	sort.SliceStable(subjects, func(i, j int) bool { return subjects[i].name < subjects[j].name })
	subjects = removeSubjects(subjects, RemovedSubjects)
	r.logger.Debug("Subject columns after sorting and removal", "columns", names(subjects))

	table := &Table{}
	for _, e := range extra {
		table.Extra = append(table.Extra, e.name)
	}
	for _, s := range subjects {
		col, err := r.canonicalSubject(s.name)
		if err != nil {
			return nil, err
		}
		table.Subjects = append(table.Subjects, col)
	}

	reader := csv.NewReader(strings.NewReader(c.Body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	dec, err := csvutil.NewDecoder(&fitReader{r: reader, width: len(c.Columns)}, c.Columns...)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	for line := 1; ; line++ {
		var row Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode row %d: %w", line, err)
		}
		record := dec.Record()

		for _, e := range extra {
			row.Extra = append(row.Extra, record[e.index])
		}
		for i, s := range subjects {
			cell, err := parseCell(table.Subjects[i], record[s.index])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", line, s.name, err)
			}
			row.Cells = append(row.Cells, cell)
		}

		if err := r.refineRow(&row); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		table.Rows = append(table.Rows, row)
	}

	r.logger.Debug("Refined table", "rows", len(table.Rows), "subject_columns", len(table.Subjects))
	return table, nil
}

func (r *Refiner) refineRow(row *Row) error {
	row.SchoolAdminID = CleanAdminID(row.SchoolAdminID)

	// Aggregate rows of regional offices sometimes lack the lower levels.
	if strings.TrimSpace(row.Municipality) == "" {
		row.Municipality = row.Region
	}
	if strings.TrimSpace(row.Place) == "" {
		row.Place = row.Municipality
	}

	for _, note := range applyQuirks(r.quirks, row) {
		r.logger.Debug("Applied export quirk", "quirk", note, "school_admin_id", row.SchoolAdminID)
	}

	row.Region = AdminUnitName(row.Region)
	row.Municipality = AdminUnitName(row.Municipality)

	place, err := PrettyPlace(row.Place)
	if err != nil {
		r.logger.Error("Failed to format place", "place", row.Place, "school", row.School, "error", err)
		return err
	}
	row.Place = place

	if row.SchoolAdminID == "" {
		r.logger.Warn("Row without school admin id", "school", row.School, "place", row.Place)
	}
	return nil
}

func (r *Refiner) canonicalSubject(col string) (SubjectColumn, error) {
	abbr, attr, ok := header.SplitSubject(col)
	if !ok {
		return SubjectColumn{}, fmt.Errorf("%w: %q", header.ErrMalformedSubjectColumn, col)
	}
	item, ok := r.subjects.Lookup(abbr)
	if !ok {
		return SubjectColumn{}, fmt.Errorf("%w: %q", ErrUnknownSubject, abbr)
	}
	return SubjectColumn{Subject: item.ID, Attribute: attr, Source: col}, nil
}

// parseCell coerces a people or score cell.
func parseCell(col SubjectColumn, raw string) (Cell, error) {
	raw = strings.TrimSpace(raw)
	if col.IsPeople() {
		people, err := ParsePeople(raw)
		return Cell{People: people}, err
	}
	score, err := ParseScore(raw)
	return Cell{Score: score}, err
}

// ParsePeople parses a people count. Empty cells become MissingPeople.
func ParsePeople(raw string) (int32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MissingPeople, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return 0, fmt.Errorf("parse people %q: %w", raw, err)
	}
	return int32(d.IntPart()), nil
}

// ParseScore parses an average score written with a decimal comma or point.
// Empty cells and the stray "(" of the dzi-2022 export are null.
func ParseScore(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "(" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse score %q: %w", raw, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func removeSubjects(cols []indexedColumn, remove []string) []indexedColumn {
	out := cols[:0]
	for _, c := range cols {
		abbr, _, _ := header.SplitSubject(c.name)
		if !slices.Contains(remove, abbr) {
			out = append(out, c)
		}
	}
	return out
}

func names(cols []indexedColumn) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// fitReader pads or cuts records to the header width. Merged headers are as
// long as their shortest line, data lines sometimes carry trailing cells.
type fitReader struct {
	r     *csv.Reader
	width int
}

func (f *fitReader) Read() ([]string, error) {
	rec, err := f.r.Read()
	if err != nil {
		return nil, err
	}
	switch {
	case len(rec) > f.width:
		rec = rec[:f.width]
	case len(rec) < f.width:
		rec = append(rec, make([]string, f.width-len(rec))...)
	}
	return rec, nil
}
