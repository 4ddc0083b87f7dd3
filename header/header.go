// Package header turns the multi-line, Bulgarian-language header block of an
// exam results export into one line of canonical column names.
//
// Exports come in several shapes. All supported ones have a line starting with
// the "Област" (or "Регион") cell; anything above it is descriptive preamble.
// The header line may be followed by option lines whose first cell is empty,
// carrying the second half of each column name:
//
//	"Област",...,"Код по Админ","БЕЛ","","МАТ",""
//	"",...,"","Явили се","Ср. успех в точки","Явили се","Ср. успех в точки"
//
// Empty cells inherit the previous cell, the lines are merged cell by cell,
// translated with the rule tables in rules.go and finally reordered so the
// subject leads: "people бел" becomes "бел people".
package header

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrHeaderNotFound is returned when no line starts with a region cell.
	ErrHeaderNotFound = errors.New("cannot find line with column names")

	// ErrMalformedSubjectColumn is returned when an attribute-first column does not split into two words.
	ErrMalformedSubjectColumn = errors.New("malformed subject column")
)

// headerMarkers start the line holding the column names.
var headerMarkers = []string{`"Област`, `"Регион`}

// optionMarker starts a line that continues the header.
const optionMarker = `""`

// RawHeader is the header block as found in the file.
type RawHeader struct {
	// Line is the zero-based line index of the primary header line.
	Line int
	// Primary holds the cells of the header line.
	Primary []string
	// Options holds the cells of every option line, in file order.
	Options [][]string
}

// Canonical is a single translated header plus the data lines that follow it.
type Canonical struct {
	Columns []string
	// Body holds the data lines after the header block, newline terminated.
	Body string
}

// CSV renders the canonical header and body as one CSV document.
func (c *Canonical) CSV() string {
	return strings.Join(c.Columns, ",") + "\n" + c.Body
}

// Normalizer locates and rewrites header blocks.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a header normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize finds the header block in lines, merges and translates it.
func (n *Normalizer) Normalize(lines []string) (*Canonical, error) {
	raw, bodyStart, err := Locate(lines)
	if err != nil {
		return nil, err
	}
	n.logger.Debug("Found header line", "line", raw.Line, "options", len(raw.Options))

	merged := Merge(raw.Primary, raw.Options...)
	n.logger.Debug("Merged header", "columns", merged)

	translated := make([]string, len(merged))
	for i, cell := range merged {
		translated[i] = CanonicalName(cell)
	}
	n.logger.Debug("Translated header", "columns", translated)

	columns, err := Reorder(translated)
	if err != nil {
		return nil, err
	}

	var body strings.Builder
	for _, line := range lines[bodyStart:] {
		body.WriteString(line)
		body.WriteByte('\n')
	}

	return &Canonical{Columns: columns, Body: body.String()}, nil
}

// Locate returns the raw header block and the index of the first data line.
func Locate(lines []string) (*RawHeader, int, error) {
	start := -1
	for i, line := range lines {
		if hasHeaderMarker(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, 0, ErrHeaderNotFound
	}

	raw := &RawHeader{Line: start, Primary: splitCells(lines[start])}

	next := start + 1
	for next < len(lines) && strings.HasPrefix(lines[next], optionMarker) {
		raw.Options = append(raw.Options, splitCells(lines[next]))
		next++
	}

	return raw, next, nil
}

func hasHeaderMarker(line string) bool {
	for _, marker := range headerMarkers {
		if strings.HasPrefix(line, marker) {
			return true
		}
	}
	return false
}

// splitCells splits a header line on commas and drops the quotes.
// Header cells never contain commas, so no CSV parsing is needed here.
func splitCells(line string) []string {
	cells := strings.Split(strings.TrimSpace(line), ",")
	for i, c := range cells {
		cells[i] = strings.ReplaceAll(c, `"`, "")
	}
	return cells
}

// FillForward copies the previous cell into every empty cell.
// Leading empty cells stay empty.
func FillForward(cells []string) []string {
	out := make([]string, len(cells))
	copy(out, cells)
	for i := 1; i < len(out); i++ {
		if out[i] == "" {
			out[i] = out[i-1]
		}
	}
	return out
}

// Merge forward-fills the primary line and each option line and joins them cell
// by cell with a space. The result is as long as the shortest line.
func Merge(primary []string, options ...[]string) []string {
	names := FillForward(primary)
	for _, opt := range options {
		opt = FillForward(opt)
		merged := make([]string, min(len(names), len(opt)))
		for i := range merged {
			merged[i] = strings.TrimSpace(names[i] + " " + opt[i])
		}
		names = merged
	}
	return names
}

// Reorder moves the subject in front of the attribute: "score бел" becomes "бел score".
// Other columns pass through unchanged.
func Reorder(columns []string) ([]string, error) {
	out := make([]string, len(columns))
	for i, col := range columns {
		if !strings.HasPrefix(col, AttrScore+" ") && !strings.HasPrefix(col, AttrPeople+" ") {
			out[i] = col
			continue
		}
		parts := strings.Split(col, " ")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedSubjectColumn, col)
		}
		out[i] = parts[1] + " " + parts[0]
	}
	return out, nil
}

// IsPeople reports whether col is a subject people column.
func IsPeople(col string) bool {
	return strings.HasSuffix(col, " "+AttrPeople)
}

// IsScore reports whether col is a subject score column.
func IsScore(col string) bool {
	return strings.HasSuffix(col, " "+AttrScore)
}

// IsSubject reports whether col is a people or score column.
func IsSubject(col string) bool {
	return IsPeople(col) || IsScore(col)
}

// SplitSubject splits "бел score" into its subject and attribute.
func SplitSubject(col string) (subject, attribute string, ok bool) {
	subject, attribute, ok = strings.Cut(col, " ")
	if !ok || strings.Contains(attribute, " ") {
		return "", "", false
	}
	return subject, attribute, true
}
