package reconcile

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// ImportAction is the outcome of one upsert.
type ImportAction int

const (
	// AlreadyExists means the row was found with identical values; nothing was written.
	AlreadyExists ImportAction = iota
	// Insert means the row was (or in dry-run would be) inserted.
	Insert
	// Update means the row was (or in dry-run would be) updated.
	Update
	// Failed means the row could not be written or resolved.
	Failed
	// Skipped means the row was ignored on purpose, e.g. a duplicate in the input.
	Skipped
)

// Actions lists every action in summary order.
var Actions = []ImportAction{Insert, Update, AlreadyExists, Failed, Skipped}

func (a ImportAction) String() string {
	switch a {
	case AlreadyExists:
		return "AlreadyExists"
	case Insert:
		return "Insert"
	case Update:
		return "Update"
	case Failed:
		return "Failed"
	case Skipped:
		return "Skipped"
	default:
		return fmt.Sprintf("ImportAction(%d)", int(a))
	}
}

// Observer is notified about every counted action.
type Observer interface {
	ObserveAction(table, action string)
}

// Summary counts actions per table.
type Summary struct {
	counts   map[string]map[ImportAction]int
	observer Observer
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{counts: make(map[string]map[ImportAction]int)}
}

// WithObserver forwards every counted action to o.
func (s *Summary) WithObserver(o Observer) *Summary {
	s.observer = o
	return s
}

// Add counts one action for table.
func (s *Summary) Add(table string, action ImportAction) {
	byAction, ok := s.counts[table]
	if !ok {
		byAction = make(map[ImportAction]int)
		s.counts[table] = byAction
	}
	byAction[action]++
	if s.observer != nil {
		s.observer.ObserveAction(table, action.String())
	}
}

// Count returns how many times action was counted for table.
func (s *Summary) Count(table string, action ImportAction) int {
	return s.counts[table][action]
}

// Total returns how many times action was counted over all tables.
func (s *Summary) Total(action ImportAction) int {
	n := 0
	for _, byAction := range s.counts {
		n += byAction[action]
	}
	return n
}

// Tables returns the tables with at least one action, sorted.
func (s *Summary) Tables() []string {
	tables := make([]string, 0, len(s.counts))
	for t := range s.counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Line renders the counts of one table, e.g. "Insert: 3, Update: 0, ...".
func (s *Summary) Line(table string) string {
	parts := make([]string, len(Actions))
	for i, a := range Actions {
		parts[i] = fmt.Sprintf("%s: %d", a, s.counts[table][a])
	}
	return strings.Join(parts, ", ")
}

// Write prints one line per table.
func (s *Summary) Write(w io.Writer) error {
	for _, t := range s.Tables() {
		if _, err := fmt.Fprintf(w, "%s --- %s\n", t, s.Line(t)); err != nil {
			return err
		}
	}
	return nil
}

// Log emits one info record per table.
func (s *Summary) Log(logger *slog.Logger) {
	for _, t := range s.Tables() {
		attrs := []any{"table", t}
		for _, a := range Actions {
			attrs = append(attrs, a.String(), s.counts[t][a])
		}
		logger.Info("Operation counts", attrs...)
	}
}
