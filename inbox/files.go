// Package inbox finds exam files to import: glob batches and a watched
// directory. The exam of a file is taken from its name, e.g.
// nvo-7-2023.csv or dzi-12-2022-3f2a.xlsx.
package inbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/data-for-good-bg/semantic-schools/reconcile"
)

// ErrUnrecognisedName is returned for file names without an exam descriptor.
var ErrUnrecognisedName = errors.New("unrecognised exam file name")

// Extensions lists the accepted exam file extensions.
var Extensions = []string{".csv", ".xlsx"}

var examNamePattern = regexp.MustCompile(`^(?i)(nvo|dzi)[-_](\d{1,2})[-_](\d{4})(?:[-_.].*)?$`)

// ParseExamFileName reads the exam from a file name.
func ParseExamFileName(path string) (reconcile.Exam, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	m := examNamePattern.FindStringSubmatch(name)
	if m == nil {
		return reconcile.Exam{}, fmt.Errorf("%w: %s", ErrUnrecognisedName, base)
	}
	grade, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	exam := reconcile.Exam{Type: strings.ToLower(m[1]), Grade: grade, Year: year}
	if err := exam.Validate(); err != nil {
		return reconcile.Exam{}, fmt.Errorf("%s: %w", base, err)
	}
	return exam, nil
}

// IsExamFile reports whether path has an accepted extension.
func IsExamFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ResolveFiles expands glob patterns (with ** support) into a sorted,
// de-duplicated list of exam files. A pattern without glob characters must
// name an existing file.
func ResolveFiles(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}

		var matches []string
		if strings.ContainsAny(pattern, "*?[{") {
			var err error
			matches, err = doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expand %q: %w", pattern, err)
			}
		} else {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("exam file: %w", err)
			}
			matches = []string{filepath.FromSlash(pattern)}
		}

		for _, m := range matches {
			if !IsExamFile(m) || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}
