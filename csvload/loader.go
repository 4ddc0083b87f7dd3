// Package csvload reads exam result exports from disk and repairs the byte-level
// artifacts found in the published files before any parsing happens.
package csvload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrEmptyFile is returned when a file has no content after repair.
var ErrEmptyFile = errors.New("empty file")

// minConfidence is the detector confidence needed to pick a charset other than Windows-1251.
const minConfidence = 90

// replacements are applied to every line after decoding.
// The BOM can appear inside the first value as well as at the start, and one
// export wraps the region header cell in tripled quotes.
var replacements = strings.NewReplacer(
	"\ufeff", "",
	"\u00a0", "",
	`"""Област"""`, `"Област"`,
)

// Loader reads raw exam files.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load reads a .csv or .xlsx file and returns its text as UTF-8 with repaired artifacts.
func (l *Loader) Load(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		text, err := l.loadWorkbook(path)
		if err != nil {
			return "", fmt.Errorf("load workbook %s: %w", path, err)
		}
		return text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	text, err := l.Decode(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return text, nil
}

// Decode converts raw bytes to repaired UTF-8 text.
// Valid UTF-8 is taken as is; anything else goes through charset detection with
// Windows-1251 as the fallback for Cyrillic exports.
func (l *Loader) Decode(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyFile
	}

	if !utf8.Valid(data) {
		enc, name := l.detect(data)
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", name, err)
		}
		l.logger.Debug("Decoded non UTF-8 input", "charset", name, "bytes", len(data))
		data = decoded
	}

	return Repair(string(data)), nil
}

// detect picks a decoder for non UTF-8 input.
func (l *Loader) detect(data []byte) (encoding.Encoding, string) {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}

	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil {
		return charmap.Windows1251, "windows-1251"
	}

	switch charset := strings.ToLower(res.Charset); {
	case charset == "iso-8859-5" && res.Confidence >= minConfidence:
		return charmap.ISO8859_5, "iso-8859-5"
	case charset == "koi8-r" && res.Confidence >= minConfidence:
		return charmap.KOI8R, "koi8-r"
	default:
		// chardet often reports windows-1252 or iso-8859-1 for short cp1251 samples
		return charmap.Windows1251, "windows-1251"
	}
}

// Repair removes BOM copies and non-breaking spaces, fixes the tripled-quote
// region header and normalises line endings.
func Repair(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return replacements.Replace(text)
}

// Lines splits text into lines without trailing carriage returns.
func Lines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
