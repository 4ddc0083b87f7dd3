package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-for-good-bg/semantic-schools/reconcile"
)

func TestParseExamFileName(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    reconcile.Exam
		wantErr error
	}{
		{"nvo csv", "data/nvo-7-2023.csv", reconcile.Exam{Type: "nvo", Grade: 7, Year: 2023}, nil},
		{"download suffix", "dzi-12-2022-3f2a9b.csv", reconcile.Exam{Type: "dzi", Grade: 12, Year: 2022}, nil},
		{"underscores and case", "NVO_10_2021.xlsx", reconcile.Exam{Type: "nvo", Grade: 10, Year: 2021}, nil},
		{"no descriptor", "results.csv", reconcile.Exam{}, ErrUnrecognisedName},
		{"unknown exam", "abc-4-2023.csv", reconcile.Exam{}, ErrUnrecognisedName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExamFileName(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExamFileNameInvalidGrade(t *testing.T) {
	_, err := ParseExamFileName("dzi-7-2023.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrInvalidExam))
}

func TestIsExamFile(t *testing.T) {
	assert.True(t, IsExamFile("a.csv"))
	assert.True(t, IsExamFile("a.XLSX"))
	assert.False(t, IsExamFile("a.txt"))
	assert.False(t, IsExamFile("a.csv.tmp"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "nvo-4-2023.csv"), "x")
	writeFile(t, filepath.Join(dir, "sub", "dzi-12-2023.xlsx"), "x")
	writeFile(t, filepath.Join(dir, "sub", "notes.txt"), "x")

	t.Run("recursive glob", func(t *testing.T) {
		files, err := ResolveFiles([]string{filepath.Join(dir, "**", "*")})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "nvo-4-2023.csv"),
			filepath.Join(dir, "sub", "dzi-12-2023.xlsx"),
		}, files)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		plain := filepath.Join(dir, "nvo-4-2023.csv")
		files, err := ResolveFiles([]string{plain, filepath.Join(dir, "*.csv")})
		require.NoError(t, err)
		assert.Equal(t, []string{plain}, files)
	})

	t.Run("missing plain file", func(t *testing.T) {
		_, err := ResolveFiles([]string{filepath.Join(dir, "missing.csv")})
		assert.Error(t, err)
	})

	t.Run("no matches", func(t *testing.T) {
		files, err := ResolveFiles([]string{filepath.Join(dir, "*.json")})
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestWatcherEmitsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 100*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "nvo-7-2024.csv")
	writeFile(t, path, "content")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "content")

	select {
	case got := <-w.Events():
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for new exam file")
	}

	// Rewriting identical content is not reported again.
	writeFile(t, path, "content")
	select {
	case got := <-w.Events():
		t.Fatalf("unexpected event %s", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherFlushDeduplicatesContent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, time.Second, nil)
	require.NoError(t, err)
	defer w.Stop()

	path := filepath.Join(dir, "dzi-12-2024.csv")
	writeFile(t, path, "a")

	start := time.Now()
	w.pending[path] = start
	w.flush(start.Add(500 * time.Millisecond))
	assert.Len(t, w.events, 0, "not settled yet")

	w.flush(start.Add(2 * time.Second))
	require.Len(t, w.events, 1)
	assert.Equal(t, path, <-w.events)

	w.pending[path] = start
	w.flush(start.Add(2 * time.Second))
	assert.Len(t, w.events, 0, "same content")

	writeFile(t, path, "b")
	w.pending[path] = start
	w.flush(start.Add(2 * time.Second))
	assert.Len(t, w.events, 1)
}
