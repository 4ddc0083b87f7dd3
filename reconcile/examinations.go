package reconcile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/jszwec/csvutil"

	"github.com/data-for-good-bg/semantic-schools/config"
	"github.com/data-for-good-bg/semantic-schools/storage"
)

// ExaminationInfo is one row of the examination listing.
type ExaminationInfo struct {
	ID               string `csv:"id"`
	Type             string `csv:"type"`
	Year             string `csv:"year"`
	GradeLevel       string `csv:"grade_level"`
	MaxPossibleScore string `csv:"max_possible_score"`
	Scores           int64  `csv:"scores"`
}

// ListExaminations returns every examination with its number of scores.
func ListExaminations(ctx context.Context, opener Opener) ([]ExaminationInfo, error) {
	var out []ExaminationInfo
	err := readAll(ctx, opener, func(s Session) error {
		rows, err := s.SelectAll(ctx, storage.Examinations.Name, nil)
		if err != nil {
			return err
		}
		for _, r := range rows {
			n, err := s.Count(ctx, storage.ExaminationScores.Name, storage.Record{"examination_id": r["id"]})
			if err != nil {
				return err
			}
			out = append(out, ExaminationInfo{
				ID:               text(r["id"]),
				Type:             text(r["type"]),
				Year:             text(r["year"]),
				GradeLevel:       text(r["grade_level"]),
				MaxPossibleScore: text(r["max_possible_score"]),
				Scores:           n,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list examinations: %w", err)
	}
	return out, nil
}

// WriteExaminations prints the listing as CSV with a header.
func WriteExaminations(w io.Writer, infos []ExaminationInfo) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(infos) == 0 {
		if err := enc.EncodeHeader(ExaminationInfo{}); err != nil {
			return err
		}
	}
	for _, info := range infos {
		if err := enc.Encode(info); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DeletionReport tells what DeleteExamination removed.
type DeletionReport struct {
	ExaminationID string
	Scores        int64
	DryRun        bool
}

// DeleteExamination removes an examination and its scores. In dry-run it
// only counts them. An unknown id is storage.ErrNotFound.
func DeleteExamination(ctx context.Context, opener Opener, id string, opts config.RunOptions, logger *slog.Logger) (DeletionReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	report := DeletionReport{ExaminationID: id, DryRun: opts.DryRun}

	sess, err := opener.Open(ctx)
	if err != nil {
		return report, err
	}
	defer sess.Rollback()

	key := storage.Record{"id": id}
	if _, err := sess.Select(ctx, storage.Examinations.Name, key); err != nil {
		return report, err
	}
	scoreKey := storage.Record{"examination_id": id}

	if opts.DryRun {
		report.Scores, err = sess.Count(ctx, storage.ExaminationScores.Name, scoreKey)
		if err != nil {
			return report, err
		}
		logger.Info("Would delete examination", "examination", id, "scores", report.Scores)
		return report, nil
	}

	report.Scores, err = sess.Delete(ctx, storage.ExaminationScores.Name, scoreKey)
	if err != nil {
		return report, fmt.Errorf("delete scores of %s: %w", id, err)
	}
	if _, err := sess.Delete(ctx, storage.Examinations.Name, key); err != nil {
		return report, fmt.Errorf("delete examination %s: %w", id, err)
	}
	if err := sess.Commit(); err != nil {
		return report, fmt.Errorf("commit deletion of %s: %w", id, err)
	}
	logger.Info("Deleted examination", "examination", id, "scores", report.Scores)
	return report, nil
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
