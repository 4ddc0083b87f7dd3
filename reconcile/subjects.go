package reconcile

import (
	"context"
	"fmt"

	"github.com/data-for-good-bg/semantic-schools/storage"
	"github.com/data-for-good-bg/semantic-schools/subject"
)

// SeedSubjects upserts the catalogue. It returns the first error after
// trying every item.
func SeedSubjects(ctx context.Context, u *Upserter, items []subject.Item) error {
	var first error
	for _, item := range items {
		_, err := u.Upsert(ctx, storage.Subjects, storage.Record{
			"id":            item.ID,
			"name":          item.Name,
			"abbreviations": item.JoinedAbbreviations(),
		})
		if err != nil && first == nil {
			first = fmt.Errorf("seed subject %s: %w", item.ID, err)
		}
	}
	return first
}

// LoadSubjects builds the abbreviation map from the stored catalogue.
func LoadSubjects(ctx context.Context, opener Opener) (subject.Map, error) {
	var rows []storage.Record
	err := readAll(ctx, opener, func(s Session) error {
		var err error
		rows, err = s.SelectAll(ctx, storage.Subjects.Name, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}

	items := make([]subject.Item, 0, len(rows))
	for _, r := range rows {
		abbreviations := ""
		if r["abbreviations"] != nil {
			abbreviations = fmt.Sprint(r["abbreviations"])
		}
		items = append(items, subject.Item{
			ID:            fmt.Sprint(r["id"]),
			Name:          fmt.Sprint(r["name"]),
			Abbreviations: subject.SplitAbbreviations(abbreviations),
		})
	}
	return subject.NewMap(items)
}
