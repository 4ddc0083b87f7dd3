package wikidata

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/data-for-good-bg/semantic-schools/reconcile"
	"github.com/data-for-good-bg/semantic-schools/storage"
)

// Kinds of dimension that can be synced.
const (
	KindRegions        = "regions"
	KindMunicipalities = "muns"
	KindPlaces         = "places"
	KindSchools        = "schools"
)

// SupportedKinds lists every kind in sync order.
var SupportedKinds = []string{KindRegions, KindMunicipalities, KindPlaces, KindSchools}

// Quirk is a row the queries cannot return.
type Quirk struct {
	Note   string
	Table  storage.Table
	Record storage.Record
}

// Quirks are upserted after the places.
var Quirks = []Quirk{
	{
		Note:  "Bankya belongs to a district of Sofia, not directly to a municipality",
		Table: storage.Places,
		Record: storage.Record{
			"id":              EntityPrefix + "Q806817",
			"name":            "Банкя",
			"municipality_id": EntityPrefix + "Q4442915",
			"type":            "град",
			"area_id":         nil,
			"longitude":       "23.147239",
			"latitude":        "42.706945",
		},
	},
}

// Querier runs SPARQL queries.
type Querier interface {
	Query(ctx context.Context, query string) ([]Binding, error)
}

// Syncer copies query results into the dimension tables.
type Syncer struct {
	querier  Querier
	upserter *reconcile.Upserter
	logger   *slog.Logger
}

// NewSyncer creates a syncer.
func NewSyncer(querier Querier, upserter *reconcile.Upserter, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{querier: querier, upserter: upserter, logger: logger}
}

// Sync imports the given kinds in dependency order.
func (s *Syncer) Sync(ctx context.Context, kinds []string) error {
	for _, k := range kinds {
		if !slices.Contains(SupportedKinds, k) {
			return fmt.Errorf("unsupported kind %q, want one of %v", k, SupportedKinds)
		}
	}

	if slices.Contains(kinds, KindRegions) {
		if err := s.importQuery(ctx, RegionQuery, storage.Regions, nil); err != nil {
			return err
		}
	}
	if slices.Contains(kinds, KindMunicipalities) {
		if err := s.importQuery(ctx, MunicipalityQuery, storage.Municipalities, nil); err != nil {
			return err
		}
	}
	if slices.Contains(kinds, KindPlaces) {
		for _, class := range []string{CityInBulgaria, VillageInBulgaria} {
			constants := storage.Record{"type": PlaceTypes[class]}
			if err := s.importQuery(ctx, PlaceQuery(class), storage.Places, constants); err != nil {
				return err
			}
		}
		for _, q := range Quirks {
			s.logger.Debug("Applying quirk", "note", q.Note)
			// Failures are counted in the summary.
			_, _ = s.upserter.Upsert(ctx, q.Table, q.Record)
		}
	}
	if slices.Contains(kinds, KindSchools) {
		if err := s.importQuery(ctx, SchoolQuery, storage.Schools, nil); err != nil {
			return err
		}
	}
	return nil
}

// importQuery upserts the first binding of every id; later ones are Skipped.
func (s *Syncer) importQuery(ctx context.Context, query string, table storage.Table, constants storage.Record) error {
	bindings, err := s.querier.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", table.Name, err)
	}
	s.logger.Info("Importing from wikidata", "table", table.Name, "rows", len(bindings))

	known := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := b["id"]
		if known[id] {
			s.logger.Warn("Skipping duplicate", "table", table.Name, "id", id)
			s.upserter.Summary().Add(table.Name, reconcile.Skipped)
			continue
		}
		known[id] = true
		_, _ = s.upserter.Upsert(ctx, table, ToRecord(b, table, constants))
	}
	return nil
}
