// Package registry imports the institution registry published by the
// Ministry of Education (MON): school types and funding sources.
package registry

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/data-for-good-bg/semantic-schools/reconcile"
	"github.com/data-for-good-bg/semantic-schools/storage"
)

// Kindergarten rows are not schools.
const Kindergarten = "детска градина"

// ColumnMap maps lower case registry headers to field names.
// The funding header keeps the misspelling of the published files.
var ColumnMap = map[string]string{
	"код по неиспуо":                                       "school_id",
	"пълно наименование на институция":                     "name",
	"вид на институция":                                    "institution_type",
	"детайлен вид на институция":                           "institution_type_detailed",
	"вид на институцията според финнсирането":              "funding_type",
	"финансира се от":                                      "funded_by",
	"наименование на адрес на осъществяване на дейността": "activity_address",
	"тип на сградата":                                      "building_type",
	"код от кадастъра":                                     "cadastre_code",
	"географски координати (ширина)":                       "latitude",
	"географски координати (дължина)":                      "longitude",
	"област":                                               "region",
	"община":                                               "municipality",
	"населено място":                                       "place",
	"адрес":                                                "address",
}

// Institution is one registry row.
type Institution struct {
	SchoolID                string `csv:"school_id"`
	Name                    string `csv:"name"`
	InstitutionType         string `csv:"institution_type"`
	InstitutionTypeDetailed string `csv:"institution_type_detailed"`
	FundingType             string `csv:"funding_type"`
	FundedBy                string `csv:"funded_by"`
	ActivityAddress         string `csv:"activity_address"`
	BuildingType            string `csv:"building_type"`
	CadastreCode            string `csv:"cadastre_code"`
	Latitude                string `csv:"latitude"`
	Longitude               string `csv:"longitude"`
	Region                  string `csv:"region"`
	Municipality            string `csv:"municipality"`
	Place                   string `csv:"place"`
	Address                 string `csv:"address"`
}

func (i *Institution) trim() {
	for _, f := range []*string{
		&i.SchoolID, &i.Name, &i.InstitutionType, &i.InstitutionTypeDetailed,
		&i.FundingType, &i.FundedBy, &i.ActivityAddress, &i.BuildingType,
		&i.CadastreCode, &i.Latitude, &i.Longitude, &i.Region,
		&i.Municipality, &i.Place, &i.Address,
	} {
		*f = strings.TrimSpace(*f)
	}
}

// Parse decodes registry text. Rows are trimmed, kindergartens dropped and
// exact duplicates removed; the order of first occurrence is kept.
func Parse(text string, logger *slog.Logger) ([]Institution, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	raw, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("registry file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read registry header: %w", err)
	}
	header := make([]string, len(raw))
	for i, h := range raw {
		key := strings.ToLower(strings.TrimSpace(h))
		if mapped, ok := ColumnMap[key]; ok {
			key = mapped
		}
		header[i] = key
	}

	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return nil, fmt.Errorf("registry decoder: %w", err)
	}

	var (
		out          []Institution
		seen         = make(map[Institution]bool)
		kindergarten int
		duplicates   int
	)
	for {
		var inst Institution
		if err := dec.Decode(&inst); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode registry row: %w", err)
		}
		inst.trim()
		if inst.InstitutionType == Kindergarten {
			kindergarten++
			continue
		}
		if seen[inst] {
			duplicates++
			continue
		}
		seen[inst] = true
		out = append(out, inst)
	}
	logger.Debug("Parsed registry",
		"institutions", len(out),
		"kindergartens", kindergarten,
		"duplicates", duplicates)
	return out, nil
}

// Importer writes registry dimensions.
type Importer struct {
	upserter *reconcile.Upserter
	logger   *slog.Logger
}

// NewImporter creates an importer.
func NewImporter(upserter *reconcile.Upserter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{upserter: upserter, logger: logger}
}

// Import upserts the distinct school types and funding sources.
func (im *Importer) Import(ctx context.Context, institutions []Institution) error {
	types := distinct(institutions, func(i Institution) [2]string {
		return [2]string{i.InstitutionType, i.InstitutionTypeDetailed}
	})
	im.logger.Debug("Found institution types", "count", len(types))
	for _, t := range types {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = im.upserter.Upsert(ctx, storage.SchoolTypes, storage.Record{
			"name":    nullable(t[0]),
			"details": nullable(t[1]),
		})
	}

	sources := distinct(institutions, func(i Institution) [2]string {
		return [2]string{i.FundingType, i.FundedBy}
	})
	im.logger.Debug("Found funding sources", "count", len(sources))
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = im.upserter.Upsert(ctx, storage.FundingSources, storage.Record{
			"funding_type":             nullable(s[0]),
			"funding_institution_name": nullable(s[1]),
		})
	}

	im.logSchools(institutions)
	return nil
}

// logSchools reports schools without any row naming a building.
func (im *Importer) logSchools(institutions []Institution) {
	withBuilding := make(map[string]bool)
	names := make(map[string]string)
	for _, i := range institutions {
		if _, ok := names[i.SchoolID]; !ok {
			names[i.SchoolID] = i.Name
		}
		if i.BuildingType != "" {
			withBuilding[i.SchoolID] = true
		}
	}
	ids := make([]string, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !withBuilding[id] {
			im.logger.Info("Skipping school without building", "school_id", id, "name", names[id])
		}
	}
}

func distinct(institutions []Institution, key func(Institution) [2]string) [][2]string {
	seen := make(map[[2]string]bool)
	var out [][2]string
	for _, i := range institutions {
		k := key(i)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
