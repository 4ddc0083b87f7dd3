package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"

	"github.com/data-for-good-bg/semantic-schools/extract"
	"github.com/data-for-good-bg/semantic-schools/refine"
	"github.com/data-for-good-bg/semantic-schools/storage"
)

// ErrUnresolvedPlace is returned when a school's place has no match.
var ErrUnresolvedPlace = errors.New("unresolved place")

// Place types as stored in place.type.
const (
	PlaceTypeTown    = "град"
	PlaceTypeVillage = "село"
)

// Matching levels.
const (
	LevelRegion       = "region"
	LevelMunicipality = "municipality"
	LevelPlace        = "place"
)

// defaultVariants maps normalized export spellings to normalized store
// spellings, per level.
var defaultVariants = map[string]map[string]string{
	LevelRegion: {
		"софия-град": "софия столица",
		"софия град": "софия столица",
	},
	LevelMunicipality: {
		"софия-град": "столична",
		"софия град": "столична",
	},
	LevelPlace: {},
}

var placePrefixes = map[string]string{
	"гр": PlaceTypeTown,
	"с":  PlaceTypeVillage,
}

// Resolution is the matched place of one school.
type Resolution struct {
	Region       storage.Record
	Municipality storage.Record
	Place        storage.Record
	// Synthetic is set for schools abroad, whose dimensions are not in the
	// knowledge graph and have to be upserted with the school.
	Synthetic bool
}

// PlaceID returns the id of the matched place.
func (r Resolution) PlaceID() string {
	return fmt.Sprint(r.Place["id"])
}

// Matcher resolves the names of an export to stored dimension rows.
type Matcher struct {
	logger   *slog.Logger
	variants map[string]map[string]string

	regions        []storage.Record
	municipalities map[string][]storage.Record
	places         map[string][]storage.Record
}

// NewMatcher creates a matcher. Extra variants apply to every level.
func NewMatcher(extra map[string]string, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	variants := make(map[string]map[string]string, len(defaultVariants))
	for level, table := range defaultVariants {
		merged := maps.Clone(table)
		for raw, canonical := range extra {
			merged[normalizeName(raw)] = normalizeName(canonical)
		}
		variants[level] = merged
	}
	return &Matcher{logger: logger, variants: variants}
}

// Load reads the dimension tables.
func (m *Matcher) Load(ctx context.Context, opener Opener) error {
	return readAll(ctx, opener, func(s Session) error {
		regions, err := s.SelectAll(ctx, storage.Regions.Name, nil)
		if err != nil {
			return err
		}
		municipalities, err := s.SelectAll(ctx, storage.Municipalities.Name, nil)
		if err != nil {
			return err
		}
		places, err := s.SelectAll(ctx, storage.Places.Name, nil)
		if err != nil {
			return err
		}
		m.index(regions, municipalities, places)
		return nil
	})
}

func (m *Matcher) index(regions, municipalities, places []storage.Record) {
	m.regions = regions
	m.municipalities = groupBy(municipalities, "region_id")
	m.places = groupBy(places, "municipality_id")
	m.logger.Debug("Loaded dimensions",
		"regions", len(regions),
		"municipalities", len(municipalities),
		"places", len(places))
}

func groupBy(rows []storage.Record, column string) map[string][]storage.Record {
	out := make(map[string][]storage.Record)
	for _, r := range rows {
		k := fmt.Sprint(r[column])
		out[k] = append(out[k], r)
	}
	return out
}

// Resolve matches the region, municipality and place of a school.
func (m *Matcher) Resolve(school extract.SchoolRow) (Resolution, error) {
	if school.Region == refine.Foreign && school.Municipality == refine.Foreign {
		return foreignResolution(school.Place), nil
	}

	res, err := m.resolve(school)
	if err != nil {
		m.logger.Error("Could not resolve place",
			"place", school.Place,
			"municipality", school.Municipality,
			"region", school.Region,
			"school_admin_id", school.SchoolAdminID,
			"error", err)
		return Resolution{}, err
	}
	return res, nil
}

func (m *Matcher) resolve(school extract.SchoolRow) (Resolution, error) {
	region, ok := m.pick(m.regions, LevelRegion, school.Region, "")
	if !ok {
		return Resolution{}, fmt.Errorf("%w: region %q", ErrUnresolvedPlace, school.Region)
	}
	municipality, ok := m.pick(m.municipalities[fmt.Sprint(region["id"])], LevelMunicipality, school.Municipality, "")
	if !ok {
		return Resolution{}, fmt.Errorf("%w: municipality %q in %q", ErrUnresolvedPlace, school.Municipality, school.Region)
	}
	placeType, placeName := SplitPlace(school.Place)
	place, ok := m.pick(m.places[fmt.Sprint(municipality["id"])], LevelPlace, placeName, placeType)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: place %q in %q", ErrUnresolvedPlace, school.Place, school.Municipality)
	}
	return Resolution{Region: region, Municipality: municipality, Place: place}, nil
}

// pick returns the first candidate by id whose normalized name matches.
// Candidates of the wanted type win over others when a type is given.
func (m *Matcher) pick(candidates []storage.Record, level, name, wantType string) (storage.Record, bool) {
	target := m.canonical(level, name)
	var matches []storage.Record
	for _, c := range candidates {
		if m.canonical(level, fmt.Sprint(c["name"])) == target {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return fmt.Sprint(matches[i]["id"]) < fmt.Sprint(matches[j]["id"])
	})
	if wantType != "" {
		for _, c := range matches {
			if c["type"] == wantType {
				return c, true
			}
		}
	}
	return matches[0], true
}

func (m *Matcher) canonical(level, name string) string {
	n := normalizeName(name)
	if v, ok := m.variants[level][n]; ok {
		return v
	}
	return n
}

// SplitPlace separates the settlement prefix of a refined place name.
// "гр. Русе" gives ("град", "Русе"); a name without a known prefix has no type.
func SplitPlace(place string) (placeType, name string) {
	prefix, rest, ok := strings.Cut(place, ".")
	if !ok {
		return "", strings.TrimSpace(place)
	}
	t, known := placePrefixes[strings.ToLower(strings.TrimSpace(prefix))]
	if !known {
		return "", strings.TrimSpace(place)
	}
	return t, strings.TrimSpace(rest)
}

// normalizeName lowers, drops administrative words and parentheses and
// collapses whitespace: "Област Русе" and "Русе" normalize alike.
func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "област ")
	n = strings.TrimPrefix(n, "община ")
	n = strings.TrimSuffix(n, " община")
	n = strings.NewReplacer("(", " ", ")", " ").Replace(n)
	return strings.Join(strings.Fields(n), " ")
}

func foreignResolution(place string) Resolution {
	return Resolution{
		Region: storage.Record{
			"id":   refine.Foreign,
			"name": refine.Foreign,
		},
		Municipality: storage.Record{
			"id":        refine.Foreign,
			"name":      refine.Foreign,
			"region_id": refine.Foreign,
		},
		Place: storage.Record{
			"id":              refine.Foreign + "/" + refine.Foreign + "/" + place,
			"name":            place,
			"municipality_id": refine.Foreign,
		},
		Synthetic: true,
	}
}
