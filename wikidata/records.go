package wikidata

import (
	"regexp"

	"github.com/data-for-good-bg/semantic-schools/storage"
)

// MusicBrainzAreaPrefix turns an area id into an IRI.
const MusicBrainzAreaPrefix = "https://musicbrainz.org/area/"

var pointPattern = regexp.MustCompile(`^Point\(([0-9]+\.[0-9]+) ([0-9]+\.[0-9]+)\)`)

// ParseCoordinates splits "Point(24.66 43.41)" into longitude and latitude.
func ParseCoordinates(point string) (longitude, latitude string, ok bool) {
	m := pointPattern.FindStringSubmatch(point)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// ToRecord maps a binding onto the columns of table. Columns missing from
// the binding take the constant value, else NULL.
func ToRecord(b Binding, table storage.Table, constants storage.Record) storage.Record {
	values := make(map[string]any, len(b)+1)
	for k, v := range b {
		values[k] = v
	}

	if area, ok := b["area_id"]; ok && area != "" {
		values["area_id"] = MusicBrainzAreaPrefix + area
	}
	if point, ok := b["coordinates"]; ok {
		delete(values, "coordinates")
		values["longitude"], values["latitude"] = nil, nil
		if lon, lat, ok := ParseCoordinates(point); ok {
			values["longitude"], values["latitude"] = lon, lat
		}
	}

	rec := make(storage.Record, len(table.Columns))
	for _, col := range table.Columns {
		v, ok := values[col]
		if !ok || v == nil {
			v = constants[col]
		}
		rec[col] = v
	}
	return rec
}
