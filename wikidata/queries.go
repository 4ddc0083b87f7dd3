package wikidata

import "strings"

// EntityPrefix is the IRI prefix of wikidata entities.
const EntityPrefix = "http://www.wikidata.org/entity/"

// Place classes.
const (
	CityInBulgaria    = "wd:Q89487741"
	VillageInBulgaria = "wd:Q15630849"
)

// PlaceTypes maps a place class to the stored place type.
var PlaceTypes = map[string]string{
	CityInBulgaria:    "град",
	VillageInBulgaria: "село",
}

// Column naming convention of the queries: every selected variable whose
// name is a column of the target table is written to it. A ?coordinates
// variable becomes longitude and latitude; ?area_id becomes a MusicBrainz IRI.

// RegionQuery selects the 28 regions (oblasts).
const RegionQuery = `
SELECT distinct ?id ?name ?coordinates ?area_id WHERE {

  ?region wdt:P31 wd:Q209824;
    wdt:P625 ?coordinates.
  OPTIONAL { ?region wdt:P982 ?area_id. }.

  BIND(?region AS ?id).

  SERVICE wikibase:label {
    bd:serviceParam wikibase:language "bg".
    ?region rdfs:label ?name.
  }
}
order by ?name
`

// MunicipalityQuery selects municipalities with their region.
const MunicipalityQuery = `
SELECT distinct ?region_id ?id ?name ?coordinates ?area_id  WHERE {

  ?mun wdt:P31 wd:Q1906268;
       wdt:P131 ?region;
       wdt:P625 ?coordinates.

  OPTIONAL { ?mun wdt:P982 ?area_id. }.

  ?region wdt:P31 wd:Q209824.

  BIND(?mun as ?id).
  BIND(?region as ?region_id).

  SERVICE wikibase:label {
    bd:serviceParam wikibase:language "bg".
    ?mun rdfs:label ?name.
    ?region rdfs:label ?regionLabel.
  }
}
order by ?regionLabel ?munLabel
`

const placeQueryTemplate = `
SELECT distinct ?municipality_id ?id ?name ?coordinates ?area_id WHERE {
  ?place wdt:P31 $CLASS;
   wdt:P131 ?mun;
   wdt:P625 ?coordinates.

  OPTIONAL { ?place wdt:P982 ?area_id. }.

  ?mun wdt:P31 wd:Q1906268;
       wdt:P131 ?region.

  BIND(?place as ?id).
  BIND(?mun as ?municipality_id).


  SERVICE wikibase:label {
    bd:serviceParam wikibase:language "bg".
    ?place rdfs:label ?name.
    ?mun rdfs:label ?munLabel.

  }
}
order by ?munLabel ?name
`

// PlaceQuery selects the places of one class, e.g. CityInBulgaria.
func PlaceQuery(class string) string {
	return strings.Replace(placeQueryTemplate, "$CLASS", class, 1)
}

// SchoolQuery selects schools having a Bulgarian school id.
const SchoolQuery = `
SELECT distinct ?place_id ?id ?name ?wikidata_id ?coordinates WHERE {
  ?school wdt:P31 wd:Q3914;
          wdt:P9034 ?bgSchoolId;
         wdt:P131 ?place.

  OPTIONAL { ?school wdt:P625 ?coordinates. }

  ?place wdt:P31 ?placeType.

  BIND(?place as ?place_id).
  BIND(?school as ?wikidata_id).

  FILTER(?placeType in (wd:Q89487741, wd:Q15630849)).

  SERVICE wikibase:label {
    bd:serviceParam wikibase:language "bg".
    ?school rdfs:label ?name.
    ?place rdfs:label ?placeLabel.
    ?bgSchoolId rdfs:label ?id.
  }
}
order by ?placeLabel ?id ?name
`
