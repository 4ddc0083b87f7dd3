package eddata

import (
	"net/url"
	"strings"
)

// Namespace is the base IRI of eddata ontology terms.
const Namespace = "https://data-for-good.bg/eddata/ontology/"

// EntityNamespace is the base IRI of entities without a Wikidata IRI.
const EntityNamespace = "https://data-for-good.bg/eddata/entity/"

// External namespaces.
const (
	SchemaNamespace   = "https://schema.org/"
	WikidataNamespace = "http://www.wikidata.org/entity/"
	OWLNamespace      = "http://www.w3.org/2002/07/owl#"
	RDFType           = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	XSDNamespace      = "http://www.w3.org/2001/XMLSchema#"
)

// Prefixes used in Turtle and JSON-LD output.
var Prefixes = map[string]string{
	"eddata": Namespace,
	"entity": EntityNamespace,
	"schema": SchemaNamespace,
	"wd":     WikidataNamespace,
	"owl":    OWLNamespace,
	"xsd":    XSDNamespace,
}

// EntityType names a kind of exported entity.
type EntityType string

// Entity types.
const (
	EntityTypeRegion           EntityType = "region"
	EntityTypeMunicipality     EntityType = "municipality"
	EntityTypePlace            EntityType = "place"
	EntityTypeSchool           EntityType = "school"
	EntityTypeExamination      EntityType = "examination"
	EntityTypeExaminationScore EntityType = "score"
)

// Classes.
const (
	ClassAdministrativeArea = SchemaNamespace + "AdministrativeArea"
	ClassPlace              = SchemaNamespace + "Place"
	ClassSchool             = SchemaNamespace + "School"
	ClassExamination        = Namespace + "Examination"
	ClassExaminationScore   = Namespace + "ExaminationScore"

	ClassRegionOfBulgaria       = WikidataNamespace + "Q209824"
	ClassMunicipalityOfBulgaria = WikidataNamespace + "Q1906268"
	ClassCityInBulgaria         = WikidataNamespace + "Q89487741"
	ClassVillageInBulgaria      = WikidataNamespace + "Q15630849"
	ClassWikidataSchool         = WikidataNamespace + "Q3914"
)

var entityClasses = map[EntityType][]string{
	EntityTypeRegion:           {ClassAdministrativeArea, ClassRegionOfBulgaria},
	EntityTypeMunicipality:     {ClassAdministrativeArea, ClassMunicipalityOfBulgaria},
	EntityTypePlace:            {ClassPlace},
	EntityTypeSchool:           {ClassSchool, ClassWikidataSchool},
	EntityTypeExamination:      {ClassExamination},
	EntityTypeExaminationScore: {ClassExaminationScore},
}

// placeClasses maps the stored place type to its Wikidata class.
var placeClasses = map[string]string{
	"град": ClassCityInBulgaria,
	"село": ClassVillageInBulgaria,
}

// ClassesFor returns the rdf:type values of an entity type.
func ClassesFor(t EntityType) []string {
	return entityClasses[t]
}

// PlaceClass returns the class of a place type, if known.
func PlaceClass(placeType string) (string, bool) {
	c, ok := placeClasses[placeType]
	return c, ok
}

// EntityIRI returns id when it already is an IRI, else an IRI in the
// entity namespace: EntityIRI("school", "1800001") is
// https://data-for-good.bg/eddata/entity/school/1800001.
func EntityIRI(t EntityType, id string) string {
	if IsIRI(id) {
		return id
	}
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return EntityNamespace + string(t) + "/" + strings.Join(parts, "/")
}

// IsIRI reports whether s is an http(s) IRI.
func IsIRI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
