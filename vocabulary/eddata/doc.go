// Package eddata provides the RDF vocabulary of the exported school graph.
//
// Dimension entities reuse Wikidata classes and schema.org properties where
// one exists; exam facts use terms in the eddata namespace.
//
//	Entity type       → Class
//	Region            → schema:AdministrativeArea, wd:Q209824
//	Municipality      → schema:AdministrativeArea, wd:Q1906268
//	Place             → schema:Place, wd:Q89487741 or wd:Q15630849
//	School            → schema:School, wd:Q3914
//	Examination       → eddata:Examination
//	ExaminationScore  → eddata:ExaminationScore
package eddata
