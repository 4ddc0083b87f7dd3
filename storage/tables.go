package storage

import (
	"fmt"
	"regexp"
	"slices"
)

// EditStamp is the column recording the run that last wrote a row.
const EditStamp = "edit_stamp"

// Record is one row keyed by column name.
type Record map[string]any

// Table describes a table of the schema.
type Table struct {
	Name string
	// Key lists the columns identifying a row.
	Key []string
	// Columns lists every column except the edit stamp, key columns first.
	Columns []string
	// Numeric lists columns compared as decimals.
	Numeric []string
	// Serial names an integer id assigned on insert, when the key is a natural one.
	Serial string
}

// IsNumeric reports whether column holds decimals.
func (t Table) IsNumeric(column string) bool {
	return slices.Contains(t.Numeric, column)
}

// KeyOf returns the key columns of r.
func (t Table) KeyOf(r Record) Record {
	key := make(Record, len(t.Key))
	for _, k := range t.Key {
		key[k] = r[k]
	}
	return key
}

// Tables of the schema.
var (
	Regions = Table{
		Name:    "region",
		Key:     []string{"id"},
		Columns: []string{"id", "name", "area_id", "longitude", "latitude"},
	}
	Municipalities = Table{
		Name:    "municipality",
		Key:     []string{"id"},
		Columns: []string{"id", "name", "region_id", "area_id", "longitude", "latitude"},
	}
	Places = Table{
		Name:    "place",
		Key:     []string{"id"},
		Columns: []string{"id", "name", "municipality_id", "type", "area_id", "longitude", "latitude"},
	}
	Schools = Table{
		Name:    "school",
		Key:     []string{"id"},
		Columns: []string{"id", "name", "place_id", "longitude", "latitude", "wikidata_id"},
	}
	Subjects = Table{
		Name:    "subject",
		Key:     []string{"id"},
		Columns: []string{"id", "name", "abbreviations"},
	}
	Examinations = Table{
		Name:    "examination",
		Key:     []string{"id"},
		Columns: []string{"id", "type", "year", "grade_level", "max_possible_score"},
		Numeric: []string{"max_possible_score"},
	}
	ExaminationScores = Table{
		Name:    "examination_score",
		Key:     []string{"examination_id", "school_id", "subject"},
		Columns: []string{"examination_id", "school_id", "subject", "people", "score", "max_possible_score"},
		Numeric: []string{"score", "max_possible_score"},
	}
	SchoolTypes = Table{
		Name:    "school_type",
		Key:     []string{"name", "details"},
		Columns: []string{"name", "details", "id"},
		Serial:  "id",
	}
	FundingSources = Table{
		Name:    "school_funding_source",
		Key:     []string{"funding_type", "funding_institution_name"},
		Columns: []string{"funding_type", "funding_institution_name", "id"},
		Serial:  "id",
	}
)

// AllTables lists the tables in dependency order.
var AllTables = []Table{
	Regions, Municipalities, Places, Schools, Subjects,
	Examinations, ExaminationScores, SchoolTypes, FundingSources,
}

// LookupTable finds a table by name.
func LookupTable(name string) (Table, error) {
	for _, t := range AllTables {
		if t.Name == name {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("unknown table %q", name)
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}
