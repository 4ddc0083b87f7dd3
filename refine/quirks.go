package refine

// Quirk corrects one known defect of a specific historical export.
// Quirks run after the identifier cleanup and gap-fill, before names are
// prettified, so conditions see the place exactly as written in the file.
type Quirk struct {
	// Note names the export and the defect.
	Note string
	// When selects the affected rows.
	When func(row *Row) bool
	// Fix corrects a selected row in place.
	Fix func(row *Row)
}

// Quirks is the table of known export defects.
var Quirks = []Quirk{
	missingAdminID("Велико Търново", "3400", "dzi-2017: РУО Велико Търново row without admin id"),
	missingAdminID("Пазарджик", "1300", "dzi-2017: РУО Пазарджик row without admin id"),
}

func missingAdminID(place, adminID, note string) Quirk {
	return Quirk{
		Note: note,
		When: func(row *Row) bool {
			return row.SchoolAdminID == "" && row.Place == place
		},
		Fix: func(row *Row) {
			row.SchoolAdminID = adminID
		},
	}
}

// applyQuirks runs every matching quirk and returns the notes of those applied.
func applyQuirks(quirks []Quirk, row *Row) []string {
	var applied []string
	for _, q := range quirks {
		if q.When(row) {
			q.Fix(row)
			applied = append(applied, q.Note)
		}
	}
	return applied
}
