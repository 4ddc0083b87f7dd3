package eddata

// Predicates.
const (
	Name             = SchemaNamespace + "name"
	ContainedInPlace = SchemaNamespace + "containedInPlace"
	Longitude        = SchemaNamespace + "longitude"
	Latitude         = SchemaNamespace + "latitude"
	Identifier       = SchemaNamespace + "identifier"
	SameAs           = OWLNamespace + "sameAs"

	PlaceType        = Namespace + "placeType"
	ExamType         = Namespace + "examType"
	Year             = Namespace + "year"
	GradeLevel       = Namespace + "gradeLevel"
	MaxPossibleScore = Namespace + "maxPossibleScore"
	Examination      = Namespace + "examination"
	School           = Namespace + "school"
	Subject          = Namespace + "subject"
	People           = Namespace + "people"
	Score            = Namespace + "score"
)
