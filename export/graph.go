package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/data-for-good-bg/semantic-schools/reconcile"
	"github.com/data-for-good-bg/semantic-schools/storage"
	"github.com/data-for-good-bg/semantic-schools/vocabulary/eddata"
)

// GraphBuilder reads the store and turns its rows into entities.
type GraphBuilder struct {
	opener reconcile.Opener
	logger *slog.Logger
}

// NewGraphBuilder creates a builder.
func NewGraphBuilder(opener reconcile.Opener, logger *slog.Logger) *GraphBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphBuilder{opener: opener, logger: logger}
}

type tableMapping struct {
	table  storage.Table
	entity func(storage.Record) Entity
}

// Build adds every region, municipality, place, school, examination and
// score to a new exporter.
func (b *GraphBuilder) Build(ctx context.Context) (*Exporter, error) {
	sess, err := b.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback()

	exp := NewExporter()
	for _, m := range []tableMapping{
		{storage.Regions, regionEntity},
		{storage.Municipalities, municipalityEntity},
		{storage.Places, placeEntity},
		{storage.Schools, schoolEntity},
		{storage.Examinations, examinationEntity},
		{storage.ExaminationScores, scoreEntity},
	} {
		rows, err := sess.SelectAll(ctx, m.table.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", m.table.Name, err)
		}
		for _, r := range rows {
			exp.AddEntity(m.entity(r))
		}
		b.logger.Debug("Exported table", "table", m.table.Name, "rows", len(rows))
	}
	return exp, nil
}

func str(v any) any {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	if s == "" {
		return nil
	}
	return s
}

func ref(t eddata.EntityType, v any) any {
	if v == nil {
		return nil
	}
	return IRI(eddata.EntityIRI(t, fmt.Sprint(v)))
}

func num(v any) any {
	if v == nil {
		return nil
	}
	d, err := decimal.NewFromString(fmt.Sprint(v))
	if err != nil {
		return nil
	}
	return d
}

func integer(v any) any {
	d, ok := num(v).(decimal.Decimal)
	if !ok {
		return nil
	}
	return d.IntPart()
}

func locationTriples(r storage.Record) []Triple {
	triples := []Triple{
		{eddata.Name, str(r["name"])},
		{eddata.Longitude, num(r["longitude"])},
		{eddata.Latitude, num(r["latitude"])},
	}
	if area, ok := str(r["area_id"]).(string); ok && eddata.IsIRI(area) {
		triples = append(triples, Triple{eddata.SameAs, IRI(area)})
	}
	return triples
}

func regionEntity(r storage.Record) Entity {
	return Entity{
		IRI:     eddata.EntityIRI(eddata.EntityTypeRegion, fmt.Sprint(r["id"])),
		Classes: eddata.ClassesFor(eddata.EntityTypeRegion),
		Triples: locationTriples(r),
	}
}

func municipalityEntity(r storage.Record) Entity {
	return Entity{
		IRI:     eddata.EntityIRI(eddata.EntityTypeMunicipality, fmt.Sprint(r["id"])),
		Classes: eddata.ClassesFor(eddata.EntityTypeMunicipality),
		Triples: append(locationTriples(r),
			Triple{eddata.ContainedInPlace, ref(eddata.EntityTypeRegion, r["region_id"])}),
	}
}

func placeEntity(r storage.Record) Entity {
	classes := eddata.ClassesFor(eddata.EntityTypePlace)
	placeType := fmt.Sprint(r["type"])
	if c, ok := eddata.PlaceClass(placeType); ok {
		classes = append(classes[:len(classes):len(classes)], c)
	}
	return Entity{
		IRI:     eddata.EntityIRI(eddata.EntityTypePlace, fmt.Sprint(r["id"])),
		Classes: classes,
		Triples: append(locationTriples(r),
			Triple{eddata.PlaceType, str(r["type"])},
			Triple{eddata.ContainedInPlace, ref(eddata.EntityTypeMunicipality, r["municipality_id"])}),
	}
}

func schoolEntity(r storage.Record) Entity {
	triples := []Triple{
		{eddata.Identifier, str(r["id"])},
		{eddata.Name, str(r["name"])},
		{eddata.ContainedInPlace, ref(eddata.EntityTypePlace, r["place_id"])},
		{eddata.Longitude, num(r["longitude"])},
		{eddata.Latitude, num(r["latitude"])},
	}
	if wd, ok := str(r["wikidata_id"]).(string); ok && eddata.IsIRI(wd) {
		triples = append(triples, Triple{eddata.SameAs, IRI(wd)})
	}
	return Entity{
		IRI:     eddata.EntityIRI(eddata.EntityTypeSchool, fmt.Sprint(r["id"])),
		Classes: eddata.ClassesFor(eddata.EntityTypeSchool),
		Triples: triples,
	}
}

func examinationEntity(r storage.Record) Entity {
	return Entity{
		IRI:     eddata.EntityIRI(eddata.EntityTypeExamination, fmt.Sprint(r["id"])),
		Classes: eddata.ClassesFor(eddata.EntityTypeExamination),
		Triples: []Triple{
			{eddata.ExamType, str(r["type"])},
			{eddata.Year, integer(r["year"])},
			{eddata.GradeLevel, integer(r["grade_level"])},
			{eddata.MaxPossibleScore, num(r["max_possible_score"])},
		},
	}
}

func scoreEntity(r storage.Record) Entity {
	id := fmt.Sprintf("%v/%v/%v", r["examination_id"], r["school_id"], r["subject"])
	return Entity{
		IRI:     eddata.EntityIRI(eddata.EntityTypeExaminationScore, id),
		Classes: eddata.ClassesFor(eddata.EntityTypeExaminationScore),
		Triples: []Triple{
			{eddata.Examination, ref(eddata.EntityTypeExamination, r["examination_id"])},
			{eddata.School, ref(eddata.EntityTypeSchool, r["school_id"])},
			{eddata.Subject, str(r["subject"])},
			{eddata.People, integer(r["people"])},
			{eddata.Score, num(r["score"])},
			{eddata.MaxPossibleScore, num(r["max_possible_score"])},
		},
	}
}
