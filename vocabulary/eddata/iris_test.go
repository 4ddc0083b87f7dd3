package eddata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityIRI(t *testing.T) {
	tests := []struct {
		name string
		typ  EntityType
		id   string
		want string
	}{
		{"wikidata id kept", EntityTypeRegion, "http://www.wikidata.org/entity/Q1", "http://www.wikidata.org/entity/Q1"},
		{"admin id", EntityTypeSchool, "1800001", EntityNamespace + "school/1800001"},
		{"foreign place", EntityTypePlace, "Чужбина/Чужбина/Мадрид", EntityNamespace + "place/%D0%A7%D1%83%D0%B6%D0%B1%D0%B8%D0%BD%D0%B0/%D0%A7%D1%83%D0%B6%D0%B1%D0%B8%D0%BD%D0%B0/%D0%9C%D0%B0%D0%B4%D1%80%D0%B8%D0%B4"},
		{"space escaped", EntityTypeExaminationScore, "a b", EntityNamespace + "score/a%20b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntityIRI(tt.typ, tt.id))
		})
	}
}

func TestClasses(t *testing.T) {
	assert.Contains(t, ClassesFor(EntityTypeSchool), ClassSchool)
	c, ok := PlaceClass("село")
	assert.True(t, ok)
	assert.Equal(t, ClassVillageInBulgaria, c)
	_, ok = PlaceClass("махала")
	assert.False(t, ok)
}
