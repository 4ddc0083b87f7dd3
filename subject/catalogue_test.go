package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UpperCasesID(t *testing.T) {
	item := New("ИспЕ", "Испански език", "ИЕ", "ИсЕ")
	assert.Equal(t, "ИСПЕ", item.ID)
	assert.Equal(t, []string{"испе", "ие", "исе"}, item.RawStrings())
	assert.Equal(t, "ИЕ,ИсЕ", item.JoinedAbbreviations())
}

func TestWithLevels(t *testing.T) {
	items := WithLevels(New("ФрЕ", "Френски език", "ФЕ"), LanguageLevels...)
	require.Len(t, items, 4)

	assert.Equal(t, "ФРЕ", items[0].ID)
	assert.Equal(t, "ФРЕ-Б1", items[1].ID)
	assert.Equal(t, "Френски език Б1", items[1].Name)
	assert.Equal(t, []string{"ФЕ-Б1"}, items[1].Abbreviations)
	assert.Equal(t, "ФРЕ-Б1.1", items[2].ID)
	assert.Equal(t, "ФРЕ-Б2", items[3].ID)
}

func TestDefault_MapHasNoConflicts(t *testing.T) {
	m, err := NewMap(Default())
	require.NoError(t, err)

	tests := []struct {
		abbr string
		id   string
	}{
		{"бел", "БЕЛ"},
		{"МАТ", "МАТ"},
		{"ги", "ГЕО"},
		{"иц", "ИСТ"},
		{"ие", "ИСПЕ"},
		{"исе-б1.1", "ИСПЕ-Б1.1"},
		{"ае-б2", "АЕ-Б2"},
		{"фе-б1", "ФРЕ-Б1"},
		{"диппк-пр", "ДИППК-ПР"},
		{"диппк-п.р", "ДИППК-П.Р"},
		{"чп", "ЧП"},
	}
	for _, tt := range tests {
		t.Run(tt.abbr, func(t *testing.T) {
			item, ok := m.Lookup(tt.abbr)
			require.True(t, ok)
			assert.Equal(t, tt.id, item.ID)
		})
	}

	_, ok := m.Lookup("2дзи")
	assert.False(t, ok)
}

func TestNewMap_Conflict(t *testing.T) {
	_, err := NewMap([]Item{New("ГЕО", "География", "ГИ"), New("ГИ", "Гражданско")})
	assert.Error(t, err)
}

func TestMap_Items(t *testing.T) {
	m, err := NewMap([]Item{New("МАТ", "Математика"), New("БЕЛ", "Български", "БЛ")})
	require.NoError(t, err)

	items := m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "БЕЛ", items[0].ID)
	assert.Equal(t, "МАТ", items[1].ID)
}

func TestSplitAbbreviations(t *testing.T) {
	assert.Nil(t, SplitAbbreviations(""))
	assert.Equal(t, []string{"ИЕ", "ИсЕ"}, SplitAbbreviations("ИЕ,ИсЕ"))
}
