package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-for-good-bg/semantic-schools/extract"
	"github.com/data-for-good-bg/semantic-schools/header"
	"github.com/data-for-good-bg/semantic-schools/subject"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	m, err := subject.NewMap(subject.Default())
	require.NoError(t, err)
	return New(m, nil)
}

func TestRun_SingleSchoolTwoSubjects(t *testing.T) {
	content := "\ufeff" +
		`"Област","Община","Населено място","Училище","Код по Админ","БЕЛ","","МАТ",""` + "\n" +
		`"","","","","","Явили се","Ср. успех в точки","Явили се","Ср. успех в точки"` + "\n" +
		`"Русе","Русе","гр. Русе","ПМГ Баба Тонка","1801","0","0","24","5,50"` + "\n"

	path := filepath.Join(t.TempDir(), "dzi-2023.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	result, err := newPipeline(t).Run(path)
	require.NoError(t, err)

	require.Len(t, result.Schools, 1)
	assert.Equal(t, extract.SchoolRow{
		Region:        "Русе",
		Municipality:  "Русе",
		Place:         "гр. Русе",
		School:        "ПМГ Баба Тонка",
		SchoolAdminID: "1801",
	}, result.Schools[0])

	require.Len(t, result.Facts, 1)
	fact := result.Facts[0]
	assert.Equal(t, "1801", fact.SchoolAdminID)
	assert.Equal(t, "МАТ", fact.Subject)
	assert.Equal(t, int32(24), fact.People)
	assert.True(t, decimal.RequireFromString("5.5").Equal(fact.Score))
	assert.True(t, decimal.NewFromInt(6).Equal(fact.MaxPossibleScore))
}

func TestProcess_SubjectPairingAcrossShapes(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "attribute first, grouped by attribute",
			text: `"Област","Община","Населено място","Код","Училище","Явили се МАТ","Явили се БЕЛ","Ср. успех в точки МАТ","Ср. успех в точки БЕЛ"` + "\n" +
				`"Видин","Видин","гр. Видин","500","ОУ","5","6","20,1","19"` + "\n",
		},
		{
			name: "subject first",
			text: `"Област","Община","Населено място","Училище","Код по АДМИН","БЕЛ Явили се","БЕЛ Ср. успех в точки","МАТ Явили се","МАТ  Ср. успех в точки"` + "\n" +
				`"Видин","Видин","гр. Видин","ОУ","500","6","19","5","20,1"` + "\n",
		},
		{
			name: "subject option line",
			text: `"Област","Община","Населено място","Училище","Код по Админ","Явили се","Ср. успех в точки","Явили се","Ср. успех в точки"` + "\n" +
				`"","","","","","БЕЛ","БЕЛ","МАТ","МАТ"` + "\n" +
				`"Видин","Видин","гр. Видин","ОУ","500","6","19","5","20,1"` + "\n",
		},
	}

	p := newPipeline(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Process(tt.text)
			require.NoError(t, err)
			require.Len(t, result.Facts, 2)

			assert.Equal(t, "БЕЛ", result.Facts[0].Subject)
			assert.Equal(t, int32(6), result.Facts[0].People)
			assert.True(t, decimal.NewFromInt(19).Equal(result.Facts[0].Score))

			assert.Equal(t, "МАТ", result.Facts[1].Subject)
			assert.Equal(t, int32(5), result.Facts[1].People)
			assert.True(t, decimal.RequireFromString("20.1").Equal(result.Facts[1].Score))
		})
	}
}

func TestProcess_UnsupportedFile(t *testing.T) {
	_, err := newPipeline(t).Process("\"Резултати\"\n\"a\",\"b\"\n")
	assert.ErrorIs(t, err, header.ErrHeaderNotFound)
}
