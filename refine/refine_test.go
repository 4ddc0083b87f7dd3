package refine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-for-good-bg/semantic-schools/header"
	"github.com/data-for-good-bg/semantic-schools/subject"
)

func testSubjects(t *testing.T) subject.Map {
	t.Helper()
	m, err := subject.NewMap(subject.Default())
	require.NoError(t, err)
	return m
}

func TestPrettyPlace(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"с.   Равно поле", "с. Равно поле"},
		{"гр.СОФИЯ", "гр. София"},
		{"ГР. Велико търново", "гр. Велико търново"},
		{"Godech", "Godech"},
		{"  годеч ", "Годеч"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := PrettyPlace(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrettyPlace_Malformed(t *testing.T) {
	for _, input := range []string{".", "с. ", "гр. Ст. Загора"} {
		t.Run(input, func(t *testing.T) {
			_, err := PrettyPlace(input)
			assert.ErrorIs(t, err, ErrMalformedPlace)
		})
	}
}

func TestAdminUnitName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ЧУЖБИНА", "Чужбина"},
		{" Чужбина (Гърция)", "Чужбина"},
		{"училища в чужбина", "Чужбина"},
		{"СОФИЯ-ГРАД", "София-Град"},
		{"велико търново", "Велико Търново"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, AdminUnitName(tt.input))
		})
	}
}

func TestCleanAdminID(t *testing.T) {
	assert.Equal(t, "1000002", CleanAdminID("1000002.0"))
	assert.Equal(t, "2201001", CleanAdminID("2 201 001"))
	assert.Equal(t, "", CleanAdminID("nan"))
	assert.Equal(t, "", CleanAdminID(" "))
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw   string
		want  string
		valid bool
	}{
		{"5,50", "5.5", true},
		{"70.25", "70.25", true},
		{"(", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseScore(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got.Decimal))
			}
		})
	}

	_, err := ParseScore("n/a")
	assert.Error(t, err)
}

func TestParsePeople(t *testing.T) {
	got, err := ParsePeople("")
	require.NoError(t, err)
	assert.Equal(t, MissingPeople, got)

	got, err = ParsePeople(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int32(12), got)

	_, err = ParsePeople("x")
	assert.Error(t, err)
}

func TestRefine(t *testing.T) {
	c := &header.Canonical{
		Columns: []string{"region", "municipality", "place", "school_admin_id", "school", "мат people", "бел people", "общо people", "мат score", "бел score", "общо score"},
		Body: `"СОФИЯ-ГРАД","Столична","гр.СОФИЯ","2201 001","1 СУ","10","","30","80,5","(","70"` + "\n" +
			`"Чужбина (Испания)","","","","Училище в Мадрид","3","4","7","5,10","60","50"` + "\n",
	}

	table, err := NewRefiner(testSubjects(t), nil).Refine(c)
	require.NoError(t, err)

	require.Len(t, table.Subjects, 4)
	assert.Equal(t, "БЕЛ people", table.Subjects[0].Name())
	assert.Equal(t, "БЕЛ score", table.Subjects[1].Name())
	assert.Equal(t, "МАТ people", table.Subjects[2].Name())
	assert.Equal(t, "МАТ score", table.Subjects[3].Name())
	assert.Empty(t, table.Extra)

	require.Len(t, table.Rows, 2)
	first := table.Rows[0]
	assert.Equal(t, "София-Град", first.Region)
	assert.Equal(t, "Столична", first.Municipality)
	assert.Equal(t, "гр. София", first.Place)
	assert.Equal(t, "2201001", first.SchoolAdminID)
	assert.Equal(t, MissingPeople, first.Cells[0].People)
	assert.False(t, first.Cells[1].Score.Valid)
	assert.Equal(t, int32(10), first.Cells[2].People)
	assert.True(t, decimal.RequireFromString("80.5").Equal(first.Cells[3].Score.Decimal))

	second := table.Rows[1]
	assert.Equal(t, Foreign, second.Region)
	assert.Equal(t, Foreign, second.Municipality)
	assert.Equal(t, "Чужбина (испания)", second.Place)
	assert.Equal(t, "", second.SchoolAdminID)
}

func TestRefine_AdminIDQuirk(t *testing.T) {
	c := &header.Canonical{
		Columns: []string{"region", "municipality", "place", "school", "school_admin_id", "бел people", "бел score"},
		Body:    `"Велико Търново","","","РУО","","3","4,20"` + "\n",
	}

	table, err := NewRefiner(testSubjects(t), nil).Refine(c)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "3400", table.Rows[0].SchoolAdminID)
	assert.Equal(t, "Велико търново", table.Rows[0].Place)
}

func TestRefine_ExtraColumnsKeepOrder(t *testing.T) {
	c := &header.Canonical{
		Columns: []string{"№", "region", "municipality", "place", "school", "school_admin_id", "вид", "бел people", "бел score"},
		Body:    `"1","Русе","Русе","гр. Русе","ПМГ","1801","профилирана","50","5,10"` + "\n",
	}

	table, err := NewRefiner(testSubjects(t), nil).Refine(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"№", "вид"}, table.Extra)
	assert.Equal(t, []string{"1", "профилирана"}, table.Rows[0].Extra)
	assert.Equal(t, []string{"region", "municipality", "place", "school", "school_admin_id", "№", "вид", "БЕЛ people", "БЕЛ score"}, table.Columns())
}

func TestRefine_Errors(t *testing.T) {
	base := []string{"region", "municipality", "place", "school", "school_admin_id"}

	tests := []struct {
		name    string
		columns []string
		body    string
		want    error
	}{
		{
			name:    "unknown subject",
			columns: append(append([]string(nil), base...), "xyz people", "xyz score"),
			body:    `"Русе","Русе","гр. Русе","ПМГ","1801","50","5,10"` + "\n",
			want:    ErrUnknownSubject,
		},
		{
			name:    "malformed place",
			columns: append(append([]string(nil), base...), "бел people", "бел score"),
			body:    `"Русе","Русе","гр. Ст. Русе","ПМГ","1801","50","5,10"` + "\n",
			want:    ErrMalformedPlace,
		},
		{
			name:    "missing dimension",
			columns: []string{"region", "school", "бел people", "бел score"},
			body:    "",
			want:    ErrMissingColumn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRefiner(testSubjects(t), nil).Refine(&header.Canonical{Columns: tt.columns, Body: tt.body})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRefine_ShortRecordsArePadded(t *testing.T) {
	c := &header.Canonical{
		Columns: []string{"region", "municipality", "place", "school", "school_admin_id", "бел people", "бел score"},
		Body:    `"Русе","Русе","гр. Русе","ПМГ","1801","50"` + "\n",
	}

	table, err := NewRefiner(testSubjects(t), nil).Refine(c)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.False(t, table.Rows[0].Cells[1].Score.Valid)
}
