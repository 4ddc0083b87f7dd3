package reconcile

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-for-good-bg/semantic-schools/config"
	"github.com/data-for-good-bg/semantic-schools/extract"
	"github.com/data-for-good-bg/semantic-schools/pipeline"
	"github.com/data-for-good-bg/semantic-schools/storage"
	"github.com/data-for-good-bg/semantic-schools/subject"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	return s
}

// seedDimensions stores a small slice of the administrative hierarchy with
// names spelled the way the knowledge graph spells them.
func seedDimensions(t *testing.T, s *storage.Store) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	rows := []struct {
		table  string
		record storage.Record
	}{
		{"region", storage.Record{"id": "Q1", "name": "Област Русе"}},
		{"region", storage.Record{"id": "Q2", "name": "Област София (столица)"}},
		{"municipality", storage.Record{"id": "M1", "name": "Община Русе", "region_id": "Q1"}},
		{"municipality", storage.Record{"id": "M2", "name": "Столична община", "region_id": "Q2"}},
		{"place", storage.Record{"id": "P0", "name": "Русе", "municipality_id": "M1", "type": PlaceTypeVillage}},
		{"place", storage.Record{"id": "P1", "name": "Русе", "municipality_id": "M1", "type": PlaceTypeTown}},
		{"place", storage.Record{"id": "P3", "name": "София", "municipality_id": "M2", "type": PlaceTypeTown}},
	}
	for _, r := range rows {
		require.NoError(t, tx.Insert(ctx, r.table, r.record))
	}
	require.NoError(t, tx.Commit())
}

func count(t *testing.T, s *storage.Store, table string, where storage.Record) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	n, err := tx.Count(ctx, table, where)
	require.NoError(t, err)
	return n
}

func TestUpserter_InsertFoundUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u := NewUpserter(StoreOpener(s), config.RunOptions{EditStamp: "run-1"}, nil, nil)

	region := storage.Record{"id": "Q1", "name": "Област Русе"}

	action, err := u.Upsert(ctx, storage.Regions, region)
	require.NoError(t, err)
	assert.Equal(t, Insert, action)

	action, err = u.Upsert(ctx, storage.Regions, region)
	require.NoError(t, err)
	assert.Equal(t, AlreadyExists, action)

	action, err = u.Upsert(ctx, storage.Regions, storage.Record{"id": "Q1", "name": "Русе"})
	require.NoError(t, err)
	assert.Equal(t, Update, action)

	row, err := u.Lookup(ctx, storage.Regions, storage.Record{"id": "Q1"})
	require.NoError(t, err)
	assert.Equal(t, "Русе", row["name"])
	assert.Equal(t, "run-1", row[storage.EditStamp])

	assert.Equal(t, 1, u.Summary().Count("region", Insert))
	assert.Equal(t, 1, u.Summary().Count("region", AlreadyExists))
	assert.Equal(t, 1, u.Summary().Count("region", Update))
}

func TestUpserter_NumericComparison(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u := NewUpserter(StoreOpener(s), config.RunOptions{EditStamp: "run-1"}, nil, nil)

	exam := storage.Record{
		"id": "nvo-4-2023", "type": "НВО", "year": 2023, "grade_level": 4,
		"max_possible_score": decimal.RequireFromString("100.00"),
	}
	action, err := u.Upsert(ctx, storage.Examinations, exam)
	require.NoError(t, err)
	assert.Equal(t, Insert, action)

	exam["max_possible_score"] = decimal.NewFromInt(100)
	action, err = u.Upsert(ctx, storage.Examinations, exam)
	require.NoError(t, err)
	assert.Equal(t, AlreadyExists, action)
}

func TestUpserter_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedDimensions(t, s)
	u := NewUpserter(StoreOpener(s), config.RunOptions{DryRun: true, EditStamp: "dry"}, nil, nil)

	action, err := u.Upsert(ctx, storage.Regions, storage.Record{"id": "Q9", "name": "Област Видин"})
	require.NoError(t, err)
	assert.Equal(t, Insert, action)

	action, err = u.Upsert(ctx, storage.Regions, storage.Record{"id": "Q1", "name": "Русе"})
	require.NoError(t, err)
	assert.Equal(t, Update, action)

	assert.Equal(t, int64(2), count(t, s, "region", nil))
	row, err := u.Lookup(ctx, storage.Regions, storage.Record{"id": "Q1"})
	require.NoError(t, err)
	assert.Equal(t, "Област Русе", row["name"])
}

func TestUpserter_SerialID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u := NewUpserter(StoreOpener(s), config.RunOptions{EditStamp: "run-1"}, nil, nil)

	for _, name := range []string{"училище", "детска градина", "училище"} {
		_, err := u.Upsert(ctx, storage.SchoolTypes, storage.Record{"name": name, "details": nil})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, u.Summary().Count("school_type", Insert))
	assert.Equal(t, 1, u.Summary().Count("school_type", AlreadyExists))

	row, err := u.Lookup(ctx, storage.SchoolTypes, storage.Record{"name": "детска градина", "details": nil})
	require.NoError(t, err)
	assert.EqualValues(t, 2, row["id"])
}

func TestUpserter_ConstraintFailure(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u := NewUpserter(StoreOpener(s), config.RunOptions{EditStamp: "run-1"}, nil, nil)

	action, err := u.Upsert(ctx, storage.Municipalities, storage.Record{"id": "M1", "name": "Русе", "region_id": "missing"})
	assert.Error(t, err)
	assert.Equal(t, Failed, action)
	assert.Equal(t, 1, u.Summary().Count("municipality", Failed))
	assert.Equal(t, int64(0), count(t, s, "municipality", nil))
}

func TestSameValue(t *testing.T) {
	tests := []struct {
		name    string
		numeric bool
		stored  any
		wanted  any
		want    bool
	}{
		{"nil both", false, nil, nil, true},
		{"nil stored", false, nil, "x", false},
		{"nil wanted", false, "x", nil, false},
		{"strings", false, "a", "a", true},
		{"int and int32", false, int64(4), int32(4), true},
		{"decimal scale", true, 5.5, decimal.RequireFromString("5.50"), true},
		{"decimal differs", true, "5.5", decimal.RequireFromString("5.51"), false},
		{"null decimal", true, nil, decimal.NullDecimal{}, true},
		{"bytes", false, []byte("a"), "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameValue(tt.numeric, tt.stored, tt.wanted))
		})
	}
}

func TestMatcher_Resolve(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedDimensions(t, s)

	m := NewMatcher(nil, nil)
	require.NoError(t, m.Load(ctx, StoreOpener(s)))

	tests := []struct {
		name      string
		school    extract.SchoolRow
		wantPlace string
	}{
		{"town preferred over village", extract.SchoolRow{Region: "Русе", Municipality: "Русе", Place: "гр. Русе"}, "P1"},
		{"village", extract.SchoolRow{Region: "Русе", Municipality: "Русе", Place: "с. Русе"}, "P0"},
		{"no prefix takes first id", extract.SchoolRow{Region: "Русе", Municipality: "Русе", Place: "Русе"}, "P0"},
		{"capital variants", extract.SchoolRow{Region: "София-Град", Municipality: "София-Град", Place: "гр. София"}, "P3"},
		{"case and spacing", extract.SchoolRow{Region: " РУСЕ ", Municipality: "русе", Place: "гр.  Русе"}, "P1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Resolve(tt.school)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlace, res.PlaceID())
			assert.False(t, res.Synthetic)
		})
	}
}

func TestMatcher_Unresolved(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedDimensions(t, s)

	m := NewMatcher(nil, nil)
	require.NoError(t, m.Load(ctx, StoreOpener(s)))

	for _, school := range []extract.SchoolRow{
		{Region: "Видин", Municipality: "Видин", Place: "гр. Видин"},
		{Region: "Русе", Municipality: "Иваново", Place: "с. Иваново"},
		{Region: "Русе", Municipality: "Русе", Place: "с. Николово"},
	} {
		_, err := m.Resolve(school)
		assert.ErrorIs(t, err, ErrUnresolvedPlace, school.Place)
	}
}

func TestMatcher_ExtraVariants(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedDimensions(t, s)

	m := NewMatcher(map[string]string{"Русе-град": "Русе"}, nil)
	require.NoError(t, m.Load(ctx, StoreOpener(s)))

	res, err := m.Resolve(extract.SchoolRow{Region: "Русе-град", Municipality: "Русе", Place: "гр. Русе"})
	require.NoError(t, err)
	assert.Equal(t, "P1", res.PlaceID())
}

func TestMatcher_Foreign(t *testing.T) {
	m := NewMatcher(nil, nil)
	res, err := m.Resolve(extract.SchoolRow{Region: "Чужбина", Municipality: "Чужбина", Place: "Чужбина (испания)"})
	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.Equal(t, "Чужбина/Чужбина/Чужбина (испания)", res.PlaceID())
	assert.Equal(t, "Чужбина", res.Municipality["region_id"])
}

func TestSplitPlace(t *testing.T) {
	tests := []struct {
		in, wantType, wantName string
	}{
		{"гр. Русе", PlaceTypeTown, "Русе"},
		{"с. Равно поле", PlaceTypeVillage, "Равно поле"},
		{"Русе", "", "Русе"},
		{"к. Нещо", "", "к. Нещо"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			gotType, gotName := SplitPlace(tt.in)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantName, gotName)
		})
	}
}

func TestExam(t *testing.T) {
	e := Exam{Type: ExamNVO, Grade: 7, Year: 2023}
	assert.Equal(t, "nvo-7-2023", e.ID())
	assert.Equal(t, "НВО", e.DisplayType())
	assert.NoError(t, e.Validate())
	assert.Equal(t, "ДЗИ", Exam{Type: ExamDZI}.DisplayType())

	for _, bad := range []Exam{
		{Type: "matura", Grade: 12, Year: 2023},
		{Type: ExamNVO, Grade: 12, Year: 2023},
		{Type: ExamDZI, Grade: 7, Year: 2023},
		{Type: ExamDZI, Grade: 12, Year: 1999},
	} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidExam, bad.ID())
	}
}

func testResult() *pipeline.Result {
	return &pipeline.Result{
		Schools: []extract.SchoolRow{
			{Region: "Русе", Municipality: "Русе", Place: "гр. Русе", School: "СУ Васил Левски", SchoolAdminID: "1800001"},
			{Region: "Чужбина", Municipality: "Чужбина", Place: "Чужбина (испания)", School: "БНУ Мадрид", SchoolAdminID: "9900001"},
			{Region: "Видин", Municipality: "Видин", Place: "гр. Видин", School: "СУ Видин", SchoolAdminID: "500001"},
			{Region: "Русе", Municipality: "Русе", Place: "гр. Русе", School: "Без номер", SchoolAdminID: ""},
		},
		Facts: []extract.ScoreFact{
			{SchoolAdminID: "1800001", Subject: "БЕЛ", MaxPossibleScore: decimal.NewFromInt(100), People: 24, Score: decimal.RequireFromString("55.5")},
			{SchoolAdminID: "9900001", Subject: "МАТ", MaxPossibleScore: decimal.NewFromInt(100), People: 3, Score: decimal.RequireFromString("40")},
			{SchoolAdminID: "500001", Subject: "БЕЛ", MaxPossibleScore: decimal.NewFromInt(100), People: 10, Score: decimal.RequireFromString("60")},
		},
	}
}

func runImport(t *testing.T, s *storage.Store, opts config.RunOptions) *Summary {
	t.Helper()
	ctx := context.Background()
	summary := NewSummary()
	u := NewUpserter(StoreOpener(s), opts, summary, nil)
	m := NewMatcher(nil, nil)
	require.NoError(t, m.Load(ctx, StoreOpener(s)))
	im := NewImporter(u, m, nil)
	require.NoError(t, im.Import(ctx, Exam{Type: ExamNVO, Grade: 7, Year: 2023}, testResult()))
	return summary
}

func TestImporter_Import(t *testing.T) {
	s := openTestStore(t)
	seedDimensions(t, s)

	first := runImport(t, s, config.RunOptions{EditStamp: "run-1"})
	assert.Equal(t, 2, first.Count("school", Insert))
	assert.Equal(t, 2, first.Count("school", Failed), "unresolved place and missing admin id")
	assert.Equal(t, 1, first.Count("region", Insert), "foreign region")
	assert.Equal(t, 1, first.Count("place", Insert))
	assert.Equal(t, 1, first.Count("examination", Insert))
	assert.Equal(t, 2, first.Count("examination_score", Insert))
	assert.Equal(t, 1, first.Count("examination_score", Failed), "score of the unresolved school")

	assert.Equal(t, int64(2), count(t, s, "examination_score", storage.Record{"examination_id": "nvo-7-2023"}))

	second := runImport(t, s, config.RunOptions{EditStamp: "run-2"})
	assert.Equal(t, 0, second.Total(Insert))
	assert.Equal(t, 0, second.Total(Update))
	assert.Equal(t, 2, second.Count("school", AlreadyExists))
	assert.Equal(t, 2, second.Count("examination_score", AlreadyExists))
	assert.Equal(t, 1, second.Count("examination", AlreadyExists))
}

func TestImporter_KeepsStoredSchoolName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedDimensions(t, s)

	u := NewUpserter(StoreOpener(s), config.RunOptions{EditStamp: "run-0"}, nil, nil)
	_, err := u.Upsert(ctx, storage.Schools, storage.Record{"id": "1800001", "name": "Средно училище „Васил Левски“", "place_id": "P1"})
	require.NoError(t, err)

	summary := runImport(t, s, config.RunOptions{EditStamp: "run-1"})
	assert.Equal(t, 1, summary.Count("school", AlreadyExists))

	row, err := u.Lookup(ctx, storage.Schools, storage.Record{"id": "1800001"})
	require.NoError(t, err)
	assert.Equal(t, "Средно училище „Васил Левски“", row["name"])
}

func TestImporter_DryRun(t *testing.T) {
	s := openTestStore(t)
	seedDimensions(t, s)

	summary := runImport(t, s, config.RunOptions{DryRun: true, EditStamp: "dry"})
	assert.Equal(t, 2, summary.Count("school", Insert))
	assert.Equal(t, 3, summary.Count("examination_score", Insert))
	assert.Equal(t, int64(0), count(t, s, "school", nil))
	assert.Equal(t, int64(0), count(t, s, "examination", nil))
	assert.Equal(t, int64(2), count(t, s, "region", nil))
}

func TestImporter_InvalidExam(t *testing.T) {
	im := NewImporter(nil, nil, nil)
	err := im.Import(context.Background(), Exam{Type: ExamNVO, Grade: 5, Year: 2023}, &pipeline.Result{})
	assert.ErrorIs(t, err, ErrInvalidExam)
}

func TestSubjects_SeedAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u := NewUpserter(StoreOpener(s), config.RunOptions{EditStamp: "run-1"}, nil, nil)

	require.NoError(t, SeedSubjects(ctx, u, subject.Default()))
	require.NoError(t, SeedSubjects(ctx, u, subject.Default()))
	assert.Equal(t, 0, u.Summary().Count("subject", Update))
	assert.Equal(t, len(subject.Default()), u.Summary().Count("subject", AlreadyExists))

	m, err := LoadSubjects(ctx, StoreOpener(s))
	require.NoError(t, err)
	item, ok := m.Lookup("ги")
	require.True(t, ok)
	assert.Equal(t, "ГЕО", item.ID)
}

func TestExaminations_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedDimensions(t, s)
	runImport(t, s, config.RunOptions{EditStamp: "run-1"})
	opener := StoreOpener(s)

	infos, err := ListExaminations(ctx, opener)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "nvo-7-2023", infos[0].ID)
	assert.Equal(t, "НВО", infos[0].Type)
	assert.Equal(t, int64(2), infos[0].Scores)

	var buf bytes.Buffer
	require.NoError(t, WriteExaminations(&buf, infos))
	assert.Contains(t, buf.String(), "id,type,year,grade_level,max_possible_score,scores\n")
	assert.Contains(t, buf.String(), "nvo-7-2023,НВО,2023,7,100,2\n")

	report, err := DeleteExamination(ctx, opener, "nvo-7-2023", config.RunOptions{DryRun: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Scores)
	assert.Equal(t, int64(1), count(t, s, "examination", nil))

	report, err = DeleteExamination(ctx, opener, "nvo-7-2023", config.RunOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Scores)
	assert.Equal(t, int64(0), count(t, s, "examination", nil))
	assert.Equal(t, int64(0), count(t, s, "examination_score", nil))

	_, err = DeleteExamination(ctx, opener, "nvo-7-2023", config.RunOptions{}, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWriteExaminations_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExaminations(&buf, nil))
	assert.Equal(t, "id,type,year,grade_level,max_possible_score,scores\n", buf.String())
}

type recordingObserver struct {
	seen []string
}

func (r *recordingObserver) ObserveAction(table, action string) {
	r.seen = append(r.seen, table+":"+action)
}

func TestSummary(t *testing.T) {
	obs := &recordingObserver{}
	s := NewSummary().WithObserver(obs)
	s.Add("school", Insert)
	s.Add("school", Insert)
	s.Add("region", Failed)

	assert.Equal(t, 2, s.Count("school", Insert))
	assert.Equal(t, 3, s.Total(Insert)+s.Total(Failed))
	assert.Equal(t, []string{"region", "school"}, s.Tables())
	assert.Equal(t, []string{"school:Insert", "school:Insert", "region:Failed"}, obs.seen)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	assert.Equal(t,
		"region --- Insert: 0, Update: 0, AlreadyExists: 0, Failed: 1, Skipped: 0\n"+
			"school --- Insert: 2, Update: 0, AlreadyExists: 0, Failed: 0, Skipped: 0\n",
		buf.String())
}
