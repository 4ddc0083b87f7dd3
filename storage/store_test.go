package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	return s
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		dsn    string
	}{
		{"postgresql://postgres:pw@localhost/eddata", DriverPostgres, "postgresql://postgres:pw@localhost/eddata"},
		{"postgres://localhost/eddata", DriverPostgres, "postgres://localhost/eddata"},
		{"sqlite:///tmp/eddata.db", DriverSQLite, "/tmp/eddata.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:eddata.db?cache=shared", DriverSQLite, "file:eddata.db?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := ParseURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}

	_, _, err := ParseURL("mysql://localhost")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	done, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.NoError(t, s.CheckSchema(ctx))
}

func TestCheckSchema_Uninitialized(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "empty.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.CheckSchema(ctx), ErrSchemaOutdated)
}

func TestMigrations_Sorted(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])
}

func TestTx_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Insert(ctx, "region", Record{"id": "Q1", "name": "Русе", EditStamp: "run-1"}))
	require.NoError(t, tx.Insert(ctx, "examination", Record{
		"id": "nvo-4-2023", "type": "НВО", "year": 2023, "grade_level": 4,
		"max_possible_score": decimal.NewFromInt(100),
	}))

	row, err := tx.Select(ctx, "region", Record{"id": "Q1"})
	require.NoError(t, err)
	assert.Equal(t, "Русе", row["name"])
	assert.Nil(t, row["area_id"])

	require.NoError(t, tx.Update(ctx, "region", Record{"id": "Q1"}, Record{"name": "Област Русе"}))
	row, err = tx.Select(ctx, "region", Record{"id": "Q1"})
	require.NoError(t, err)
	assert.Equal(t, "Област Русе", row["name"])

	exam, err := tx.Select(ctx, "examination", Record{"id": "nvo-4-2023"})
	require.NoError(t, err)
	assert.EqualValues(t, 2023, exam["year"])

	_, err = tx.Select(ctx, "region", Record{"id": "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := tx.Count(ctx, "region", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	removed, err := tx.Delete(ctx, "region", Record{"id": "Q1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, tx.Commit())
}

func TestTx_NullKeyAndNextID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	id, err := tx.NextID(ctx, "school_type", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.NoError(t, tx.Insert(ctx, "school_type", Record{"id": id, "name": "училище", "details": nil}))

	row, err := tx.Select(ctx, "school_type", Record{"name": "училище", "details": nil})
	require.NoError(t, err)
	assert.EqualValues(t, 1, row["id"])

	id, err = tx.NextID(ctx, "school_type", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestTx_ForeignKeyViolation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.Insert(ctx, "municipality", Record{"id": "M1", "name": "Русе", "region_id": "nope"})
	assert.Error(t, err)
}

func TestTx_RejectsBadIdentifiers(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.SelectAll(ctx, "region; DROP TABLE region", nil)
	assert.Error(t, err)
	assert.Error(t, tx.Insert(ctx, "region", Record{"id); --": "x"}))
}

func TestLookupTable(t *testing.T) {
	table, err := LookupTable("examination_score")
	require.NoError(t, err)
	assert.True(t, table.IsNumeric("score"))
	assert.False(t, table.IsNumeric("people"))
	assert.Equal(t, Record{"examination_id": "e", "school_id": "s", "subject": "БЕЛ"},
		table.KeyOf(Record{"examination_id": "e", "school_id": "s", "subject": "БЕЛ", "people": 3}))

	_, err = LookupTable("nope")
	assert.Error(t, err)
}
