package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"002_locations.up.sql":    {Data: []byte("CREATE TABLE locations (id TEXT PRIMARY KEY)")},
		"001_properties.up.sql":   {Data: []byte("CREATE TABLE properties (id TEXT PRIMARY KEY)")},
		"001_properties.down.sql": {Data: []byte("DROP TABLE properties")},
		"README.md":               {Data: []byte("docs")},
	}
}

func TestPendingMigrations_SortedUpOnly(t *testing.T) {
	fsys := testMigrations()
	fsys["archive/000_legacy.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 1")}

	names, err := pendingMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_properties.up.sql", "002_locations.up.sql"}, names)
}

func expectBookkeeping(mock pgxmock.PgxPoolIface, applied ...string) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	rows := pgxmock.NewRows([]string{"version"})
	for _, v := range applied {
		rows.AddRow(v)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).WillReturnRows(rows)
}

func expectLockAndRecord(mock pgxmock.PgxPoolIface, version string, inserted int64) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(migrationLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING")).
		WithArgs(version).
		WillReturnResult(pgxmock.NewResult("INSERT", inserted))
}

func TestRunMigrations_AppliesPendingAndSkipsApplied(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectBookkeeping(mock, "001_properties.up.sql")
	expectLockAndRecord(mock, "002_locations.up.sql", 1)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE locations")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	err = RunMigrations(context.Background(), mock, testMigrations(), quietLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_NothingPending(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectBookkeeping(mock, "001_properties.up.sql", "002_locations.up.sql")

	err = RunMigrations(context.Background(), mock, testMigrations(), quietLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_LostRaceSkipsScript(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectBookkeeping(mock, "001_properties.up.sql")
	expectLockAndRecord(mock, "002_locations.up.sql", 0)
	mock.ExpectCommit()

	err = RunMigrations(context.Background(), mock, testMigrations(), quietLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorRollsBackWithoutRetry(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectBookkeeping(mock)
	expectLockAndRecord(mock, "001_properties.up.sql", 1)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE properties")).
		WillReturnError(errors.New("syntax error at or near \"TABLE\""))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, testMigrations(), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_properties.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_ListFailure(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnError(errors.New("permission denied for table schema_migrations"))

	err = RunMigrations(context.Background(), mock, testMigrations(), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list applied migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}
