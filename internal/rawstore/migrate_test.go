package rawstore

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationFiles = []string{
	"001_schemas.sql",
	"002_bronze.sql",
	"003_silver_gold.sql",
	"004_run_log.sql",
}

func expectMigrationPreamble(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_lock").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS econ_meta").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func expectUnlock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestMigrate_AppliesAllPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectMigrationPreamble(mock)
	mock.ExpectQuery("SELECT filename FROM econ_meta.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))

	for _, name := range migrationFiles {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec("INSERT INTO econ_meta.schema_migrations").
			WithArgs(name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectMigrationPreamble(mock)

	applied := pgxmock.NewRows([]string{"filename"})
	for _, name := range migrationFiles[:2] {
		applied.AddRow(name)
	}
	mock.ExpectQuery("SELECT filename FROM econ_meta.schema_migrations").
		WillReturnRows(applied)

	for _, name := range migrationFiles[2:] {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec("INSERT INTO econ_meta.schema_migrations").
			WithArgs(name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_NothingPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectMigrationPreamble(mock)

	applied := pgxmock.NewRows([]string{"filename"})
	for _, name := range migrationFiles {
		applied.AddRow(name)
	}
	mock.ExpectQuery("SELECT filename FROM econ_meta.schema_migrations").
		WillReturnRows(applied)
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ApplyErrorStops(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectMigrationPreamble(mock)
	mock.ExpectQuery("SELECT filename FROM econ_meta.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE").WillReturnError(errors.New("syntax error"))
	expectUnlock(mock)

	err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_schemas.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
