package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/formvibe/formvibe/internal/model"
	"github.com/formvibe/formvibe/internal/storage"
	"github.com/formvibe/formvibe/internal/testutil"
)

func TestOpenDatabaseRejectsMissingConfiguration(t *testing.T) {
	_, missingDriverErr := storage.OpenDatabase(storage.Config{})
	require.ErrorIs(t, missingDriverErr, storage.ErrMissingDatabaseDriverName)

	_, unsupportedErr := storage.OpenDatabase(storage.Config{DriverName: "oracle", DataSourceName: "dsn"})
	require.ErrorIs(t, unsupportedErr, storage.ErrUnsupportedDatabaseDriver)

	_, missingDSNErr := storage.OpenDatabase(storage.Config{DriverName: storage.DriverNameSQLite})
	require.ErrorIs(t, missingDSNErr, storage.ErrMissingDataSourceName)
}

func TestAutoMigrateCreatesAllTables(t *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(t)
	database, openErr := storage.OpenDatabase(sqliteDatabase.Configuration())
	require.NoError(t, openErr)
	require.NoError(t, storage.AutoMigrate(database))

	for _, value := range []any{
		&model.User{}, &model.Form{}, &model.Submission{},
		&model.Webhook{}, &model.APIKey{}, &model.AuditLog{},
	} {
		require.True(t, database.Migrator().HasTable(value))
	}
}

func TestNewIDProducesUniqueIdentifiers(t *testing.T) {
	first := storage.NewID()
	second := storage.NewID()
	require.NotEmpty(t, first)
	require.NotEqual(t, first, second)
}
