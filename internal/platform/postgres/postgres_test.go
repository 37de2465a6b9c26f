package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_AreOrderedAndComplete(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, "0001_compliance_events", migrations[0].Version)
	assert.Contains(t, migrations[1].SQL, "event_notifications")
	assert.Contains(t, migrations[2].SQL, "outbox")
}

func TestApply_SkipsRecordedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{Version: "0001_a", SQL: "CREATE TABLE a (id INT)"},
		{Version: "0002_b", SQL: "CREATE TABLE b (id INT)"},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_a"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0002_b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, apply(context.Background(), db, migrations, logger))
	assert.NoError(t, mock.ExpectationsWereMet())
}
