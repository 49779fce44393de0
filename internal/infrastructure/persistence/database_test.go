package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medledger/billing/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newMockDatabase wraps a sqlmock connection in a Database
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"}),
		&gorm.Config{SkipDefaultTransaction: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return &Database{DB: db, Driver: DriverPostgres, sqlDB: sqlDB}, mock
}

func TestDatabase_Ping(t *testing.T) {
	db, mock := newMockDatabase(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(assert.AnError)

	assert.NoError(t, db.Ping(context.Background()))
	assert.ErrorIs(t, db.Ping(context.Background()), assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock := newMockDatabase(t)
	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DriverSQLite, db.Driver)
	assert.Equal(t, 1, db.sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, db.AutoMigrate())
	for _, table := range []string{"invoices", "invoice_items", "insurance_claims", "payments"} {
		assert.True(t, db.DB.Migrator().HasTable(table), table)
	}
}

func TestOpen_WithLogger(t *testing.T) {
	quiet := gormlogger.Default.LogMode(gormlogger.Silent)
	db, err := Open(&config.DatabaseConfig{Driver: DriverSQLite, SQLitePath: ":memory:"}, WithLogger(quiet))
	require.NoError(t, err)
	defer db.Close()

	assert.Same(t, quiet, db.DB.Config.Logger)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
