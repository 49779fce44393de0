package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ledgerRow struct {
	ID     uint `gorm:"primaryKey"`
	Number string
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	return db
}

func TestInstrumentGorm_RecordsStatements(t *testing.T) {
	db := openSQLite(t)
	meter, collect := manualMeter(t)
	core, logs := observer.New(zapcore.WarnLevel)

	inst, err := InstrumentGorm(db, meter, GormConfig{SlowQueryThreshold: time.Nanosecond, DBSystem: "sqlite"}, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&ledgerRow{Number: "INV-20260310-000001"}).Error)
	var row ledgerRow
	require.NoError(t, db.WithContext(ctx).First(&row).Error)

	rm := collect()
	m, ok := findMetric(rm, "db_query_duration_seconds")
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)

	assert.Equal(t, int64(2), sumValue(t, rm, "db_slow_queries_total"))
	assert.Equal(t, 2, logs.FilterMessage("Slow ledger query").Len())

	_, ok = findMetric(rm, "db_pool_connections")
	assert.True(t, ok)
}

func TestInstrumentGorm_CountsFailuresButNotMisses(t *testing.T) {
	db := openSQLite(t)
	meter, collect := manualMeter(t)

	inst, err := InstrumentGorm(db, meter, GormConfig{SlowQueryThreshold: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })

	var row ledgerRow
	assert.ErrorIs(t, db.First(&row, 42).Error, gorm.ErrRecordNotFound)
	assert.Error(t, db.Exec("SELECT * FROM missing_table").Error)

	rm := collect()
	assert.Equal(t, int64(1), sumValue(t, rm, "db_query_errors_total"))
	_, slow := findMetric(rm, "db_slow_queries_total")
	assert.False(t, slow)
}

func TestGormInstrumentation_CloseNil(t *testing.T) {
	var g *GormInstrumentation
	assert.NoError(t, g.Close())
}
