//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	appbilling "github.com/medledger/billing/internal/application/billing"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/infrastructure/migration"
	"github.com/medledger/billing/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newPostgresDB starts a throwaway postgres, applies the embedded migrations
// and returns a gorm handle on it
func newPostgresDB(t *testing.T) (*gorm.DB, *migration.Migrator) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.NewEmbedded(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return db, m
}

func TestPostgres_MigrationsRoundTrip(t *testing.T) {
	_, m := newPostgresDB(t)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	require.NoError(t, m.Down())
	require.NoError(t, m.Up())
}

func TestPostgres_LedgerRepositories(t *testing.T) {
	ctx := context.Background()
	db, _ := newPostgresDB(t)
	invoices := NewGormInvoiceRepository(db)
	claims := NewGormClaimRepository(db)

	inv := newPendingInvoice(t, "INV-20260310-000001", "P-1")
	require.NoError(t, invoices.Create(ctx, inv))

	loaded, err := invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, usd(22000), loaded.TotalAmount)
	assert.Len(t, loaded.Items, 2)

	t.Run("duplicate invoice number is a conflict", func(t *testing.T) {
		err := invoices.Create(ctx, newPendingInvoice(t, "INV-20260310-000001", "P-2"))
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("only one open claim per invoice", func(t *testing.T) {
		require.NoError(t, claims.Create(ctx, newSubmittedClaim(t, inv, "CLM-20260310-000001")))

		err := claims.Create(ctx, newSubmittedClaim(t, inv, "CLM-20260310-000002"))
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("next number follows the stored sequence", func(t *testing.T) {
		next, err := invoices.GenerateInvoiceNumber(ctx, repoTestDay.Add(8*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "INV-20260310-000002", next)
	})
}

func TestPostgres_ConcurrentSavesSerialize(t *testing.T) {
	ctx := context.Background()
	db, _ := newPostgresDB(t)
	scope := NewGormTransactionScope(db)

	inv := newPendingInvoice(t, "INV-20260310-000001", "P-1")
	require.NoError(t, NewGormInvoiceRepository(db).Create(ctx, inv))

	// each writer takes the row lock, then bumps the paid amount by 10.00
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
				locked, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, inv.ID)
				if err != nil {
					return err
				}
				paid, err := locked.PaidAmount.Add(usd(1000))
				if err != nil {
					return err
				}
				locked.PaidAmount = paid
				locked.Status = billing.InvoiceStatusPartiallyPaid
				return repos.InvoiceRepo().SaveWithLock(ctx, locked)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := NewGormInvoiceRepository(db).FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, usd(writers*1000), final.PaidAmount)
	assert.Equal(t, 1+writers, final.Version)
}
