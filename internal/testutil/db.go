package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/recycle-points/internal/repository"
)

// SQLiteDSN returns a WAL-mode database file under a per-test temp dir.
func SQLiteDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ledger.db") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
}

// NewLedgerStore opens a migrated SQLite ledger that is closed when the
// test ends.
func NewLedgerStore(t *testing.T, opts ...repository.Option) (*repository.LedgerStore, *gorm.DB) {
	t.Helper()
	return openLedger(t, repository.DriverSQLite, SQLiteDSN(t), opts...)
}

func openLedger(t *testing.T, driver, dsn string, opts ...repository.Option) (*repository.LedgerStore, *gorm.DB) {
	t.Helper()

	ctx := context.Background()
	db, err := repository.Open(ctx, driver, dsn, gormlogger.Silent)
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := repository.NewLedgerStore(db, zap.NewNop(), opts...)
	if err := store.Migrate(ctx, driver); err != nil {
		t.Fatalf("migrate %s: %v", driver, err)
	}
	return store, db
}
