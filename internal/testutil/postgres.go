//go:build integration

package testutil

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/example/recycle-points/internal/repository"
)

// NewPostgresLedgerStore starts a throwaway postgres container and returns a
// migrated ledger on top of it.
func NewPostgresLedgerStore(t *testing.T, opts ...repository.Option) (*repository.LedgerStore, *gorm.DB) {
	t.Helper()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("recycle_points"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	return openLedger(t, repository.DriverPostgres, dsn, opts...)
}
