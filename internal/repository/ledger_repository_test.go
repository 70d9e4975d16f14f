package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/example/recycle-points/internal/material"
	"github.com/example/recycle-points/internal/points"
	"github.com/example/recycle-points/internal/repository"
	"github.com/example/recycle-points/internal/testutil"
)

func intPtr(v int) *int { return &v }

func plasticRecord(address string, pts int64) repository.ScanRecord {
	return repository.ScanRecord{
		LocationKey: address,
		Classification: material.Classification{
			Type:       material.Plastic,
			RICCode:    intPtr(1),
			Confidence: 85,
			Recyclable: true,
		},
		Points:      pts,
		RawAnalysis: "material: plastic, ric: 1, confidence: 85, recyclable: yes",
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func requireConsistent(t *testing.T, store *repository.LedgerStore) {
	t.Helper()
	discrepancies, err := store.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.Empty(t, discrepancies)
}

func TestRecordScan_FreshLocation(t *testing.T) {
	store, db := testutil.NewLedgerStore(t)
	ctx := context.Background()

	rec := plasticRecord("12 Main St", points.ForClassification(plasticRecord("", 0).Classification))
	require.Equal(t, int64(10), rec.Points)

	receipt, err := store.RecordScan(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(10), receipt.NewTotal)
	assert.Equal(t, "12 main st", receipt.LocationKey)
	assert.NotEmpty(t, receipt.ScanID)

	session, err := store.GetScan(ctx, receipt.ScanID)
	require.NoError(t, err)
	assert.Equal(t, "plastic", session.MaterialType)
	require.NotNil(t, session.RICCode)
	assert.Equal(t, 1, *session.RICCode)
	assert.Equal(t, 85, session.Confidence)
	assert.True(t, session.Recyclable)
	assert.Equal(t, int64(10), session.PointsAwarded)
	assert.Equal(t, rec.RawAnalysis, session.RawAnalysis)

	assert.Equal(t, int64(1), countRows(t, db, &repository.Location{}))
	assert.Equal(t, int64(1), countRows(t, db, &repository.ScanSession{}))
}

func TestRecordScan_SequentialBurstKeepsInvariant(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)
	ctx := context.Background()

	awards := []int64{10, 0, 3, 25, 1, 7}
	var want int64
	for i, p := range awards {
		want += p
		address := "Oak Avenue 4"
		if i%2 == 1 {
			address = "  OAK   avenue 4 "
		}
		receipt, err := store.RecordScan(ctx, plasticRecord(address, p))
		require.NoError(t, err)
		assert.Equal(t, want, receipt.NewTotal)
	}

	status, err := store.Lookup(ctx, "oak avenue 4")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, want, status.PointsTotal)

	sessions, err := store.ListScans(ctx, "Oak Avenue 4", 100)
	require.NoError(t, err)
	assert.Len(t, sessions, len(awards))

	requireConsistent(t, store)
}

func TestRecordScan_ConcurrentScansSameLocation(t *testing.T) {
	store, db := testutil.NewLedgerStore(t)
	ctx := context.Background()

	const (
		n = 25
		p = int64(7)
	)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := store.RecordScan(ctx, plasticRecord("1 Shared Way", p))
			return err
		})
	}
	require.NoError(t, g.Wait())

	status, err := store.Lookup(ctx, "1 shared way")
	require.NoError(t, err)
	assert.Equal(t, n*p, status.PointsTotal)
	assert.Equal(t, int64(n), countRows(t, db, &repository.ScanSession{}))
	requireConsistent(t, store)
}

func TestRecordScan_ConcurrentScansDistinctLocations(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)
	ctx := context.Background()

	const perLocation = 5
	addresses := []string{"A Street", "B Street", "C Street", "D Street"}

	var g errgroup.Group
	for _, addr := range addresses {
		for i := 0; i < perLocation; i++ {
			g.Go(func() error {
				_, err := store.RecordScan(ctx, plasticRecord(addr, 2))
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, addr := range addresses {
		status, err := store.Lookup(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, int64(perLocation*2), status.PointsTotal, addr)
	}
	requireConsistent(t, store)
}

func TestRecordScan_FailureBeforeIncrementRollsBack(t *testing.T) {
	store, db := testutil.NewLedgerStore(t)
	ctx := context.Background()

	_, err := store.RecordScan(ctx, plasticRecord("9 Elm Rd", 4))
	require.NoError(t, err)

	errInjected := errors.New("injected increment failure")
	var failing atomic.Bool
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_increment", func(tx *gorm.DB) {
		if failing.Load() {
			_ = tx.AddError(errInjected)
		}
	}))

	failing.Store(true)
	_, err = store.RecordScan(ctx, plasticRecord("9 Elm Rd", 6))
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrPersistence)
	assert.ErrorIs(t, err, errInjected)

	_, err = store.RecordScan(ctx, plasticRecord("New Place 1", 6))
	require.Error(t, err)
	failing.Store(false)

	status, err := store.Lookup(ctx, "9 elm rd")
	require.NoError(t, err)
	assert.Equal(t, int64(4), status.PointsTotal)

	fresh, err := store.Lookup(ctx, "new place 1")
	require.NoError(t, err)
	assert.False(t, fresh.Exists, "failed first scan must not create the location")

	assert.Equal(t, int64(1), countRows(t, db, &repository.ScanSession{}))
	assert.Equal(t, int64(1), countRows(t, db, &repository.Location{}))
	requireConsistent(t, store)
}

func TestRecordScan_ConstraintViolationIsPersistenceError(t *testing.T) {
	store, db := testutil.NewLedgerStore(t)
	ctx := context.Background()

	rec := plasticRecord("5 Check Lane", 3)
	rec.Classification.Confidence = 150

	_, err := store.RecordScan(ctx, rec)
	require.Error(t, err)

	var perr *repository.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "repository.record_scan", perr.Op)

	assert.Zero(t, countRows(t, db, &repository.Location{}))
	assert.Zero(t, countRows(t, db, &repository.ScanSession{}))
}

func TestRecordScan_RejectsInvalidInput(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)
	ctx := context.Background()

	_, err := store.RecordScan(ctx, plasticRecord("   ", 1))
	assert.ErrorIs(t, err, repository.ErrPersistence)
	assert.ErrorIs(t, err, repository.ErrInvalidKey)

	_, err = store.RecordScan(ctx, plasticRecord("Somewhere", -1))
	assert.ErrorIs(t, err, repository.ErrPersistence)
}

func TestRecordScan_CommitsDespiteCancelledCaller(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	receipt, err := store.RecordScan(ctx, plasticRecord("Detached Street", 5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), receipt.NewTotal)
}

func TestLookup_IsReadOnly(t *testing.T) {
	store, db := testutil.NewLedgerStore(t)
	ctx := context.Background()

	status, err := store.Lookup(ctx, "Nowhere 0")
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Zero(t, status.PointsTotal)
	assert.Equal(t, "nowhere 0", status.Key)
	assert.Zero(t, countRows(t, db, &repository.Location{}))

	_, err = store.Lookup(ctx, "")
	assert.ErrorIs(t, err, repository.ErrInvalidKey)
}

func TestGetScan_NotFound(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)

	_, err := store.GetScan(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListScans_NewestFirstWithLimit(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)
	ctx := context.Background()

	var last string
	for i := 1; i <= 4; i++ {
		receipt, err := store.RecordScan(ctx, plasticRecord("History Road", int64(i)))
		require.NoError(t, err)
		last = receipt.ScanID
	}

	sessions, err := store.ListScans(ctx, "history road", 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, last, sessions[0].ID)
	assert.Equal(t, int64(4), sessions[0].PointsAwarded)
}

func TestTopLocationsAndAggregateMetrics(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)
	ctx := context.Background()

	for i, pts := range []int64{5, 30, 12} {
		_, err := store.RecordScan(ctx, plasticRecord(fmt.Sprintf("Street %d", i), pts))
		require.NoError(t, err)
	}
	unknown := repository.ScanRecord{
		LocationKey:    "Street 0",
		Classification: material.Classification{Type: material.Unknown, Confidence: 50, Uncertain: true},
	}
	_, err := store.RecordScan(ctx, unknown)
	require.NoError(t, err)

	top, err := store.TopLocations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "street 1", top[0].Key)
	assert.Equal(t, int64(30), top[0].PointsTotal)
	assert.Equal(t, "street 2", top[1].Key)

	agg, err := store.AggregateMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), agg.ScanCount)
	assert.Equal(t, int64(1), agg.UncertainCount)
	assert.Equal(t, int64(3), agg.RecyclableCount)
	assert.Equal(t, int64(47), agg.PointsAwarded)
	assert.Equal(t, int64(3), agg.LocationCount)
	assert.InDelta(t, 76.25, agg.AverageConfidence, 0.001)
}

func TestAggregateMetrics_Empty(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)

	agg, err := store.AggregateMetrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, agg.ScanCount)
	assert.Zero(t, agg.AverageConfidence)
}

func TestVerifyLedger_ReportsDrift(t *testing.T) {
	store, db := testutil.NewLedgerStore(t)
	ctx := context.Background()

	_, err := store.RecordScan(ctx, plasticRecord("Drift Lane", 10))
	require.NoError(t, err)
	requireConsistent(t, store)

	require.NoError(t, db.Exec(`UPDATE locations SET points_total = points_total + 5`).Error)

	discrepancies, err := store.VerifyLedger(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, "drift lane", discrepancies[0].LocationKey)
	assert.Equal(t, int64(15), discrepancies[0].PointsTotal)
	assert.Equal(t, int64(10), discrepancies[0].AuditSum)
	assert.Equal(t, int64(1), discrepancies[0].ScanCount)
}

func TestVerifyLedger_ConsistentLedgerIsEmptyList(t *testing.T) {
	store, _ := testutil.NewLedgerStore(t)
	ctx := context.Background()

	discrepancies, err := store.VerifyLedger(ctx)
	require.NoError(t, err)
	require.NotNil(t, discrepancies)
	assert.Empty(t, discrepancies)

	_, err = store.RecordScan(ctx, plasticRecord("Even Street", 10))
	require.NoError(t, err)

	discrepancies, err = store.VerifyLedger(ctx)
	require.NoError(t, err)
	require.NotNil(t, discrepancies)
	assert.Empty(t, discrepancies)
}
