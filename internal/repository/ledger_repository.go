package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/recycle-points/internal/logging"
	"github.com/example/recycle-points/internal/material"
)

// DefaultStoreTimeout bounds one RecordScan including retries.
const DefaultStoreTimeout = 10 * time.Second

// ScanRecord is the input of RecordScan.
type ScanRecord struct {
	LocationKey    string
	Classification material.Classification
	Points         int64
	RawAnalysis    string
}

// Receipt is returned once a scan and its ledger increment are committed.
type Receipt struct {
	ScanID      string
	LocationKey string
	NewTotal    int64
	CreatedAt   time.Time
}

// LocationStatus is the read-only view returned by Lookup.
type LocationStatus struct {
	Key         string
	Exists      bool
	PointsTotal int64
}

// LedgerStore persists location totals and their scan audit trail.
type LedgerStore struct {
	db             *gorm.DB
	logger         *zap.Logger
	storeTimeout   time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
	newID          func() string
}

// Option customises a LedgerStore.
type Option func(*LedgerStore)

// WithStoreTimeout bounds each RecordScan call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *LedgerStore) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithRetry overrides the transient-error retry policy.
func WithRetry(attempts int, initial, maxBackoff time.Duration) Option {
	return func(s *LedgerStore) {
		s.retryAttempts = attempts
		s.initialBackoff = initial
		s.maxBackoff = maxBackoff
	}
}

// NewLedgerStore creates a new store instance.
func NewLedgerStore(db *gorm.DB, logger *zap.Logger, opts ...Option) *LedgerStore {
	s := &LedgerStore{
		db:             db,
		logger:         logger.Named("ledger_store"),
		storeTimeout:   DefaultStoreTimeout,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordScan creates the location if needed, appends the scan session and
// increments the location total, all in one transaction. The transaction is
// detached from the caller's cancellation so it either commits or rolls back
// in full.
func (s *LedgerStore) RecordScan(ctx context.Context, rec ScanRecord) (Receipt, error) {
	const op = "repository.record_scan"

	scanID := s.newID()
	key, err := NormalizeKey(rec.LocationKey)
	if err != nil {
		return Receipt{}, s.persistenceError(op, scanID, err)
	}
	if rec.Points < 0 {
		return Receipt{}, s.persistenceError(op, scanID, fmt.Errorf("negative points %d", rec.Points))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	var receipt Receipt
	err = s.executeWithRetry(ctx, op, scanID, func() error {
		now := s.now()
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			loc := Location{Key: key, CreatedAt: now, UpdatedAt: now}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&loc).Error; err != nil {
				return fmt.Errorf("ensure location: %w", err)
			}

			c := rec.Classification
			session := ScanSession{
				ID:            scanID,
				LocationKey:   key,
				MaterialType:  c.Type.String(),
				RICCode:       c.RICCode,
				Confidence:    c.Confidence,
				Recyclable:    c.Recyclable,
				Uncertain:     c.Uncertain,
				PointsAwarded: rec.Points,
				RawAnalysis:   rec.RawAnalysis,
				CreatedAt:     now,
			}
			if err := tx.Create(&session).Error; err != nil {
				return fmt.Errorf("insert scan session: %w", err)
			}

			res := tx.Model(&Location{}).
				Where(map[string]any{"key": key}).
				Updates(map[string]any{
					"points_total": gorm.Expr("points_total + ?", rec.Points),
					"updated_at":   now,
				})
			if res.Error != nil {
				return fmt.Errorf("increment total: %w", res.Error)
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("increment total: %d rows affected", res.RowsAffected)
			}

			var total int64
			if err := tx.Model(&Location{}).
				Where(map[string]any{"key": key}).
				Select("points_total").
				Scan(&total).Error; err != nil {
				return fmt.Errorf("read total: %w", err)
			}

			receipt = Receipt{ScanID: scanID, LocationKey: key, NewTotal: total, CreatedAt: now}
			return nil
		})
	})
	if err != nil {
		return Receipt{}, s.persistenceError(op, scanID, err)
	}

	logging.WithOperation(s.logger, op, scanID).Debug("scan recorded",
		zap.String("location_key", key),
		zap.Int64("points", rec.Points),
		zap.Int64("new_total", receipt.NewTotal))
	return receipt, nil
}

// Lookup returns the current total for an address. It is read-only: an
// unknown address reports Exists=false with a zero total, and locations are
// only ever created by RecordScan.
func (s *LedgerStore) Lookup(ctx context.Context, address string) (LocationStatus, error) {
	const op = "repository.lookup"

	key, err := NormalizeKey(address)
	if err != nil {
		return LocationStatus{}, err
	}

	var locs []Location
	err = s.executeWithRetry(ctx, op, "", func() error {
		return s.db.WithContext(ctx).Where(map[string]any{"key": key}).Limit(1).Find(&locs).Error
	})
	if err != nil {
		return LocationStatus{}, s.persistenceError(op, "", err)
	}
	if len(locs) == 0 {
		return LocationStatus{Key: key}, nil
	}
	return LocationStatus{Key: key, Exists: true, PointsTotal: locs[0].PointsTotal}, nil
}

// persistenceError rewraps a store failure as ErrPersistence, keeping the
// attempt count of the retry loop that gave up.
func (s *LedgerStore) persistenceError(op, scanID string, err error) error {
	attempts := 1
	if opErr, ok := logging.OperationOf(err); ok && opErr.Err != nil {
		err, attempts = opErr.Err, opErr.Attempts
	}
	return logging.Retried(op, scanID, attempts, &PersistenceError{Op: op, Err: err})
}
