package repository

import "context"

// MetricsAggregation summarizes the audit trail.
type MetricsAggregation struct {
	ScanCount         int64   `gorm:"column:scan_count"`
	UncertainCount    int64   `gorm:"column:uncertain_count"`
	RecyclableCount   int64   `gorm:"column:recyclable_count"`
	AverageConfidence float64 `gorm:"column:average_confidence"`
	PointsAwarded     int64   `gorm:"column:points_awarded"`
	LocationCount     int64   `gorm:"-"`
}

// Discrepancy is a location whose total disagrees with its audit rows.
type Discrepancy struct {
	LocationKey string `gorm:"column:location_key"`
	PointsTotal int64  `gorm:"column:points_total"`
	AuditSum    int64  `gorm:"column:audit_sum"`
	ScanCount   int64  `gorm:"column:scan_count"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// GetScan loads one scan session by id.
func (s *LedgerStore) GetScan(ctx context.Context, id string) (*ScanSession, error) {
	const op = "repository.get_scan"

	var sessions []ScanSession
	err := s.executeWithRetry(ctx, op, id, func() error {
		return s.db.WithContext(ctx).Where(map[string]any{"id": id}).Limit(1).Find(&sessions).Error
	})
	if err != nil {
		return nil, s.persistenceError(op, id, err)
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}
	return &sessions[0], nil
}

// ListScans returns the newest scans recorded for an address.
func (s *LedgerStore) ListScans(ctx context.Context, address string, limit int) ([]ScanSession, error) {
	const op = "repository.list_scans"

	key, err := NormalizeKey(address)
	if err != nil {
		return nil, err
	}

	var sessions []ScanSession
	err = s.executeWithRetry(ctx, op, "", func() error {
		return s.db.WithContext(ctx).
			Where(map[string]any{"location_key": key}).
			Order("created_at DESC").
			Order("id").
			Limit(clampLimit(limit)).
			Find(&sessions).Error
	})
	if err != nil {
		return nil, s.persistenceError(op, "", err)
	}
	return sessions, nil
}

// TopLocations returns the locations with the highest totals.
func (s *LedgerStore) TopLocations(ctx context.Context, limit int) ([]Location, error) {
	const op = "repository.top_locations"

	var locs []Location
	err := s.executeWithRetry(ctx, op, "", func() error {
		return s.db.WithContext(ctx).
			Order("points_total DESC").
			Order(`"key"`).
			Limit(clampLimit(limit)).
			Find(&locs).Error
	})
	if err != nil {
		return nil, s.persistenceError(op, "", err)
	}
	return locs, nil
}

// AggregateMetrics summarizes every recorded scan.
func (s *LedgerStore) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	const op = "repository.aggregate_metrics"

	var agg MetricsAggregation
	err := s.executeWithRetry(ctx, op, "", func() error {
		db := s.db.WithContext(ctx)
		if err := db.Model(&ScanSession{}).Select(
			"COUNT(*) AS scan_count, " +
				"COALESCE(SUM(CASE WHEN uncertain THEN 1 ELSE 0 END), 0) AS uncertain_count, " +
				"COALESCE(SUM(CASE WHEN recyclable THEN 1 ELSE 0 END), 0) AS recyclable_count, " +
				"COALESCE(CAST(AVG(confidence) AS DOUBLE PRECISION), 0) AS average_confidence, " +
				"COALESCE(SUM(points_awarded), 0) AS points_awarded",
		).Scan(&agg).Error; err != nil {
			return err
		}
		return db.Model(&Location{}).Count(&agg.LocationCount).Error
	})
	if err != nil {
		return nil, s.persistenceError(op, "", err)
	}
	return &agg, nil
}

// VerifyLedger reports every location whose total differs from the sum of
// its scan sessions. An empty result means the ledger is consistent.
func (s *LedgerStore) VerifyLedger(ctx context.Context) ([]Discrepancy, error) {
	const op = "repository.verify_ledger"

	var out []Discrepancy
	err := s.executeWithRetry(ctx, op, "", func() error {
		out = []Discrepancy{}
		return s.db.WithContext(ctx).Raw(`
SELECT l."key" AS location_key,
       l.points_total AS points_total,
       COALESCE(SUM(s.points_awarded), 0) AS audit_sum,
       COUNT(s.id) AS scan_count
FROM locations l
LEFT JOIN scan_sessions s ON s.location_key = l."key"
GROUP BY l."key", l.points_total
HAVING l.points_total <> COALESCE(SUM(s.points_awarded), 0)
ORDER BY l."key"`).Scan(&out).Error
	})
	if err != nil {
		return nil, s.persistenceError(op, "", err)
	}
	return out, nil
}
