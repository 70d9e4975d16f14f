package usecase

import "context"

// MetricsSummary represents aggregated scan insights.
type MetricsSummary struct {
	TotalScans        int64   `json:"total_scans"`
	UncertainScans    int64   `json:"uncertain_scans"`
	RecyclableScans   int64   `json:"recyclable_scans"`
	UncertainRate     float64 `json:"uncertain_rate"`
	AverageConfidence float64 `json:"average_confidence"`
	PointsAwarded     int64   `json:"points_awarded"`
	Locations         int64   `json:"locations"`
}

// GetMetricsSummary aggregates scan metrics from the audit trail.
func (uc *ScanUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.store.AggregateMetrics(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	summary := &MetricsSummary{
		TotalScans:        aggregation.ScanCount,
		UncertainScans:    aggregation.UncertainCount,
		RecyclableScans:   aggregation.RecyclableCount,
		AverageConfidence: aggregation.AverageConfidence,
		PointsAwarded:     aggregation.PointsAwarded,
		Locations:         aggregation.LocationCount,
	}

	if aggregation.ScanCount > 0 {
		summary.UncertainRate = float64(aggregation.UncertainCount) / float64(aggregation.ScanCount)
	}

	return summary, nil
}
