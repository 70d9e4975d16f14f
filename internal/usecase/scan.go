package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/recycle-points/internal/events"
	"github.com/example/recycle-points/internal/logging"
	"github.com/example/recycle-points/internal/material"
	"github.com/example/recycle-points/internal/metrics"
	"github.com/example/recycle-points/internal/normalizer"
	"github.com/example/recycle-points/internal/points"
	"github.com/example/recycle-points/internal/repository"
	"github.com/example/recycle-points/internal/vision"
)

// LedgerStore defines the persistence operations needed by the use case.
type LedgerStore interface {
	RecordScan(ctx context.Context, rec repository.ScanRecord) (repository.Receipt, error)
	Lookup(ctx context.Context, address string) (repository.LocationStatus, error)
	GetScan(ctx context.Context, id string) (*repository.ScanSession, error)
	ListScans(ctx context.Context, address string, limit int) ([]repository.ScanSession, error)
	TopLocations(ctx context.Context, limit int) ([]repository.Location, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
	VerifyLedger(ctx context.Context) ([]repository.Discrepancy, error)
}

// ScanOutcome is the result of ProcessScan. It is returned for every call,
// including failed ones, and always names the terminal state.
type ScanOutcome struct {
	State         State  `json:"state"`
	Success       bool   `json:"success"`
	Reason        Reason `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	ScanID        string `json:"scan_id,omitempty"`
	LocationKey   string `json:"location_key,omitempty"`
	MaterialType  string `json:"material_type,omitempty"`
	RICCode       *int   `json:"ric_code,omitempty"`
	Confidence    int    `json:"confidence"`
	Recyclable    bool   `json:"recyclable"`
	Uncertain     bool   `json:"uncertain"`
	Description   string `json:"description,omitempty"`
	PointsAwarded int64  `json:"points_awarded"`
	NewTotal      int64  `json:"new_total"`
}

// ScanView is the read model of one recorded scan.
type ScanView struct {
	ID            string    `json:"id"`
	LocationKey   string    `json:"location_key"`
	MaterialType  string    `json:"material_type"`
	RICCode       *int      `json:"ric_code,omitempty"`
	Confidence    int       `json:"confidence"`
	Recyclable    bool      `json:"recyclable"`
	Uncertain     bool      `json:"uncertain"`
	PointsAwarded int64     `json:"points_awarded"`
	RawAnalysis   string    `json:"raw_analysis"`
	CreatedAt     time.Time `json:"created_at"`
}

// LocationView is the read model of one ledger location.
type LocationView struct {
	Key         string `json:"key"`
	Exists      bool   `json:"exists"`
	PointsTotal int64  `json:"points_total"`
}

// ScanUseCase encapsulates business logic for the scan flow.
type ScanUseCase struct {
	store          LedgerStore
	analyzer       vision.Client
	cache          Cache
	publisher      events.Publisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	maxImageBytes  int
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option customises a ScanUseCase.
type Option func(*ScanUseCase)

// WithCache sets the scan view cache.
func WithCache(c Cache) Option { return func(uc *ScanUseCase) { uc.cache = c } }

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option { return func(uc *ScanUseCase) { uc.publisher = p } }

// WithMetrics sets the prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(uc *ScanUseCase) { uc.metrics = m } }

// WithMaxImageBytes overrides the upload ceiling.
func WithMaxImageBytes(n int) Option { return func(uc *ScanUseCase) { uc.maxImageBytes = n } }

// NewScanUseCase constructs a new use case instance.
func NewScanUseCase(store LedgerStore, analyzer vision.Client, logger *zap.Logger, opts ...Option) *ScanUseCase {
	uc := &ScanUseCase{
		store:          store,
		analyzer:       analyzer,
		cache:          NewMemoryCache(10*time.Minute, 0),
		publisher:      events.Nop{},
		logger:         logger.Named("scan_usecase"),
		maxImageBytes:  vision.MaxImageBytes,
		cacheTTL:       10 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessScan runs one image through analysis, scoring and the ledger.
// The returned outcome is never nil. A non-nil error is a *ScanError; an
// uncertain classification is recorded and reported through the outcome
// with a nil error.
func (uc *ScanUseCase) ProcessScan(ctx context.Context, locationKey string, image []byte) (*ScanOutcome, error) {
	const op = "usecase.process_scan"
	opLogger := logging.WithOperation(uc.logger, op, "")
	out := &ScanOutcome{State: StateSubmitted}

	key, err := repository.NormalizeKey(locationKey)
	if err != nil {
		return uc.fail(out, StateSubmitted, ReasonInvalidInput, "a non-empty address of at most 512 bytes is required", err)
	}
	out.LocationKey = key

	req, err := vision.NewRequest(image, uc.maxImageBytes)
	if err != nil {
		return uc.fail(out, StateSubmitted, ReasonInvalidInput, "the upload is not a readable image", err)
	}

	out.State = StateAnalyzing
	start := time.Now()
	resp, err := uc.analyzer.Analyze(ctx, req)
	if err != nil {
		kind := vision.KindOf(err)
		uc.metrics.ObserveVision(kind.String(), start)
		opLogger.Warn("vision analysis failed", zap.Error(err), zap.Stringer("kind", kind))
		switch kind {
		case vision.KindInvalidImage:
			return uc.fail(out, StateAnalysisFailed, ReasonInvalidInput, "the vision service rejected this image", err)
		case vision.KindTimeout:
			return uc.fail(out, StateAnalysisFailed, ReasonTransport, "the vision service timed out, please try again", err)
		default:
			return uc.fail(out, StateAnalysisFailed, ReasonTransport, "we could not read this image right now, please try again", err)
		}
	}
	uc.metrics.ObserveVision("ok", start)

	c := normalizer.Normalize(resp.Raw)
	awarded := points.ForClassification(c)
	out.State = StateClassified
	out.MaterialType = c.Type.String()
	out.RICCode = c.RICCode
	out.Confidence = c.Confidence
	out.Recyclable = c.Recyclable
	out.Uncertain = c.Uncertain
	out.Description = c.Description
	out.PointsAwarded = awarded

	recStart := time.Now()
	receipt, err := uc.store.RecordScan(ctx, repository.ScanRecord{
		LocationKey:    key,
		Classification: c,
		Points:         awarded,
		RawAnalysis:    resp.Raw,
	})
	uc.metrics.ObserveRecord(recStart)
	if err != nil {
		opLogger.Error("failed to record scan", append(logging.ErrorFields(err), zap.String("location_key", key))...)
		msg := fmt.Sprintf("the item was classified as %s worth %d points, but the points could not be saved", c.Type, awarded)
		return uc.fail(out, StateRecordFailed, ReasonPersistence, msg, err)
	}

	out.State = StateRecorded
	out.ScanID = receipt.ScanID
	out.NewTotal = receipt.NewTotal
	if c.Uncertain {
		out.Reason = ReasonAnalysisUncertain
		out.Message = uncertainMessage(c, awarded)
	} else {
		out.Success = true
	}
	uc.metrics.ObserveOutcome(string(out.State), string(out.Reason))
	uc.metrics.AddPoints(out.MaterialType, awarded)

	logging.WithOperation(uc.logger, op, receipt.ScanID).Info("scan recorded",
		zap.String("location_key", key),
		zap.String("submitted_by", SubmitterFrom(ctx)),
		zap.String("material", out.MaterialType),
		zap.Int("confidence", c.Confidence),
		zap.Bool("uncertain", c.Uncertain),
		zap.Int64("points", awarded),
		zap.Int64("new_total", receipt.NewTotal))

	view := ScanView{
		ID:            receipt.ScanID,
		LocationKey:   key,
		MaterialType:  out.MaterialType,
		RICCode:       c.RICCode,
		Confidence:    c.Confidence,
		Recyclable:    c.Recyclable,
		Uncertain:     c.Uncertain,
		PointsAwarded: awarded,
		RawAnalysis:   resp.Raw,
		CreatedAt:     receipt.CreatedAt,
	}
	uc.afterRecord(ctx, view, receipt.NewTotal)

	return out, nil
}

func uncertainMessage(c material.Classification, awarded int64) string {
	if c.Type == material.Unknown {
		return "we could not recognize the material; the scan was logged with no points"
	}
	return fmt.Sprintf("low confidence (%d%%) that this is %s; %d points were recorded", c.Confidence, c.Type, awarded)
}

func (uc *ScanUseCase) fail(out *ScanOutcome, state State, reason Reason, msg string, err error) (*ScanOutcome, error) {
	out.State = state
	out.Success = false
	out.Reason = reason
	out.Message = msg
	uc.metrics.ObserveOutcome(string(state), string(reason))
	return out, &ScanError{Reason: reason, Message: msg, Err: err}
}

// afterRecord runs the best-effort side effects of a committed scan.
func (uc *ScanUseCase) afterRecord(ctx context.Context, view ScanView, newTotal int64) {
	ctx = context.WithoutCancel(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.after_record", view.ID)

	if err := uc.cacheScanView(ctx, view); err != nil {
		opLogger.Warn("failed to cache scan view", zap.Error(err))
	}

	evt := events.ScanRecorded{
		ScanID:        view.ID,
		LocationKey:   view.LocationKey,
		MaterialType:  view.MaterialType,
		RICCode:       view.RICCode,
		Confidence:    view.Confidence,
		Recyclable:    view.Recyclable,
		Uncertain:     view.Uncertain,
		PointsAwarded: view.PointsAwarded,
		NewTotal:      newTotal,
		RecordedAt:    view.CreatedAt,
		SubmittedBy:   SubmitterFrom(ctx),
	}
	if err := uc.publisher.PublishScanRecorded(ctx, evt); err != nil {
		opLogger.Warn("failed to publish scan.recorded", zap.Error(err))
	}
}

func scanCacheKey(id string) string {
	return "scan:" + id
}

func (uc *ScanUseCase) cacheScanView(ctx context.Context, view ScanView) error {
	serialized, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return uc.withCacheRetry(ctx, view.ID, "cache.set.scan", func() error {
		return uc.cache.Set(ctx, scanCacheKey(view.ID), string(serialized), uc.cacheTTL)
	})
}

// GetScan retrieves a scan from the cache or loads it from the ledger.
func (uc *ScanUseCase) GetScan(ctx context.Context, id string) (*ScanView, error) {
	const op = "usecase.get_scan"

	if cached, err := uc.withCacheGet(ctx, id, "cache.get.scan", scanCacheKey(id)); err == nil {
		var view ScanView
		if err := json.Unmarshal([]byte(cached), &view); err != nil {
			logging.WithOperation(uc.logger, op, id).Warn("failed to decode cached scan", zap.Error(err))
		} else {
			return &view, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		logging.WithOperation(uc.logger, op, id).Warn("failed to read cache", zap.Error(err))
	}

	session, err := uc.store.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	view := viewFromSession(session)
	if err := uc.cacheScanView(ctx, view); err != nil {
		logging.WithOperation(uc.logger, op, id).Warn("failed to cache scan view", zap.Error(err))
	}
	return &view, nil
}

func viewFromSession(s *repository.ScanSession) ScanView {
	return ScanView{
		ID:            s.ID,
		LocationKey:   s.LocationKey,
		MaterialType:  s.MaterialType,
		RICCode:       s.RICCode,
		Confidence:    s.Confidence,
		Recyclable:    s.Recyclable,
		Uncertain:     s.Uncertain,
		PointsAwarded: s.PointsAwarded,
		RawAnalysis:   s.RawAnalysis,
		CreatedAt:     s.CreatedAt,
	}
}

// LookupLocation returns the current total of an address. Unknown
// addresses report Exists=false and are not created.
func (uc *ScanUseCase) LookupLocation(ctx context.Context, locationKey string) (*LocationView, error) {
	status, err := uc.store.Lookup(ctx, locationKey)
	if err != nil {
		return nil, storeError(err)
	}
	return &LocationView{Key: status.Key, Exists: status.Exists, PointsTotal: status.PointsTotal}, nil
}

// History lists the newest scans of an address.
func (uc *ScanUseCase) History(ctx context.Context, locationKey string, limit int) ([]ScanView, error) {
	sessions, err := uc.store.ListScans(ctx, locationKey, limit)
	if err != nil {
		return nil, storeError(err)
	}
	views := make([]ScanView, 0, len(sessions))
	for i := range sessions {
		views = append(views, viewFromSession(&sessions[i]))
	}
	return views, nil
}

// Leaderboard lists the locations with the most points.
func (uc *ScanUseCase) Leaderboard(ctx context.Context, limit int) ([]LocationView, error) {
	locs, err := uc.store.TopLocations(ctx, limit)
	if err != nil {
		return nil, storeError(err)
	}
	views := make([]LocationView, 0, len(locs))
	for _, l := range locs {
		views = append(views, LocationView{Key: l.Key, Exists: true, PointsTotal: l.PointsTotal})
	}
	return views, nil
}

// VerifyLedger reports locations whose totals drifted from their audit trail.
func (uc *ScanUseCase) VerifyLedger(ctx context.Context) ([]repository.Discrepancy, error) {
	discrepancies, err := uc.store.VerifyLedger(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	if len(discrepancies) > 0 {
		uc.logger.Error("ledger drift detected", zap.Int("locations", len(discrepancies)))
	}
	return discrepancies, nil
}

func storeError(err error) error {
	if errors.Is(err, repository.ErrInvalidKey) {
		return &ScanError{Reason: ReasonInvalidInput, Message: "a non-empty address of at most 512 bytes is required", Err: err}
	}
	return &ScanError{Reason: ReasonPersistence, Message: "the ledger could not be read", Err: err}
}

func (uc *ScanUseCase) withCacheRetry(ctx context.Context, scanID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, scanID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, scanID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.Retried(operation, scanID, attempt, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			if !errors.Is(err, ErrCacheMiss) {
				opLogger.Error("cache operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.Retried(operation, scanID, attempt+1, err)
		}

		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.Retried(operation, scanID, uc.retryAttempts, err)
}

func (uc *ScanUseCase) withCacheGet(ctx context.Context, scanID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withCacheRetry(ctx, scanID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
