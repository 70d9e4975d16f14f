package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/example/recycle-points/internal/logging"
)

// executeWithRetry reruns fn while it fails with a transient error. Each
// attempt of a transactional fn is a fresh transaction.
func (s *LedgerStore) executeWithRetry(ctx context.Context, operation, scanID string, fn func() error) error {
	if s.retryAttempts <= 1 {
		return logging.NewOperationError(operation, scanID, fn())
	}

	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, scanID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.Retried(operation, scanID, attempt, errors.Join(err, ctx.Err()))
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("store operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("store operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.Retried(operation, scanID, attempt+1, err)
		}

		opLogger.Warn("transient store error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.Retried(operation, scanID, s.retryAttempts, err)
}

// Postgres SQLSTATEs worth retrying: serialization_failure, deadlock_detected.
var retryablePgCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := retryablePgCodes[pgErr.Code]
		return ok
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
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
