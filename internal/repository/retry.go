package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	retryMaxAttempts     = 3
	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// isTransientError reports whether err is worth retrying: deadlocks,
// serialization failures, lock-wait timeouts, and connection-level
// failures. Constraint violations are never transient.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errWriteConflict) {
		return true
	}
	if isUniqueViolation(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"08000", // connection_exception
			"08003", // connection_does_not_exist
			"08006", // connection_failure
			"57P03": // cannot_connect_now
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock wait timeout") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}

// withRetry runs op with bounded exponential backoff. Business outcomes
// and constraint violations stop retrying immediately; only transient
// store errors are attempted again.
func withRetry(ctx context.Context, op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(retryInitialInterval),
		backoff.WithMaxInterval(retryMaxInterval),
	), retryMaxAttempts)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isTransientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
