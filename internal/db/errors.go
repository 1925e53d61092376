package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/metrics"
)

// Classify converts a driver error into the application taxonomy. Errors that
// already carry a kind pass through. op names the failed operation for metrics.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.Wrap(apperr.KindNotFound, err, "")
	}
	if IsUnavailable(err) {
		metrics.StoreUnavailable.WithLabelValues(op).Inc()
		return apperr.Wrap(apperr.KindStoreUnavailable, err, "")
	}
	return apperr.Wrap(apperr.KindInternal, err, "")
}

// IsUnavailable reports timeouts, cancelled deadlines and lost connectivity.
func IsUnavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		mongo.IsTimeout(err) ||
		mongo.IsNetworkError(err)
}
