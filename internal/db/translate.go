package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
)

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	// Also check for BulkWriteException, which can contain duplicate key errors
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}

// Translate maps driver-level failures onto application error kinds at the
// store boundary. Business rules never retry; a transient store failure
// surfaces as Unavailable and the caller decides whether to re-request.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return apperr.Unavailable("storage temporarily unavailable")
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return err
}
