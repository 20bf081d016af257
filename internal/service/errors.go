package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/sma-exam-engine/pkg/database"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

// notFoundOr maps a missing row to NOT_FOUND and anything else to INTERNAL.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return persistenceError(err, "failed to load "+what)
}

// persistenceError keeps typed errors, maps unique violations to CONFLICT and wraps the rest as INTERNAL.
func persistenceError(err error, message string) error {
	if err == nil {
		return nil
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if database.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message)
	}
	return appErrors.Internal(err, message)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
