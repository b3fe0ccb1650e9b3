package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-intake/pkg/errors"
)

// SQLSTATE codes that are safe to retry.
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeLockNotAvailable     pq.ErrorCode = "55P03"
	codeUniqueViolation      pq.ErrorCode = "23505"
)

// classify turns a driver error into an AppError. AppErrors pass through
// untouched, so conditions raised inside a transaction keep their code.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return errors.Transient(fmt.Errorf("%s: %w", op, err))
		case codeUniqueViolation:
			return errors.StateConflict(fmt.Sprintf("%s: duplicate %s", op, pqErr.Constraint))
		}
	}
	return errors.Internal(fmt.Errorf("%s: %w", op, err))
}

// notFound maps sql.ErrNoRows to a NotFound for resource and classifies the rest.
func notFound(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource, nil)
	}
	return classify(err, "get "+resource)
}
