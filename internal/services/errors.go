package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ValidationError means the caller broke a precondition; nothing was written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError means a referenced record does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidStateError means the transition is not legal from the record's
// current status; nothing was written.
type InvalidStateError struct {
	Op      string
	Status  string
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %s)", e.Op, e.Message, e.Status)
}

// PersistenceError wraps a datastore failure. No partial effect is implied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: datastore error: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PartialFailureError reports that the transaction side of a pair was written
// but the invoice side was not. Repair re-applies the missing write.
type PartialFailureError struct {
	Op            string
	TransactionID uuid.UUID
	InvoiceID     uuid.UUID
	Written       string
	Pending       string
	Err           error

	repair func(ctx context.Context) error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %s %s written but %s %s was not: %v",
		e.Op, e.Written, e.sideID(e.Written), e.Pending, e.sideID(e.Pending), e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// Repair retries the pending write once.
func (e *PartialFailureError) Repair(ctx context.Context) error {
	if e.repair == nil {
		return fmt.Errorf("%s: no repair available", e.Op)
	}
	return e.repair(ctx)
}

func (e *PartialFailureError) sideID(side string) string {
	if side == sideInvoice {
		return e.InvoiceID.String()
	}
	return e.TransactionID.String()
}

const (
	sideTransaction = "transaction"
	sideInvoice     = "invoice"
)

// IsRetryable reports whether err may succeed on a plain retry.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	var pf *PartialFailureError
	return errors.As(err, &pe) || errors.As(err, &pf)
}

// Error codes shared by batch results and the HTTP layer.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidState   = "INVALID_STATE"
	CodePersistence    = "PERSISTENCE_ERROR"
	CodePartialFailure = "PARTIAL_FAILURE"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorCode classifies err into one of the Code constants.
func ErrorCode(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		is *InvalidStateError
		pf *PartialFailureError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &nf):
		return CodeNotFound
	case errors.As(err, &is):
		return CodeInvalidState
	case errors.As(err, &pf):
		return CodePartialFailure
	case errors.As(err, &pe):
		return CodePersistence
	default:
		return CodeInternal
	}
}
