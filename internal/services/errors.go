package services

import (
	"errors"
	"fmt"

	"sports-prediction/internal/models"
)

var (
	// ErrNotFound is returned when a prediction, bet or score does not exist
	ErrNotFound = errors.New("not found")

	// ErrPoolIDNotFound means a create_pool transaction was sent but the pool
	// did not become visible within the discovery budget. The pool may still
	// appear later; callers should report it as pending confirmation.
	ErrPoolIDNotFound = errors.New("pool id not found after bounded discovery")

	// ErrPoolNotIndexed is returned by a Ledger lookup while the create_pool
	// transaction is not yet visible. It drives discovery polling.
	ErrPoolNotIndexed = errors.New("pool not yet indexed")

	// ErrClaimBlocked means claim eligibility cannot be computed yet
	ErrClaimBlocked = errors.New("claims are blocked until the prediction is completed")

	// ErrAlreadyClaimed means the ledger already paid this user for the pool
	ErrAlreadyClaimed = errors.New("payout already claimed")
)

// ValidationError reports bad caller input. It is never retried automatically.
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

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IllegalTransitionError reports a lifecycle move the state machine forbids,
// usually a race between two callers.
type IllegalTransitionError struct {
	From models.EventStatus
	To   models.EventStatus
	// PoolLinked is set when a ledger pool blocks the move
	PoolLinked bool
}

func (e *IllegalTransitionError) Error() string {
	if e.PoolLinked && e.From == models.EventStatusPending {
		return fmt.Sprintf("illegal transition from %s to %s: ledger pool already created, promote instead", e.From, e.To)
	}
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// PreconditionMissingError is fatal: operator intervention is required
type PreconditionMissingError struct {
	What string
}

func (e *PreconditionMissingError) Error() string {
	return fmt.Sprintf("precondition missing: %s", e.What)
}

// LedgerReadError wraps a failed ledger read. Safe to retry with backoff.
type LedgerReadError struct {
	Op  string
	Err error
}

func (e *LedgerReadError) Error() string {
	return fmt.Sprintf("ledger read %s failed: %v", e.Op, e.Err)
}

func (e *LedgerReadError) Unwrap() error {
	return e.Err
}

// LedgerWriteError wraps a failed ledger write. When Ambiguous is set the
// write may have committed and ledger state must be re-read before retrying.
type LedgerWriteError struct {
	Op        string
	Ambiguous bool
	Err       error
}

func (e *LedgerWriteError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("ledger write %s outcome unknown: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ledger write %s failed: %v", e.Op, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError
func IsIllegalTransition(err error) bool {
	var v *IllegalTransitionError
	return errors.As(err, &v)
}

// IsPreconditionMissing reports whether err is a PreconditionMissingError
func IsPreconditionMissing(err error) bool {
	var v *PreconditionMissingError
	return errors.As(err, &v)
}

// IsLedgerError reports whether err came from a ledger read or write
func IsLedgerError(err error) bool {
	var r *LedgerReadError
	var w *LedgerWriteError
	return errors.As(err, &r) || errors.As(err, &w)
}

var (
	// ErrOutcomeUnknown is returned by a Ledger when a transaction was sent
	// but its commit status could not be established.
	ErrOutcomeUnknown = errors.New("ledger transaction outcome unknown")

	// ErrLedgerTxFailed is returned by a Ledger when a transaction is final
	// and failed, so nothing was committed.
	ErrLedgerTxFailed = errors.New("ledger transaction failed")
)
