package ledger

import (
	"context"
	"errors"
	"fmt"

	"retail-bank/store"
)

// Every error below is recoverable and leaves state untouched. Callers turn
// them into user-facing messages; Kind gives a stable code for that.
var (
	ErrInvalidDestination  = errors.New("invalid destination identifier")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrSameAccountTransfer = errors.New("source and destination are the same account")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrInvalidProfile      = errors.New("full name and contact are required")
	ErrContactTaken        = errors.New("contact already registered")

	// ErrPersistenceConflict means concurrent writers kept winning until the
	// retry budget ran out.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrStorageUnavailable wraps any failure of the backing store itself.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidDestination, "invalid_destination"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrSameAccountTransfer, "same_account_transfer"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrUnknownUser, "unknown_user"},
	{ErrUnknownAccount, "unknown_account"},
	{ErrInvalidProfile, "invalid_profile"},
	{ErrContactTaken, "contact_taken"},
	{ErrPersistenceConflict, "persistence_conflict"},
	{ErrStorageUnavailable, "storage_unavailable"},
}

// Kind returns the error_kind code for err, or "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

func isDomain(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return true
		}
	}
	return false
}

// classify passes domain errors through and marks everything else coming out
// of the store as a storage failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case isDomain(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrPersistenceConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}
