package model

import (
	"errors"
	"fmt"
)

// Error taxonomy for the verify-then-split protocol.
//
// Transient ledger/network failures are retryable; validation and
// economic failures reject the unit of work permanently. A duplicate
// signal is not an error at all; the existing record is returned.
var (
	// ErrAmountTooSmall means the amount cannot cover fees and dust floors.
	ErrAmountTooSmall = errors.New("amount too small after fees")

	// ErrBelowMinimum means the amount is below the minimum viable
	// contribution and no split was attempted.
	ErrBelowMinimum = errors.New("amount below minimum viable contribution")

	// ErrAttestationInvalid covers unrecognized issuers, stale
	// attestations, and malformed envelopes.
	ErrAttestationInvalid = errors.New("attestation invalid")

	// ErrNotFound is returned by stores for unknown origin references.
	ErrNotFound = errors.New("not found")
)

// TransientError wraps a retryable I/O failure (ledger timeouts, network
// errors). Callers retry with backoff; everything else is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
