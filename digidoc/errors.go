package digidoc

import (
	"errors"
	"fmt"
)

var (
	ErrNotMerged         = errors.New("digidoc: container is not merged")
	ErrSignedContainer   = errors.New("digidoc: files cannot be added once a signature exists")
	ErrInvalidTransition = errors.New("digidoc: invalid signature state transition")
	ErrClosed            = errors.New("digidoc: container session is closed")
	ErrBrokenSnapshot    = errors.New("digidoc: broken container snapshot")
)

// NotMergedError is returned by Update for a container that was never
// registered with a tracker.
type NotMergedError struct {
	Session string
}

func (e *NotMergedError) Error() string {
	if e.Session == "" {
		return ErrNotMerged.Error()
	}
	return fmt.Sprintf("%s (session %s)", ErrNotMerged, e.Session)
}

func (e *NotMergedError) Unwrap() error { return ErrNotMerged }

// TransitionError reports a signature state machine violation.
type TransitionError struct {
	SignatureID string
	From        State
	To          State
	Reason      string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("digidoc: signature %q: %s -> %s", e.SignatureID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CompensationError reports that removing a rejected signature from the
// service failed. The signature is rejected locally either way, so the
// service may still hold it.
type CompensationError struct {
	SignatureID string
	Err         error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("digidoc: remove rejected signature %q: %v", e.SignatureID, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// FinalizeError wraps a failed finalize call. The signature stays Solved and
// is finalized again by the next Update.
type FinalizeError struct {
	SignatureID string
	Err         error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("digidoc: finalize signature %q: %v", e.SignatureID, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }
