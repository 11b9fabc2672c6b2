package alert

import "errors"

var (
	// ErrStoreUnavailable marks transient store failures. Safe to retry; no
	// partial record is left behind.
	ErrStoreUnavailable = errors.New("alert store unavailable")

	// ErrAlreadyClaimed is the expected outcome for every claimer except the
	// winner. The current alert, including the winner's identity, accompanies
	// it so the losing side can show who won.
	ErrAlreadyClaimed = errors.New("alert already claimed")

	// ErrInvalidTransition is returned when resolve is called on an alert
	// that is not in the responded state.
	ErrInvalidTransition = errors.New("invalid alert transition")

	ErrNotFound   = errors.New("alert not found")
	ErrValidation = errors.New("invalid alert request")
)
