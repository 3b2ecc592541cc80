package shared

import "errors"

// Sentinel errors shared across the marketplace domain packages. Services
// wrap these with fmt.Errorf("%w: ...") to add record-level detail.
var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrValidation indicates malformed input, e.g. a negative commission rate.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidReferrer indicates the doctor cannot issue referrals.
	ErrInvalidReferrer = errors.New("invalid referrer")
	// ErrInvalidTransition indicates a forbidden referral status transition.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicatePrimary indicates an active primary assignment already exists
	// for the pharmacy and city.
	ErrDuplicatePrimary = errors.New("duplicate primary assignment")
	// ErrPartialUpdate indicates a batch update was rejected as a whole; no
	// record was changed.
	ErrPartialUpdate = errors.New("partial update rejected")
)
