package subscription

import "errors"

// Subscription errors. Discipline hooks wrap these so callers can classify
// failures with errors.Is.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNotFound          = errors.New("subscription not found")
	ErrWrongOwner        = errors.New("subscription owned by another identity")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrInternal          = errors.New("internal error")
	ErrClosed            = errors.New("subscription manager closed")
)

// errNotDue stops a stale expiry timer from terminating a record whose
// stop time was moved.
var errNotDue = errors.New("stop time not reached")
