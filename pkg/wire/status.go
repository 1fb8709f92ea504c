package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusInvalidParameter indicates a malformed filter, conflicting
	// options or a stop time in the past.
	StatusInvalidParameter Status = 1

	// StatusNotFound indicates an unknown subscription, filter or stream.
	StatusNotFound Status = 2

	// StatusWrongOwner indicates the caller may not change the subscription.
	StatusWrongOwner Status = 3

	// StatusResourceExhausted indicates the agent cannot allocate another
	// subscription or underlying datastore subscription.
	StatusResourceExhausted Status = 4

	// StatusInternal indicates an agent bug.
	StatusInternal Status = 5

	// StatusUnsupported indicates the operation is not supported.
	StatusUnsupported Status = 6

	// StatusNotAuthorized indicates the session has not sent Hello.
	StatusNotAuthorized Status = 7
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusWrongOwner:
		return "WRONG_OWNER"
	case StatusResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case StatusInternal:
		return "INTERNAL"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusNotAuthorized:
		return "NOT_AUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
