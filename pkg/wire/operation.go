package wire

// Operation represents a control-session operation.
type Operation uint8

const (
	// OpHello binds the session to a client identity. It must precede
	// every other operation.
	OpHello Operation = 1

	// OpEstablish creates a subscription.
	OpEstablish Operation = 2

	// OpModify changes an existing subscription owned by the caller.
	OpModify Operation = 3

	// OpDelete terminates a subscription owned by the caller.
	OpDelete Operation = 4

	// OpKill terminates any subscription. Requires a privileged identity.
	OpKill Operation = 5

	// OpGetState returns operational state of one or all subscriptions.
	OpGetState Operation = 6

	// OpConfigureFilter creates, modifies or deletes a named filter.
	OpConfigureFilter Operation = 7
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpHello:
		return "Hello"
	case OpEstablish:
		return "Establish"
	case OpModify:
		return "Modify"
	case OpDelete:
		return "Delete"
	case OpKill:
		return "Kill"
	case OpGetState:
		return "GetState"
	case OpConfigureFilter:
		return "ConfigureFilter"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpHello && o <= OpConfigureFilter
}
