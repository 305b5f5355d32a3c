package wire

// Operation represents a link operation.
type Operation uint8

const (
	// OpDiscover enumerates services and attribute handles.
	OpDiscover Operation = 1

	// OpRead gets the current value of one handle.
	OpRead Operation = 2

	// OpWrite sets the value of one handle.
	OpWrite Operation = 3

	// OpSubscribe enables notifications for one handle.
	OpSubscribe Operation = 4

	// OpUnsubscribe disables notifications for one handle.
	OpUnsubscribe Operation = 5
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpDiscover:
		return "Discover"
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpSubscribe:
		return "Subscribe"
	case OpUnsubscribe:
		return "Unsubscribe"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a known link operation.
func (o Operation) IsValid() bool {
	return o >= OpDiscover && o <= OpUnsubscribe
}

// NeedsHandle reports whether the operation addresses a handle.
func (o Operation) NeedsHandle() bool {
	return o != OpDiscover
}
