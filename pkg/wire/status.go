package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusAttributeNotFound indicates the handle doesn't exist.
	StatusAttributeNotFound Status = 1

	// StatusNotReadable indicates a read of a write- or notify-only attribute.
	StatusNotReadable Status = 2

	// StatusNotWritable indicates a write to a read-only or virtual attribute.
	StatusNotWritable Status = 3

	// StatusInvalidValue indicates the value could not be decoded.
	StatusInvalidValue Status = 4

	// StatusInvalidAuthentication indicates a missing, stale or bad signature.
	StatusInvalidAuthentication Status = 5

	// StatusDecryptionFailed indicates the encrypted payload could not be opened.
	StatusDecryptionFailed Status = 6

	// StatusNotAuthorized indicates the caller lacks permission.
	StatusNotAuthorized Status = 7

	// StatusRejected indicates a credential transition precondition failed.
	StatusRejected Status = 8

	// StatusTimeout indicates the operation timed out.
	StatusTimeout Status = 9

	// StatusIncompatibleDevice indicates the device returned unusable data.
	StatusIncompatibleDevice Status = 10

	// StatusInvalidRequest indicates a malformed request.
	StatusInvalidRequest Status = 11

	// StatusInternalError indicates an unexpected accessory failure.
	StatusInternalError Status = 12
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusAttributeNotFound:
		return "ATTRIBUTE_NOT_FOUND"
	case StatusNotReadable:
		return "NOT_READABLE"
	case StatusNotWritable:
		return "NOT_WRITABLE"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusInvalidAuthentication:
		return "INVALID_AUTHENTICATION"
	case StatusDecryptionFailed:
		return "DECRYPTION_FAILED"
	case StatusNotAuthorized:
		return "NOT_AUTHORIZED"
	case StatusRejected:
		return "REJECTED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusIncompatibleDevice:
		return "INCOMPATIBLE_DEVICE"
	case StatusInvalidRequest:
		return "INVALID_REQUEST"
	case StatusInternalError:
		return "INTERNAL_ERROR"
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
