package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/server"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

// Link errors without a more specific sentinel.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrRejected       = errors.New("request rejected")
	ErrInternal       = errors.New("accessory internal error")
)

// rejections are the credential transition failures reported as
// StatusRejected. The central recovers the sentinel from the message.
var rejections = []error{
	credential.ErrAlreadyConfigured,
	credential.ErrNotConfigured,
	credential.ErrInvitationNotFound,
	credential.ErrInvitationExpired,
	credential.ErrNotFound,
	credential.ErrDuplicateID,
	credential.ErrInvalidPermission,
	credential.ErrOwnerIrrevocable,
	credential.ErrReservedID,
}

// StatusFor maps an accessory error to the status sent to the central.
func StatusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, attribute.ErrAttributeNotFound):
		return wire.StatusAttributeNotFound
	case errors.Is(err, attribute.ErrNotReadable):
		return wire.StatusNotReadable
	case errors.Is(err, attribute.ErrNotWritable), errors.Is(err, server.ErrProtectedAttribute):
		return wire.StatusNotWritable
	case errors.Is(err, auth.ErrDecryptionFailed):
		return wire.StatusDecryptionFailed
	case errors.Is(err, auth.ErrInvalidAuthentication):
		return wire.StatusInvalidAuthentication
	case errors.Is(err, server.ErrNotAuthorized), errors.Is(err, credential.ErrPermissionDenied):
		return wire.StatusNotAuthorized
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return wire.StatusTimeout
	case errors.Is(err, device.ErrIncompatibleDevice):
		return wire.StatusIncompatibleDevice
	case errors.Is(err, attribute.ErrInvalidValue), errors.Is(err, attribute.ErrFormat),
		errors.Is(err, profile.ErrInvalidPayload), errors.Is(err, secure.ErrInvalidLength):
		return wire.StatusInvalidValue
	case errors.Is(err, ErrInvalidRequest):
		return wire.StatusInvalidRequest
	}
	for _, r := range rejections {
		if errors.Is(err, r) {
			return wire.StatusRejected
		}
	}
	return wire.StatusInternalError
}

// ErrorFor maps a response status and detail message back to an error
// wrapping the matching sentinel. It returns nil for StatusSuccess.
func ErrorFor(status wire.Status, message string) error {
	var sentinel error
	switch status {
	case wire.StatusSuccess:
		return nil
	case wire.StatusAttributeNotFound:
		sentinel = attribute.ErrAttributeNotFound
	case wire.StatusNotReadable:
		sentinel = attribute.ErrNotReadable
	case wire.StatusNotWritable:
		sentinel = attribute.ErrNotWritable
	case wire.StatusInvalidValue:
		sentinel = attribute.ErrInvalidValue
	case wire.StatusInvalidAuthentication:
		sentinel = auth.ErrInvalidAuthentication
	case wire.StatusDecryptionFailed:
		sentinel = auth.ErrDecryptionFailed
	case wire.StatusNotAuthorized:
		sentinel = server.ErrNotAuthorized
		if strings.Contains(message, credential.ErrPermissionDenied.Error()) {
			sentinel = credential.ErrPermissionDenied
		}
	case wire.StatusRejected:
		sentinel = ErrRejected
		for _, r := range rejections {
			if strings.Contains(message, r.Error()) {
				sentinel = r
				break
			}
		}
	case wire.StatusTimeout:
		sentinel = device.ErrTimeout
	case wire.StatusIncompatibleDevice:
		sentinel = device.ErrIncompatibleDevice
	case wire.StatusInvalidRequest:
		sentinel = ErrInvalidRequest
	default:
		sentinel = ErrInternal
	}

	if message == "" || message == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
