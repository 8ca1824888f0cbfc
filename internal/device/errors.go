package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrEndpointUnavailable) {
//	    // the port has no inputs
//	}
var (
	// ErrResourceUnavailable is returned when the physical open fails.
	ErrResourceUnavailable = errors.New("device: resource unavailable")

	// ErrEndpointUnavailable is returned when the device does not support the
	// requested endpoint kind or the adapter refused to create it.
	ErrEndpointUnavailable = errors.New("device: endpoint unavailable")

	// ErrInvalidState is returned when a message is sent to a closed receiver.
	ErrInvalidState = errors.New("device: receiver is not open")
)
