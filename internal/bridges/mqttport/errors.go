package mqttport

import "errors"

// Sentinel errors for the MQTT port adapter.
var (
	// ErrNotAttached is returned by Open when no dispatcher was attached.
	ErrNotAttached = errors.New("mqttport: no dispatcher attached")

	// ErrPortClosed is returned when a receiver sends while the port is closed.
	ErrPortClosed = errors.New("mqttport: port is closed")

	// ErrInvalidConfig is returned by New for incomplete options.
	ErrInvalidConfig = errors.New("mqttport: invalid configuration")
)
