package midi

import "errors"

// Domain errors for the midi package.
var (
	// ErrInvalidData is returned when bytes or a packed value do not form a
	// valid message. Noise on the wire is expected to produce this error.
	ErrInvalidData = errors.New("midi: invalid message data")
)
