package device

import (
	"fmt"

	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// Info describes a port.
type Info struct {
	Name        string `json:"name"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// String returns the port name.
func (i Info) String() string {
	return i.Name
}

// Adapter is the device-specific side of a port. The Device calls Open and
// Close only from its lifecycle controller and never concurrently.
//
// Embed BaseAdapter to get defaults for a port without endpoints.
type Adapter interface {
	// Info describes the port.
	Info() Info

	// Open acquires the underlying resource.
	Open() error

	// Close releases the underlying resource. Errors are logged and ignored.
	Close() error

	// HasReceivers reports whether the port accepts messages.
	HasReceivers() bool

	// HasTransmitters reports whether the port produces messages.
	HasTransmitters() bool

	// NewReceiver returns the delivery implementation for a new receiver.
	NewReceiver() (Sink, error)

	// NewTransmitter is consulted before a transmitter is created. A non-nil
	// error rejects the creation.
	NewTransmitter() error
}

// Sink is the device-specific delivery behind a ReceiverHandle.
type Sink interface {
	Send(msg midi.Message, timestamp int64) error
}

// PackedSink is implemented by sinks that accept the compact form directly.
// Receivers backed by such a sink are eligible for the dispatch fast path.
type PackedSink interface {
	SendPacked(packed uint32, timestamp int64) error
}

// Positioner is implemented by adapters that keep a device clock.
type Positioner interface {
	MicrosecondPosition() int64
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(msg midi.Message, timestamp int64) error

// Send calls f.
func (f SinkFunc) Send(msg midi.Message, timestamp int64) error {
	return f(msg, timestamp)
}

// BaseAdapter provides the behaviour of a port with no endpoints. Adapters
// embed it and override what they support.
type BaseAdapter struct {
	PortInfo Info
}

// Info returns PortInfo.
func (b BaseAdapter) Info() Info { return b.PortInfo }

// Open does nothing.
func (BaseAdapter) Open() error { return nil }

// Close does nothing.
func (BaseAdapter) Close() error { return nil }

// HasReceivers returns false.
func (BaseAdapter) HasReceivers() bool { return false }

// HasTransmitters returns false.
func (BaseAdapter) HasTransmitters() bool { return false }

// NewReceiver always fails.
func (b BaseAdapter) NewReceiver() (Sink, error) {
	return nil, fmt.Errorf("%w: %s has no receivers", ErrEndpointUnavailable, b.PortInfo.Name)
}

// NewTransmitter always fails.
func (b BaseAdapter) NewTransmitter() error {
	return fmt.Errorf("%w: %s has no transmitters", ErrEndpointUnavailable, b.PortInfo.Name)
}
