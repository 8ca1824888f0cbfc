package device

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// Endpoint is implemented by receiver and transmitter handles.
type Endpoint interface {
	// ID returns a unique identifier such as "rx-1a2b3c4d".
	ID() string

	// IsOpen reports whether the endpoint has not been closed yet.
	IsOpen() bool

	// Close releases the endpoint. It is idempotent.
	Close()
}

// Receiver accepts messages. A transmitter can be bound to any Receiver,
// including handles of other devices.
type Receiver interface {
	Send(msg midi.Message, timestamp int64) error
}

// PackedReceiver is a Receiver that also accepts the compact form. The
// dispatcher prefers SendPacked when a bound receiver implements it.
type PackedReceiver interface {
	Receiver
	SendPacked(packed uint32, timestamp int64) error
}

// packedSupporter lets a PackedReceiver report whether the compact form is
// native to it or merely converted.
type packedSupporter interface {
	SupportsPacked() bool
}

// asPacked returns r as a PackedReceiver when it takes the compact form
// natively.
func asPacked(r Receiver) (PackedReceiver, bool) {
	pr, ok := r.(PackedReceiver)
	if !ok {
		return nil, false
	}
	if s, ok := r.(packedSupporter); ok && !s.SupportsPacked() {
		return nil, false
	}
	return pr, true
}

// isNil reports whether v is nil or an interface holding a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// newID returns a short random identifier with the given prefix.
func newID(prefix string) string {
	return prefix + uuid.NewString()[:8]
}

// ReceiverHandle is a receiver created by a Device. Messages sent to it are
// forwarded to the adapter's Sink until the handle is closed.
//
// Thread Safety: All methods are safe for concurrent use. Calls into the
// sink are serialised.
type ReceiverHandle struct {
	id     string
	device *Device
	sink   Sink
	packed PackedSink // sink as PackedSink, nil if not supported

	open   atomic.Bool
	sendMu sync.Mutex
}

func newReceiverHandle(d *Device, sink Sink) *ReceiverHandle {
	r := &ReceiverHandle{
		id:     newID("rx-"),
		device: d,
		sink:   sink,
	}
	r.packed, _ = sink.(PackedSink)
	r.open.Store(true)
	return r
}

// ID returns the handle identifier.
func (r *ReceiverHandle) ID() string { return r.id }

// Device returns the device the handle belongs to.
func (r *ReceiverHandle) Device() *Device { return r.device }

// IsOpen reports whether the handle is still open.
func (r *ReceiverHandle) IsOpen() bool { return r.open.Load() }

// SupportsPacked reports whether the sink takes the compact form natively.
func (r *ReceiverHandle) SupportsPacked() bool { return r.packed != nil }

// Send forwards msg to the sink.
//
// Returns ErrInvalidState once the handle is closed, and midi.ErrInvalidData
// for a nil message.
func (r *ReceiverHandle) Send(msg midi.Message, timestamp int64) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if !r.open.Load() {
		return fmt.Errorf("%w: %s", ErrInvalidState, r.id)
	}
	if isNil(msg) {
		return fmt.Errorf("%w: nil message", midi.ErrInvalidData)
	}
	return r.sink.Send(msg, timestamp)
}

// SendPacked forwards the compact form to the sink, decoding it first if the
// sink only takes generic messages.
//
// Returns ErrInvalidState once the handle is closed, and midi.ErrInvalidData
// when decoding fails.
func (r *ReceiverHandle) SendPacked(packed uint32, timestamp int64) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if !r.open.Load() {
		return fmt.Errorf("%w: %s", ErrInvalidState, r.id)
	}
	if r.packed != nil {
		return r.packed.SendPacked(packed, timestamp)
	}

	msg, err := midi.Unpack(packed)
	if err != nil {
		return err
	}
	return r.sink.Send(msg, timestamp)
}

// Close closes the handle, removes it from the device and releases its
// implicit open, if any. Closing twice is a no-op.
func (r *ReceiverHandle) Close() {
	if !r.markClosed() {
		return
	}

	d := r.device
	d.regMu.Lock()
	defer d.regMu.Unlock()

	d.removeReceiverLocked(r)
	d.closeImplicitLocked(r)
}

// markClosed flips the handle to closed and reports whether this call did it.
func (r *ReceiverHandle) markClosed() bool {
	return r.open.CompareAndSwap(true, false)
}

// TransmitterHandle is a transmitter created by a Device. Messages the
// device produces are delivered to the receiver bound to it.
//
// Thread Safety: All methods are safe for concurrent use. Binding state is
// guarded by the device's registry lock.
type TransmitterHandle struct {
	id     string
	device *Device

	open     atomic.Bool
	receiver Receiver // guarded by device.regMu
}

func newTransmitterHandle(d *Device) *TransmitterHandle {
	t := &TransmitterHandle{
		id:     newID("tx-"),
		device: d,
	}
	t.open.Store(true)
	return t
}

// ID returns the handle identifier.
func (t *TransmitterHandle) ID() string { return t.id }

// Device returns the device the handle belongs to.
func (t *TransmitterHandle) Device() *Device { return t.device }

// IsOpen reports whether the handle is still open.
func (t *TransmitterHandle) IsOpen() bool { return t.open.Load() }

// SetReceiver binds r, replacing any previous binding. A nil r, including a
// typed nil pointer, unbinds. Binding a closed transmitter has no effect.
func (t *TransmitterHandle) SetReceiver(r Receiver) {
	if isNil(r) {
		r = nil
	}
	d := t.device
	d.regMu.Lock()
	defer d.regMu.Unlock()

	if !t.open.Load() {
		return
	}
	d.tx.bind(t, r)
	d.logger.Debug("transmitter bound", "device", d.info.Name, "transmitter", t.id, "bound", r != nil)
}

// Receiver returns the bound receiver, or nil.
func (t *TransmitterHandle) Receiver() Receiver {
	d := t.device
	d.regMu.Lock()
	defer d.regMu.Unlock()
	return t.receiver
}

// Close unbinds the transmitter, removes it from the device and releases its
// implicit open, if any. Closing twice is a no-op.
func (t *TransmitterHandle) Close() {
	d := t.device
	d.regMu.Lock()
	defer d.regMu.Unlock()

	if !t.open.CompareAndSwap(true, false) {
		return
	}
	d.tx.bind(t, nil)
	d.tx.remove(t)
	d.closeImplicitLocked(t)
}
