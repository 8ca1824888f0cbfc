package device

import "time"

// Logger defines the logging interface used by the Device.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventKind identifies a lifecycle event.
type EventKind string

// Lifecycle event kinds.
const (
	EventOpened     EventKind = "opened"
	EventOpenFailed EventKind = "open_failed"
	EventClosed     EventKind = "closed"
	EventAcquired   EventKind = "acquired"
	EventReleased   EventKind = "released"

	// EventRefCount reports a reference count change that neither opened
	// nor closed the device, such as Open on an implicitly open device.
	EventRefCount EventKind = "ref_count"
)

// EndpointKind distinguishes receivers from transmitters in events.
type EndpointKind string

// Endpoint kinds.
const (
	KindReceiver    EndpointKind = "receiver"
	KindTransmitter EndpointKind = "transmitter"
)

// Event describes a lifecycle change of a device or one of its endpoints.
type Event struct {
	Kind         EventKind
	Device       string
	EndpointID   string       // empty for device events
	EndpointKind EndpointKind // empty for device events
	RefCounted   bool         // acquisition went through the reference-counted path
	RefCount     int          // reference count after the change; -1 while explicitly open
	Err          error        // set for EventOpenFailed and failing closes
	Time         time.Time
}

// Path identifies how a message reached its receivers.
type Path string

// Dispatch paths.
const (
	PathFast   Path = "fast"
	PathFanout Path = "fanout"
)

// Form identifies the representation a message was dispatched in.
type Form string

// Message forms.
const (
	FormPacked  Form = "packed"
	FormRaw     Form = "raw"
	FormGeneric Form = "generic"

	// FormWire is input an adapter could not decode into a message at all.
	FormWire Form = "wire"
)

// Observer receives structured diagnostics from a Device. Methods are called
// synchronously, some with device locks held, and must not block or call
// back into the device.
type Observer interface {
	// LifecycleChanged is called for every open, close, acquire and release.
	LifecycleChanged(ev Event)

	// Dispatched is called once per dispatched message.
	Dispatched(device string, form Form, path Path, deliveries int)

	// Dropped is called when malformed input was discarded.
	Dropped(device string, form Form, err error)

	// DeliveryFailed is called when a receiver rejected a message.
	DeliveryFailed(device string, err error)
}

// NopObserver ignores everything. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) LifecycleChanged(Event)             {}
func (NopObserver) Dispatched(string, Form, Path, int) {}
func (NopObserver) Dropped(string, Form, error)        {}
func (NopObserver) DeliveryFailed(string, error)       {}

// multiObserver fans diagnostics out to several observers.
type multiObserver []Observer

// Observers combines observers into one. Nil entries are skipped.
func Observers(obs ...Observer) Observer {
	m := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multiObserver) LifecycleChanged(ev Event) {
	for _, o := range m {
		o.LifecycleChanged(ev)
	}
}

func (m multiObserver) Dispatched(device string, form Form, path Path, deliveries int) {
	for _, o := range m {
		o.Dispatched(device, form, path, deliveries)
	}
}

func (m multiObserver) Dropped(device string, form Form, err error) {
	for _, o := range m {
		o.Dropped(device, form, err)
	}
}

func (m multiObserver) DeliveryFailed(device string, err error) {
	for _, o := range m {
		o.DeliveryFailed(device, err)
	}
}
