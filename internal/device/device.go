package device

import (
	"sync"
	"sync/atomic"
	"time"
)

// refCountExplicit is the reference count while an explicit open is active.
const refCountExplicit = -1

// Device is a single port whose underlying resource is kept open exactly as
// long as an explicit open or at least one implicit opener needs it.
//
// All public methods are thread-safe.
type Device struct {
	adapter  Adapter
	info     Info
	logger   Logger
	observer Observer

	// Lifecycle domain.
	mu       sync.Mutex
	open     atomic.Bool // written under mu, read lock-free
	refCount int
	openers  map[Endpoint]struct{}

	// Registry and dispatch domain. Taken before mu when both are needed.
	regMu     sync.Mutex
	receivers []*ReceiverHandle
	tx        transmitterList
}

// New creates a closed device backed by adapter.
func New(adapter Adapter) *Device {
	return &Device{
		adapter:  adapter,
		info:     adapter.Info(),
		logger:   noopLogger{},
		observer: NopObserver{},
		openers:  make(map[Endpoint]struct{}),
	}
}

// SetLogger sets the logger for the device.
// It must be called before the device is shared between goroutines.
func (d *Device) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// SetObserver sets the diagnostics sink for the device.
// It must be called before the device is shared between goroutines.
func (d *Device) SetObserver(observer Observer) {
	if observer == nil {
		observer = NopObserver{}
	}
	d.observer = observer
}

// Info describes the port.
func (d *Device) Info() Info {
	return d.info
}

// MaxReceivers returns -1 (unlimited) if the port accepts messages, 0 otherwise.
func (d *Device) MaxReceivers() int {
	if d.adapter.HasReceivers() {
		return -1
	}
	return 0
}

// MaxTransmitters returns -1 (unlimited) if the port produces messages, 0 otherwise.
func (d *Device) MaxTransmitters() int {
	if d.adapter.HasTransmitters() {
		return -1
	}
	return 0
}

// MicrosecondPosition returns the device clock, or -1 if the adapter has none
// or the device is closed.
func (d *Device) MicrosecondPosition() int64 {
	p, ok := d.adapter.(Positioner)
	if !ok || !d.IsOpen() {
		return -1
	}
	return p.MicrosecondPosition()
}

// event builds a lifecycle event stamped with the current time.
func (d *Device) event(kind EventKind) Event {
	return Event{
		Kind:   kind,
		Device: d.info.Name,
		Time:   time.Now(),
	}
}
