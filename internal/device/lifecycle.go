package device

import (
	"errors"
	"fmt"
)

// Open opens the device on behalf of the application.
//
// An explicit open overrides reference counting: endpoints acquired while it
// is active do not count, and closing them never closes the device. Only
// Close does. Calling Open on an open device is a no-op.
//
// Returns ErrResourceUnavailable if the adapter fails to open.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.refCount
	d.refCount = refCountExplicit
	if d.open.Load() {
		d.refCountChangedLocked(prev)
		return nil
	}
	return d.physicalOpen()
}

// Close closes the device unconditionally and resets the reference count.
// Every endpoint still attached to the device is closed with it.
func (d *Device) Close() {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.refCount
	d.refCount = 0
	if !d.physicalClose() {
		d.refCountChangedLocked(prev)
		return
	}
	d.sweepLocked()
}

// refCountChangedLocked reports a count change that caused no physical open
// or close. The caller holds mu.
func (d *Device) refCountChangedLocked(prev int) {
	if prev == d.refCount {
		return
	}
	d.logger.Debug("device reference count changed", "device", d.info.Name, "from", prev, "to", d.refCount)
	ev := d.event(EventRefCount)
	ev.RefCount = d.refCount
	d.observer.LifecycleChanged(ev)
}

// IsOpen reports whether the underlying resource is open.
func (d *Device) IsOpen() bool {
	return d.open.Load()
}

// RefCount returns the number of implicit openers, or -1 while an explicit
// open is active.
func (d *Device) RefCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refCount
}

// openImplicitLocked records opener and makes sure the device is open.
// The caller holds regMu.
//
// A failed physical open leaves the opener recorded. The handle stays
// registered, so closing it releases the count.
func (d *Device) openImplicitLocked(opener Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.refCount != refCountExplicit {
		if _, ok := d.openers[opener]; !ok {
			d.openers[opener] = struct{}{}
			d.refCount++
		}
	}
	d.endpointEventLocked(EventAcquired, opener, true)
	return d.physicalOpen()
}

// closeImplicitLocked releases opener. Only an opener that was recorded by
// openImplicitLocked decrements the count, and only the last one closes the
// device. Unknown openers are ignored, which makes the device immune to
// implicit closes while an explicit open is active. The caller holds regMu.
func (d *Device) closeImplicitLocked(opener Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, tracked := d.openers[opener]
	if tracked {
		delete(d.openers, opener)
		if d.refCount > 0 {
			d.refCount--
		} else {
			tracked = false
		}
	}
	d.endpointEventLocked(EventReleased, opener, tracked)

	if tracked && d.refCount == 0 && d.physicalClose() {
		d.sweepLocked()
	}
}

// physicalOpen calls the adapter unless the device is already open.
// The caller holds mu.
func (d *Device) physicalOpen() error {
	if d.open.Load() {
		return nil
	}

	if err := d.adapter.Open(); err != nil {
		if !errors.Is(err, ErrResourceUnavailable) {
			err = fmt.Errorf("%w: %s: %w", ErrResourceUnavailable, d.info.Name, err)
		}
		d.logger.Error("device open failed", "device", d.info.Name, "error", err)
		ev := d.event(EventOpenFailed)
		ev.RefCount = d.refCount
		ev.Err = err
		d.observer.LifecycleChanged(ev)
		return err
	}

	d.open.Store(true)
	d.logger.Info("device opened", "device", d.info.Name, "ref_count", d.refCount)
	ev := d.event(EventOpened)
	ev.RefCount = d.refCount
	d.observer.LifecycleChanged(ev)
	return nil
}

// physicalClose calls the adapter if the device is open and reports whether
// it did. A failing adapter is logged; the device is closed regardless.
// The caller holds mu.
func (d *Device) physicalClose() bool {
	if !d.open.Load() {
		return false
	}

	err := d.adapter.Close()
	d.open.Store(false)

	ev := d.event(EventClosed)
	ev.RefCount = d.refCount
	ev.Err = err
	if err != nil {
		d.logger.Warn("device close reported an error", "device", d.info.Name, "error", err)
	} else {
		d.logger.Info("device closed", "device", d.info.Name)
	}
	d.observer.LifecycleChanged(ev)
	return true
}

// sweepLocked closes every endpoint still attached to the device after a
// physical close and empties both registries. The caller holds regMu and mu.
func (d *Device) sweepLocked() {
	receivers := d.receivers
	d.receivers = nil
	for _, r := range receivers {
		delete(d.openers, r)
		if r.markClosed() {
			d.endpointEventLocked(EventReleased, r, false)
		}
	}

	transmitters := d.tx.transmitters
	d.tx.transmitters = nil
	for _, t := range transmitters {
		delete(d.openers, t)
		t.receiver = nil
		if t.open.CompareAndSwap(true, false) {
			d.endpointEventLocked(EventReleased, t, false)
		}
	}
	d.tx.recompute()

	if n := len(receivers) + len(transmitters); n > 0 {
		d.logger.Debug("closed endpoints with device", "device", d.info.Name, "endpoints", n)
	}
}

// acquired reports a handle created without an implicit open.
func (d *Device) acquired(e Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpointEventLocked(EventAcquired, e, false)
}

// endpointEventLocked reports a change concerning a handle. The caller holds mu.
func (d *Device) endpointEventLocked(kind EventKind, e Endpoint, refCounted bool) {
	ev := d.event(kind)
	switch h := e.(type) {
	case *ReceiverHandle:
		ev.EndpointID, ev.EndpointKind = h.id, KindReceiver
	case *TransmitterHandle:
		ev.EndpointID, ev.EndpointKind = h.id, KindTransmitter
	default:
		return
	}
	ev.RefCounted = refCounted
	ev.RefCount = d.refCount
	d.observer.LifecycleChanged(ev)
}
