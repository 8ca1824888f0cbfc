package device

import (
	"errors"
	"fmt"
	"slices"
)

// NewReceiver creates a receiver without opening the device. Messages sent
// to it reach the adapter only while the device is open.
//
// Returns ErrEndpointUnavailable if the port has no receivers or the adapter
// rejects the request.
func (d *Device) NewReceiver() (*ReceiverHandle, error) {
	d.regMu.Lock()
	defer d.regMu.Unlock()

	r, err := d.createReceiverLocked()
	if err != nil {
		return nil, err
	}
	d.acquired(r)
	return r, nil
}

// NewReceiverRefCounted creates a receiver and opens the device on its
// behalf. The device stays open until every such endpoint is closed, unless
// an explicit open is active.
//
// Returns ErrEndpointUnavailable if no receiver could be created; nothing is
// registered in that case. If the receiver was created but the device failed
// to open, the handle is returned together with an ErrResourceUnavailable
// error. It stays registered and counted until the caller closes it.
func (d *Device) NewReceiverRefCounted() (*ReceiverHandle, error) {
	d.regMu.Lock()
	defer d.regMu.Unlock()

	r, err := d.createReceiverLocked()
	if err != nil {
		return nil, err
	}
	if err := d.openImplicitLocked(r); err != nil {
		return r, err
	}
	return r, nil
}

// NewTransmitter creates an unbound transmitter without opening the device.
//
// Returns ErrEndpointUnavailable if the port has no transmitters or the
// adapter rejects the request.
func (d *Device) NewTransmitter() (*TransmitterHandle, error) {
	d.regMu.Lock()
	defer d.regMu.Unlock()

	t, err := d.createTransmitterLocked()
	if err != nil {
		return nil, err
	}
	d.acquired(t)
	return t, nil
}

// NewTransmitterRefCounted creates an unbound transmitter and opens the
// device on its behalf. Failure handling matches NewReceiverRefCounted.
func (d *Device) NewTransmitterRefCounted() (*TransmitterHandle, error) {
	d.regMu.Lock()
	defer d.regMu.Unlock()

	t, err := d.createTransmitterLocked()
	if err != nil {
		return nil, err
	}
	if err := d.openImplicitLocked(t); err != nil {
		return t, err
	}
	return t, nil
}

// Receivers returns a snapshot of the open receivers in creation order.
func (d *Device) Receivers() []*ReceiverHandle {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	return slices.Clone(d.receivers)
}

// Transmitters returns a snapshot of the open transmitters in creation order.
func (d *Device) Transmitters() []*TransmitterHandle {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	return slices.Clone(d.tx.transmitters)
}

func (d *Device) createReceiverLocked() (*ReceiverHandle, error) {
	if !d.adapter.HasReceivers() {
		return nil, fmt.Errorf("%w: %s has no receivers", ErrEndpointUnavailable, d.info.Name)
	}

	sink, err := d.adapter.NewReceiver()
	if err != nil {
		return nil, endpointError(d.info.Name, err)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: %s returned no receiver", ErrEndpointUnavailable, d.info.Name)
	}

	r := newReceiverHandle(d, sink)
	d.receivers = append(d.receivers, r)
	d.logger.Debug("receiver created", "device", d.info.Name, "receiver", r.id)
	return r, nil
}

func (d *Device) createTransmitterLocked() (*TransmitterHandle, error) {
	if !d.adapter.HasTransmitters() {
		return nil, fmt.Errorf("%w: %s has no transmitters", ErrEndpointUnavailable, d.info.Name)
	}
	if err := d.adapter.NewTransmitter(); err != nil {
		return nil, endpointError(d.info.Name, err)
	}

	t := newTransmitterHandle(d)
	d.tx.add(t)
	d.logger.Debug("transmitter created", "device", d.info.Name, "transmitter", t.id)
	return t, nil
}

// removeReceiverLocked drops r from the registry. Removing an absent handle
// is a no-op. The caller holds regMu.
func (d *Device) removeReceiverLocked(r *ReceiverHandle) {
	if i := slices.Index(d.receivers, r); i >= 0 {
		d.receivers = slices.Delete(d.receivers, i, i+1)
	}
}

func endpointError(name string, err error) error {
	if errors.Is(err, ErrEndpointUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrEndpointUnavailable, name, err)
}
