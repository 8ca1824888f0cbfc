package device

import (
	"slices"

	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// transmitterList is the transmitter registry together with the cached
// single-consumer fast path. All fields are guarded by Device.regMu.
type transmitterList struct {
	transmitters []*TransmitterHandle

	// fast is the only bound receiver when exactly one transmitter exists
	// and its receiver takes the compact form natively. fastCount is 1 while
	// fast is set, 0 otherwise; the fast path is taken only while it equals
	// len(transmitters).
	fast      PackedReceiver
	fastCount int
}

// add appends t unbound.
func (l *transmitterList) add(t *TransmitterHandle) {
	t.receiver = nil
	l.transmitters = append(l.transmitters, t)
	l.recompute()
}

// remove drops t. Removing an absent transmitter is a no-op.
func (l *transmitterList) remove(t *TransmitterHandle) {
	i := slices.Index(l.transmitters, t)
	if i < 0 {
		return
	}
	l.transmitters = slices.Delete(l.transmitters, i, i+1)
	l.recompute()
}

// bind sets the receiver of t, nil meaning unbound.
func (l *transmitterList) bind(t *TransmitterHandle, r Receiver) {
	t.receiver = r
	l.recompute()
}

// recompute refreshes the fast path cache.
func (l *transmitterList) recompute() {
	l.fast, l.fastCount = nil, 0
	if len(l.transmitters) != 1 {
		return
	}
	if r := l.transmitters[0].receiver; r != nil {
		if pr, ok := asPacked(r); ok {
			l.fast, l.fastCount = pr, 1
		}
	}
}

// fastPath returns the cached receiver when it is the only consumer.
func (l *transmitterList) fastPath() (PackedReceiver, bool) {
	if l.fast == nil || l.fastCount != len(l.transmitters) {
		return nil, false
	}
	return l.fast, true
}

// DispatchPacked delivers a short message in compact form to the receiver of
// every transmitter. Receivers taking the compact form get it unchanged, the
// others get the decoded message. A value that does not decode is dropped
// for those receivers only.
func (d *Device) DispatchPacked(packed uint32, timestamp int64) {
	d.regMu.Lock()
	defer d.regMu.Unlock()

	if fast, ok := d.tx.fastPath(); ok {
		n := d.deliverPacked(fast, packed, timestamp)
		d.observer.Dispatched(d.info.Name, FormPacked, PathFast, n)
		return
	}

	var (
		msg     midi.ShortMessage
		decoded bool
		bad     error
		n       int
	)
	for _, t := range d.tx.transmitters {
		r := t.receiver
		if r == nil {
			continue
		}
		if pr, ok := asPacked(r); ok {
			n += d.deliverPacked(pr, packed, timestamp)
			continue
		}

		if !decoded {
			msg, bad = midi.Unpack(packed)
			decoded = true
			if bad != nil {
				d.dropped(FormPacked, bad)
			}
		}
		if bad != nil {
			continue
		}
		n += d.deliver(r, msg, timestamp)
	}
	d.observer.Dispatched(d.info.Name, FormPacked, PathFanout, n)
}

// DispatchRaw delivers a system exclusive message given as raw bytes. The
// message is built once and shared by all receivers. Malformed data is
// dropped and reaches no receiver.
func (d *Device) DispatchRaw(data []byte, timestamp int64) {
	d.regMu.Lock()
	defer d.regMu.Unlock()

	var (
		msg midi.Message
		n   int
	)
	for _, t := range d.tx.transmitters {
		r := t.receiver
		if r == nil {
			continue
		}
		if msg == nil {
			sysex, err := midi.NewSysexMessage(data)
			if err != nil {
				d.dropped(FormRaw, err)
				return
			}
			msg = sysex
		}
		n += d.deliver(r, msg, timestamp)
	}
	d.observer.Dispatched(d.info.Name, FormRaw, PathFanout, n)
}

// Dispatch delivers msg to the receiver of every transmitter. Short messages
// take the compact path so receivers that accept it receive it that way.
func (d *Device) Dispatch(msg midi.Message, timestamp int64) {
	switch m := msg.(type) {
	case nil:
		return
	case midi.ShortMessage:
		d.DispatchPacked(m.Packed(), timestamp)
		return
	case *midi.ShortMessage:
		if m == nil {
			return
		}
		d.DispatchPacked(m.Packed(), timestamp)
		return
	}

	d.regMu.Lock()
	defer d.regMu.Unlock()

	if fast, ok := d.tx.fastPath(); ok {
		n := d.deliver(fast, msg, timestamp)
		d.observer.Dispatched(d.info.Name, FormGeneric, PathFast, n)
		return
	}

	n := 0
	for _, t := range d.tx.transmitters {
		if r := t.receiver; r != nil {
			n += d.deliver(r, msg, timestamp)
		}
	}
	d.observer.Dispatched(d.info.Name, FormGeneric, PathFanout, n)
}

// ReportMalformed records input an adapter dropped before dispatch. It goes
// to the same diagnostics as malformed data seen by the dispatcher.
func (d *Device) ReportMalformed(form Form, err error) {
	d.regMu.Lock()
	defer d.regMu.Unlock()
	d.dropped(form, err)
}

// deliver sends msg to r and returns 1 on success. Failures are reported and
// do not stop the dispatch.
func (d *Device) deliver(r Receiver, msg midi.Message, timestamp int64) int {
	if err := r.Send(msg, timestamp); err != nil {
		d.deliveryFailed(err)
		return 0
	}
	return 1
}

func (d *Device) deliverPacked(r PackedReceiver, packed uint32, timestamp int64) int {
	if err := r.SendPacked(packed, timestamp); err != nil {
		d.deliveryFailed(err)
		return 0
	}
	return 1
}

func (d *Device) deliveryFailed(err error) {
	d.logger.Warn("delivery failed", "device", d.info.Name, "error", err)
	d.observer.DeliveryFailed(d.info.Name, err)
}

// dropped records malformed input. Noise on the wire is expected, so it is
// only logged at debug level.
func (d *Device) dropped(form Form, err error) {
	d.logger.Debug("malformed message dropped", "device", d.info.Name, "form", string(form), "error", err)
	d.observer.Dropped(d.info.Name, form, err)
}
