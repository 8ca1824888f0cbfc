// Package recorder stores MIDI traffic as time series.
//
// A Recorder is a device.Receiver: bind it to a transmitter and every
// message the device dispatches is written as an InfluxDB point. It takes
// the compact form, so a recorder alone on a device rides the dispatch fast
// path. PortStates is a device.Observer that records port open and close.
package recorder

import (
	"sync/atomic"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// Writer is the time series sink. *influxdb.Client satisfies it.
type Writer interface {
	WriteMessage(port, endpoint string, msg midi.Message, timestamp int64)
	WritePortState(port string, open bool, refCount int)
}

// Recorder writes every message it is sent.
type Recorder struct {
	writer   Writer
	port     string
	endpoint string
	recorded atomic.Int64
}

// New creates a recorder tagging points with port and endpoint (usually the
// ID of the transmitter it is bound to).
func New(w Writer, port, endpoint string) *Recorder {
	return &Recorder{writer: w, port: port, endpoint: endpoint}
}

// Send records msg.
func (r *Recorder) Send(msg midi.Message, timestamp int64) error {
	r.writer.WriteMessage(r.port, r.endpoint, msg, timestamp)
	r.recorded.Add(1)
	return nil
}

// SendPacked records a short message given in compact form.
func (r *Recorder) SendPacked(packed uint32, timestamp int64) error {
	msg, err := midi.Unpack(packed)
	if err != nil {
		return err
	}
	return r.Send(msg, timestamp)
}

// Recorded returns the number of messages written.
func (r *Recorder) Recorded() int64 {
	return r.recorded.Load()
}

// PortStates records device open and close as port state points.
type PortStates struct {
	device.NopObserver
	writer Writer
}

// NewPortStates creates the observer.
func NewPortStates(w Writer) *PortStates {
	return &PortStates{writer: w}
}

// LifecycleChanged writes a point when the device opens or closes.
func (p *PortStates) LifecycleChanged(ev device.Event) {
	switch ev.Kind {
	case device.EventOpened:
		p.writer.WritePortState(ev.Device, true, ev.RefCount)
	case device.EventClosed:
		p.writer.WritePortState(ev.Device, false, 0)
	}
}
