package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// Measurement names.
const (
	MeasurementMessages = "midi_messages"
	MeasurementPorts    = "midi_ports"
)

// MessagePoint builds the point recorded for one MIDI message.
//
// Tags are the port, the receiving endpoint and the message kind. Short
// messages also carry their command and channel as tags and their data bytes
// as fields; system exclusive messages record their length only.
//
// Parameters:
//   - port: Device name
//   - endpoint: Receiver handle ID
//   - msg: The message
//   - timestamp: Device timestamp in microseconds, -1 if none
//   - at: Wall clock time of the point
func MessagePoint(port, endpoint string, msg midi.Message, timestamp int64, at time.Time) *write.Point {
	tags := map[string]string{
		"port":     port,
		"endpoint": endpoint,
	}
	fields := map[string]any{
		"status": int64(msg.Status()),
		"length": int64(msg.Len()),
	}
	if timestamp >= 0 {
		fields["timestamp_us"] = timestamp
	}

	switch m := msg.(type) {
	case midi.ShortMessage:
		shortFields(tags, fields, m)
	case *midi.ShortMessage:
		shortFields(tags, fields, *m)
	default:
		tags["kind"] = "sysex"
	}

	return write.NewPoint(MeasurementMessages, tags, fields, at)
}

func shortFields(tags map[string]string, fields map[string]any, m midi.ShortMessage) {
	tags["kind"] = "short"
	tags["command"] = commandName(m.Command())
	if ch := m.Channel(); ch >= 0 {
		tags["channel"] = strconv.Itoa(ch)
	}
	fields["data1"] = int64(m.Data1())
	fields["data2"] = int64(m.Data2())
	fields["packed"] = int64(m.Packed())
}

// PortPoint builds the point recorded when a port opens or closes.
func PortPoint(port string, open bool, refCount int, at time.Time) *write.Point {
	return write.NewPoint(MeasurementPorts,
		map[string]string{"port": port},
		map[string]any{"open": open, "ref_count": int64(refCount)},
		at,
	)
}

// WritePoint queues a point for the next batch. Dropped when disconnected.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.queued.Add(1)
	c.writeAPI.WritePoint(p)
}

// WriteMessage records one MIDI message received by endpoint on port.
//
// Example:
//
//	msg, _ := midi.Unpack(0x643C90)
//	client.WriteMessage("keys", "rx-1a2b3c4d", msg, -1)
func (c *Client) WriteMessage(port, endpoint string, msg midi.Message, timestamp int64) {
	c.WritePoint(MessagePoint(port, endpoint, msg, timestamp, time.Now()))
}

// WritePortState records the open state and reference count of a port.
func (c *Client) WritePortState(port string, open bool, refCount int) {
	c.WritePoint(PortPoint(port, open, refCount, time.Now()))
}

// commandNames maps a channel message command to its tag value.
var commandNames = map[byte]string{
	0x80: "note_off",
	0x90: "note_on",
	0xA0: "poly_pressure",
	0xB0: "control_change",
	0xC0: "program_change",
	0xD0: "channel_pressure",
	0xE0: "pitch_bend",
}

// commandName returns the tag value for a command; system messages are
// tagged "system".
func commandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "system"
}
