package midi

import (
	"fmt"
)

// Status byte ranges and framing bytes.
const (
	// StatusNoteOff is the first channel voice status.
	StatusNoteOff byte = 0x80

	// StatusNoteOn starts a note.
	StatusNoteOn byte = 0x90

	// StatusControlChange changes a controller value.
	StatusControlChange byte = 0xB0

	// StatusProgramChange selects a program.
	StatusProgramChange byte = 0xC0

	// StatusSysex opens a system exclusive message.
	StatusSysex byte = 0xF0

	// StatusSysexEnd closes a system exclusive message, or opens a
	// continuation packet.
	StatusSysexEnd byte = 0xF7

	// dataMask covers the seven significant bits of a data byte.
	dataMask = 0x7F
)

// Message is the generic form of a MIDI message.
type Message interface {
	// Status returns the status byte.
	Status() byte

	// Len returns the encoded length in bytes, status byte included.
	Len() int

	// Bytes returns a copy of the encoded message.
	Bytes() []byte
}

// DataLength returns the number of data bytes that follow the given status
// byte in a short message.
//
// Returns ErrInvalidData for data bytes (< 0x80) and for statuses that cannot
// appear in a short message (0xF0, 0xF4, 0xF5).
func DataLength(status byte) (int, error) {
	switch status {
	case 0xF6, 0xF7, 0xF8, 0xF9, 0xFA, 0xFB, 0xFC, 0xFD, 0xFE, 0xFF:
		return 0, nil
	case 0xF1, 0xF3:
		return 1, nil
	case 0xF2:
		return 2, nil
	}

	switch status & 0xF0 {
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 2, nil
	case 0xC0, 0xD0:
		return 1, nil
	}

	return 0, fmt.Errorf("%w: status byte 0x%02X", ErrInvalidData, status)
}

// ShortMessage is a channel voice, system common or real-time message of at
// most three bytes. The zero value is not valid; use NewShortMessage or
// Unpack.
type ShortMessage struct {
	status byte
	data1  byte
	data2  byte
	length int
}

// NewShortMessage builds a message from a status byte and up to two data
// bytes. Data bytes beyond the status' data length are ignored.
func NewShortMessage(status, data1, data2 byte) (ShortMessage, error) {
	n, err := DataLength(status)
	if err != nil {
		return ShortMessage{}, err
	}

	m := ShortMessage{status: status, length: n + 1}
	if n > 0 {
		m.data1 = data1 & dataMask
	}
	if n > 1 {
		m.data2 = data2 & dataMask
	}
	return m, nil
}

// Unpack decodes the compact form of a short message.
func Unpack(packed uint32) (ShortMessage, error) {
	return NewShortMessage(byte(packed), byte(packed>>8), byte(packed>>16))
}

// Pack encodes status and data bytes into the compact form without
// validation.
func Pack(status, data1, data2 byte) uint32 {
	return uint32(status) | uint32(data1&dataMask)<<8 | uint32(data2&dataMask)<<16
}

// Status returns the status byte.
func (m ShortMessage) Status() byte { return m.status }

// Len returns 1, 2 or 3.
func (m ShortMessage) Len() int { return m.length }

// Data1 returns the first data byte, or 0 if the message has none.
func (m ShortMessage) Data1() byte { return m.data1 }

// Data2 returns the second data byte, or 0 if the message has none.
func (m ShortMessage) Data2() byte { return m.data2 }

// Command returns the status with the channel nibble cleared for channel
// messages, or the full status for system messages.
func (m ShortMessage) Command() byte {
	if m.status >= 0xF0 {
		return m.status
	}
	return m.status & 0xF0
}

// Channel returns the channel (0-15) of a channel message, or -1.
func (m ShortMessage) Channel() int {
	if m.status >= 0xF0 {
		return -1
	}
	return int(m.status & 0x0F)
}

// Packed returns the compact form.
func (m ShortMessage) Packed() uint32 {
	return Pack(m.status, m.data1, m.data2)
}

// Bytes returns the wire encoding.
func (m ShortMessage) Bytes() []byte {
	b := [3]byte{m.status, m.data1, m.data2}
	out := make([]byte, m.length)
	copy(out, b[:m.length])
	return out
}

// String returns a human-readable representation of the message.
func (m ShortMessage) String() string {
	return fmt.Sprintf("ShortMessage{status=0x%02X, data1=%d, data2=%d}", m.status, m.data1, m.data2)
}

// SysexMessage is a system exclusive message. The stored bytes include the
// leading 0xF0 or 0xF7.
type SysexMessage struct {
	data []byte
}

// NewSysexMessage validates the framing byte and copies data. Only the first
// byte is checked; an unterminated message is accepted.
func NewSysexMessage(data []byte) (*SysexMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty system exclusive message", ErrInvalidData)
	}
	if data[0] != StatusSysex && data[0] != StatusSysexEnd {
		return nil, fmt.Errorf("%w: system exclusive status 0x%02X", ErrInvalidData, data[0])
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return &SysexMessage{data: buf}, nil
}

// Status returns 0xF0 or 0xF7.
func (m *SysexMessage) Status() byte { return m.data[0] }

// Len returns the encoded length including the status byte.
func (m *SysexMessage) Len() int { return len(m.data) }

// Bytes returns a copy of the encoded message.
func (m *SysexMessage) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Data returns a copy of the payload without the status byte.
func (m *SysexMessage) Data() []byte {
	out := make([]byte, len(m.data)-1)
	copy(out, m.data[1:])
	return out
}

// Parse decodes one message from wire bytes. Running status is not
// supported; the first byte must be a status byte.
func Parse(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidData)
	}

	status := data[0]
	if status == StatusSysex || status == StatusSysexEnd && len(data) > 1 {
		return NewSysexMessage(data)
	}

	n, err := DataLength(status)
	if err != nil {
		return nil, err
	}
	if len(data) != n+1 {
		return nil, fmt.Errorf("%w: status 0x%02X needs %d data bytes, got %d", ErrInvalidData, status, n, len(data)-1)
	}

	var d1, d2 byte
	if n > 0 {
		d1 = data[1]
	}
	if n > 1 {
		d2 = data[2]
	}
	if d1 > dataMask || d2 > dataMask {
		return nil, fmt.Errorf("%w: data byte out of range", ErrInvalidData)
	}

	return NewShortMessage(status, d1, d2)
}
