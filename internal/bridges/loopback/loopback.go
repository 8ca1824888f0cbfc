// Package loopback provides a virtual MIDI through port: every message sent
// to one of its receivers comes back out of its transmitters.
//
// It needs no hardware or broker and is the default backend.
//
// Echoing happens synchronously inside the receiver's Send. A transmitter of
// a loopback device must not be bound to a receiver of the same device: the
// echo would re-enter the dispatch that is delivering it.
package loopback

import (
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// ErrClosed is returned when a receiver sends while the port is closed.
var ErrClosed = errors.New("loopback: port is closed")

// ErrNotAttached is returned by Open when no dispatcher was attached.
var ErrNotAttached = errors.New("loopback: no dispatcher attached")

// Dispatcher receives what the port echoes. *device.Device satisfies it.
type Dispatcher interface {
	DispatchPacked(packed uint32, timestamp int64)
	Dispatch(msg midi.Message, timestamp int64)
}

// Port is a device.Adapter that echoes its input.
type Port struct {
	device.BaseAdapter

	mu         sync.RWMutex
	dispatcher Dispatcher
	open       bool
	openedAt   time.Time
	opens      int
}

// New creates a closed port.
func New(info device.Info) *Port {
	return &Port{BaseAdapter: device.BaseAdapter{PortInfo: info}}
}

// Attach sets where echoed messages go.
func (p *Port) Attach(d Dispatcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatcher = d
}

// Open starts the port clock.
func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispatcher == nil {
		return ErrNotAttached
	}
	p.open = true
	p.openedAt = time.Now()
	p.opens++
	return nil
}

// Close stops echoing.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}

// Opens returns how many times the port was physically opened.
func (p *Port) Opens() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opens
}

// HasReceivers returns true.
func (p *Port) HasReceivers() bool { return true }

// HasTransmitters returns true.
func (p *Port) HasTransmitters() bool { return true }

// NewReceiver returns the echoing sink.
func (p *Port) NewReceiver() (device.Sink, error) {
	return echo{port: p}, nil
}

// NewTransmitter allows any number of transmitters.
func (p *Port) NewTransmitter() error { return nil }

// MicrosecondPosition returns the time since the port was opened, or -1.
func (p *Port) MicrosecondPosition() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return -1
	}
	return time.Since(p.openedAt).Microseconds()
}

func (p *Port) target() (Dispatcher, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return nil, ErrClosed
	}
	return p.dispatcher, nil
}

// echo is the sink behind loopback receivers. Timestamps pass through
// unchanged.
type echo struct {
	port *Port
}

func (e echo) Send(msg midi.Message, timestamp int64) error {
	d, err := e.port.target()
	if err != nil {
		return err
	}
	d.Dispatch(msg, timestamp)
	return nil
}

func (e echo) SendPacked(packed uint32, timestamp int64) error {
	d, err := e.port.target()
	if err != nil {
		return err
	}
	d.DispatchPacked(packed, timestamp)
	return nil
}
