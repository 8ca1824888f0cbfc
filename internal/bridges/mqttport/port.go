package mqttport

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// MQTTClient is the subset of the MQTT client used by a port.
// *mqtt.Client satisfies it; tests use a fake.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Dispatcher receives what the port's remote side produces.
// *device.Device satisfies it.
type Dispatcher interface {
	DispatchPacked(packed uint32, timestamp int64)
	DispatchRaw(data []byte, timestamp int64)
	ReportMalformed(form device.Form, err error)
}

// Logger is the logging interface used by the port.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Port status values published on the retained status topic.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// StatusMessage is the retained payload of {prefix}/port/{name}/status.
type StatusMessage struct {
	Port      string    `json:"port"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures a Port.
type Options struct {
	// Info describes the port. Info.Name is used in topics and must not
	// contain MQTT wildcards or separators.
	Info device.Info

	Client MQTTClient
	Topics mqtt.Topics
	QoS    byte
	Logger Logger
}

// Port is a device.Adapter whose underlying resource is a pair of MQTT
// topics. Opening the port subscribes to its input topic and feeds every
// payload to the attached dispatcher; receivers publish to its output topic.
//
// Thread Safety: All methods are safe for concurrent use.
type Port struct {
	device.BaseAdapter

	client MQTTClient
	topics mqtt.Topics
	qos    byte
	logger Logger

	mu         sync.RWMutex
	dispatcher Dispatcher
	open       bool
	openedAt   time.Time
}

// New creates a closed port.
func New(opts Options) (*Port, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: client is required", ErrInvalidConfig)
	}
	if opts.Info.Name == "" || strings.ContainsAny(opts.Info.Name, "/+#") {
		return nil, fmt.Errorf("%w: invalid port name %q", ErrInvalidConfig, opts.Info.Name)
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidConfig, opts.QoS)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Port{
		BaseAdapter: device.BaseAdapter{PortInfo: opts.Info},
		client:      opts.Client,
		topics:      opts.Topics,
		qos:         opts.QoS,
		logger:      opts.Logger,
	}, nil
}

// Attach sets where inbound messages go. Call it before the port is opened.
func (p *Port) Attach(d Dispatcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatcher = d
}

// Name returns the port name used in topics.
func (p *Port) Name() string {
	return p.PortInfo.Name
}

// Open subscribes to the input topic and publishes the open status.
//
// The port lock is not held across broker round trips: paho delivers
// messages on the goroutine that also waits for acks, and handleInput takes
// the lock.
func (p *Port) Open() error {
	p.mu.Lock()
	if p.dispatcher == nil {
		p.mu.Unlock()
		return ErrNotAttached
	}
	p.open = true
	p.openedAt = time.Now()
	p.mu.Unlock()

	if err := p.client.Subscribe(p.topics.PortIn(p.Name()), p.qos, p.handleInput); err != nil {
		p.setClosed()
		return fmt.Errorf("subscribing to port input: %w", err)
	}

	p.publishStatus(StatusOpen)
	return nil
}

// Close unsubscribes from the input topic and publishes the closed status.
func (p *Port) Close() error {
	if !p.setClosed() {
		return nil
	}

	err := p.client.Unsubscribe(p.topics.PortIn(p.Name()))
	p.publishStatus(StatusClosed)
	if err != nil {
		return fmt.Errorf("unsubscribing from port input: %w", err)
	}
	return nil
}

// setClosed marks the port closed and reports whether it was open.
func (p *Port) setClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	wasOpen := p.open
	p.open = false
	return wasOpen
}

// HasReceivers returns true: messages sent to the port are published.
func (p *Port) HasReceivers() bool { return true }

// HasTransmitters returns true: the port produces what arrives on its input.
func (p *Port) HasTransmitters() bool { return true }

// NewReceiver returns a sink publishing to the output topic.
func (p *Port) NewReceiver() (device.Sink, error) {
	return &outputSink{port: p}, nil
}

// NewTransmitter allows any number of transmitters.
func (p *Port) NewTransmitter() error { return nil }

// MicrosecondPosition returns the time since the port was opened.
func (p *Port) MicrosecondPosition() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return -1
	}
	return time.Since(p.openedAt).Microseconds()
}

// handleInput decodes one inbound payload and dispatches it. System
// exclusive payloads go to the dispatcher as raw bytes; anything else must
// be a single short message. Payloads that are neither are dropped and
// reported to the dispatcher; they never fail the handler.
func (p *Port) handleInput(_ string, payload []byte) error {
	p.mu.RLock()
	d, open := p.dispatcher, p.open
	p.mu.RUnlock()
	if !open {
		return nil
	}

	ts := p.MicrosecondPosition()
	if len(payload) > 0 && (payload[0] == midi.StatusSysex || payload[0] == midi.StatusSysexEnd && len(payload) > 1) {
		d.DispatchRaw(payload, ts)
		return nil
	}

	msg, err := midi.Parse(payload)
	if err == nil {
		if short, ok := msg.(midi.ShortMessage); ok {
			d.DispatchPacked(short.Packed(), ts)
			return nil
		}
		err = fmt.Errorf("%w: unexpected %T", midi.ErrInvalidData, msg)
	}

	p.logger.Debug("malformed MIDI input dropped", "port", p.Name(), "data", logging.Hex(payload), "error", err)
	d.ReportMalformed(device.FormWire, fmt.Errorf("port %s: %w", p.Name(), err))
	return nil
}

// publishStatus publishes the retained port status. Failures are logged;
// the status topic is informational.
func (p *Port) publishStatus(status string) {
	payload, err := json.Marshal(StatusMessage{Port: p.Name(), Status: status, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := p.client.Publish(p.topics.PortStatus(p.Name()), payload, p.qos, true); err != nil {
		p.logger.Warn("publishing port status failed", "port", p.Name(), "status", status, "error", err)
	}
}

// send publishes encoded bytes to the output topic.
func (p *Port) send(payload []byte) error {
	p.mu.RLock()
	open := p.open
	p.mu.RUnlock()
	if !open {
		return ErrPortClosed
	}

	if err := p.client.Publish(p.topics.PortOut(p.Name()), payload, p.qos, false); err != nil {
		return fmt.Errorf("port %s: %w", p.Name(), err)
	}
	p.logger.Debug("MIDI sent", "port", p.Name(), "data", logging.Hex(payload))
	return nil
}

// outputSink is the delivery behind receivers of a Port. It accepts the
// compact form, so receivers of an MQTT port are fast path eligible.
type outputSink struct {
	port *Port
}

func (s *outputSink) Send(msg midi.Message, _ int64) error {
	return s.port.send(msg.Bytes())
}

func (s *outputSink) SendPacked(packed uint32, _ int64) error {
	msg, err := midi.Unpack(packed)
	if err != nil {
		return err
	}
	return s.port.send(msg.Bytes())
}
