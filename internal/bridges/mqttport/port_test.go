package mqttport

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// published is one recorded Publish call.
type published struct {
	topic    string
	payload  []byte
	retained bool
}

// MockMQTTClient records broker traffic and lets tests inject inbound
// messages.
type MockMQTTClient struct {
	mu             sync.Mutex
	published      []published
	handlers       map[string]mqtt.MessageHandler
	subscribeErr   error
	unsubscribeErr error
	publishErr     error
}

func newMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return m.unsubscribeErr
}

// deliver feeds a payload to the handler subscribed to topic.
func (m *MockMQTTClient) deliver(t *testing.T, topic string, payload []byte) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	return h(topic, payload)
}

func (m *MockMQTTClient) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

func (m *MockMQTTClient) publishedOn(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// capture is a device.Receiver recording what transmitters deliver.
type capture struct {
	mu   sync.Mutex
	msgs [][]byte
	ts   []int64
}

func (c *capture) Send(msg midi.Message, timestamp int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg.Bytes())
	c.ts = append(c.ts, timestamp)
	return nil
}

func (c *capture) got() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

// dropObserver records what the device reports as dropped.
type dropObserver struct {
	device.NopObserver

	mu      sync.Mutex
	dropped []drop
}

type drop struct {
	form device.Form
	err  error
}

func (o *dropObserver) Dropped(_ string, form device.Form, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, drop{form: form, err: err})
}

func (o *dropObserver) drops() []drop {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]drop(nil), o.dropped...)
}

var topics = mqtt.Topics{Prefix: "test"}

func newTestPort(t *testing.T) (*Port, *MockMQTTClient, *device.Device) {
	t.Helper()
	client := newMockMQTTClient()
	port, err := New(Options{
		Info:   device.Info{Name: "keys", Vendor: "Gray Logic"},
		Client: client,
		Topics: topics,
		QoS:    1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	dev := device.New(port)
	port.Attach(dev)
	return port, client, dev
}

func lastStatus(t *testing.T, client *MockMQTTClient) StatusMessage {
	t.Helper()
	msgs := client.publishedOn(topics.PortStatus("keys"))
	if len(msgs) == 0 {
		t.Fatal("no status published")
	}
	last := msgs[len(msgs)-1]
	if !last.retained {
		t.Error("status should be retained")
	}
	var status StatusMessage
	if err := json.Unmarshal(last.payload, &status); err != nil {
		t.Fatalf("status payload is not JSON: %v", err)
	}
	return status
}

func TestNew(t *testing.T) {
	client := newMockMQTTClient()
	tests := []struct {
		name string
		opts Options
	}{
		{"missing client", Options{Info: device.Info{Name: "keys"}}},
		{"empty name", Options{Client: client}},
		{"wildcard name", Options{Info: device.Info{Name: "keys/#"}, Client: client}},
		{"invalid qos", Options{Info: device.Info{Name: "keys"}, Client: client, QoS: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestOpenRequiresDispatcher(t *testing.T) {
	port, err := New(Options{Info: device.Info{Name: "keys"}, Client: newMockMQTTClient()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dev := device.New(port)
	if err := dev.Open(); !errors.Is(err, device.ErrResourceUnavailable) || !errors.Is(err, ErrNotAttached) {
		t.Errorf("Open() error = %v, want ErrResourceUnavailable wrapping ErrNotAttached", err)
	}
}

func TestOpenClose(t *testing.T) {
	port, client, dev := newTestPort(t)

	if dev.MaxReceivers() != -1 || dev.MaxTransmitters() != -1 {
		t.Errorf("endpoint limits = %d/%d, want unlimited", dev.MaxReceivers(), dev.MaxTransmitters())
	}

	if err := dev.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !client.subscribed(topics.PortIn("keys")) {
		t.Error("open port should subscribe to its input topic")
	}
	if s := lastStatus(t, client); s.Status != StatusOpen || s.Port != "keys" {
		t.Errorf("status = %+v, want open", s)
	}
	if port.MicrosecondPosition() < 0 || dev.MicrosecondPosition() < 0 {
		t.Error("open port should report a position")
	}

	dev.Close()
	if client.subscribed(topics.PortIn("keys")) {
		t.Error("closed port should unsubscribe")
	}
	if s := lastStatus(t, client); s.Status != StatusClosed {
		t.Errorf("status = %+v, want closed", s)
	}
	if port.MicrosecondPosition() != -1 {
		t.Error("closed port should report -1")
	}

	if err := port.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestOpenSubscribeFailure(t *testing.T) {
	port, client, dev := newTestPort(t)
	client.subscribeErr = mqtt.ErrNotConnected

	err := dev.Open()
	if !errors.Is(err, device.ErrResourceUnavailable) || !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Open() error = %v", err)
	}
	if dev.IsOpen() || port.MicrosecondPosition() != -1 {
		t.Error("failed open should leave the port closed")
	}
}

func TestCloseUnsubscribeFailure(t *testing.T) {
	port, client, dev := newTestPort(t)
	if err := dev.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	client.unsubscribeErr = mqtt.ErrNotConnected
	if err := port.Close(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Close() error = %v, want ErrNotConnected", err)
	}
	if s := lastStatus(t, client); s.Status != StatusClosed {
		t.Error("closed status should be published even if unsubscribe fails")
	}
}

func TestInboundMessages(t *testing.T) {
	_, client, dev := newTestPort(t)

	tx, err := dev.NewTransmitterRefCounted()
	if err != nil {
		t.Fatalf("NewTransmitterRefCounted() error = %v", err)
	}
	defer tx.Close()
	sink := &capture{}
	tx.SetReceiver(sink)

	in := topics.PortIn("keys")
	sysex := []byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}
	inputs := [][]byte{
		{0x90, 0x3C, 0x64},
		sysex,
		{0xF8},
	}
	for _, payload := range inputs {
		if err := client.deliver(t, in, payload); err != nil {
			t.Fatalf("handler(% X) error = %v", payload, err)
		}
	}

	got := sink.got()
	if len(got) != len(inputs) {
		t.Fatalf("delivered %d messages, want %d", len(got), len(inputs))
	}
	for i := range inputs {
		if !bytes.Equal(got[i], inputs[i]) {
			t.Errorf("message %d = % X, want % X", i, got[i], inputs[i])
		}
	}
	for i, ts := range sink.ts {
		if ts < 0 {
			t.Errorf("message %d timestamp = %d, want the port position", i, ts)
		}
	}
}

func TestInboundMalformed(t *testing.T) {
	_, client, dev := newTestPort(t)
	obs := &dropObserver{}
	dev.SetObserver(obs)

	tx, err := dev.NewTransmitterRefCounted()
	if err != nil {
		t.Fatalf("NewTransmitterRefCounted() error = %v", err)
	}
	defer tx.Close()
	sink := &capture{}
	tx.SetReceiver(sink)

	in := topics.PortIn("keys")
	payloads := [][]byte{{}, {0x90, 0x3C}, {0x3C}, {0x90, 0x80, 0x10}}
	for _, payload := range payloads {
		if err := client.deliver(t, in, payload); err != nil {
			t.Errorf("handler(% X) error = %v, want nil", payload, err)
		}
	}

	if len(sink.got()) != 0 {
		t.Error("malformed input should not be delivered")
	}
	drops := obs.drops()
	if len(drops) != len(payloads) {
		t.Fatalf("dropped = %d, want %d", len(drops), len(payloads))
	}
	for _, d := range drops {
		if d.form != device.FormWire || !errors.Is(d.err, midi.ErrInvalidData) {
			t.Errorf("drop = %s/%v, want %s/ErrInvalidData", d.form, d.err, device.FormWire)
		}
	}
}

func TestReceiverPublishes(t *testing.T) {
	_, client, dev := newTestPort(t)

	rx, err := dev.NewReceiverRefCounted()
	if err != nil {
		t.Fatalf("NewReceiverRefCounted() error = %v", err)
	}
	if !rx.SupportsPacked() {
		t.Error("receivers of an MQTT port should accept the packed form")
	}

	noteOn, _ := midi.NewShortMessage(0x90, 0x3C, 0x64) //nolint:errcheck // Valid status
	if err := rx.Send(noteOn, -1); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := rx.SendPacked(midi.Pack(0xB0, 7, 100), -1); err != nil {
		t.Fatalf("SendPacked() error = %v", err)
	}

	out := client.publishedOn(topics.PortOut("keys"))
	want := [][]byte{{0x90, 0x3C, 0x64}, {0xB0, 0x07, 0x64}}
	if len(out) != len(want) {
		t.Fatalf("published %d messages, want %d", len(out), len(want))
	}
	for i := range want {
		if !bytes.Equal(out[i].payload, want[i]) || out[i].retained {
			t.Errorf("publish %d = % X (retained %v), want % X", i, out[i].payload, out[i].retained, want[i])
		}
	}

	rx.Close()
	if dev.IsOpen() {
		t.Error("closing the only ref-counted receiver should close the device")
	}
}

func TestReceiverPublishFailure(t *testing.T) {
	_, client, dev := newTestPort(t)

	rx, err := dev.NewReceiverRefCounted()
	if err != nil {
		t.Fatalf("NewReceiverRefCounted() error = %v", err)
	}
	defer rx.Close()

	client.publishErr = mqtt.ErrNotConnected
	if err := rx.SendPacked(midi.Pack(0xF8, 0, 0), -1); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("SendPacked() error = %v, want ErrNotConnected", err)
	}
}

func TestSendWhilePortClosed(t *testing.T) {
	port, _, _ := newTestPort(t)

	sink, err := port.NewReceiver()
	if err != nil {
		t.Fatalf("NewReceiver() error = %v", err)
	}
	clock, _ := midi.NewShortMessage(0xF8, 0, 0) //nolint:errcheck // Valid status
	if err := sink.Send(clock, -1); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Send() error = %v, want ErrPortClosed", err)
	}
}
