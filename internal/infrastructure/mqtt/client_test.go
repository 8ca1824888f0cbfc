package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graymidi-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "graymidi-test",
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(c *config.MQTTConfig)
		wantBroker string
		wantTLS    bool
		wantUser   string
	}{
		{
			name:       "plain",
			modify:     func(*config.MQTTConfig) {},
			wantBroker: "tcp://127.0.0.1:1883",
		},
		{
			name: "tls",
			modify: func(c *config.MQTTConfig) {
				c.Broker.TLS = true
				c.Broker.Port = 8883
			},
			wantBroker: "ssl://127.0.0.1:8883",
			wantTLS:    true,
		},
		{
			name: "credentials",
			modify: func(c *config.MQTTConfig) {
				c.Auth.Username = "midi"
				c.Auth.Password = "secret"
			},
			wantBroker: "tcp://127.0.0.1:1883",
			wantUser:   "midi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			opts := clientOptions(cfg, Topics{Prefix: cfg.TopicPrefix})

			if len(opts.Servers) != 1 || opts.Servers[0].String() != tt.wantBroker {
				t.Errorf("Servers = %v, want [%s]", opts.Servers, tt.wantBroker)
			}
			if opts.ClientID != "graymidi-test" {
				t.Errorf("ClientID = %q, want %q", opts.ClientID, "graymidi-test")
			}
			if (opts.TLSConfig != nil) != tt.wantTLS {
				t.Errorf("TLSConfig set = %v, want %v", opts.TLSConfig != nil, tt.wantTLS)
			}
			if opts.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", opts.Username, tt.wantUser)
			}
			if !opts.CleanSession || !opts.AutoReconnect {
				t.Error("expected clean session with auto reconnect")
			}
			if !opts.Order {
				t.Error("expected ordered delivery")
			}
		})
	}
}

func TestClientOptions_Will(t *testing.T) {
	opts := clientOptions(testConfig(), Topics{Prefix: "studio"})

	if !opts.WillEnabled || !opts.WillRetained {
		t.Error("expected a retained will")
	}
	if opts.WillTopic != "studio/system/status" {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, "studio/system/status")
	}

	var will ServiceStatus
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if will.Status != StatusOffline || will.Reason != ReasonConnectionLost {
		t.Errorf("will = %+v", will)
	}
}

func TestStatusPayload(t *testing.T) {
	tests := []struct {
		status, reason string
	}{
		{StatusOnline, ""},
		{StatusOffline, ReasonShutdown},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			var got ServiceStatus
			if err := json.Unmarshal(statusPayload("graymidi-test", tt.status, tt.reason), &got); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if got.Status != tt.status || got.Reason != tt.reason || got.ClientID != "graymidi-test" {
				t.Errorf("status = %+v", got)
			}
			if got.Timestamp.IsZero() {
				t.Error("timestamp not set")
			}
		})
	}
}

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte{0xF8}, 0, ErrInvalidTopic},
		{"invalid qos", "graymidi/port/keys/out", []byte{0xF8}, 3, ErrInvalidQoS},
		{"payload too large", "graymidi/port/keys/out", make([]byte, maxPayloadSize+1), 0, ErrPayloadTooLarge},
		{"not connected", "graymidi/port/keys/out", []byte{0xF8}, 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 0, handler, ErrInvalidTopic},
		{"invalid qos", "graymidi/port/+/in", 3, handler, ErrInvalidQoS},
		{"nil handler", "graymidi/port/+/in", 0, nil, ErrSubscribeFailed},
		{"not connected", "graymidi/port/+/in", 0, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failed subscribes", client.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Unsubscribe("graymidi/port/keys/in"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "studio"}

	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{"PortIn", func() string { return topics.PortIn("keys") }, "studio/port/keys/in"},
		{"PortOut", func() string { return topics.PortOut("keys") }, "studio/port/keys/out"},
		{"PortStatus", func() string { return topics.PortStatus("keys") }, "studio/port/keys/status"},
		{"SystemStatus", topics.SystemStatus, "studio/system/status"},
		{"AllPortInputs", topics.AllPortInputs, "studio/port/+/in"},
		{"AllPortStatus", topics.AllPortStatus, "studio/port/+/status"},
		{"AllTopics", topics.AllTopics, "studio/#"},
		{"DefaultPrefix", func() string { return Topics{}.PortOut("synth") }, "graymidi/port/synth/out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.builder()
			if got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, got, tt.expected)
			}
			if strings.Contains(got, "//") {
				t.Errorf("%s() = %q contains an empty level", tt.name, got)
			}
		})
	}
}

// =============================================================================
// Handler Tests
// =============================================================================

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandler(t *testing.T) {
	client := &Client{}
	logger := &mockLogger{}
	client.SetLogger(logger)
	msg := fakeMessage{topic: "graymidi/port/keys/in", payload: []byte{0x90, 0x3C, 0x64}}

	t.Run("passes topic and payload", func(t *testing.T) {
		var gotTopic string
		var gotPayload []byte
		client.wrapHandler(func(topic string, payload []byte) error {
			gotTopic, gotPayload = topic, payload
			return nil
		})(nil, msg)

		if gotTopic != msg.topic || len(gotPayload) != 3 {
			t.Errorf("handler got %q % X", gotTopic, gotPayload)
		}
	})

	t.Run("logs handler errors", func(t *testing.T) {
		client.wrapHandler(func(string, []byte) error {
			return errors.New("bad message")
		})(nil, msg)

		if len(logger.warns) != 1 {
			t.Errorf("warns = %d, want 1", len(logger.warns))
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		client.wrapHandler(func(string, []byte) error {
			panic("boom")
		})(nil, msg)

		if len(logger.errors) != 1 {
			t.Errorf("errors = %d, want 1", len(logger.errors))
		}
	})

	t.Run("no logger", func(t *testing.T) {
		client.SetLogger(nil)
		if client.getLogger() != nil {
			t.Fatal("getLogger() should be nil after SetLogger(nil)")
		}
		client.wrapHandler(func(string, []byte) error {
			panic("boom")
		})(nil, msg)
	})
}
