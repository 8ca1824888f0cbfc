package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/logging"
)

// Message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeSend        = "send"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Channels a client can subscribe to.
const (
	// ChannelMIDI carries every message the device transmits. Subscribing
	// acquires a reference-counted transmitter for the client.
	ChannelMIDI = "midi"

	// ChannelLifecycle carries device lifecycle events.
	ChannelLifecycle = "lifecycle"
)

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSSendPayload has the same shape as the body of POST /device/send.
type WSSendPayload = SendRequest

// MIDIEvent is the payload of a ChannelMIDI event.
type MIDIEvent struct {
	Data        string `json:"data"` // hex
	Status      byte   `json:"status"`
	Length      int    `json:"length"`
	TimestampUS int64  `json:"timestamp_us"`
}

// LifecycleEvent is the payload of a ChannelLifecycle event.
type LifecycleEvent struct {
	Kind         string `json:"kind"`
	Device       string `json:"device"`
	EndpointID   string `json:"endpoint_id,omitempty"`
	EndpointKind string `json:"endpoint_kind,omitempty"`
	RefCounted   bool   `json:"ref_counted"`
	RefCount     int    `json:"ref_count"`
	Error        string `json:"error,omitempty"`
	Time         string `json:"time"`
}

func lifecyclePayload(ev device.Event) LifecycleEvent {
	p := LifecycleEvent{
		Kind:         string(ev.Kind),
		Device:       ev.Device,
		EndpointID:   ev.EndpointID,
		EndpointKind: string(ev.EndpointKind),
		RefCounted:   ev.RefCounted,
		RefCount:     ev.RefCount,
		Time:         ev.Time.UTC().Format(time.RFC3339Nano),
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

// encodeMessage stamps and marshals an outbound frame.
func encodeMessage(msgType, id, eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// decodePayload converts the generic payload of msg into v.
func decodePayload(msg WSMessage, v any) error {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Hub tracks the connected clients and fans lifecycle events out to them.
// As a device.Observer it is called under the device's locks, so it only
// queues frames and never calls back into the device.
type Hub struct {
	device.NopObserver

	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes client and closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	client.closeSend()
	if ok {
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast queues an event for every client subscribed to channel. Clients
// whose buffers are full miss it.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeMessage(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	for _, client := range h.snapshot() {
		if client.isSubscribed(channel) {
			client.trySend(data)
		}
	}
}

// snapshot copies the client set so no client lock is taken under h.mu.
func (h *Hub) snapshot() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// LifecycleChanged forwards device lifecycle events to ChannelLifecycle.
func (h *Hub) LifecycleChanged(ev device.Event) {
	h.Broadcast(ChannelLifecycle, lifecyclePayload(ev))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll ends every write pump by closing its channel and drops the
// connection, which fails the read pump and releases the client's endpoints.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		client.closeSend()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}
