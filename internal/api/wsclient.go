package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

const wsSendBufferSize = 256

// errClientBufferFull is reported to the device when a slow or departed
// client misses a message.
var errClientBufferFull = errors.New("api: websocket client buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsTimings holds the keepalive settings in durations.
type wsTimings struct {
	ping time.Duration // interval between pings
	pong time.Duration // grace for the peer's pong and for each write
}

func timingsFrom(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

func (t wsTimings) readDeadline() time.Time  { return time.Now().Add(t.ping + t.pong) }
func (t wsTimings) writeDeadline() time.Time { return time.Now().Add(t.pong) }

// WSClient is one websocket connection. It is a device.Receiver: while the
// client is subscribed to ChannelMIDI a transmitter of the device feeds it.
type WSClient struct {
	hub    *Hub
	device *device.Device
	conn   *websocket.Conn

	// send is closed by closeSend only, under sendMu, so trySend never
	// writes to a closed channel.
	sendMu sync.Mutex
	send   chan []byte
	closed bool

	mu            sync.RWMutex
	subscriptions map[string]struct{}

	// Held endpoints. Only the read pump touches them.
	tx *device.TransmitterHandle
	rx *device.ReceiverHandle
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		device:        s.device,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(client)

	t := timingsFrom(s.wsCfg)
	go client.writePump(t)
	go client.readPump(t, int64(s.wsCfg.MaxMessageSize))
}

// Send implements device.Receiver. The dispatcher calls it with the device
// registry locked, so it only queues.
func (c *WSClient) Send(msg midi.Message, timestamp int64) error {
	data, err := encodeMessage(WSTypeEvent, "", ChannelMIDI, MIDIEvent{
		Data:        hex.EncodeToString(msg.Bytes()),
		Status:      msg.Status(),
		Length:      msg.Len(),
		TimestampUS: timestamp,
	})
	if err != nil {
		return err
	}
	if !c.trySend(data) {
		return errClientBufferFull
	}
	return nil
}

func (c *WSClient) readPump(t wsTimings, limit int64) {
	defer func() {
		c.releaseEndpoints()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // A failed deadline fails the next read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // See above
		c.handleMessage(frame)
	}
}

func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(t.writeDeadline()) //nolint:errcheck // The write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypeSend:
		c.handleSend(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe records the channels. Subscribing to ChannelMIDI binds a
// transmitter first; if that fails nothing is recorded.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	var sub WSSubscribePayload
	if err := decodePayload(msg, &sub); err != nil {
		c.sendError(msg.ID, "invalid subscribe payload")
		return
	}

	for _, ch := range sub.Channels {
		if ch != ChannelMIDI {
			continue
		}
		if err := c.acquireTransmitter(); err != nil {
			c.sendError(msg.ID, err.Error())
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed", "channels", sub.Channels)
	c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})
}

// handleUnsubscribe drops the channels. Leaving ChannelMIDI closes the
// client's transmitter, releasing its implicit open.
func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	var sub WSSubscribePayload
	if err := decodePayload(msg, &sub); err != nil {
		c.sendError(msg.ID, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	for _, ch := range sub.Channels {
		if ch == ChannelMIDI && c.tx != nil {
			c.tx.Close()
			c.tx = nil
		}
	}

	c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
}

// handleSend passes a message to a receiver of the device. The receiver is
// acquired on first use and held until the client disconnects.
func (c *WSClient) handleSend(msg WSMessage) {
	var req WSSendPayload
	if err := decodePayload(msg, &req); err != nil {
		c.sendError(msg.ID, "invalid send payload")
		return
	}

	m, err := parseHexMessage(req.Data)
	if err != nil {
		c.sendError(msg.ID, err.Error())
		return
	}
	timestamp := int64(-1)
	if req.TimestampUS != nil {
		timestamp = *req.TimestampUS
	}

	if err := c.acquireReceiver(); err != nil {
		c.sendError(msg.ID, err.Error())
		return
	}
	if err := c.rx.Send(m, timestamp); err != nil {
		c.sendError(msg.ID, err.Error())
		return
	}

	c.reply(msg.ID, WSTypeResponse, map[string]any{"sent": hex.EncodeToString(m.Bytes())})
}

// acquireTransmitter keeps one open reference-counted transmitter bound to
// the client. A device close sweeps the old handle, so a closed one is
// replaced.
func (c *WSClient) acquireTransmitter() error {
	if c.tx != nil && c.tx.IsOpen() {
		return nil
	}
	tx, err := c.device.NewTransmitterRefCounted()
	if err != nil {
		if tx != nil {
			tx.Close()
		}
		return err
	}
	tx.SetReceiver(c)
	c.tx = tx
	return nil
}

func (c *WSClient) acquireReceiver() error {
	if c.rx != nil && c.rx.IsOpen() {
		return nil
	}
	rx, err := c.device.NewReceiverRefCounted()
	if err != nil {
		if rx != nil {
			rx.Close()
		}
		return err
	}
	c.rx = rx
	return nil
}

func (c *WSClient) releaseEndpoints() {
	if c.tx != nil {
		c.tx.Close()
		c.tx = nil
	}
	if c.rx != nil {
		c.rx.Close()
		c.rx = nil
	}
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client has disconnected.
func (c *WSClient) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel, ending the write pump. It reports
// whether this call closed it.
func (c *WSClient) closeSend() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) reply(id, msgType string, payload any) {
	if data, err := encodeMessage(msgType, id, "", payload); err == nil {
		c.trySend(data)
	}
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
