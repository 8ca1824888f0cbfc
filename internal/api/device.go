package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// DeviceStatus is the state of the managed device.
type DeviceStatus struct {
	Info            device.Info `json:"info"`
	Open            bool        `json:"open"`
	Explicit        bool        `json:"explicit"`
	RefCount        int         `json:"ref_count"`
	MaxReceivers    int         `json:"max_receivers"`
	MaxTransmitters int         `json:"max_transmitters"`
	Receivers       int         `json:"receivers"`
	Transmitters    int         `json:"transmitters"`
	PositionUS      int64       `json:"position_us"`
}

// EndpointStatus describes one receiver or transmitter handle.
type EndpointStatus struct {
	ID    string `json:"id"`
	Open  bool   `json:"open"`
	Bound *bool  `json:"bound,omitempty"` // transmitters only
}

// SendRequest is the body of POST /device/send.
type SendRequest struct {
	// Data is the hex encoded message, e.g. "90 3C 64". Spaces are ignored.
	Data string `json:"data"`

	// TimestampUS is the message timestamp in microseconds, -1 if unknown.
	TimestampUS *int64 `json:"timestamp_us,omitempty"`
}

// handleDeviceStatus returns the lifecycle state of the device.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deviceStatus())
}

// handleDeviceOpen opens the device explicitly. Endpoints acquired while the
// explicit open is active do not count towards closing it.
func (s *Server) handleDeviceOpen(w http.ResponseWriter, _ *http.Request) {
	if err := s.device.Open(); err != nil {
		s.logger.Warn("explicit device open failed", "device", s.device.Info().Name, "error", err)
		writeDeviceError(w, err)
		return
	}
	s.logger.Info("device opened via API", "device", s.device.Info().Name)
	writeJSON(w, http.StatusOK, s.deviceStatus())
}

// handleDeviceClose closes the device unconditionally, which also closes
// every endpoint still attached to it.
func (s *Server) handleDeviceClose(w http.ResponseWriter, _ *http.Request) {
	s.device.Close()
	s.logger.Info("device closed via API", "device", s.device.Info().Name)
	writeJSON(w, http.StatusOK, s.deviceStatus())
}

// handleDeviceSend sends one message through a short-lived receiver. The
// receiver holds an implicit open only for the duration of the request.
func (s *Server) handleDeviceSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg, err := parseHexMessage(req.Data)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	timestamp := int64(-1)
	if req.TimestampUS != nil {
		timestamp = *req.TimestampUS
	}

	if err := s.sendOnce(msg, timestamp); err != nil {
		s.logger.Warn("send via API failed", "device", s.device.Info().Name, "error", err)
		writeDeviceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sent":   hex.EncodeToString(msg.Bytes()),
		"length": msg.Len(),
	})
}

// sendOnce acquires a reference-counted receiver, sends msg and releases it.
func (s *Server) sendOnce(msg midi.Message, timestamp int64) error {
	rx, err := s.device.NewReceiverRefCounted()
	if rx != nil {
		defer rx.Close()
	}
	if err != nil {
		return err
	}
	if err := rx.Send(msg, timestamp); err != nil {
		return fmt.Errorf("sending to %s: %w", rx.ID(), err)
	}
	return nil
}

// handleListEndpoints lists the open receivers and transmitters.
func (s *Server) handleListEndpoints(w http.ResponseWriter, _ *http.Request) {
	receivers := s.device.Receivers()
	transmitters := s.device.Transmitters()

	resp := struct {
		Receivers    []EndpointStatus `json:"receivers"`
		Transmitters []EndpointStatus `json:"transmitters"`
	}{
		Receivers:    make([]EndpointStatus, 0, len(receivers)),
		Transmitters: make([]EndpointStatus, 0, len(transmitters)),
	}

	for _, rx := range receivers {
		resp.Receivers = append(resp.Receivers, EndpointStatus{ID: rx.ID(), Open: rx.IsOpen()})
	}
	for _, tx := range transmitters {
		bound := tx.Receiver() != nil
		resp.Transmitters = append(resp.Transmitters, EndpointStatus{ID: tx.ID(), Open: tx.IsOpen(), Bound: &bound})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCloseEndpoint closes one handle by ID, releasing its implicit open.
func (s *Server) handleCloseEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, rx := range s.device.Receivers() {
		if rx.ID() == id {
			rx.Close()
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	for _, tx := range s.device.Transmitters() {
		if tx.ID() == id {
			tx.Close()
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	writeNotFound(w, "endpoint not found")
}

func (s *Server) deviceStatus() DeviceStatus {
	refCount := s.device.RefCount()
	return DeviceStatus{
		Info:            s.device.Info(),
		Open:            s.device.IsOpen(),
		Explicit:        refCount < 0,
		RefCount:        refCount,
		MaxReceivers:    s.device.MaxReceivers(),
		MaxTransmitters: s.device.MaxTransmitters(),
		Receivers:       len(s.device.Receivers()),
		Transmitters:    len(s.device.Transmitters()),
		PositionUS:      s.device.MicrosecondPosition(),
	}
}

// parseHexMessage decodes a hex string such as "90 3C 64" into a message.
func parseHexMessage(data string) (midi.Message, error) {
	raw, err := hex.DecodeString(strings.ReplaceAll(data, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("data is not valid hex: %w", err)
	}
	return midi.Parse(raw)
}
