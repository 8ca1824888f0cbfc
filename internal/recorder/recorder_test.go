package recorder

import (
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-midi/internal/bridges/loopback"
	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

type written struct {
	port, endpoint string
	bytes          []byte
	timestamp      int64
}

type portState struct {
	port     string
	open     bool
	refCount int
}

// MockWriter records what would be sent to InfluxDB.
type MockWriter struct {
	mu       sync.Mutex
	messages []written
	states   []portState
}

func (w *MockWriter) WriteMessage(port, endpoint string, msg midi.Message, timestamp int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, written{port, endpoint, msg.Bytes(), timestamp})
}

func (w *MockWriter) WritePortState(port string, open bool, refCount int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states = append(w.states, portState{port, open, refCount})
}

// countingObserver records dispatch paths.
type countingObserver struct {
	device.NopObserver
	paths []device.Path
}

func (o *countingObserver) Dispatched(_ string, _ device.Form, path device.Path, _ int) {
	o.paths = append(o.paths, path)
}

func TestRecorderOnDevice(t *testing.T) {
	w := &MockWriter{}
	port := loopback.New(device.Info{Name: "keys"})
	dev := device.New(port)
	port.Attach(dev)
	obs := &countingObserver{}
	dev.SetObserver(device.Observers(obs, NewPortStates(w)))

	tx, err := dev.NewTransmitterRefCounted()
	if err != nil {
		t.Fatalf("NewTransmitterRefCounted() error = %v", err)
	}
	rec := New(w, "keys", tx.ID())
	tx.SetReceiver(rec)

	dev.DispatchPacked(midi.Pack(0x90, 60, 100), 5)
	dev.DispatchRaw([]byte{0xF0, 0x7D, 0xF7}, 6)
	tx.Close()

	if rec.Recorded() != 2 {
		t.Errorf("Recorded() = %d, want 2", rec.Recorded())
	}
	if len(w.messages) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.messages))
	}
	if m := w.messages[0]; m.port != "keys" || m.endpoint != tx.ID() || m.timestamp != 5 || len(m.bytes) != 3 {
		t.Errorf("first point = %+v", m)
	}
	if len(obs.paths) == 0 || obs.paths[0] != device.PathFast {
		t.Errorf("a lone recorder should take the fast path, got %v", obs.paths)
	}

	want := []portState{{"keys", true, 1}, {"keys", false, 0}}
	if len(w.states) != len(want) {
		t.Fatalf("port states = %+v, want %+v", w.states, want)
	}
	for i := range want {
		if w.states[i] != want[i] {
			t.Errorf("state %d = %+v, want %+v", i, w.states[i], want[i])
		}
	}
}

func TestRecorderSendPackedInvalid(t *testing.T) {
	w := &MockWriter{}
	rec := New(w, "keys", "tx-1")

	if err := rec.SendPacked(0x000000F0, -1); !errors.Is(err, midi.ErrInvalidData) {
		t.Errorf("SendPacked(sysex status) error = %v, want ErrInvalidData", err)
	}
	if rec.Recorded() != 0 || len(w.messages) != 0 {
		t.Error("invalid input should not be recorded")
	}
}
