package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-midi/internal/bridges/loopback"
	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-midi/internal/midi"
)

// writeConfig writes a loopback configuration using dbPath and returns its path.
func writeConfig(t *testing.T, dbPath string, apiPort string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")

	configContent := `
service:
  id: test-instance

device:
  name: through
  vendor: Gray Logic
  backend: loopback
  open_on_start: true

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: ` + apiPort + `
  timeouts:
    read: 5
    write: 5
    idle: 5
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYMIDI_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails validation with an empty path.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("GRAYMIDI_CONFIG", writeConfig(t, "", "19191"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYMIDI_CONFIG", "")
	if path, explicit := getConfigPath(); path != defaultConfigPath || explicit {
		t.Errorf("getConfigPath() = %q, %v, want %q, false", path, explicit, defaultConfigPath)
	}

	t.Setenv("GRAYMIDI_CONFIG", "/custom/path/config.yaml")
	if path, explicit := getConfigPath(); path != "/custom/path/config.yaml" || !explicit {
		t.Errorf("getConfigPath() = %q, %v, want override", path, explicit)
	}
}

func TestHealthCheck_LoopbackOnly(t *testing.T) {
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := healthCheck(context.Background(), db, nil, nil); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // Closed on purpose
	if err := healthCheck(context.Background(), db, nil, nil); err == nil {
		t.Error("healthCheck() should fail on a closed database")
	}
}

func TestNewAdapter(t *testing.T) {
	cfg := &config.Config{Device: config.DeviceConfig{Name: "through", Backend: config.BackendLoopback}}

	adapter, attach, err := newAdapter(cfg, nil, nil)
	if err != nil {
		t.Fatalf("newAdapter() error = %v", err)
	}
	if _, ok := adapter.(*loopback.Port); !ok {
		t.Errorf("adapter = %T, want *loopback.Port", adapter)
	}
	attach(device.New(adapter))

	cfg.Device.Backend = config.BackendMQTT
	if _, _, err := newAdapter(cfg, nil, nil); err == nil {
		t.Error("mqtt backend without a client should fail")
	}
}

// recordingWriter is a fake time series sink.
type recordingWriter struct {
	mu       sync.Mutex
	messages []string
}

func (w *recordingWriter) WriteMessage(port, endpoint string, _ midi.Message, _ int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, port+"/"+endpoint)
}

func (w *recordingWriter) WritePortState(string, bool, int) {}

func TestAttachRecorder(t *testing.T) {
	port := loopback.New(device.Info{Name: "through"})
	dev := device.New(port)
	port.Attach(dev)
	defer dev.Close()

	w := &recordingWriter{}
	tx, err := attachRecorder(dev, w)
	if err != nil {
		t.Fatalf("attachRecorder() error = %v", err)
	}
	if !dev.IsOpen() || dev.RefCount() != 1 {
		t.Fatalf("recorder should hold the device open, ref count %d", dev.RefCount())
	}

	dev.DispatchPacked(midi.Pack(0xF8, 0, 0), 0)

	if len(w.messages) != 1 || w.messages[0] != "through/"+tx.ID() {
		t.Errorf("messages = %v", w.messages)
	}

	tx.Close()
	if dev.IsOpen() {
		t.Error("detaching the recorder should close the device")
	}
}

// TestRun_SuccessfulStartupAndShutdown runs the service on the loopback
// backend, which needs no broker.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv("GRAYMIDI_CONFIG", writeConfig(t, dbPath, "19190"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	var status struct {
		Open     bool `json:"open"`
		RefCount int  `json:"ref_count"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://127.0.0.1:19190/api/v1/device/")
		if err == nil {
			decodeErr := json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if decodeErr != nil {
				t.Fatalf("decode status: %v", decodeErr)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("API did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !status.Open || status.RefCount != -1 {
		t.Errorf("status = %+v, want explicitly open", status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	// The journal is drained before the database closes.
	db, err := database.Open(database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	var kinds []string
	rows, err := db.QueryContext(context.Background(), "SELECT kind FROM journal_events ORDER BY seq")
	if err != nil {
		t.Fatalf("query journal: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			t.Fatalf("scan: %v", err)
		}
		kinds = append(kinds, kind)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	want := []string{"opened", "closed"}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("journal kinds = %v, want %v", kinds, want)
	}
}
