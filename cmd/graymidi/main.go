// Gray Logic MIDI - reference-counted MIDI port service
//
// This is the main entry point for the Gray Logic MIDI service. It manages a
// single MIDI port whose underlying resource stays open exactly as long as
// an explicit open or at least one reference-counted endpoint needs it:
//   - Loopback or MQTT-backed ports
//   - Lifecycle journal in SQLite
//   - Optional message recording to InfluxDB
//   - Prometheus metrics, REST API and WebSocket streaming
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-midi/internal/api"
	"github.com/nerrad567/gray-logic-midi/internal/bridges/loopback"
	"github.com/nerrad567/gray-logic-midi/internal/bridges/mqttport"
	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-midi/internal/journal"
	"github.com/nerrad567/gray-logic-midi/internal/metrics"
	"github.com/nerrad567/gray-logic-midi/internal/recorder"
	"github.com/nerrad567/gray-logic-midi/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,funlen // Linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic MIDI",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Last thing to run
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	if len(cfg.IgnoredEnv) > 0 {
		log.Warn("ignored unparsable environment overrides", "keys", cfg.IgnoredEnv)
	}

	// Lifecycle journal
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	jrnl, err := journal.New(ctx, journal.NewSQLiteRepository(db.DB), cfg.Database.JournalBuffer)
	if err != nil {
		return fmt.Errorf("starting journal: %w", err)
	}
	jrnl.SetLogger(log.Component("journal"))
	defer func() {
		log.Info("closing journal")
		if closeErr := jrnl.Close(); closeErr != nil {
			log.Error("error closing journal", "error", closeErr)
		}
	}()

	// Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deviceMetrics, err := metrics.New(cfg.Metrics.Namespace, registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT (mqtt backend only)
	var mqttClient *mqtt.Client
	if cfg.Device.Backend == config.BackendMQTT {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Device
	adapter, attach, err := newAdapter(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("creating %s port: %w", cfg.Device.Backend, err)
	}
	dev := device.New(adapter)
	attach(dev)
	dev.SetLogger(log.Component("device"))

	hub := api.NewHub(cfg.WebSocket, log)
	observers := []device.Observer{jrnl, deviceMetrics, hub}
	if influxClient != nil {
		observers = append(observers, recorder.NewPortStates(influxClient))
	}
	dev.SetObserver(device.Observers(observers...))

	// Registered after the journal and MQTT so it runs before them: the
	// closing events are journaled and the port can still unsubscribe.
	defer func() {
		log.Info("closing device", "device", dev.Info().Name)
		dev.Close()
	}()
	log.Info("device created",
		"device", dev.Info().Name,
		"backend", cfg.Device.Backend,
	)

	if cfg.Device.Record {
		if influxClient == nil {
			log.Warn("device.record needs InfluxDB; recording disabled")
		} else {
			tx, recErr := attachRecorder(dev, influxClient)
			if recErr != nil {
				return fmt.Errorf("attaching recorder: %w", recErr)
			}
			defer tx.Close()
			log.Info("recorder attached", "transmitter", tx.ID())
		}
	}

	if cfg.Device.OpenOnStart {
		if openErr := dev.Open(); openErr != nil {
			return fmt.Errorf("opening device: %w", openErr)
		}
	}

	// API
	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Metrics:     cfg.Metrics,
		Logger:      log,
		Device:      dev,
		Journal:     jrnl,
		DB:          db,
		Gatherer:    registry,
		Registerer:  registry,
		ExternalHub: hub,
		Version:     version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Recorder = influxClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API, recorder, device, MQTT, InfluxDB, journal, database.

	log.Info("Gray Logic MIDI stopped")
	return nil
}

// loadConfig reads the configuration file named by GRAYMIDI_CONFIG, or the
// default path. Without either, built-in defaults are used.
func loadConfig() (*config.Config, error) {
	path, explicit := getConfigPath()
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default()
		}
	}
	return config.Load(path)
}

// getConfigPath returns the configuration file path and whether it was set
// through GRAYMIDI_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv("GRAYMIDI_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// newAdapter builds the port selected by device.backend. The returned
// function attaches the port to the device it backs.
func newAdapter(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (device.Adapter, func(*device.Device), error) {
	info := device.Info{
		Name:        cfg.Device.Name,
		Vendor:      cfg.Device.Vendor,
		Description: cfg.Device.Description,
		Version:     cfg.Device.Version,
	}

	switch cfg.Device.Backend {
	case config.BackendMQTT:
		if mqttClient == nil {
			return nil, nil, errors.New("mqtt backend needs a connected client")
		}
		port, err := mqttport.New(mqttport.Options{
			Info:   info,
			Client: mqttClient,
			Topics: mqttClient.Topics(),
			QoS:    byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0..2
			Logger: log.Component("mqttport"),
		})
		if err != nil {
			return nil, nil, err
		}
		return port, func(d *device.Device) { port.Attach(d) }, nil

	default:
		port := loopback.New(info)
		return port, func(d *device.Device) { port.Attach(d) }, nil
	}
}

// attachRecorder binds a recorder to a reference-counted transmitter. The
// device stays open while the recorder is attached.
func attachRecorder(dev *device.Device, w recorder.Writer) (*device.TransmitterHandle, error) {
	tx, err := dev.NewTransmitterRefCounted()
	if err != nil {
		if tx != nil {
			tx.Close()
		}
		return nil, err
	}
	tx.SetReceiver(recorder.New(w, dev.Info().Name, tx.ID()))
	return tx, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil for the loopback backend)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
