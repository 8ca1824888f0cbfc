package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-midi/internal/device"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-midi/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// JournalReader is the read side of the lifecycle journal.
// *journal.Journal satisfies it.
type JournalReader interface {
	List(ctx context.Context, q journal.Query) ([]journal.Entry, error)
	Drops(ctx context.Context, q journal.Query) ([]journal.Drop, error)
	Stats() (overflow, failures int64)
}

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// RecorderStatter reports the time series sink. *influxdb.Client satisfies it.
type RecorderStatter interface {
	IsConnected() bool
	Stats() influxdb.Stats
}

// DBStatter exposes connection pool statistics. *database.DB satisfies it.
type DBStatter interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
//
// Journal, MQTT, Recorder, DB, Gatherer and Registerer are optional. Leave them nil
// (not a typed nil pointer) when the component is not running. With a
// Registerer the server exports its own request metrics.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Metrics     config.MetricsConfig
	Logger      *logging.Logger
	Device      *device.Device
	Journal     JournalReader
	MQTT        ConnectionChecker
	Recorder    RecorderStatter
	DB          DBStatter
	Gatherer    prometheus.Gatherer
	Registerer  prometheus.Registerer
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Gray Logic MIDI.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	metricsCfg  config.MetricsConfig
	logger      *logging.Logger
	device      *device.Device
	journal     JournalReader
	mqtt        ConnectionChecker
	recorder    RecorderStatter
	db          DBStatter
	gatherer    prometheus.Gatherer
	httpMetrics *httpMetrics
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, device)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		device:     deps.Device,
		journal:    deps.Journal,
		mqtt:       deps.MQTT,
		recorder:   deps.Recorder,
		db:         deps.DB,
		gatherer:   deps.Gatherer,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	if deps.Registerer != nil {
		m, err := newHTTPMetrics(deps.Metrics.Namespace, deps.Registerer)
		if err != nil {
			return nil, fmt.Errorf("registering HTTP metrics: %w", err)
		}
		s.httpMetrics = m
	}

	// An external hub is needed when the hub is also the device observer,
	// which has to be set before the server exists.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)

	read, write, idle := s.cfg.Timeouts.Durations()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      write,
		IdleTimeout:       idle,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. WebSocket clients are
// disconnected and release their endpoints.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
