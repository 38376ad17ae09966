// Package api provides the HTTP REST API and WebSocket server for SciReCount Core.
//
// It accepts sensor readings over HTTP, serves the device snapshot, the
// reading history and client records, and pushes live snapshots to
// dashboard WebSocket connections.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/techscire/scirecount-core/internal/audit"
	"github.com/techscire/scirecount-core/internal/broadcast"
	"github.com/techscire/scirecount-core/internal/client"
	"github.com/techscire/scirecount-core/internal/device"
	"github.com/techscire/scirecount-core/internal/infrastructure/config"
	"github.com/techscire/scirecount-core/internal/infrastructure/database"
	"github.com/techscire/scirecount-core/internal/infrastructure/logging"
	"github.com/techscire/scirecount-core/internal/infrastructure/mqtt"
	"github.com/techscire/scirecount-core/internal/ingest"
	"github.com/techscire/scirecount-core/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Engine      *ingest.Engine
	Broadcaster *broadcast.Broadcaster
	History     device.HistoryRepository
	Clients     client.Repository
	Metrics     *metrics.Collector // optional: /metrics is not mounted without it
	DB          *database.DB       // optional: reported by health and system metrics
	MQTT        *mqtt.Client       // optional: reported by health and system metrics
	Audit       audit.Repository   // optional: operator actions are not recorded without it
	Version     string
}

// Server is the HTTP API server for SciReCount Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	registry    *device.Registry
	engine      *ingest.Engine
	broadcaster *broadcast.Broadcaster
	history     device.HistoryRepository
	clients     client.Repository
	metrics     *metrics.Collector
	db          *database.DB
	mqtt        *mqtt.Client
	audit       audit.Repository
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("ingest engine is required")
	}
	if deps.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if deps.Clients == nil {
		return nil, fmt.Errorf("client repository is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		registry:    deps.Registry,
		engine:      deps.Engine,
		broadcaster: deps.Broadcaster,
		history:     deps.History,
		clients:     deps.Clients,
		metrics:     deps.Metrics,
		db:          deps.DB,
		mqtt:        deps.MQTT,
		audit:       deps.Audit,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It creates the WebSocket hub, builds the router and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.broadcaster)
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
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
// then forcefully closes remaining connections.
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
