package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/inventory-gateway/internal/bus"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/config"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/database"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/inventory-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/inventory-gateway/internal/live"
	"github.com/nerrad567/inventory-gateway/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Store      *store.Store
	Bus        *bus.Bus
	Hub        *live.Hub
	Dispatcher *live.Dispatcher
	DB         *database.DB // optional, for metrics
	MQTT       *mqtt.Client // optional, nil when the bus is local
	Version    string
}

// Server is the HTTP API server for the inventory gateway.
//
// It manages the HTTP listener, routes, middleware, and WebSocket upgrades.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	store       *store.Store
	bus         *bus.Bus
	hub         *live.Hub
	dispatcher  *live.Dispatcher
	db          *database.DB
	mqtt        *mqtt.Client
	version     string
	collections map[string]bool
	startTime   time.Time
	server      *http.Server

	// baseCtx scopes every WebSocket connection; Close cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Hub == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("live hub and dispatcher are required")
	}

	collections := make(map[string]bool)
	for _, c := range deps.Dispatcher.Registry().Collections() {
		collections[c] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		store:       deps.Store,
		bus:         deps.Bus,
		hub:         deps.Hub,
		dispatcher:  deps.Dispatcher,
		db:          deps.DB,
		mqtt:        deps.MQTT,
		version:     deps.Version,
		collections: collections,
		startTime:   time.Now(),
		baseCtx:     ctx,
		cancel:      cancel,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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

// Close closes every live session and gracefully shuts down the listener.
//
// It waits up to 10 seconds for in-flight requests to complete.
func (s *Server) Close() error {
	s.cancel()
	s.hub.CloseAll()

	if s.server == nil {
		return nil
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
