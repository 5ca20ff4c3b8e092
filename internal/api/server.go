// Package api provides the local HTTP and WebSocket facade for the
// device-sync engine.
//
// It exposes the merged device view, control endpoints, connection status,
// and a WebSocket event hub to the dashboard UI running next to the engine.
// The server binds to loopback by default; it is a UI backend, not a public
// API.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
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

	"github.com/fleexa/device-sync/internal/infrastructure/config"
	"github.com/fleexa/device-sync/internal/infrastructure/logging"
	"github.com/fleexa/device-sync/internal/state"
	"github.com/fleexa/device-sync/internal/transport"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Commander executes device control intents. Satisfied by
// command.Dispatcher.
type Commander interface {
	Toggle(ctx context.Context, deviceID string, desired bool) error
	SetAuto(ctx context.Context, deviceID string, desired bool) error
	SetSchedule(ctx context.Context, deviceID string, schedule state.Schedule) error
}

// RosterRefresher re-fetches the authoritative device listing on demand.
// Satisfied by roster.Manager.
type RosterRefresher interface {
	Refresh(ctx context.Context) error
}

// ConnectionReporter exposes the push-channel status. Satisfied by
// transport.Conn.
type ConnectionReporter interface {
	Status() transport.Status
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Store      *state.Store
	Commander  Commander
	Roster     RosterRefresher
	Connection ConnectionReporter
	Version    string
}

// Server is the local facade HTTP server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	store      *state.Store
	commander  Commander
	roster     RosterRefresher
	connection ConnectionReporter
	version    string

	server     *http.Server
	hub        *Hub
	unsubStore func()
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		commander:  deps.Commander,
		roster:     deps.Roster,
		connection: deps.Connection,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to the store firehose for
// device.state_changed broadcasts, and launches the HTTP listener in a
// background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	s.hub.SetObserver(s.store)
	go s.hub.Run(srvCtx)

	// Every applied update goes to subscribed WebSocket clients.
	s.unsubStore = s.store.SubscribeAll(func(ls state.LiveState) {
		s.hub.Broadcast(ChannelDeviceState, ls)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// NotifyConnectionState broadcasts a push-channel state transition to
// WebSocket clients subscribed to connection.state_changed.
func (s *Server) NotifyConnectionState(status transport.Status) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ChannelConnectionState, status)
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubStore != nil {
		s.unsubStore()
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
