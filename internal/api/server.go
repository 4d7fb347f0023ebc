// Package api provides the operator HTTP API and WebSocket feed for the bridge.
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
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/mavbridge/internal/auth"
	"github.com/nerrad567/mavbridge/internal/bridges/mavlink"
	"github.com/nerrad567/mavbridge/internal/infrastructure/config"
	"github.com/nerrad567/mavbridge/internal/infrastructure/logging"
	"github.com/nerrad567/mavbridge/internal/process"
	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the set of bridge operations the API exposes.
// Implemented by *mavlink.Bridge.
type Controller interface {
	Status() mavlink.Status
	ToggleListening() (mavlink.ListenerState, error)
	StartListening(address string, port int) error
	StopListening()
	ConnectBroker(host string, port int) error
	DisconnectBroker() error
	Settings() mavlink.Settings
	UpdateConfig(topic string, intervalMS int, qos int) error
	Entries() []telemetry.EntryView
	SetEnabled(msgType string, enabled bool) error
	Activity() []telemetry.ActivityEntry
	Reset()
}

// LocalBroker controls the optional locally spawned MQTT broker.
// Implemented by *process.Manager.
type LocalBroker interface {
	Start(ctx context.Context) error
	Stop() error
	Toggle(ctx context.Context) (process.Status, error)
	Stats() process.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Metrics config.MetricsConfig
	Logger  *logging.Logger
	Bridge  Controller

	// LocalBroker is optional; its routes answer 404 when nil.
	LocalBroker LocalBroker

	// MetricsHandler serves the Prometheus exposition. Optional.
	MetricsHandler http.Handler

	// Auth guards every route except health, login and metrics.
	// A nil Auth leaves the API open.
	Auth *auth.Authenticator

	// ExternalHub, if set, is used instead of creating a hub. The bridge
	// needs the hub as its event sink before the server starts.
	ExternalHub *Hub

	Version string
}

// Server is the HTTP API server for the bridge.
//
// It manages the HTTP listener, routes, middleware, WebSocket hub and the
// periodic message snapshot feed.
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	metricsCfg     config.MetricsConfig
	logger         *logging.Logger
	bridge         Controller
	localBroker    LocalBroker
	metricsHandler http.Handler
	auth           *auth.Authenticator
	version        string
	startTime      time.Time

	server      *http.Server
	listener    net.Listener
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, bridge)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		metricsCfg:     deps.Metrics,
		logger:         deps.Logger,
		bridge:         deps.Bridge,
		localBroker:    deps.LocalBroker,
		metricsHandler: deps.MetricsHandler,
		auth:           deps.Auth,
		version:        deps.Version,
		startTime:      time.Now(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub used by the server.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listen address and serves HTTP in the background.
//
// It starts the WebSocket hub (unless injected) and the snapshot feed. The
// server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: If the listen address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Run(srvCtx)
		}()
	}

	if interval := time.Duration(s.wsCfg.FeedIntervalMS) * time.Millisecond; interval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.feedLoop(srvCtx, interval)
		}()
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
	s.wg.Wait()

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

// feedLoop pushes the message entries to snapshot subscribers.
func (s *Server) feedLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			s.hub.Broadcast(ChannelMessagesSnapshot, s.bridge.Entries())
		}
	}
}
