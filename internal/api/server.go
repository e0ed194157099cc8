package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/directory"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Loop     *eventloop.Loop
	Registry *device.Registry

	// Directory is optional; without it /api/v1/directory lists nothing.
	Directory *directory.Directory

	// Hub is optional. When nil the server creates its own.
	Hub *Hub

	// Banner is the SERVER header value of UPnP responses.
	Banner  string
	Version string
}

// Server is the HTTP server for UPnP control points and the status API.
//
// It is created with New() and started with Start() or Serve().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	loop      *eventloop.Loop
	registry  *device.Registry
	directory *directory.Directory
	banner    string
	version   string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. New registers the
// event stream listeners with the registry and directory through the loop.
//
// Parameters:
//   - deps: Required dependencies (logger, loop, registry)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Loop == nil {
		return nil, fmt.Errorf("event loop is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		loop:      deps.Loop,
		registry:  deps.Registry,
		directory: deps.Directory,
		banner:    deps.Banner,
		version:   deps.Version,
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	relay := &eventRelay{hub: s.hub}
	s.loop.Post(func() {
		s.registry.AddListener(relay.deviceEvent)
		if s.directory != nil {
			s.directory.AddListener(relay)
		}
	})
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns so that bind failures reach
// the caller; requests are then served in a background goroutine.
//
// Parameters:
//   - ctx: Parent context for the hub and background goroutines
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.server = s.newHTTPServer()
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.server.Addr = ln.Addr().String()

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
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

// onLoop runs fn on the event loop for the duration of request r.
// It reports false, having written a 503, when the loop did not run fn.
func (s *Server) onLoop(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if err := s.loop.Do(r.Context(), fn); err != nil {
		s.logger.Warn("request abandoned before the event loop ran it",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "server is shutting down")
		return false
	}
	return true
}
