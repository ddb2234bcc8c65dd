package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/registry"
)

// ServerName is the component name used by Register.
const ServerName = "actuatorServer"

// Phase starts the server after every other lifecycle component.
const Phase = math.MaxInt32 - 1

var (
	ErrNoInspector     = errors.New("actuator: no inspector set")
	ErrServerNotActive = errors.New("actuator: server not running")
)

// Server serves the actuator router as a lifecycle component. Inside a
// container it inspects the container it belongs to.
type Server struct {
	mu        sync.Mutex
	address   string
	inspector Inspector
	gatherer  prometheus.Gatherer
	logger    appctx.Logger

	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates a stopped server listening on address when started.
func NewServer(address string, gatherer prometheus.Gatherer) *Server {
	return &Server{address: address, gatherer: gatherer, logger: slog.Default()}
}

// Register adds a server definition to reg. gatherer may be nil.
func Register(reg *registry.Registry, address string, gatherer prometheus.Gatherer) error {
	return reg.Register(ServerName, &registry.Definition{
		Type: reflect.TypeFor[*Server](),
		Role: registry.RoleInfrastructure,
		Supplier: func(registry.Resolver) (any, error) {
			return NewServer(address, gatherer), nil
		},
		Description: "Serves container health and inventory over HTTP",
	})
}

// SetContainer implements appctx.ContainerAware.
func (s *Server) SetContainer(c *appctx.Container) { s.SetInspector(c) }

// SetInspector sets the inspected container.
func (s *Server) SetInspector(in Inspector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspector = in
}

// SetLogger implements appctx.LoggerAware.
func (s *Server) SetLogger(l appctx.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l != nil {
		s.logger = l
	}
}

// Phase implements lifecycle.Phased.
func (s *Server) Phase() int { return Phase }

// Start binds the listener and serves in the background.
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}
	if s.inspector == nil {
		return ErrNoInspector
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("actuator: listening on %s: %w", s.address, err)
	}
	var opts []RouterOption
	if s.gatherer != nil {
		opts = append(opts, WithMetrics(s.gatherer))
	}
	s.server = &http.Server{
		Handler:           NewRouter(s.inspector, opts...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}, logger appctx.Logger) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Actuator server error", "error", err)
		}
	}(s.server, s.done, s.logger)

	s.logger.Info("Actuator server started", "address", ln.Addr().String())
	return nil
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("actuator: shutting down: %w", err)
	}
	<-done
	s.logger.Info("Actuator server stopped")
	return nil
}

// IsRunning implements lifecycle.Lifecycle.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Addr returns the bound address while running.
func (s *Server) Addr() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil, ErrServerNotActive
	}
	return s.listener.Addr(), nil
}
