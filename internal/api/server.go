package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
	"github.com/nerrad567/canvas-link/internal/infrastructure/logging"
	"github.com/nerrad567/canvas-link/internal/journal"
)

// gracefulShutdownTimeout bounds the wait for in-flight requests on Close.
const gracefulShutdownTimeout = 10 * time.Second

// DocumentSource provides the current hub document.
type DocumentSource interface {
	Snapshot() hubdata.Document
}

// Accounts runs the account commands of the registration workflow.
type Accounts interface {
	AddUser(ctx context.Context) error
	UnlinkUser(ctx context.Context) error
	ResetCanvasData(ctx context.Context) error
	IoTConnected() bool
}

// PaletteStatus applies palette link reports.
type PaletteStatus interface {
	HandlePaletteStatus(connection, port string) bool
}

// JournalReader lists handled remote requests.
type JournalReader interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// HealthChecker is a dependency whose health is reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger // required
	Documents DocumentSource  // required
	Accounts  Accounts        // required
	Palette   PaletteStatus
	Journal   JournalReader
	Database  HealthChecker
	Telemetry HealthChecker

	// Hub is shared with the notifier users. When nil the server creates
	// and runs its own.
	Hub     *Hub
	Version string
}

// Server is the local HTTP API server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	docs      DocumentSource
	accounts  Accounts
	palette   PaletteStatus
	journal   JournalReader
	database  HealthChecker
	telemetry HealthChecker
	version   string
	started   time.Time

	hub         *Hub
	externalHub bool

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Documents == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if deps.Accounts == nil {
		return nil, fmt.Errorf("accounts are required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		docs:      deps.Documents,
		accounts:  deps.Accounts,
		palette:   deps.Palette,
		journal:   deps.Journal,
		database:  deps.Database,
		telemetry: deps.Telemetry,
		version:   deps.Version,
		started:   time.Now(),
		hub:       deps.Hub,
	}
	if s.hub != nil {
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. A port that
// cannot be bound is reported here.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx) //nolint:errcheck // Run only returns nil
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Run starts the server and blocks until ctx is done, then shuts it down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
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
