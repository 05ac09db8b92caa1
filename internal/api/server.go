package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/audit"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/auth"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/bridges/tcp"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/device"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/infrastructure/logging"
)

const gracefulShutdownTimeout = 10 * time.Second

// LightController is the bridge surface the API drives. *tcp.Bridge
// satisfies it.
type LightController interface {
	Lights() []tcp.LightView
	Light(id string) (tcp.LightView, error)
	SetLightState(ctx context.Context, id string, on bool, brightness *int) error
	Refresh(ctx context.Context) error
	Health() (tcp.HealthStatus, string)
	OnStateChange(listener func(tcp.StateMessage))
}

// HistoryReader serves recorded light state changes. *device.Registry
// satisfies it. Deps.History may be nil.
type HistoryReader interface {
	StateHistory(ctx context.Context, id string, limit int) ([]device.StateHistoryEntry, error)
}

// AuditLog records and lists API activity. *audit.SQLiteRepository
// satisfies it. Deps.Audit may be nil.
type AuditLog interface {
	Record(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, f audit.Filter) (*audit.Page, error)
}

// Deps holds the API server's dependencies.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Lights   LightController
	History  HistoryReader
	Audit    AuditLog
	Users    *auth.UserStore
	Version  string
}

// Server is the HTTP and WebSocket API.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	lights  LightController
	history HistoryReader
	audit   AuditLog
	users   *auth.UserStore
	version string
	tickets *ticketStore
	hub     *Hub
	server  *http.Server
	cancel  context.CancelFunc
}

// New validates deps and subscribes the WebSocket hub to light state
// changes. The listener starts with Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Lights == nil {
		return nil, errors.New("light controller is required")
	}
	if deps.Users == nil {
		return nil, errors.New("user store is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger.With("component", "api"),
		lights:  deps.Lights,
		history: deps.History,
		audit:   deps.Audit,
		users:   deps.Users,
		version: deps.Version,
		tickets: newTicketStore(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.lights.OnStateChange(s.hub.BroadcastLightState)
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the listener and background loops. It returns
// immediately; listener errors after startup are logged.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

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
			s.logger.Info("API server starting with TLS", "address", s.server.Addr)
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

// Close stops background loops and shuts the listener down, waiting up to
// 10 seconds for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
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

// HealthCheck reports whether Start has been called.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
