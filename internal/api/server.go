package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/nerrad567/dashauth/internal/audit"
	"github.com/nerrad567/dashauth/internal/auth"
	"github.com/nerrad567/dashauth/internal/infrastructure/config"
	"github.com/nerrad567/dashauth/internal/infrastructure/logging"
	"github.com/nerrad567/dashauth/internal/ratelimit"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every backing service the health endpoint
// reports on (database, MQTT, InfluxDB, Redis).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck implements HealthChecker.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	RateLimit config.RateLimitConfig
	Logger    *logging.Logger
	Auth      *auth.Service

	// Audit is optional; without it admin actions are not recorded and
	// GET /audit answers 500.
	Audit audit.Repository

	// Limiter is optional; without it no endpoint is rate limited.
	Limiter ratelimit.Limiter

	// Health lists named checks reported by GET /health. A failing check
	// makes the endpoint answer 503.
	Health map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for dashauth.
type Server struct {
	cfg       config.APIConfig
	rateCfg   config.RateLimitConfig
	logger    *logging.Logger
	auth      *auth.Service
	auditRepo audit.Repository
	auditCh   chan *audit.Entry
	auditDone chan struct{}
	limiter   ratelimit.Limiter
	proxies   []netip.Prefix
	health    map[string]HealthChecker
	version   string
	server    *http.Server
	cancel    context.CancelFunc
}

// New creates a new API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	proxies, err := deps.Config.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       deps.Config,
		rateCfg:   deps.RateLimit,
		logger:    deps.Logger,
		auth:      deps.Auth,
		auditRepo: deps.Audit,
		limiter:   deps.Limiter,
		proxies:   proxies,
		health:    deps.Health,
		version:   deps.Version,
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}
	if !s.rateCfg.Enabled {
		s.limiter = nil
	}
	return s, nil
}

// Start launches the audit writer and the HTTP listener in background
// goroutines. The server can be stopped with Close.
//
// Cancelling ctx does not stop the audit writer; only Close does, after
// in-flight requests have finished.
func (s *Server) Start(ctx context.Context) error {
	var drainCtx context.Context
	drainCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if s.auditCh != nil {
		s.auditDone = make(chan struct{})
		go func() {
			defer close(s.auditDone)
			s.drainAuditLog(drainCtx)
		}()
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
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

// Close waits up to 10 seconds for in-flight requests, then stops the
// audit writer and returns once it has flushed queued entries.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	if s.auditDone != nil {
		<-s.auditDone
	}

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
