// Package server wires the gateway's components into an HTTP server and owns
// their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-flux/pkg/adapters/datasource/influx"
	"github.com/ekaya-inc/ekaya-flux/pkg/auth"
	"github.com/ekaya-inc/ekaya-flux/pkg/config"
	"github.com/ekaya-inc/ekaya-flux/pkg/handlers"
	"github.com/ekaya-inc/ekaya-flux/pkg/middleware"
	"github.com/ekaya-inc/ekaya-flux/pkg/services"
	"github.com/ekaya-inc/ekaya-flux/pkg/session"
)

const readHeaderTimeout = 10 * time.Second

// Option customizes a Server.
type Option func(*options)

type options struct {
	factory     datasource.ClientFactory
	sessionOpts []session.Option
}

// WithClientFactory replaces the InfluxDB client factory.
func WithClientFactory(f datasource.ClientFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithSessionOptions passes options through to the session store.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// Server is the assembled gateway.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	sessions   *session.Store
	clients    *datasource.ClientCache
	proxy      services.QueryProxy
	gateway    services.AuthGateway
	handler    http.Handler
	httpServer *http.Server
}

// New builds every component from cfg. Nothing listens until Run or Serve.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.factory == nil {
		o.factory = influx.NewFactory(influx.Options{
			RequestTimeout:    cfg.Influx.RequestTimeout,
			ResolveDockerHost: cfg.Influx.ResolveDockerHost,
			AppName:           "ekaya-flux/" + cfg.Version,
			Logger:            logger,
		})
	}

	clients := datasource.NewClientCache(o.factory, logger)
	sessions := session.NewStore(session.Config{
		TTL:           cfg.Session.TTL,
		SweepInterval: cfg.Session.SweepInterval,
	}, logger, o.sessionOpts...)

	proxy := services.NewQueryProxy(clients, services.QueryProxyConfig{
		DefaultRowLimit: cfg.Influx.DefaultRowLimit,
		MaxRowLimit:     cfg.Influx.MaxRowLimit,
	}, logger)
	gateway := services.NewAuthGateway(proxy, sessions, services.AuthGatewayConfig{
		MinTokenLength: cfg.Influx.MinTokenLength,
	}, logger)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		clients:  clients,
		proxy:    proxy,
		gateway:  gateway,
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	production := s.cfg.IsProduction()
	authMiddleware := auth.NewMiddleware(s.gateway, s.logger)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		PerMinute: s.cfg.RateLimit.ConnectPerMinute,
		Burst:     s.cfg.RateLimit.ConnectBurst,
	}, s.logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(s.cfg,
		handlers.CounterFunc(s.sessions.ActiveCount), s.clients, s.logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(s.gateway, production, s.logger).
		RegisterRoutes(mux, authMiddleware, limiter.Limit)
	handlers.NewDatasourceHandler(s.proxy, production, s.logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewQueriesHandler(s.proxy, production, s.logger).RegisterRoutes(mux, authMiddleware)
	mux.HandleFunc("/", handlers.NotFound(s.logger))

	return middleware.Chain(mux,
		middleware.Recover(s.logger),
		middleware.RequestLogger(s.logger),
		middleware.SecurityHeaders(s.cfg.TLSEnabled()),
		middleware.CORS(s.cfg.CORS.AllowedOrigins),
	)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Gateway returns the session gateway.
func (s *Server) Gateway() services.AuthGateway {
	return s.gateway
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.closeComponents()
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully and releases sessions and cached clients.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSEnabled() {
			s.logger.Info("Starting HTTPS server", zap.String("addr", ln.Addr().String()), zap.String("version", s.cfg.Version))
			err = s.httpServer.ServeTLS(ln, s.cfg.TLSCertPath, s.cfg.TLSKeyPath)
		} else {
			s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()), zap.String("version", s.cfg.Version))
			err = s.httpServer.Serve(ln)
		}
		errCh <- err
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("graceful shutdown: %w", err)
		}
	}

	s.closeComponents()
	return serveErr
}

func (s *Server) closeComponents() {
	if err := s.sessions.Close(); err != nil {
		s.logger.Warn("Failed to close session store", zap.Error(err))
	}
	if err := s.clients.Close(); err != nil {
		s.logger.Warn("Failed to close client cache", zap.Error(err))
	}
}
