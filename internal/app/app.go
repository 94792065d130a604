package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/httpd"
	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/metrics"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-relay/internal/tracker"
	"github.com/vovakirdan/wirechat-relay/internal/transport/admin"
)

// App wires together the tracker engine, the registry and the admin surface.
type App struct {
	cfg      config.TrackerConfig
	routes   *httpd.RouteTable
	server   *httpd.Server
	admin    *stdhttp.Server
	registry *core.Registry
	auth     *auth.Service
	store    store.Store
	log      *zerolog.Logger
}

// New constructs the tracker application with provided configuration.
func New(ctx context.Context, cfg config.TrackerConfig, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		logger = log.Nop()
	}

	// Initialize database store
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	registry := core.NewRegistry(core.Options{
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		DefaultChannel:   cfg.DefaultChannel,
		Logger:           log.Component(logger, "registry"),
	})
	authService := auth.NewService(st, registry)

	if cfg.UsersFile != "" {
		creds, err := auth.LoadUsersFile(cfg.UsersFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		created, err := authService.Seed(ctx, creds)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed users: %w", err)
		}
		logger.Info().Str("file", cfg.UsersFile).Int("created", created).Msg("users seeded")
	}

	pages, err := tracker.Pages(cfg.StaticDir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	hooks := tracker.NewHooks(registry, authService, log.Component(logger, "tracker"))
	routes := tracker.Routes(hooks)

	a := &App{
		cfg:      cfg,
		routes:   routes,
		registry: registry,
		auth:     authService,
		store:    st,
		log:      logger,
	}

	a.server = httpd.NewServer(
		httpd.NewDispatcher(routes, log.Component(logger, "dispatcher")),
		httpd.NewResponseBuilder(pages),
		httpd.ServerConfig{
			ReadTimeout:    cfg.ReadTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
			Observer:       a.observe,
		},
		log.Component(logger, "httpd"),
	)

	if cfg.AdminAddr != "" {
		a.admin = admin.NewServer(cfg.AdminAddr, registry, st, log.Component(logger, "admin"))
	}
	return a, nil
}

// Registry exposes the tracker state.
func (a *App) Registry() *core.Registry {
	return a.registry
}

// Auth exposes the credential service.
func (a *App) Auth() *auth.Service {
	return a.auth
}

// observe records request metrics. Unrouted paths share one label to keep
// cardinality bounded.
func (a *App) observe(method, path string, status int, elapsed time.Duration) {
	label := "static"
	if _, ok := a.routes.Lookup(method, path); ok {
		label = path
	}
	metrics.RequestsTotal.WithLabelValues(method, label, strconv.Itoa(status)).Inc()
	metrics.RequestDuration.WithLabelValues(method, label).Observe(elapsed.Seconds())
}

// Run listens on the configured addresses and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	trackerLn, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("listen tracker: %w", err)
	}

	var adminLn net.Listener
	if a.admin != nil {
		adminLn, err = net.Listen("tcp", a.cfg.AdminAddr)
		if err != nil {
			_ = trackerLn.Close()
			a.cleanup()
			return fmt.Errorf("listen admin: %w", err)
		}
	}
	return a.Serve(ctx, trackerLn, adminLn)
}

// Serve runs on already bound listeners. adminLn may be nil.
func (a *App) Serve(ctx context.Context, trackerLn, adminLn net.Listener) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Serve(gctx, trackerLn)
	})

	if a.admin != nil && adminLn != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", adminLn.Addr().String()).Msg("admin listening")
			if err := a.admin.Serve(adminLn); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
			defer cancel()

			a.log.Info().Msg("shutting down admin server")
			return a.admin.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.ShutdownTimeout > 0 {
		return a.cfg.ShutdownTimeout
	}
	return 5 * time.Second
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
