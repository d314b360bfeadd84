package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/janisto/swarm-rest-example/internal/config"
	"github.com/janisto/swarm-rest-example/internal/http/health"
	"github.com/janisto/swarm-rest-example/internal/http/v1/routes"
	applog "github.com/janisto/swarm-rest-example/internal/platform/logging"
	appmiddleware "github.com/janisto/swarm-rest-example/internal/platform/middleware"
	"github.com/janisto/swarm-rest-example/internal/platform/openapi"
	"github.com/janisto/swarm-rest-example/internal/platform/respond"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

// metricsPath serves the Prometheus exposition.
const metricsPath = "/metrics"

func main() {
	cmd, err := newRootCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, error) {
	v, err := config.NewViper()
	if err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the REST greeting example and its OpenAPI document",
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotEnv(config.DotEnvFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	if err := config.RegisterFlags(cmd.Flags(), v); err != nil {
		return nil, err
	}
	return cmd, nil
}

// run builds the process logger and hands over to listenAndServe.
func run(ctx context.Context, cfg config.Config) error {
	initErr := applog.Init(applog.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	defer func() {
		if err := applog.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "logger sync error:", err)
		}
	}()
	if initErr != nil {
		applog.LogError(ctx, "logger init error", initErr, zap.String("logFile", cfg.LogFile))
		return initErr
	}

	return listenAndServe(ctx, cfg)
}

// listenAndServe binds cfg.Addr so a busy port fails fast, then serves until shutdown.
func listenAndServe(ctx context.Context, cfg config.Config) error {
	srv := newServer(cfg.Addr(), newRouter(cfg, appmiddleware.NewHTTPMetrics()))
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		applog.LogError(ctx, "listen failed", err, zap.String("addr", srv.Addr))
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	applog.LogInfo(ctx, "server starting",
		zap.String("version", Version),
		zap.String("addr", ln.Addr().String()),
		zap.String("logFile", cfg.LogFile),
		zap.String("docsPath", cfg.DocsPath),
	)
	return serve(ctx, srv, ln, cfg.ShutdownTimeout)
}

// newRouter assembles the middleware stack, the infrastructure routes and the documented API.
func newRouter(cfg config.Config, metrics *appmiddleware.HTTPMetrics) *chi.Mux {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	// Base middleware stack
	router.Use(
		appmiddleware.Security(cfg.DocsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP extracts client IP from X-Real-IP or X-Forwarded-For headers.
		// SECURITY: Only use behind a trusted reverse proxy (e.g., Cloud Run, nginx).
		chimiddleware.RealIP,
		chimiddleware.RequestSize(1<<20), // 1 MB limit
		metrics.Middleware(),
		applog.RequestLogger(),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	health.Register(router)
	router.Method(http.MethodGet, metricsPath, metrics.Handler())

	api := openapi.NewAPI(router, cfg.DocsPath, routes.Tags()...)
	routes.Register(api)
	return router
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}
}

// serve runs srv on ln until ctx is cancelled or SIGINT/SIGTERM arrives, then drains
// in-flight requests for at most shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		applog.LogInfo(context.Background(), "server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		applog.LogError(context.Background(), "serve failed", err, zap.String("addr", ln.Addr().String()))
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		applog.LogInfo(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.LogError(shutdownCtx, "server shutdown error", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	applog.LogInfo(context.Background(), "server exited")
	return nil
}
