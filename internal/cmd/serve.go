package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seralabs/telepilot/internal/config"
	"github.com/seralabs/telepilot/internal/metrics"
	"github.com/seralabs/telepilot/internal/observability"
	"github.com/seralabs/telepilot/internal/server"
	"github.com/seralabs/telepilot/internal/server/handlers"
	"github.com/seralabs/telepilot/pkg/browser"
	"github.com/seralabs/telepilot/pkg/jobs"
	"github.com/seralabs/telepilot/pkg/sessionstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server.

Login jobs started over the API hold a live browser while they wait for
codes, so keep the instance count at one per session store.

Example:
  telepilot serve
  telepilot serve --host 0.0.0.0 --port 8080`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override listen host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override listen port")
}

// sessionsHealthChecker verifies the session directory is usable.
type sessionsHealthChecker struct {
	dir string
}

func (c sessionsHealthChecker) CheckHealth(_ context.Context) error {
	if c.dir == "" {
		return errors.New("sessions dir not configured")
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("sessions dir not writable: %w", err)
	}
	return nil
}

// registryHealthChecker verifies the job registry is wired.
type registryHealthChecker struct {
	registry *jobs.Registry
}

func (c registryHealthChecker) CheckHealth(_ context.Context) error {
	if c.registry == nil {
		return errors.New("job registry not initialized")
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	log := observability.ServerLogger

	var m *metrics.Metrics
	var observer jobs.Observer
	if cfg.Metrics.Enabled {
		m = metrics.New()
		observer = m
	}

	sessions := sessionstore.NewStore(cfg.Storage.SessionsDir)
	registry := jobs.NewRegistry(
		browserFactory(cfg),
		sessions,
		jobs.Options{
			RunsDir:     cfg.Storage.RunsDir,
			ReportsDir:  cfg.Storage.ReportsDir,
			CreateRate:  rate.Limit(cfg.Jobs.CreateRate),
			CreateBurst: cfg.Jobs.CreateBurst,
			IdleTimeout: cfg.Jobs.IdleTimeout,
		},
		observer,
		log,
	)
	defer registry.Close()

	if cfg.Health.Enabled {
		manager := handlers.InitHealthManager(versionInfo.Version)
		manager.RegisterChecker("sessions", sessionsHealthChecker{dir: cfg.Storage.SessionsDir})
		manager.RegisterChecker("registry", registryHealthChecker{registry: registry})
	}

	opts := []server.Option{
		server.WithRegistry(registry),
		server.WithRunsDirs(cfg.Storage.RunsDir, cfg.Storage.ReportsDir),
		server.WithLogger(log),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}
	if m != nil {
		opts = append(opts, server.WithRequestObserver(m.ObserveRequest))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()

	var metricsSrv *http.Server
	if m != nil {
		metricsSrv = newMetricsServer(cfg, m)
		go func() {
			log.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-runCtx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics server shutdown incomplete", zap.Error(err))
		}
	}
	log.Info("Server stopped")
	return nil
}

// browserFactory picks the browser variant from config. Per-job options
// override headless and proxy.
func browserFactory(cfg *config.Config) browser.Factory {
	stealth := cfg.Browser.Stealth
	timeout := cfg.Browser.Timeout
	defaultProxy := cfg.Browser.Proxy

	return func(opts browser.Options) browser.Browser {
		if opts.Proxy == "" {
			opts.Proxy = defaultProxy
		}
		if opts.Timeout == 0 {
			opts.Timeout = timeout
		}
		if stealth {
			return browser.NewStealthChrome(opts)
		}
		return browser.NewChrome(opts)
	}
}

func newMetricsServer(cfg *config.Config, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if cfg.Debug.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
