package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/runprogress/internal/config"
	"github.com/3leaps/runprogress/internal/observability"
	"github.com/3leaps/runprogress/internal/server"
	"github.com/3leaps/runprogress/internal/server/handlers"
	"github.com/3leaps/runprogress/pkg/jobstatus"
	"github.com/3leaps/runprogress/pkg/progress"
	"github.com/3leaps/runprogress/pkg/rundir"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve job status over HTTP",
	Long: `Start the HTTP server.

Routes:
  GET /job/status?key=<key>&name=<name>   progress snapshot for one job
  GET /health, /health/live, /health/ready, /health/startup
  GET /version

Example:
  runprogress serve --run-dir /srv/runs --port 8080`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override server.host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override server.port")
}

func runServe(cmd *cobra.Command, args []string) error {
	extra := map[string]any{}
	if cmd.Flags().Changed("host") {
		extra["server.host"] = serveHost
	}
	if cmd.Flags().Changed("port") {
		extra["server.port"] = servePort
	}

	cfg, err := loadConfig(cmd.Context(), extra)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, store, err := newStatusService(ctx, cfg, logger)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open run directory", err)
	}
	defer func() { _ = store.Close() }()

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("rundir", rundirHealthChecker{store: store})

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithStatusService(svc),
		server.WithTimeouts(server.Timeouts{
			Read:  cfg.Server.ReadTimeout,
			Write: cfg.Server.WriteTimeout,
			Idle:  cfg.Server.IdleTimeout,
		}),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
	}
	if limiter := newRateLimiter(cfg.RateLimit); limiter != nil {
		opts = append(opts, server.WithRateLimiter(limiter))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	logger.Info("Serving job status",
		zap.String("addr", srv.Addr()),
		zap.String("run_dir", cfg.RunDir.Base),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown did not finish", zap.Error(err))
	}
	if err := <-errCh; err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
	}
	logger.Info("Server stopped")
	return nil
}

// newStatusService opens the run directory and builds the status service
// over it. The caller closes the returned store.
func newStatusService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*jobstatus.Service, *rundir.Store, error) {
	est, err := progress.New(cfg.Estimator.ProgressConfig())
	if err != nil {
		return nil, nil, err
	}

	store, err := rundir.Open(ctx, cfg.RunDir.Base, rundir.S3Options{
		Region:         cfg.RunDir.S3.Region,
		Endpoint:       cfg.RunDir.S3.Endpoint,
		Profile:        cfg.RunDir.S3.Profile,
		ForcePathStyle: cfg.RunDir.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, nil, err
	}
	return jobstatus.NewService(store, est, logger), store, nil
}

func newRateLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if !cfg.Enabled {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// rundirHealthChecker fails readiness when the run directory cannot be listed.
type rundirHealthChecker struct {
	store pinger
}

func (c rundirHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return errors.New("run directory not opened")
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("run directory unreachable: %w", err)
	}
	return nil
}
