package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/snaproll/server/internal/analytics"
	"github.com/snaproll/server/internal/api"
	"github.com/snaproll/server/internal/auth"
	"github.com/snaproll/server/internal/config"
	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/email"
	"github.com/snaproll/server/internal/jobs"
	"github.com/snaproll/server/internal/metrics"
	"github.com/snaproll/server/internal/ratelimit"
	"github.com/snaproll/server/internal/realtime"
	"github.com/snaproll/server/internal/storage/blob"
	"github.com/snaproll/server/internal/storage/postgres"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the snaproll HTTP server",
	Long: `Start the snaproll HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables
- Connect to PostgreSQL and object storage
- Start the River workers for expiration sweeps and expiry notices
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting snaproll server")

	metrics.Init(Version, GitCommit, BuildDate)

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.Connect(poolCtx, cfg.Database.URL)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	// Pool gauges are sampled, not hooked, so a stuck pool still reports.
	dbCollector := metrics.NewDBCollector(pool)
	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	repo, err := postgres.NewGalleryRepository(pool)
	if err != nil {
		return fmt.Errorf("gallery repository: %w", err)
	}
	hosts, err := postgres.NewHostRepository(pool)
	if err != nil {
		return fmt.Errorf("host repository: %w", err)
	}
	analyticsRepo, err := postgres.NewAnalyticsRepository(pool)
	if err != nil {
		return fmt.Errorf("analytics repository: %w", err)
	}

	blobs, err := newBlobStorage(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("blob storage: %w", err)
	}

	hub := realtime.NewHub(repo, logger)
	defer hub.Shutdown()

	recorder := analytics.NewRecorder(analyticsRepo, logger)
	defer recorder.Stop()

	ingest := galleries.NewIngestService(repo, blobs, hub, recorder, logger)
	query := galleries.NewQueryService(repo)
	admin := galleries.NewAdminService(repo, logger)
	sweeper := galleries.NewSweeper(repo, blobs, logger, galleries.SweeperOptions{
		DeleteContent:        cfg.Sweep.DeleteContent,
		Workers:              cfg.Sweep.Workers,
		BlobDeletesPerSecond: cfg.Sweep.BlobDeletesPerSecond,
	})

	mail, err := email.NewService(email.Config{
		Enabled: cfg.Email.Enabled,
		APIKey:  cfg.Email.APIKey,
		From:    cfg.Email.From,
	}, logger)
	if err != nil {
		return fmt.Errorf("email service: %w", err)
	}

	limiter := ratelimit.NewStore(cfg.RateLimit.UploadsPerMinute, cfg.RateLimit.Window)
	defer limiter.Stop()

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)

	workers := jobs.NewWorkers(sweeper, mail, cfg.Sweep.NoticeThreshold, logger)
	riverClient, err := jobs.NewClient(pool, workers,
		slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		[]rivertype.Hook{metrics.NewRiverMetricsHook()},
		jobs.NewPeriodicJobs())
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}

	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("river workers failed to start: %w", err)
	}
	logger.Info().Msg("river background workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
		}
	}()

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Logger:    logger,
		Admin:     admin,
		Ingest:    ingest,
		Query:     query,
		Hub:       hub,
		Hosts:     hosts,
		JWT:       jwt,
		RateLimit: limiter,
		Blobs:     blobs,
		Pool:      pool,
		Version:   Version,
		GitCommit: GitCommit,
	})

	// No global read/write timeouts: video uploads take minutes on slow
	// links and stream connections stay open indefinitely. Header reads are
	// still bounded.
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	return gracefulShutdown(server, logger)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	// Override logging from flags if provided
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	return cfg, nil
}

func newBlobStorage(cfg config.StorageConfig, logger zerolog.Logger) (blob.Storage, error) {
	switch cfg.Backend {
	case "local":
		return blob.NewLocal(cfg.LocalPath, logger)
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKeyID:  cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
		}, logger)
	}
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
