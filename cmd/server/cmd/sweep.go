package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/snaproll/server/internal/config"
	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/storage/postgres"
)

var sweepDryRun bool

// sweepCmd runs one expiration sweep outside the job scheduler, for manual
// catch-up and for testing sweep configuration against production data.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiration sweep and exit",
	Long: `Run a single expiration sweep pass against the configured database.

Galleries whose expiry has passed are marked expired. With content deletion
enabled (SWEEP_DELETE_CONTENT, default true), their media is removed from
object storage and the database. Use --dry-run to only flip statuses.

The periodic in-server sweep does the same thing hourly; this command exists
for manual catch-up after downtime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd)
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "mark galleries expired but keep their content")
}

func runSweep(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	cancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewGalleryRepository(pool)
	if err != nil {
		return fmt.Errorf("gallery repository: %w", err)
	}

	deleteContent := cfg.Sweep.DeleteContent && !sweepDryRun
	var blobs galleries.BlobDeleter
	if deleteContent {
		store, err := newBlobStorage(cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("blob storage: %w", err)
		}
		blobs = store
	}

	sweeper := galleries.NewSweeper(repo, blobs, logger, galleries.SweeperOptions{
		DeleteContent:        deleteContent,
		Workers:              cfg.Sweep.Workers,
		BlobDeletesPerSecond: cfg.Sweep.BlobDeletesPerSecond,
	})

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Galleries expired:  %d\n", result.TotalExpired)
	fmt.Fprintf(out, "Galleries failed:   %d\n", result.TotalFailed)
	fmt.Fprintf(out, "Photos deleted:     %d\n", result.TotalPhotosDeleted)
	fmt.Fprintf(out, "Videos deleted:     %d\n", result.TotalVideosDeleted)
	fmt.Fprintf(out, "Storage freed:      %d bytes\n", result.TotalStorageFreed)
	return nil
}
