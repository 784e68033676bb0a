package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/email"
	"github.com/snaproll/server/internal/metrics"
)

type ExpirationSweepArgs struct{}

func (ExpirationSweepArgs) Kind() string { return JobKindExpirationSweep }

// ExpirationSweepWorker runs one expiration sweep pass. The sweep itself
// tolerates per-gallery failures, so a returned error means the batch query
// failed and the whole run should retry.
type ExpirationSweepWorker struct {
	river.WorkerDefaults[ExpirationSweepArgs]
	Sweeper *galleries.Sweeper
}

func (ExpirationSweepWorker) Kind() string { return JobKindExpirationSweep }

func (w ExpirationSweepWorker) Work(ctx context.Context, job *river.Job[ExpirationSweepArgs]) error {
	if w.Sweeper == nil {
		return fmt.Errorf("sweeper not configured")
	}

	start := time.Now()
	result, err := w.Sweeper.Sweep(ctx)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("expiration sweep: %w", err)
	}

	metrics.SweepGalleriesTotal.WithLabelValues("expired").Add(float64(result.TotalExpired))
	metrics.SweepGalleriesTotal.WithLabelValues("failed").Add(float64(result.TotalFailed))
	metrics.SweepMediaDeleted.WithLabelValues("photo").Add(float64(result.TotalPhotosDeleted))
	metrics.SweepMediaDeleted.WithLabelValues("video").Add(float64(result.TotalVideosDeleted))
	metrics.SweepBytesFreed.Add(float64(result.TotalStorageFreed))
	return nil
}

type ExpiryNoticeArgs struct{}

func (ExpiryNoticeArgs) Kind() string { return JobKindExpiryNotice }

// ExpiryNoticeWorker emails hosts whose galleries expire within the notice
// threshold. Individual send failures are logged and do not fail the job,
// since a job retry would resend to hosts already notified. The job fails
// only when every send fails, which points at broken email configuration.
type ExpiryNoticeWorker struct {
	river.WorkerDefaults[ExpiryNoticeArgs]
	Sweeper   *galleries.Sweeper
	Mail      *email.Service
	Threshold time.Duration
	Logger    zerolog.Logger
}

func (ExpiryNoticeWorker) Kind() string { return JobKindExpiryNotice }

func (w ExpiryNoticeWorker) Work(ctx context.Context, job *river.Job[ExpiryNoticeArgs]) error {
	if w.Sweeper == nil {
		return fmt.Errorf("sweeper not configured")
	}
	if w.Mail == nil {
		return fmt.Errorf("email service not configured")
	}

	expiring, err := w.Sweeper.FindExpiringSoon(ctx, w.Threshold)
	if err != nil {
		return fmt.Errorf("find expiring galleries: %w", err)
	}
	if len(expiring) == 0 {
		return nil
	}

	// Galleries without a host email are skipped, so only actual send
	// attempts count toward the all-failed check.
	attempted, failed := 0, 0
	for _, gallery := range expiring {
		if gallery.HostEmail == "" {
			continue
		}
		attempted++
		if err := w.Mail.SendExpiryNotice(ctx, gallery.HostEmail, gallery.Name, gallery.ExpiresAt); err != nil {
			failed++
			w.Logger.Error().
				Err(err).
				Str("gallery_id", gallery.ID).
				Msg("expiry notice send failed")
		}
	}

	w.Logger.Info().
		Int("galleries", len(expiring)).
		Int("attempted", attempted).
		Int("failed", failed).
		Msg("expiry notice pass completed")

	if attempted > 0 && failed == attempted {
		return fmt.Errorf("all %d expiry notices failed", failed)
	}
	return nil
}

// NewWorkers registers the maintenance workers.
func NewWorkers(sweeper *galleries.Sweeper, mail *email.Service, noticeThreshold time.Duration, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[ExpirationSweepArgs](workers, ExpirationSweepWorker{Sweeper: sweeper})
	river.AddWorker[ExpiryNoticeArgs](workers, ExpiryNoticeWorker{
		Sweeper:   sweeper,
		Mail:      mail,
		Threshold: noticeThreshold,
		Logger:    logger,
	})
	return workers
}
