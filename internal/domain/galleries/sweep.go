package galleries

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SweepResult accumulates one sweep run's totals across all processed
// galleries.
type SweepResult struct {
	TotalExpired       int
	TotalPhotosDeleted int
	TotalVideosDeleted int
	TotalStorageFreed  int64
	TotalFailed        int
}

type SweeperOptions struct {
	// DeleteContent removes blobs and media rows for expired galleries;
	// disabled, the sweep only flips status.
	DeleteContent bool

	// Workers bounds per-gallery parallelism within one run. The run itself is
	// always serialized by the job scheduler.
	Workers int

	// BlobDeletesPerSecond paces object-storage deletes so a large expired
	// gallery does not hammer the store. 0 means unpaced.
	BlobDeletesPerSecond int
}

// Sweeper expires galleries whose expiry has passed and, optionally, deletes
// their content from object storage and the database. Each gallery is an
// isolated unit of failure: one gallery's storage error never aborts the
// batch. Re-running is safe because the expiry query only matches galleries
// still in the active state.
type Sweeper struct {
	repo   Repository
	blobs  BlobDeleter
	logger zerolog.Logger
	opts   SweeperOptions
	pace   *rate.Limiter
	now    func() time.Time
}

func NewSweeper(repo Repository, blobs BlobDeleter, logger zerolog.Logger, opts SweeperOptions) *Sweeper {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	var pace *rate.Limiter
	if opts.BlobDeletesPerSecond > 0 {
		pace = rate.NewLimiter(rate.Limit(opts.BlobDeletesPerSecond), opts.BlobDeletesPerSecond)
	}
	return &Sweeper{repo: repo, blobs: blobs, logger: logger, opts: opts, pace: pace, now: time.Now}
}

// Sweep processes every gallery that is active with expiresAt in the past.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := s.now()

	expired, err := s.repo.ListExpired(ctx, start)
	if err != nil {
		return SweepResult{}, err
	}
	if len(expired) == 0 {
		return SweepResult{}, nil
	}

	var (
		mu     sync.Mutex
		result SweepResult
		wg     sync.WaitGroup
	)
	jobs := make(chan Gallery)

	for range s.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for gallery := range jobs {
				photos, videos, freed, expiredNow, err := s.sweepOne(ctx, gallery)
				mu.Lock()
				if err != nil {
					result.TotalFailed++
				}
				if expiredNow {
					result.TotalExpired++
				}
				result.TotalPhotosDeleted += photos
				result.TotalVideosDeleted += videos
				result.TotalStorageFreed += freed
				mu.Unlock()
			}
		}()
	}

	for _, gallery := range expired {
		jobs <- gallery
	}
	close(jobs)
	wg.Wait()

	s.logger.Info().
		Int("expired", result.TotalExpired).
		Int("photos_deleted", result.TotalPhotosDeleted).
		Int("videos_deleted", result.TotalVideosDeleted).
		Int64("storage_freed", result.TotalStorageFreed).
		Int("failed", result.TotalFailed).
		Dur("duration", s.now().Sub(start)).
		Msg("expiration sweep completed")

	return result, nil
}

// sweepOne expires a single gallery and optionally deletes its content.
func (s *Sweeper) sweepOne(ctx context.Context, gallery Gallery) (photos, videos int, freed int64, expiredNow bool, err error) {
	changed, err := s.repo.TransitionStatus(ctx, gallery.ID, StatusActive, StatusExpired)
	if err != nil {
		s.logger.Error().Err(err).Str("gallery_id", gallery.ID).Msg("expire transition failed")
		return 0, 0, 0, false, err
	}
	if !changed {
		// Another run got here first; nothing more to do.
		return 0, 0, 0, false, nil
	}

	if !s.opts.DeleteContent {
		return 0, 0, 0, true, nil
	}

	items, err := s.repo.ListAllMedia(ctx, gallery.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("gallery_id", gallery.ID).Msg("list media for deletion failed")
		return 0, 0, 0, true, err
	}

	for _, item := range items {
		s.deleteBlob(ctx, item.FileRef, gallery.ID)
		if item.ThumbnailRef != "" {
			s.deleteBlob(ctx, item.ThumbnailRef, gallery.ID)
		}
	}

	deleted, err := s.repo.DeleteAllMedia(ctx, gallery.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("gallery_id", gallery.ID).Msg("media row deletion failed")
		return 0, 0, 0, true, err
	}

	return deleted.Photos, deleted.Videos, deleted.BytesFreed, true, nil
}

// deleteBlob removes one object, best-effort. Storage errors are logged and
// the sweep continues; the next content deletion pass has nothing to retry
// against (rows are gone), so orphaned blobs from failures here are accepted
// and left to a storage-side lifecycle rule.
func (s *Sweeper) deleteBlob(ctx context.Context, ref, galleryID string) {
	if s.blobs == nil {
		return
	}
	if s.pace != nil {
		if err := s.pace.Wait(ctx); err != nil {
			return
		}
	}
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.logger.Warn().Err(err).Str("gallery_id", galleryID).Str("ref", ref).Msg("blob delete failed during sweep")
	}
}

// FindExpiringSoon returns active galleries whose expiry falls within the
// threshold, for notification purposes. Read-only.
func (s *Sweeper) FindExpiringSoon(ctx context.Context, threshold time.Duration) ([]Gallery, error) {
	return s.repo.ListExpiringSoon(ctx, s.now(), threshold)
}
