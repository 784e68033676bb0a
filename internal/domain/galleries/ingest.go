package galleries

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/domain/ids"
)

type DeltaType string

const (
	DeltaInsert DeltaType = "insert"
	DeltaUpdate DeltaType = "update"
	DeltaDelete DeltaType = "delete"
)

// Delta is one realtime change pushed to gallery viewers. Deltas for a single
// gallery are published in the order their writes were confirmed.
type Delta struct {
	Type DeltaType
	Item MediaItem
}

type DeltaPublisher interface {
	Publish(galleryID string, delta Delta)
}

// AnalyticsEvent is the fire-and-forget record of one successful upload.
type AnalyticsEvent struct {
	GalleryID   string
	MediaID     string
	Kind        MediaKind
	Contributor string
	SizeBytes   int64
	UploadedAt  time.Time
}

type AnalyticsRecorder interface {
	Record(event AnalyticsEvent)
}

// BlobDeleter is the slice of the object store the pipeline needs: compensating
// deletes when the record write fails after the blob is already up.
type BlobDeleter interface {
	Delete(ctx context.Context, ref string) error
}

// DeniedError carries a typed quota or lifecycle denial out of the pipeline.
type DeniedError struct {
	Reason DenialReason
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("upload denied: %s", e.Reason)
}

type IngestRequest struct {
	GalleryID        string
	ContributorName  string
	ContributorEmail string
	Caption          string
	Kind             MediaKind
	DurationSeconds  int
	FileRef          string
	ThumbnailRef     string
	SizeBytes        int64
	MimeType         string

	// Degraded marks an item whose thumbnail write failed upstream; the item
	// persists with an empty thumbnail ref instead of failing the upload.
	Degraded bool
}

// IngestService persists validated media, updates counters, and fans the
// confirmed write out to realtime viewers.
type IngestService struct {
	repo      Repository
	blobs     BlobDeleter
	publisher DeltaPublisher
	analytics AnalyticsRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

func NewIngestService(repo Repository, blobs BlobDeleter, publisher DeltaPublisher, analytics AnalyticsRecorder, logger zerolog.Logger) *IngestService {
	return &IngestService{
		repo:      repo,
		blobs:     blobs,
		publisher: publisher,
		analytics: analytics,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest runs the admission checks and, if allowed, persists the media record.
// Counters move in the same transaction as the insert, so an aborted request
// never leaves quota reserved. The blob referenced by req.FileRef is expected
// to already exist; if the record write fails the pipeline issues a best-effort
// compensating delete so the blob is not orphaned.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*MediaItem, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("ingest: repository not configured")
	}

	gallery, err := s.repo.GetGallery(ctx, req.GalleryID)
	if err != nil {
		return nil, err
	}

	var contributor *ContributorAggregate
	if req.ContributorEmail != "" {
		contributor, err = s.repo.GetContributor(ctx, req.GalleryID, req.ContributorEmail)
		if err != nil && err != ErrNotFound {
			return nil, err
		}
	}

	decision := CheckUpload(gallery, contributor, req.Kind, s.now())
	if !decision.Allowed {
		return nil, DeniedError{Reason: decision.Reason}
	}

	mediaID, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate media id: %w", err)
	}

	item, err := s.repo.InsertMedia(ctx, MediaCreateParams{
		ID:               mediaID,
		GalleryID:        req.GalleryID,
		Kind:             req.Kind,
		ContributorName:  req.ContributorName,
		ContributorEmail: req.ContributorEmail,
		FileRef:          req.FileRef,
		ThumbnailRef:     req.ThumbnailRef,
		SizeBytes:        req.SizeBytes,
		MimeType:         req.MimeType,
		Caption:          req.Caption,
		DurationSeconds:  req.DurationSeconds,
		Degraded:         req.Degraded,
	})
	if err != nil {
		if err == ErrQuotaExceeded {
			// A concurrent upload took the last slot between the check and the
			// insert; surface it as the same denial the check would have given.
			if req.Kind == KindVideo {
				return nil, DeniedError{Reason: DenyVideoQuotaExceeded}
			}
			return nil, DeniedError{Reason: DenyEventQuotaExceeded}
		}
		if err == ErrContributorQuotaExceeded {
			return nil, DeniedError{Reason: DenyUserQuotaExceeded}
		}
		s.compensateBlobs(ctx, req)
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(item.GalleryID, Delta{Type: DeltaInsert, Item: *item})
	}

	if s.analytics != nil {
		s.analytics.Record(AnalyticsEvent{
			GalleryID:   item.GalleryID,
			MediaID:     item.ID,
			Kind:        item.Kind,
			Contributor: item.ContributorName,
			SizeBytes:   item.SizeBytes,
			UploadedAt:  item.UploadedAt,
		})
	}

	return item, nil
}

// Delete removes a single media item, decrements the gallery counters, and
// publishes a delete delta. Only the gallery's host may delete. Blob removal
// is best-effort: a storage error is logged but the record delete stands.
func (s *IngestService) Delete(ctx context.Context, galleryID, mediaID, hostID string) error {
	gallery, err := s.repo.GetGallery(ctx, galleryID)
	if err != nil {
		return err
	}
	if gallery.HostID != hostID {
		return ErrNotOwner
	}

	item, err := s.repo.DeleteMedia(ctx, galleryID, mediaID)
	if err != nil {
		return err
	}

	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, item.FileRef); err != nil {
			s.logger.Warn().Err(err).Str("media_id", item.ID).Str("ref", item.FileRef).Msg("blob delete failed")
		}
		if item.ThumbnailRef != "" {
			if err := s.blobs.Delete(ctx, item.ThumbnailRef); err != nil {
				s.logger.Warn().Err(err).Str("media_id", item.ID).Str("ref", item.ThumbnailRef).Msg("thumbnail delete failed")
			}
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(galleryID, Delta{Type: DeltaDelete, Item: *item})
	}
	return nil
}

func (s *IngestService) compensateBlobs(ctx context.Context, req IngestRequest) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, req.FileRef); err != nil {
		s.logger.Warn().Err(err).Str("ref", req.FileRef).Msg("compensating blob delete failed")
	}
	if req.ThumbnailRef != "" {
		if err := s.blobs.Delete(ctx, req.ThumbnailRef); err != nil {
			s.logger.Warn().Err(err).Str("ref", req.ThumbnailRef).Msg("compensating thumbnail delete failed")
		}
	}
}
