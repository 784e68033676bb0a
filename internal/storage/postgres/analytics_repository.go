package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/metrics"
)

// AnalyticsRepository appends upload analytics rows. Writes happen off the
// request path (see internal/analytics), so a failure here never affects an
// upload.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

func NewAnalyticsRepository(pool *pgxpool.Pool) (*AnalyticsRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("analytics repository: pool is nil")
	}
	return &AnalyticsRepository{pool: pool}, nil
}

func (r *AnalyticsRepository) InsertUploadEvent(ctx context.Context, event galleries.AnalyticsEvent) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_upload_event", start, err) }()

	_, err = r.pool.Exec(ctx, `
INSERT INTO upload_analytics (gallery_id, media_id, kind, contributor, size_bytes, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		event.GalleryID, event.MediaID, event.Kind, event.Contributor, event.SizeBytes, event.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert upload event: %w", err)
	}
	return nil
}
