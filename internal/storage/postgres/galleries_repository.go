package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/metrics"
)

var _ galleries.Repository = (*GalleryRepository)(nil)

// GalleryRepository implements galleries.Repository on pgx. Counter updates
// run in the same transaction as the media insert with a guard in the WHERE
// clause, so concurrent uploads can never push a counter past its limit.
type GalleryRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewGalleryRepository(pool *pgxpool.Pool) (*GalleryRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &GalleryRepository{pool: pool}, nil
}

func (r *GalleryRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const galleryColumns = `
    id, host_id, host_email, name, tier, status,
    total_photos, total_videos, total_contributors,
    max_photos, max_photos_per_user, max_videos, has_video_addon, storage_days,
    created_at, expires_at, updated_at`

func scanGallery(row pgx.Row) (*galleries.Gallery, error) {
	var g galleries.Gallery
	err := row.Scan(
		&g.ID, &g.HostID, &g.HostEmail, &g.Name, &g.Tier, &g.Status,
		&g.TotalPhotos, &g.TotalVideos, &g.TotalContributors,
		&g.MaxPhotos, &g.MaxPhotosPerUser, &g.MaxVideos, &g.HasVideoAddon, &g.StorageDays,
		&g.CreatedAt, &g.ExpiresAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, galleries.ErrNotFound
		}
		return nil, fmt.Errorf("scan gallery: %w", err)
	}
	return &g, nil
}

func (r *GalleryRepository) CreateGallery(ctx context.Context, params galleries.GalleryCreateParams) (_ *galleries.Gallery, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("create_gallery", start, err) }()

	row := r.queryer().QueryRow(ctx, `
INSERT INTO galleries (
    id, host_id, host_email, name, tier, status,
    max_photos, max_photos_per_user, max_videos, has_video_addon, storage_days,
    expires_at
) VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $8, $9, $10, $11)
RETURNING`+galleryColumns,
		params.ID, params.HostID, params.HostEmail, params.Name, params.Tier,
		params.Limits.MaxPhotos, params.Limits.MaxPhotosPerUser, params.Limits.MaxVideos,
		params.Limits.HasVideoAddon, params.Limits.StorageDays,
		params.ExpiresAt,
	)
	gallery, err := scanGallery(row)
	if err != nil {
		return nil, fmt.Errorf("create gallery: %w", err)
	}
	return gallery, nil
}

func (r *GalleryRepository) GetGallery(ctx context.Context, id string) (_ *galleries.Gallery, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_gallery", start, err) }()

	row := r.queryer().QueryRow(ctx, `
SELECT`+galleryColumns+`
  FROM galleries
 WHERE id = $1`, id)
	return scanGallery(row)
}

// TransitionStatus moves a gallery from one status to another. Returns false
// without error when the gallery is missing or not in the expected state; the
// two cases are indistinguishable here on purpose, so sweeps and lifecycle
// calls stay race-free with a single statement.
func (r *GalleryRepository) TransitionStatus(ctx context.Context, id string, from, to galleries.Status) (_ bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("transition_status", start, err) }()

	tag, err := r.queryer().Exec(ctx, `
UPDATE galleries
   SET status = $3, updated_at = now()
 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition gallery status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *GalleryRepository) UpdatePlan(ctx context.Context, params galleries.PlanUpdateParams) (_ *galleries.Gallery, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("update_plan", start, err) }()

	row := r.queryer().QueryRow(ctx, `
UPDATE galleries
   SET tier = $2,
       status = $3,
       max_photos = $4,
       max_photos_per_user = $5,
       max_videos = $6,
       has_video_addon = $7,
       storage_days = $8,
       expires_at = $9,
       updated_at = now()
 WHERE id = $1
RETURNING`+galleryColumns,
		params.GalleryID, params.Tier, params.Status,
		params.Limits.MaxPhotos, params.Limits.MaxPhotosPerUser, params.Limits.MaxVideos,
		params.Limits.HasVideoAddon, params.Limits.StorageDays,
		params.ExpiresAt,
	)
	return scanGallery(row)
}

func (r *GalleryRepository) ListExpired(ctx context.Context, now time.Time) (_ []galleries.Gallery, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_expired", start, err) }()

	rows, err := r.queryer().Query(ctx, `
SELECT`+galleryColumns+`
  FROM galleries
 WHERE status = 'active' AND expires_at < $1
 ORDER BY expires_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired galleries: %w", err)
	}
	defer rows.Close()
	return collectGalleries(rows)
}

func (r *GalleryRepository) ListExpiringSoon(ctx context.Context, now time.Time, within time.Duration) (_ []galleries.Gallery, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_expiring", start, err) }()

	rows, err := r.queryer().Query(ctx, `
SELECT`+galleryColumns+`
  FROM galleries
 WHERE status = 'active' AND expires_at > $1 AND expires_at < $2
 ORDER BY expires_at ASC`, now, now.Add(within))
	if err != nil {
		return nil, fmt.Errorf("list expiring galleries: %w", err)
	}
	defer rows.Close()
	return collectGalleries(rows)
}

func collectGalleries(rows pgx.Rows) ([]galleries.Gallery, error) {
	var out []galleries.Gallery
	for rows.Next() {
		gallery, err := scanGallery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *gallery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate galleries: %w", err)
	}
	return out, nil
}

func (r *GalleryRepository) GetContributor(ctx context.Context, galleryID, email string) (_ *galleries.ContributorAggregate, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_contributor", start, err) }()

	var agg galleries.ContributorAggregate
	err = r.queryer().QueryRow(ctx, `
SELECT gallery_id, contributor_email, photo_count, video_count
  FROM contributor_aggregates
 WHERE gallery_id = $1 AND contributor_email = $2`, galleryID, email).
		Scan(&agg.GalleryID, &agg.ContributorEmail, &agg.PhotoCount, &agg.VideoCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, galleries.ErrNotFound
		}
		return nil, fmt.Errorf("get contributor: %w", err)
	}
	return &agg, nil
}
