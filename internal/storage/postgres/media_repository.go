package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/metrics"
)

const mediaColumns = `
    id, gallery_id, kind, contributor_name, contributor_email,
    file_ref, thumbnail_ref, size_bytes, mime_type, caption,
    duration_seconds, approved, degraded, uploaded_at`

func scanMedia(row pgx.Row) (*galleries.MediaItem, error) {
	var m galleries.MediaItem
	err := row.Scan(
		&m.ID, &m.GalleryID, &m.Kind, &m.ContributorName, &m.ContributorEmail,
		&m.FileRef, &m.ThumbnailRef, &m.SizeBytes, &m.MimeType, &m.Caption,
		&m.DurationSeconds, &m.Approved, &m.Degraded, &m.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, galleries.ErrMediaNotFound
		}
		return nil, fmt.Errorf("scan media: %w", err)
	}
	return &m, nil
}

// InsertMedia runs the counter-guarded insert transaction. The guarded UPDATE
// comes first: if it affects no row, either the gallery is gone or a
// concurrent upload consumed the last slot, and the whole transaction rolls
// back without the media row ever existing.
func (r *GalleryRepository) InsertMedia(ctx context.Context, params galleries.MediaCreateParams) (_ *galleries.MediaItem, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_media", start, err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert media: %w", err)
	}
	defer tx.Rollback(ctx)

	counterSQL := `
UPDATE galleries
   SET total_photos = total_photos + 1, updated_at = now()
 WHERE id = $1 AND total_photos < max_photos`
	if params.Kind == galleries.KindVideo {
		counterSQL = `
UPDATE galleries
   SET total_videos = total_videos + 1, updated_at = now()
 WHERE id = $1 AND total_videos < max_videos`
	}
	tag, err := tx.Exec(ctx, counterSQL, params.GalleryID)
	if err != nil {
		return nil, fmt.Errorf("increment media counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM galleries WHERE id = $1)`, params.GalleryID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check gallery: %w", err)
		}
		if !exists {
			return nil, galleries.ErrNotFound
		}
		return nil, galleries.ErrQuotaExceeded
	}

	if params.ContributorEmail != "" {
		photoInc, videoInc := 1, 0
		if params.Kind == galleries.KindVideo {
			photoInc, videoInc = 0, 1
		}
		// The guarded UPDATE above holds the gallery row lock, so this read
		// cannot race a plan change.
		var maxPerUser int
		if err := tx.QueryRow(ctx, `
SELECT max_photos_per_user FROM galleries WHERE id = $1`, params.GalleryID).Scan(&maxPerUser); err != nil {
			return nil, fmt.Errorf("read contributor limit: %w", err)
		}

		// Same guard pattern as the gallery counters: the conditional upsert
		// affects no row when a concurrent upload from this email already holds
		// the last per-user photo slot, and the transaction rolls back.
		var total int
		err := tx.QueryRow(ctx, `
INSERT INTO contributor_aggregates (gallery_id, contributor_email, photo_count, video_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (gallery_id, contributor_email) DO UPDATE
   SET photo_count = contributor_aggregates.photo_count + $3,
       video_count = contributor_aggregates.video_count + $4
 WHERE $3 = 0 OR contributor_aggregates.photo_count + $3 <= $5
RETURNING photo_count + video_count`,
			params.GalleryID, params.ContributorEmail, photoInc, videoInc, maxPerUser,
		).Scan(&total)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, galleries.ErrContributorQuotaExceeded
			}
			return nil, fmt.Errorf("upsert contributor: %w", err)
		}
		if total == photoInc+videoInc {
			// First item from this email.
			if _, err := tx.Exec(ctx, `
UPDATE galleries SET total_contributors = total_contributors + 1 WHERE id = $1`, params.GalleryID); err != nil {
				return nil, fmt.Errorf("increment contributors: %w", err)
			}
		}
	}

	row := tx.QueryRow(ctx, `
INSERT INTO media_items (
    id, gallery_id, kind, contributor_name, contributor_email,
    file_ref, thumbnail_ref, size_bytes, mime_type, caption,
    duration_seconds, degraded
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING`+mediaColumns,
		params.ID, params.GalleryID, params.Kind, params.ContributorName, params.ContributorEmail,
		params.FileRef, params.ThumbnailRef, params.SizeBytes, params.MimeType, params.Caption,
		params.DurationSeconds, params.Degraded,
	)
	item, err := scanMedia(row)
	if err != nil {
		return nil, fmt.Errorf("insert media: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert media: %w", err)
	}
	return item, nil
}

func (r *GalleryRepository) GetMedia(ctx context.Context, galleryID, mediaID string) (_ *galleries.MediaItem, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_media", start, err) }()

	row := r.queryer().QueryRow(ctx, `
SELECT`+mediaColumns+`
  FROM media_items
 WHERE gallery_id = $1 AND id = $2`, galleryID, mediaID)
	return scanMedia(row)
}

// DeleteMedia removes one item and releases its quota slot in the same
// transaction.
func (r *GalleryRepository) DeleteMedia(ctx context.Context, galleryID, mediaID string) (_ *galleries.MediaItem, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_media", start, err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete media: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
DELETE FROM media_items
 WHERE gallery_id = $1 AND id = $2
RETURNING`+mediaColumns, galleryID, mediaID)
	item, err := scanMedia(row)
	if err != nil {
		return nil, err
	}

	counterSQL := `
UPDATE galleries
   SET total_photos = GREATEST(total_photos - 1, 0), updated_at = now()
 WHERE id = $1`
	aggregateSQL := `
UPDATE contributor_aggregates
   SET photo_count = GREATEST(photo_count - 1, 0)
 WHERE gallery_id = $1 AND contributor_email = $2`
	if item.Kind == galleries.KindVideo {
		counterSQL = `
UPDATE galleries
   SET total_videos = GREATEST(total_videos - 1, 0), updated_at = now()
 WHERE id = $1`
		aggregateSQL = `
UPDATE contributor_aggregates
   SET video_count = GREATEST(video_count - 1, 0)
 WHERE gallery_id = $1 AND contributor_email = $2`
	}
	if _, err := tx.Exec(ctx, counterSQL, galleryID); err != nil {
		return nil, fmt.Errorf("decrement media counter: %w", err)
	}
	if item.ContributorEmail != "" {
		if _, err := tx.Exec(ctx, aggregateSQL, galleryID, item.ContributorEmail); err != nil {
			return nil, fmt.Errorf("decrement contributor counter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete media: %w", err)
	}
	return item, nil
}

func orderClause(sort galleries.SortOrder) string {
	switch sort {
	case galleries.SortOldest:
		return "uploaded_at ASC, id ASC"
	case galleries.SortContributor:
		return "LOWER(contributor_name) ASC, id ASC"
	default:
		return "uploaded_at DESC, id DESC"
	}
}

const mediaFilterClause = `
   AND ($3 = '' OR contributor_name = $3)
   AND ($4 = '' OR caption ILIKE '%' || $4 || '%' OR contributor_name ILIKE '%' || $4 || '%')`

func (r *GalleryRepository) ListMedia(ctx context.Context, galleryID string, kind galleries.MediaKind, filters galleries.MediaFilters, limit int) (_ []galleries.MediaItem, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_media", start, err) }()

	query := `
SELECT` + mediaColumns + `
  FROM media_items
 WHERE gallery_id = $1 AND kind = $2 AND approved` + mediaFilterClause + `
 ORDER BY ` + orderClause(filters.Sort) + `
 LIMIT $5`

	rows, err := r.queryer().Query(ctx, query,
		galleryID, kind, filters.Contributor, escapeILIKEPattern(filters.Search), limit)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []galleries.MediaItem
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return out, nil
}

func (r *GalleryRepository) CountMedia(ctx context.Context, galleryID string, kind galleries.MediaKind, filters galleries.MediaFilters) (_ int, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("count_media", start, err) }()

	query := `
SELECT count(*)
  FROM media_items
 WHERE gallery_id = $1 AND kind = $2 AND approved` + mediaFilterClause

	var count int
	err = r.queryer().QueryRow(ctx, query,
		galleryID, kind, filters.Contributor, escapeILIKEPattern(filters.Search)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count media: %w", err)
	}
	return count, nil
}

func (r *GalleryRepository) ListAllMedia(ctx context.Context, galleryID string) (_ []galleries.MediaItem, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_all_media", start, err) }()

	rows, err := r.queryer().Query(ctx, `
SELECT`+mediaColumns+`
  FROM media_items
 WHERE gallery_id = $1
 ORDER BY uploaded_at DESC, id DESC`, galleryID)
	if err != nil {
		return nil, fmt.Errorf("list all media: %w", err)
	}
	defer rows.Close()

	var out []galleries.MediaItem
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate all media: %w", err)
	}
	return out, nil
}

// DeleteAllMedia removes every item of a gallery and zeroes its counters,
// reporting what was freed. Used by the expiration sweep after blob cleanup.
func (r *GalleryRepository) DeleteAllMedia(ctx context.Context, galleryID string) (_ galleries.DeletedMedia, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_all_media", start, err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return galleries.DeletedMedia{}, fmt.Errorf("begin delete all media: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
DELETE FROM media_items
 WHERE gallery_id = $1
RETURNING kind, size_bytes`, galleryID)
	if err != nil {
		return galleries.DeletedMedia{}, fmt.Errorf("delete media rows: %w", err)
	}

	var deleted galleries.DeletedMedia
	for rows.Next() {
		var kind galleries.MediaKind
		var size int64
		if err := rows.Scan(&kind, &size); err != nil {
			rows.Close()
			return galleries.DeletedMedia{}, fmt.Errorf("scan deleted media: %w", err)
		}
		if kind == galleries.KindVideo {
			deleted.Videos++
		} else {
			deleted.Photos++
		}
		deleted.BytesFreed += size
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return galleries.DeletedMedia{}, fmt.Errorf("iterate deleted media: %w", err)
	}

	if _, err := tx.Exec(ctx, `
DELETE FROM contributor_aggregates WHERE gallery_id = $1`, galleryID); err != nil {
		return galleries.DeletedMedia{}, fmt.Errorf("delete contributor aggregates: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE galleries
   SET total_photos = 0, total_videos = 0, updated_at = now()
 WHERE id = $1`, galleryID); err != nil {
		return galleries.DeletedMedia{}, fmt.Errorf("reset gallery counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return galleries.DeletedMedia{}, fmt.Errorf("commit delete all media: %w", err)
	}
	return deleted, nil
}
