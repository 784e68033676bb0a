package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/audit"
	"github.com/snaproll/server/internal/domain/galleries"
)

// fakeRepo is an in-memory galleries.Repository for handler tests. Counter
// guards mirror the SQL repository so quota races surface the same way.
type fakeRepo struct {
	galleries    map[string]*galleries.Gallery
	media        map[string][]galleries.MediaItem
	contributors map[string]*galleries.ContributorAggregate
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		galleries:    make(map[string]*galleries.Gallery),
		media:        make(map[string][]galleries.MediaItem),
		contributors: make(map[string]*galleries.ContributorAggregate),
	}
}

func (f *fakeRepo) seedGallery(id string, tier galleries.Tier) *galleries.Gallery {
	limits, _ := galleries.LimitsFor(tier)
	g := &galleries.Gallery{
		ID:               id,
		HostID:           "host-1",
		HostEmail:        "host@example.com",
		Name:             "Test Gallery",
		Tier:             tier,
		Status:           galleries.StatusActive,
		MaxPhotos:        limits.MaxPhotos,
		MaxPhotosPerUser: limits.MaxPhotosPerUser,
		MaxVideos:        limits.MaxVideos,
		HasVideoAddon:    limits.HasVideoAddon,
		StorageDays:      limits.StorageDays,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(72 * time.Hour),
		UpdatedAt:        time.Now(),
	}
	f.galleries[id] = g
	return g
}

func (f *fakeRepo) CreateGallery(ctx context.Context, params galleries.GalleryCreateParams) (*galleries.Gallery, error) {
	g := &galleries.Gallery{
		ID:               params.ID,
		HostID:           params.HostID,
		HostEmail:        params.HostEmail,
		Name:             params.Name,
		Tier:             params.Tier,
		Status:           galleries.StatusActive,
		MaxPhotos:        params.Limits.MaxPhotos,
		MaxPhotosPerUser: params.Limits.MaxPhotosPerUser,
		MaxVideos:        params.Limits.MaxVideos,
		HasVideoAddon:    params.Limits.HasVideoAddon,
		StorageDays:      params.Limits.StorageDays,
		CreatedAt:        time.Now(),
		ExpiresAt:        params.ExpiresAt,
		UpdatedAt:        time.Now(),
	}
	f.galleries[g.ID] = g
	return g, nil
}

func (f *fakeRepo) GetGallery(ctx context.Context, id string) (*galleries.Gallery, error) {
	g, ok := f.galleries[id]
	if !ok {
		return nil, galleries.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (f *fakeRepo) TransitionStatus(ctx context.Context, id string, from, to galleries.Status) (bool, error) {
	g, ok := f.galleries[id]
	if !ok || g.Status != from {
		return false, nil
	}
	g.Status = to
	g.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRepo) UpdatePlan(ctx context.Context, params galleries.PlanUpdateParams) (*galleries.Gallery, error) {
	g, ok := f.galleries[params.GalleryID]
	if !ok {
		return nil, galleries.ErrNotFound
	}
	g.Tier = params.Tier
	g.MaxPhotos = params.Limits.MaxPhotos
	g.MaxPhotosPerUser = params.Limits.MaxPhotosPerUser
	g.MaxVideos = params.Limits.MaxVideos
	g.HasVideoAddon = params.Limits.HasVideoAddon
	g.StorageDays = params.Limits.StorageDays
	g.ExpiresAt = params.ExpiresAt
	g.Status = params.Status
	g.UpdatedAt = time.Now()
	copied := *g
	return &copied, nil
}

func (f *fakeRepo) ListExpired(ctx context.Context, now time.Time) ([]galleries.Gallery, error) {
	return nil, nil
}

func (f *fakeRepo) ListExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]galleries.Gallery, error) {
	return nil, nil
}

func (f *fakeRepo) InsertMedia(ctx context.Context, params galleries.MediaCreateParams) (*galleries.MediaItem, error) {
	g, ok := f.galleries[params.GalleryID]
	if !ok {
		return nil, galleries.ErrNotFound
	}
	if params.Kind == galleries.KindVideo {
		if g.TotalVideos >= g.MaxVideos {
			return nil, galleries.ErrQuotaExceeded
		}
		g.TotalVideos++
	} else {
		if g.TotalPhotos >= g.MaxPhotos {
			return nil, galleries.ErrQuotaExceeded
		}
		g.TotalPhotos++
	}

	if params.ContributorEmail != "" {
		key := params.GalleryID + "/" + params.ContributorEmail
		agg, ok := f.contributors[key]
		if !ok {
			agg = &galleries.ContributorAggregate{GalleryID: params.GalleryID, ContributorEmail: params.ContributorEmail}
			f.contributors[key] = agg
			g.TotalContributors++
		}
		if params.Kind == galleries.KindVideo {
			agg.VideoCount++
		} else {
			agg.PhotoCount++
		}
	}

	item := galleries.MediaItem{
		ID:               params.ID,
		GalleryID:        params.GalleryID,
		Kind:             params.Kind,
		ContributorName:  params.ContributorName,
		ContributorEmail: params.ContributorEmail,
		FileRef:          params.FileRef,
		ThumbnailRef:     params.ThumbnailRef,
		SizeBytes:        params.SizeBytes,
		MimeType:         params.MimeType,
		Caption:          params.Caption,
		DurationSeconds:  params.DurationSeconds,
		Approved:         true,
		Degraded:         params.Degraded,
		UploadedAt:       time.Now(),
	}
	f.media[params.GalleryID] = append(f.media[params.GalleryID], item)
	return &item, nil
}

func (f *fakeRepo) GetMedia(ctx context.Context, galleryID, mediaID string) (*galleries.MediaItem, error) {
	for _, item := range f.media[galleryID] {
		if item.ID == mediaID {
			copied := item
			return &copied, nil
		}
	}
	return nil, galleries.ErrMediaNotFound
}

func (f *fakeRepo) DeleteMedia(ctx context.Context, galleryID, mediaID string) (*galleries.MediaItem, error) {
	items := f.media[galleryID]
	for i, item := range items {
		if item.ID == mediaID {
			f.media[galleryID] = append(items[:i], items[i+1:]...)
			if g, ok := f.galleries[galleryID]; ok {
				if item.Kind == galleries.KindVideo {
					g.TotalVideos--
				} else {
					g.TotalPhotos--
				}
			}
			copied := item
			return &copied, nil
		}
	}
	return nil, galleries.ErrMediaNotFound
}

func (f *fakeRepo) ListMedia(ctx context.Context, galleryID string, kind galleries.MediaKind, filters galleries.MediaFilters, limit int) ([]galleries.MediaItem, error) {
	matched := f.filterMedia(galleryID, kind, filters)
	less := galleries.Less(filters.Sort)
	sort.SliceStable(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeRepo) CountMedia(ctx context.Context, galleryID string, kind galleries.MediaKind, filters galleries.MediaFilters) (int, error) {
	return len(f.filterMedia(galleryID, kind, filters)), nil
}

func (f *fakeRepo) filterMedia(galleryID string, kind galleries.MediaKind, filters galleries.MediaFilters) []galleries.MediaItem {
	var matched []galleries.MediaItem
	for _, item := range f.media[galleryID] {
		if item.Kind != kind {
			continue
		}
		if filters.Contributor != "" && item.ContributorName != filters.Contributor {
			continue
		}
		if filters.Search != "" {
			needle := strings.ToLower(filters.Search)
			if !strings.Contains(strings.ToLower(item.Caption), needle) &&
				!strings.Contains(strings.ToLower(item.ContributorName), needle) {
				continue
			}
		}
		matched = append(matched, item)
	}
	return matched
}

func (f *fakeRepo) ListAllMedia(ctx context.Context, galleryID string) ([]galleries.MediaItem, error) {
	return append([]galleries.MediaItem(nil), f.media[galleryID]...), nil
}

func (f *fakeRepo) DeleteAllMedia(ctx context.Context, galleryID string) (galleries.DeletedMedia, error) {
	var deleted galleries.DeletedMedia
	for _, item := range f.media[galleryID] {
		if item.Kind == galleries.KindVideo {
			deleted.Videos++
		} else {
			deleted.Photos++
		}
		deleted.BytesFreed += item.SizeBytes
	}
	delete(f.media, galleryID)
	return deleted, nil
}

func (f *fakeRepo) GetContributor(ctx context.Context, galleryID, email string) (*galleries.ContributorAggregate, error) {
	agg, ok := f.contributors[galleryID+"/"+email]
	if !ok {
		return nil, galleries.ErrNotFound
	}
	copied := *agg
	return &copied, nil
}

var _ galleries.Repository = (*fakeRepo)(nil)

// fakeBlobs is an in-memory blob.Storage. Keys in failKeys make Put fail,
// which tests use to force thumbnail degradation.
type fakeBlobs struct {
	objects    map[string][]byte
	types      map[string]string
	failKeys   map[string]bool
	failThumbs bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		objects:  make(map[string][]byte),
		types:    make(map[string]string),
		failKeys: make(map[string]bool),
	}
}

func (f *fakeBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if f.failKeys[key] || (f.failThumbs && strings.HasSuffix(key, "_thumb")) {
		return fmt.Errorf("simulated storage failure for %s", key)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeBlobs) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("simulated missing object %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), f.types[key], nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	delete(f.types, key)
	return nil
}

func (f *fakeBlobs) Health(ctx context.Context) error { return nil }

// multipartUpload builds a media upload body with the given form fields and
// an optional thumbnail part.
func multipartUpload(t *testing.T, fields map[string]string, fileContent []byte, withThumbnail bool) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}

	part, err := writer.CreateFormFile("file", "photo.jpg")
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := part.Write(fileContent); err != nil {
		t.Fatalf("write file part: %v", err)
	}

	if withThumbnail {
		thumb, err := writer.CreateFormFile("thumbnail", "photo_thumb.jpg")
		if err != nil {
			t.Fatalf("create thumbnail part: %v", err)
		}
		if _, err := thumb.Write([]byte("thumb-bytes")); err != nil {
			t.Fatalf("write thumbnail part: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func newMediaHandler(repo *fakeRepo, blobs *fakeBlobs) *MediaHandler {
	ingest := galleries.NewIngestService(repo, blobs, nil, nil, zerolog.Nop())
	query := galleries.NewQueryService(repo)
	return NewMediaHandler(ingest, query, blobs, audit.NewLogger(zerolog.Nop()), "http://localhost:8080", 25<<20, 512<<20)
}

func doUpload(t *testing.T, handler *MediaHandler, galleryID string, fields map[string]string, withThumbnail bool) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartUpload(t, fields, []byte("jpeg-bytes"), withThumbnail)
	req := httptest.NewRequest("POST", "/api/v1/galleries/"+galleryID+"/media", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("id", galleryID)

	rec := httptest.NewRecorder()
	handler.Upload(rec, req)
	return rec
}

func defaultUploadFields() map[string]string {
	return map[string]string{
		"contributorName":  "Alice",
		"contributorEmail": "alice@example.com",
		"mediaKind":        "photo",
		"caption":          "First dance",
	}
}
