package galleries

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockRepository implements Repository for testing, mirroring the counter
// semantics of the postgres implementation.
type MockRepository struct {
	mu sync.Mutex

	galleries    map[string]*Gallery
	media        map[string][]MediaItem // galleryID -> items
	contributors map[string]*ContributorAggregate // galleryID+"|"+email

	// Behavior controls
	failGetGallery       bool
	failInsertMedia      bool
	failContributorQuota bool
	failListAllMedia     map[string]bool // per gallery
	failDeleteAllMedia   map[string]bool
	failTransition       map[string]bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		galleries:          make(map[string]*Gallery),
		media:              make(map[string][]MediaItem),
		contributors:       make(map[string]*ContributorAggregate),
		failListAllMedia:   make(map[string]bool),
		failDeleteAllMedia: make(map[string]bool),
		failTransition:     make(map[string]bool),
	}
}

func (m *MockRepository) seedGallery(g *Gallery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *g
	m.galleries[g.ID] = &copied
}

func (m *MockRepository) seedMedia(item MediaItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media[item.GalleryID] = append(m.media[item.GalleryID], item)
}

func (m *MockRepository) gallerySnapshot(id string) Gallery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.galleries[id]
}

func (m *MockRepository) CreateGallery(ctx context.Context, params GalleryCreateParams) (*Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	gallery := &Gallery{
		ID:               params.ID,
		HostID:           params.HostID,
		HostEmail:        params.HostEmail,
		Name:             params.Name,
		Tier:             params.Tier,
		Status:           StatusActive,
		MaxPhotos:        params.Limits.MaxPhotos,
		MaxPhotosPerUser: params.Limits.MaxPhotosPerUser,
		MaxVideos:        params.Limits.MaxVideos,
		HasVideoAddon:    params.Limits.HasVideoAddon,
		StorageDays:      params.Limits.StorageDays,
		CreatedAt:        now,
		ExpiresAt:        params.ExpiresAt,
		UpdatedAt:        now,
	}
	m.galleries[gallery.ID] = gallery
	copied := *gallery
	return &copied, nil
}

func (m *MockRepository) GetGallery(ctx context.Context, id string) (*Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failGetGallery {
		return nil, errors.New("mock get gallery error")
	}
	gallery, ok := m.galleries[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *gallery
	return &copied, nil
}

func (m *MockRepository) TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failTransition[id] {
		return false, errors.New("mock transition error")
	}
	gallery, ok := m.galleries[id]
	if !ok || gallery.Status != from {
		return false, nil
	}
	gallery.Status = to
	gallery.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockRepository) UpdatePlan(ctx context.Context, params PlanUpdateParams) (*Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gallery, ok := m.galleries[params.GalleryID]
	if !ok {
		return nil, ErrNotFound
	}
	gallery.Tier = params.Tier
	gallery.MaxPhotos = params.Limits.MaxPhotos
	gallery.MaxPhotosPerUser = params.Limits.MaxPhotosPerUser
	gallery.MaxVideos = params.Limits.MaxVideos
	gallery.HasVideoAddon = params.Limits.HasVideoAddon
	gallery.StorageDays = params.Limits.StorageDays
	gallery.ExpiresAt = params.ExpiresAt
	gallery.Status = params.Status
	gallery.UpdatedAt = time.Now()
	copied := *gallery
	return &copied, nil
}

func (m *MockRepository) ListExpired(ctx context.Context, now time.Time) ([]Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Gallery
	for _, gallery := range m.galleries {
		if gallery.Status == StatusActive && gallery.ExpiresAt.Before(now) {
			out = append(out, *gallery)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockRepository) ListExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]Gallery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(within)
	var out []Gallery
	for _, gallery := range m.galleries {
		if gallery.Status == StatusActive && gallery.ExpiresAt.After(now) && gallery.ExpiresAt.Before(cutoff) {
			out = append(out, *gallery)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockRepository) InsertMedia(ctx context.Context, params MediaCreateParams) (*MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInsertMedia {
		return nil, errors.New("mock insert error")
	}
	gallery, ok := m.galleries[params.GalleryID]
	if !ok {
		return nil, ErrNotFound
	}

	// Counter guards mirror the SQL WHERE clauses. The contributor guard is
	// checked first so a rejection leaves every counter untouched, like the
	// transaction rollback in the SQL store.
	if params.ContributorEmail != "" && params.Kind != KindVideo {
		if m.failContributorQuota {
			return nil, ErrContributorQuotaExceeded
		}
		key := params.GalleryID + "|" + params.ContributorEmail
		if agg, ok := m.contributors[key]; ok && agg.PhotoCount >= gallery.MaxPhotosPerUser {
			return nil, ErrContributorQuotaExceeded
		}
	}
	switch params.Kind {
	case KindVideo:
		if gallery.TotalVideos >= gallery.MaxVideos {
			return nil, ErrQuotaExceeded
		}
		gallery.TotalVideos++
	default:
		if gallery.TotalPhotos >= gallery.MaxPhotos {
			return nil, ErrQuotaExceeded
		}
		gallery.TotalPhotos++
	}

	if params.ContributorEmail != "" {
		key := params.GalleryID + "|" + params.ContributorEmail
		agg, ok := m.contributors[key]
		if !ok {
			agg = &ContributorAggregate{GalleryID: params.GalleryID, ContributorEmail: params.ContributorEmail}
			m.contributors[key] = agg
			gallery.TotalContributors++
		}
		if params.Kind == KindVideo {
			agg.VideoCount++
		} else {
			agg.PhotoCount++
		}
	}

	item := MediaItem{
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
	m.media[params.GalleryID] = append(m.media[params.GalleryID], item)
	return &item, nil
}

func (m *MockRepository) GetMedia(ctx context.Context, galleryID, mediaID string) (*MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.media[galleryID] {
		if item.ID == mediaID {
			copied := item
			return &copied, nil
		}
	}
	return nil, ErrMediaNotFound
}

func (m *MockRepository) DeleteMedia(ctx context.Context, galleryID, mediaID string) (*MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.media[galleryID]
	for i, item := range items {
		if item.ID != mediaID {
			continue
		}
		m.media[galleryID] = append(items[:i], items[i+1:]...)
		if gallery, ok := m.galleries[galleryID]; ok {
			if item.Kind == KindVideo && gallery.TotalVideos > 0 {
				gallery.TotalVideos--
			} else if item.Kind == KindPhoto && gallery.TotalPhotos > 0 {
				gallery.TotalPhotos--
			}
		}
		copied := item
		return &copied, nil
	}
	return nil, ErrMediaNotFound
}

func (m *MockRepository) ListMedia(ctx context.Context, galleryID string, kind MediaKind, filters MediaFilters, limit int) ([]MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.filterLocked(galleryID, kind, filters)
	less := Less(filters.Sort)
	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MockRepository) CountMedia(ctx context.Context, galleryID string, kind MediaKind, filters MediaFilters) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filterLocked(galleryID, kind, filters)), nil
}

func (m *MockRepository) filterLocked(galleryID string, kind MediaKind, filters MediaFilters) []MediaItem {
	var out []MediaItem
	for _, item := range m.media[galleryID] {
		if item.Kind != kind || !item.Approved {
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
		out = append(out, item)
	}
	return out
}

func (m *MockRepository) ListAllMedia(ctx context.Context, galleryID string) ([]MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failListAllMedia[galleryID] {
		return nil, errors.New("mock list all error")
	}
	return append([]MediaItem(nil), m.media[galleryID]...), nil
}

func (m *MockRepository) DeleteAllMedia(ctx context.Context, galleryID string) (DeletedMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failDeleteAllMedia[galleryID] {
		return DeletedMedia{}, errors.New("mock delete all error")
	}
	var deleted DeletedMedia
	for _, item := range m.media[galleryID] {
		if item.Kind == KindVideo {
			deleted.Videos++
		} else {
			deleted.Photos++
		}
		deleted.BytesFreed += item.SizeBytes
	}
	delete(m.media, galleryID)
	return deleted, nil
}

func (m *MockRepository) GetContributor(ctx context.Context, galleryID, email string) (*ContributorAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.contributors[galleryID+"|"+email]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *agg
	return &copied, nil
}
