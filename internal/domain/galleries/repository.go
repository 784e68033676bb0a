package galleries

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("gallery not found")

var ErrMediaNotFound = errors.New("media item not found")

// ErrQuotaExceeded is returned by the repository when a guarded counter update
// affects no rows, i.e. a concurrent upload consumed the last quota slot between
// the admission check and the insert.
var ErrQuotaExceeded = errors.New("gallery quota exceeded")

// ErrContributorQuotaExceeded is the per-contributor variant: the guarded
// contributor upsert lost the race against another upload from the same email.
var ErrContributorQuotaExceeded = errors.New("contributor quota exceeded")

type Tier string

const (
	TierFree     Tier = "free"
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierPro      Tier = "pro"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusArchived Status = "archived"
)

type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// Gallery is a single host-created event gallery with its own quota, tier, and
// expiry. The counter columns are the source of truth for quota decisions and
// are updated in the same transaction as the media insert.
type Gallery struct {
	ID                string
	HostID            string
	HostEmail         string
	Name              string
	Tier              Tier
	Status            Status
	TotalPhotos       int
	TotalVideos       int
	TotalContributors int
	MaxPhotos         int
	MaxPhotosPerUser  int
	MaxVideos         int
	HasVideoAddon     bool
	StorageDays       int
	CreatedAt         time.Time
	ExpiresAt         time.Time
	UpdatedAt         time.Time
}

// MediaItem is one uploaded photo or video belonging to exactly one gallery.
// IDs are ULIDs so realtime dedup keys sort by creation time.
type MediaItem struct {
	ID               string
	GalleryID        string
	Kind             MediaKind
	ContributorName  string
	ContributorEmail string
	FileRef          string
	ThumbnailRef     string
	SizeBytes        int64
	MimeType         string
	Caption          string
	DurationSeconds  int
	Approved         bool
	Degraded         bool
	UploadedAt       time.Time
}

// ContributorAggregate tracks per-contributor upload counts for one gallery,
// keyed by email. Anonymous contributors have no aggregate and therefore no
// per-user limit.
type ContributorAggregate struct {
	GalleryID        string
	ContributorEmail string
	PhotoCount       int
	VideoCount       int
}

type GalleryCreateParams struct {
	ID        string
	HostID    string
	HostEmail string
	Name      string
	Tier      Tier
	Limits    TierLimits
	ExpiresAt time.Time
}

type PlanUpdateParams struct {
	GalleryID string
	Tier      Tier
	Limits    TierLimits
	ExpiresAt time.Time
	Status    Status
}

type MediaCreateParams struct {
	ID               string
	GalleryID        string
	Kind             MediaKind
	ContributorName  string
	ContributorEmail string
	FileRef          string
	ThumbnailRef     string
	SizeBytes        int64
	MimeType         string
	Caption          string
	DurationSeconds  int
	Degraded         bool
}

type SortOrder string

const (
	SortNewest      SortOrder = "newest"
	SortOldest      SortOrder = "oldest"
	SortContributor SortOrder = "contributor"
)

type KindFilter string

const (
	KindFilterAll    KindFilter = "all"
	KindFilterPhotos KindFilter = "photos"
	KindFilterVideos KindFilter = "videos"
)

// MediaFilters narrow a per-kind fetch. Search is a substring match across
// caption and contributor name; Contributor is an equality match.
type MediaFilters struct {
	Search      string
	Contributor string
	Sort        SortOrder
}

type DeletedMedia struct {
	Photos     int
	Videos     int
	BytesFreed int64
}

type Repository interface {
	CreateGallery(ctx context.Context, params GalleryCreateParams) (*Gallery, error)
	GetGallery(ctx context.Context, id string) (*Gallery, error)

	// TransitionStatus updates the gallery status only when the current status
	// matches from, reporting whether a row changed. This is the idempotence
	// guard for the sweeper and for archive/restore.
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)
	UpdatePlan(ctx context.Context, params PlanUpdateParams) (*Gallery, error)

	ListExpired(ctx context.Context, now time.Time) ([]Gallery, error)
	ListExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]Gallery, error)

	// InsertMedia persists the item and increments the gallery and contributor
	// counters in one transaction. Returns ErrQuotaExceeded when a counter
	// guard loses the race.
	InsertMedia(ctx context.Context, params MediaCreateParams) (*MediaItem, error)
	GetMedia(ctx context.Context, galleryID, mediaID string) (*MediaItem, error)
	DeleteMedia(ctx context.Context, galleryID, mediaID string) (*MediaItem, error)

	ListMedia(ctx context.Context, galleryID string, kind MediaKind, filters MediaFilters, limit int) ([]MediaItem, error)
	CountMedia(ctx context.Context, galleryID string, kind MediaKind, filters MediaFilters) (int, error)

	// ListAllMedia returns every item of a gallery regardless of approval, for
	// sweep deletion.
	ListAllMedia(ctx context.Context, galleryID string) ([]MediaItem, error)
	DeleteAllMedia(ctx context.Context, galleryID string) (DeletedMedia, error)

	GetContributor(ctx context.Context, galleryID, email string) (*ContributorAggregate, error)
}
