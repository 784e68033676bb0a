package galleries

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Query struct {
	Page        int
	Limit       int
	Search      string
	Contributor string
	Sort        SortOrder
	Kind        KindFilter
}

type PageInfo struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	HasMore    bool `json:"hasMore"`
	TotalPages int  `json:"totalPages"`
}

type QueryResult struct {
	Items      []MediaItem
	Pagination PageInfo
}

// ParseQuery validates gallery read parameters from a query string.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{Limit: defaultPageLimit, Sort: SortNewest, Kind: KindFilterAll}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 0 {
			return q, FilterError{Field: "page", Message: "must be a non-negative number"}
		}
		q.Page = page
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, FilterError{Field: "limit", Message: "must be a number"}
		}
		if limit < 1 || limit > maxPageLimit {
			return q, FilterError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxPageLimit)}
		}
		q.Limit = limit
	}

	q.Search = strings.TrimSpace(values.Get("search"))
	q.Contributor = strings.TrimSpace(values.Get("contributor"))

	switch sort := strings.ToLower(strings.TrimSpace(values.Get("sortBy"))); sort {
	case "":
		// keep default
	case string(SortNewest), string(SortOldest), string(SortContributor):
		q.Sort = SortOrder(sort)
	default:
		return q, FilterError{Field: "sortBy", Message: "must be newest, oldest, or contributor"}
	}

	switch kind := strings.ToLower(strings.TrimSpace(values.Get("type"))); kind {
	case "":
		// keep default
	case string(KindFilterAll), string(KindFilterPhotos), string(KindFilterVideos):
		q.Kind = KindFilter(kind)
	default:
		return q, FilterError{Field: "type", Message: "must be all, photos, or videos"}
	}

	return q, nil
}

// QueryService serves paginated, filterable gallery reads over the two media
// kinds. Photos and videos are fetched and counted independently, then merged.
type QueryService struct {
	repo Repository
}

func NewQueryService(repo Repository) *QueryService {
	return &QueryService{repo: repo}
}

// GetMedia returns a single item of a gallery.
func (s *QueryService) GetMedia(ctx context.Context, galleryID, mediaID string) (*MediaItem, error) {
	return s.repo.GetMedia(ctx, galleryID, mediaID)
}

// Query returns one page of a gallery. Offset pagination is not strictly
// consistent under concurrent inserts: a page boundary can shift between a
// client's page-0 and page-1 fetch. Accepted; the realtime stream plus id
// dedup covers the common case.
func (s *QueryService) Query(ctx context.Context, galleryID string, q Query) (QueryResult, error) {
	if _, err := s.repo.GetGallery(ctx, galleryID); err != nil {
		return QueryResult{}, err
	}

	filters := MediaFilters{Search: q.Search, Contributor: q.Contributor, Sort: q.Sort}

	// Each source only ever contributes items inside the first page+1 windows,
	// so fetching that many per kind is enough to slice the merged window.
	fetchLimit := (q.Page + 1) * q.Limit

	var photos, videos []MediaItem
	var total int
	var err error

	if q.Kind != KindFilterVideos {
		photos, err = s.repo.ListMedia(ctx, galleryID, KindPhoto, filters, fetchLimit)
		if err != nil {
			return QueryResult{}, err
		}
		count, err := s.repo.CountMedia(ctx, galleryID, KindPhoto, filters)
		if err != nil {
			return QueryResult{}, err
		}
		total += count
	}
	if q.Kind != KindFilterPhotos {
		videos, err = s.repo.ListMedia(ctx, galleryID, KindVideo, filters, fetchLimit)
		if err != nil {
			return QueryResult{}, err
		}
		count, err := s.repo.CountMedia(ctx, galleryID, KindVideo, filters)
		if err != nil {
			return QueryResult{}, err
		}
		total += count
	}

	merged := mergeSorted(photos, videos, Less(q.Sort))

	start := q.Page * q.Limit
	end := start + q.Limit
	if start > len(merged) {
		start = len(merged)
	}
	if end > len(merged) {
		end = len(merged)
	}
	items := merged[start:end]

	totalPages := 0
	if q.Limit > 0 {
		totalPages = (total + q.Limit - 1) / q.Limit
	}

	return QueryResult{
		Items: items,
		Pagination: PageInfo{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			HasMore:    (q.Page+1)*q.Limit < total,
			TotalPages: totalPages,
		},
	}, nil
}

// Less returns the comparator for a sort order. Ties break on id so the order
// is total: ULIDs embed the upload timestamp, which keeps ties stable.
func Less(sort SortOrder) func(a, b MediaItem) bool {
	switch sort {
	case SortOldest:
		return func(a, b MediaItem) bool {
			if !a.UploadedAt.Equal(b.UploadedAt) {
				return a.UploadedAt.Before(b.UploadedAt)
			}
			return a.ID < b.ID
		}
	case SortContributor:
		return func(a, b MediaItem) bool {
			an, bn := strings.ToLower(a.ContributorName), strings.ToLower(b.ContributorName)
			if an != bn {
				return an < bn
			}
			return a.ID < b.ID
		}
	default: // newest
		return func(a, b MediaItem) bool {
			if !a.UploadedAt.Equal(b.UploadedAt) {
				return a.UploadedAt.After(b.UploadedAt)
			}
			return a.ID > b.ID
		}
	}
}

// mergeSorted merges two lists already ordered by less into one ordered list.
// A merge step, not a re-sort: large galleries stay O(n).
func mergeSorted(a, b []MediaItem, less func(x, y MediaItem) bool) []MediaItem {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]MediaItem, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(b[j], a[i]) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
