package galleries

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"
)

func seedMergedGallery(t *testing.T, repo *MockRepository) *Gallery {
	t.Helper()

	gallery := testGallery(TierStandard)
	repo.seedGallery(gallery)

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	// 18 photos and 7 videos interleaved in time: 25 items total.
	for i := 0; i < 25; i++ {
		kind := KindPhoto
		if i%4 == 0 {
			kind = KindVideo
		}
		repo.seedMedia(MediaItem{
			ID:              fmt.Sprintf("01ARZ3NDEKTSV4RRFFQ69G5F%02d", i),
			GalleryID:       gallery.ID,
			Kind:            kind,
			ContributorName: fmt.Sprintf("guest-%d", i%5),
			Caption:         fmt.Sprintf("moment %d", i),
			FileRef:         fmt.Sprintf("galleries/g1/m%d", i),
			SizeBytes:       100,
			Approved:        true,
			UploadedAt:      base.Add(time.Duration(i) * time.Minute),
		})
	}
	return gallery
}

func TestQueryMergedPagesCoverEverything(t *testing.T) {
	repo := NewMockRepository()
	gallery := seedMergedGallery(t, repo)
	svc := NewQueryService(repo)

	seen := make(map[string]bool)
	var prev *MediaItem
	for page := 0; page < 3; page++ {
		result, err := svc.Query(context.Background(), gallery.ID, Query{Page: page, Limit: 10, Sort: SortNewest, Kind: KindFilterAll})
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if result.Pagination.Total != 25 {
			t.Errorf("page %d: total = %d, want 25", page, result.Pagination.Total)
		}
		wantLen := 10
		if page == 2 {
			wantLen = 5
		}
		if len(result.Items) != wantLen {
			t.Fatalf("page %d: %d items, want %d", page, len(result.Items), wantLen)
		}
		wantMore := page < 2
		if result.Pagination.HasMore != wantMore {
			t.Errorf("page %d: hasMore = %v, want %v", page, result.Pagination.HasMore, wantMore)
		}

		for i := range result.Items {
			item := result.Items[i]
			if seen[item.ID] {
				t.Errorf("item %s appeared twice across pages", item.ID)
			}
			seen[item.ID] = true
			if prev != nil && item.UploadedAt.After(prev.UploadedAt) {
				t.Errorf("newest ordering violated across page boundary: %s after %s", item.ID, prev.ID)
			}
			prev = &result.Items[i]
		}
	}
	if len(seen) != 25 {
		t.Errorf("pages covered %d items, want all 25", len(seen))
	}
}

func TestQueryKindFilter(t *testing.T) {
	repo := NewMockRepository()
	gallery := seedMergedGallery(t, repo)
	svc := NewQueryService(repo)

	result, err := svc.Query(context.Background(), gallery.ID, Query{Limit: 100, Sort: SortNewest, Kind: KindFilterVideos})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.Pagination.Total != 7 {
		t.Errorf("video total = %d, want 7", result.Pagination.Total)
	}
	for _, item := range result.Items {
		if item.Kind != KindVideo {
			t.Errorf("photo leaked into videos-only page: %s", item.ID)
		}
	}

	result, err = svc.Query(context.Background(), gallery.ID, Query{Limit: 100, Sort: SortNewest, Kind: KindFilterPhotos})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.Pagination.Total != 18 {
		t.Errorf("photo total = %d, want 18", result.Pagination.Total)
	}
}

func TestQueryContributorSortGroups(t *testing.T) {
	repo := NewMockRepository()
	gallery := seedMergedGallery(t, repo)
	svc := NewQueryService(repo)

	result, err := svc.Query(context.Background(), gallery.ID, Query{Limit: 100, Sort: SortContributor, Kind: KindFilterAll})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for i := 1; i < len(result.Items); i++ {
		if result.Items[i].ContributorName < result.Items[i-1].ContributorName {
			t.Fatalf("contributor order violated at %d: %q before %q",
				i, result.Items[i-1].ContributorName, result.Items[i].ContributorName)
		}
	}
}

func TestQuerySearchFilter(t *testing.T) {
	repo := NewMockRepository()
	gallery := seedMergedGallery(t, repo)
	svc := NewQueryService(repo)

	result, err := svc.Query(context.Background(), gallery.ID, Query{Limit: 100, Sort: SortNewest, Kind: KindFilterAll, Search: "moment 1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	// "moment 1" plus "moment 10".."moment 19".
	if result.Pagination.Total != 11 {
		t.Errorf("search total = %d, want 11", result.Pagination.Total)
	}
}

func TestQueryUnknownGallery(t *testing.T) {
	svc := NewQueryService(NewMockRepository())
	_, err := svc.Query(context.Background(), "33333333-3333-3333-3333-333333333333", Query{Limit: 10})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryEmptyGallery(t *testing.T) {
	repo := NewMockRepository()
	gallery := testGallery(TierFree)
	repo.seedGallery(gallery)
	svc := NewQueryService(repo)

	result, err := svc.Query(context.Background(), gallery.ID, Query{Limit: 20, Sort: SortNewest, Kind: KindFilterAll})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.Items) != 0 || result.Pagination.Total != 0 || result.Pagination.HasMore {
		t.Errorf("unexpected page for empty gallery: %+v", result.Pagination)
	}
}

func TestParseQueryDefaults(t *testing.T) {
	q, err := ParseQuery(url.Values{})
	if err != nil {
		t.Fatalf("ParseQuery failed: %v", err)
	}
	if q.Page != 0 || q.Limit != 20 || q.Sort != SortNewest || q.Kind != KindFilterAll {
		t.Errorf("unexpected defaults: %+v", q)
	}
}

func TestParseQueryValidation(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		field  string
	}{
		{"negative page", url.Values{"page": {"-1"}}, "page"},
		{"non-numeric page", url.Values{"page": {"abc"}}, "page"},
		{"zero limit", url.Values{"limit": {"0"}}, "limit"},
		{"limit above cap", url.Values{"limit": {"101"}}, "limit"},
		{"bad sort", url.Values{"sortBy": {"size"}}, "sortBy"},
		{"bad type", url.Values{"type": {"gifs"}}, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.values)
			var ferr FilterError
			if !errors.As(err, &ferr) {
				t.Fatalf("expected FilterError, got %v", err)
			}
			if ferr.Field != tt.field {
				t.Errorf("field = %q, want %q", ferr.Field, tt.field)
			}
		})
	}
}

func TestMergeSortedInterleaves(t *testing.T) {
	at := func(min int) time.Time { return time.Date(2026, 6, 1, 12, min, 0, 0, time.UTC) }
	a := []MediaItem{{ID: "a5", UploadedAt: at(5)}, {ID: "a3", UploadedAt: at(3)}, {ID: "a1", UploadedAt: at(1)}}
	b := []MediaItem{{ID: "b4", UploadedAt: at(4)}, {ID: "b2", UploadedAt: at(2)}}

	merged := mergeSorted(a, b, Less(SortNewest))
	want := []string{"a5", "b4", "a3", "b2", "a1"}
	if len(merged) != len(want) {
		t.Fatalf("merged %d items, want %d", len(merged), len(want))
	}
	for i, id := range want {
		if merged[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, merged[i].ID, id)
		}
	}
}
