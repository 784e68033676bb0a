package galleries

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func seedExpiredGallery(repo *MockRepository, id string, photos, videos int) *Gallery {
	gallery := testGallery(TierStandard)
	gallery.ID = id
	gallery.ExpiresAt = time.Now().Add(-time.Hour)
	repo.seedGallery(gallery)

	for i := 0; i < photos; i++ {
		repo.seedMedia(MediaItem{
			ID:        id + "-photo-" + string(rune('a'+i)),
			GalleryID: id,
			Kind:      KindPhoto,
			FileRef:   "galleries/" + id + "/p" + string(rune('a'+i)),
			SizeBytes: 100,
			Approved:  true,
		})
	}
	for i := 0; i < videos; i++ {
		repo.seedMedia(MediaItem{
			ID:           id + "-video-" + string(rune('a'+i)),
			GalleryID:    id,
			Kind:         KindVideo,
			FileRef:      "galleries/" + id + "/v" + string(rune('a'+i)),
			ThumbnailRef: "galleries/" + id + "/v" + string(rune('a'+i)) + "_thumb",
			SizeBytes:    1000,
			Approved:     true,
		})
	}
	return gallery
}

func TestSweepExpiresAndDeletesContent(t *testing.T) {
	repo := NewMockRepository()
	seedExpiredGallery(repo, "55555555-5555-5555-5555-555555555551", 5, 2)
	blobs := &fakeBlobStore{}
	sweeper := NewSweeper(repo, blobs, zerolog.Nop(), SweeperOptions{DeleteContent: true})

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.TotalExpired != 1 {
		t.Errorf("TotalExpired = %d, want 1", result.TotalExpired)
	}
	if result.TotalPhotosDeleted != 5 || result.TotalVideosDeleted != 2 {
		t.Errorf("deleted %d photos / %d videos, want 5 / 2", result.TotalPhotosDeleted, result.TotalVideosDeleted)
	}
	if result.TotalStorageFreed != 5*100+2*1000 {
		t.Errorf("TotalStorageFreed = %d, want 2500", result.TotalStorageFreed)
	}
	// 5 photo files + 2 video files + 2 video thumbnails.
	if got := len(blobs.deletedRefs()); got != 9 {
		t.Errorf("deleted %d blobs, want 9", got)
	}

	gallery := repo.gallerySnapshot("55555555-5555-5555-5555-555555555551")
	if gallery.Status != StatusExpired {
		t.Errorf("status = %s, want %s", gallery.Status, StatusExpired)
	}
}

func TestSweepWithoutContentDeletion(t *testing.T) {
	repo := NewMockRepository()
	gallery := seedExpiredGallery(repo, "55555555-5555-5555-5555-555555555552", 3, 0)
	blobs := &fakeBlobStore{}
	sweeper := NewSweeper(repo, blobs, zerolog.Nop(), SweeperOptions{DeleteContent: false})

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.TotalExpired != 1 || result.TotalPhotosDeleted != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(blobs.deletedRefs()) != 0 {
		t.Error("content deletion disabled but blobs were deleted")
	}
	items, _ := repo.ListAllMedia(context.Background(), gallery.ID)
	if len(items) != 3 {
		t.Errorf("media rows removed with content deletion disabled: %d left", len(items))
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	repo := NewMockRepository()
	seedExpiredGallery(repo, "55555555-5555-5555-5555-555555555553", 2, 0)
	sweeper := NewSweeper(repo, &fakeBlobStore{}, zerolog.Nop(), SweeperOptions{DeleteContent: true})

	first, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if first.TotalExpired != 1 {
		t.Fatalf("first sweep expired %d, want 1", first.TotalExpired)
	}

	second, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second.TotalExpired != 0 || second.TotalPhotosDeleted != 0 {
		t.Errorf("second sweep was not a no-op: %+v", second)
	}
}

func TestSweepSkipsActiveAndArchived(t *testing.T) {
	repo := NewMockRepository()
	active := testGallery(TierBasic)
	active.ID = "55555555-5555-5555-5555-555555555554"
	repo.seedGallery(active)

	archived := testGallery(TierBasic)
	archived.ID = "55555555-5555-5555-5555-555555555555"
	archived.Status = StatusArchived
	archived.ExpiresAt = time.Now().Add(-time.Hour)
	repo.seedGallery(archived)

	sweeper := NewSweeper(repo, &fakeBlobStore{}, zerolog.Nop(), SweeperOptions{DeleteContent: true})
	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.TotalExpired != 0 {
		t.Errorf("swept galleries that should have been skipped: %+v", result)
	}
	if repo.gallerySnapshot(archived.ID).Status != StatusArchived {
		t.Error("archived gallery status changed")
	}
}

func TestSweepIsolatesPerGalleryFailure(t *testing.T) {
	repo := NewMockRepository()
	seedExpiredGallery(repo, "55555555-5555-5555-5555-555555555556", 1, 0)
	seedExpiredGallery(repo, "55555555-5555-5555-5555-555555555557", 2, 1)
	repo.failDeleteAllMedia["55555555-5555-5555-5555-555555555556"] = true

	sweeper := NewSweeper(repo, &fakeBlobStore{}, zerolog.Nop(), SweeperOptions{DeleteContent: true, Workers: 1})
	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1", result.TotalFailed)
	}
	// The healthy gallery was still fully processed.
	if result.TotalExpired != 2 {
		t.Errorf("TotalExpired = %d, want 2", result.TotalExpired)
	}
	if result.TotalPhotosDeleted != 2 || result.TotalVideosDeleted != 1 {
		t.Errorf("healthy gallery not swept: %+v", result)
	}
}

func TestFindExpiringSoon(t *testing.T) {
	repo := NewMockRepository()

	soon := testGallery(TierBasic)
	soon.ID = "55555555-5555-5555-5555-555555555558"
	soon.ExpiresAt = time.Now().Add(12 * time.Hour)
	repo.seedGallery(soon)

	later := testGallery(TierBasic)
	later.ID = "55555555-5555-5555-5555-555555555559"
	later.ExpiresAt = time.Now().Add(5 * 24 * time.Hour)
	repo.seedGallery(later)

	sweeper := NewSweeper(repo, nil, zerolog.Nop(), SweeperOptions{})
	expiring, err := sweeper.FindExpiringSoon(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("FindExpiringSoon failed: %v", err)
	}
	if len(expiring) != 1 || expiring[0].ID != soon.ID {
		t.Errorf("expected only the 12h gallery, got %+v", expiring)
	}
}
