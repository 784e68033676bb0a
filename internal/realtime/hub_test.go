package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/domain/galleries"
)

type fakeSource struct {
	gallery galleries.Gallery
	items   []galleries.MediaItem
}

func (f *fakeSource) GetGallery(ctx context.Context, id string) (*galleries.Gallery, error) {
	if id != f.gallery.ID {
		return nil, galleries.ErrNotFound
	}
	copied := f.gallery
	return &copied, nil
}

func (f *fakeSource) ListAllMedia(ctx context.Context, galleryID string) ([]galleries.MediaItem, error) {
	return append([]galleries.MediaItem(nil), f.items...), nil
}

func newTestHub(t *testing.T) (*Hub, *fakeSource) {
	t.Helper()
	source := &fakeSource{
		gallery: galleries.Gallery{
			ID:          "66666666-6666-6666-6666-666666666666",
			Status:      galleries.StatusActive,
			TotalPhotos: 2,
		},
		items: []galleries.MediaItem{photoAt("a", 1), photoAt("b", 2)},
	}
	hub := NewHub(source, zerolog.Nop())
	t.Cleanup(hub.Shutdown)
	return hub, source
}

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestSubscribeReceivesSnapshotFirst(t *testing.T) {
	hub, source := newTestHub(t)

	sub, err := hub.Subscribe(context.Background(), source.gallery.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	event := recvEvent(t, sub)
	if event.Type != EventSnapshot {
		t.Fatalf("first event = %s, want %s", event.Type, EventSnapshot)
	}
	if len(event.Items) != 2 {
		t.Errorf("snapshot has %d items, want 2", len(event.Items))
	}
	if event.Stats == nil || event.Stats.TotalPhotos != 2 {
		t.Errorf("snapshot stats = %+v", event.Stats)
	}
}

func TestSubscribeUnknownGallery(t *testing.T) {
	hub, _ := newTestHub(t)

	_, err := hub.Subscribe(context.Background(), "77777777-7777-7777-7777-777777777777")
	if err == nil {
		t.Fatal("expected error for unknown gallery")
	}
}

func TestPublishReachesAllSubscribersInOrder(t *testing.T) {
	hub, source := newTestHub(t)

	first, err := hub.Subscribe(context.Background(), source.gallery.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer first.Close()
	second, err := hub.Subscribe(context.Background(), source.gallery.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer second.Close()

	recvEvent(t, first)  // snapshot
	recvEvent(t, second) // snapshot

	hub.Publish(source.gallery.ID, galleries.Delta{Type: galleries.DeltaInsert, Item: photoAt("c", 3)})
	hub.Publish(source.gallery.ID, galleries.Delta{Type: galleries.DeltaInsert, Item: photoAt("d", 4)})

	for _, sub := range []*Subscriber{first, second} {
		got := recvEvent(t, sub)
		if got.Type != EventInsert || got.Item.ID != "c" {
			t.Errorf("first delta = %s %v", got.Type, got.Item)
		}
		got = recvEvent(t, sub)
		if got.Type != EventInsert || got.Item.ID != "d" {
			t.Errorf("second delta = %s %v", got.Type, got.Item)
		}
	}
}

func TestPublishWithoutViewersIsDiscarded(t *testing.T) {
	hub, source := newTestHub(t)

	// Nobody watching: must not block or panic.
	hub.Publish(source.gallery.ID, galleries.Delta{Type: galleries.DeltaInsert, Item: photoAt("c", 3)})

	// A later subscriber gets state from the source, not the dropped delta.
	sub, err := hub.Subscribe(context.Background(), source.gallery.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	event := recvEvent(t, sub)
	if len(event.Items) != 2 {
		t.Errorf("snapshot has %d items, want the source's 2", len(event.Items))
	}
}

func TestLateSubscriberSnapshotIncludesEarlierDeltas(t *testing.T) {
	hub, source := newTestHub(t)

	first, err := hub.Subscribe(context.Background(), source.gallery.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer first.Close()
	recvEvent(t, first) // snapshot

	hub.Publish(source.gallery.ID, galleries.Delta{Type: galleries.DeltaInsert, Item: photoAt("c", 3)})
	recvEvent(t, first) // wait until the room applied it

	late, err := hub.Subscribe(context.Background(), source.gallery.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer late.Close()

	event := recvEvent(t, late)
	if event.Type != EventSnapshot {
		t.Fatalf("first event = %s, want snapshot", event.Type)
	}
	if len(event.Items) != 3 {
		t.Errorf("late snapshot has %d items, want 3", len(event.Items))
	}
	if event.Items[0].ID != "c" {
		t.Errorf("late snapshot head = %s, want c", event.Items[0].ID)
	}
}

func TestUnsubscribeTearsDownRoom(t *testing.T) {
	hub, source := newTestHub(t)

	sub, err := hub.Subscribe(context.Background(), source.gallery.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if got := hub.SubscriberCount(source.gallery.ID); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	sub.Close()
	if got := hub.SubscriberCount(source.gallery.ID); got != 0 {
		t.Errorf("SubscriberCount = %d after close, want 0", got)
	}

	// Closing twice is safe.
	sub.Close()

	// The events channel drains closed.
	select {
	case _, ok := <-sub.Events():
		if ok {
			// The seeded snapshot may still be buffered; the channel must
			// close right after.
			if _, ok := <-sub.Events(); ok {
				t.Error("events channel still open after close")
			}
		}
	case <-time.After(time.Second):
		t.Error("events channel not closed")
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub, source := newTestHub(t)

	if _, err := hub.Subscribe(context.Background(), source.gallery.ID); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Never drain: overflow the subscriber queue (snapshot already occupies
	// one slot).
	for i := 0; i < subscriberQueueSize+8; i++ {
		hub.Publish(source.gallery.ID, galleries.Delta{Type: galleries.DeltaInsert, Item: photoAt(string(rune('e'+i)), 10+i)})
	}

	deadline := time.After(2 * time.Second)
	for hub.SubscriberCount(source.gallery.ID) != 0 {
		select {
		case <-deadline:
			t.Fatal("slow subscriber was not dropped")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// A viewer arriving while the last existing viewer disconnects must land on a
// live room: counted, and reachable by later publishes.
func TestSubscribeDuringTeardownStaysLive(t *testing.T) {
	hub, source := newTestHub(t)

	for i := 0; i < 200; i++ {
		first, err := hub.Subscribe(context.Background(), source.gallery.ID)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		arrived := make(chan *Subscriber, 1)
		go func() {
			second, err := hub.Subscribe(context.Background(), source.gallery.ID)
			if err != nil {
				t.Errorf("racing Subscribe failed: %v", err)
			}
			arrived <- second
		}()
		first.Close()

		second := <-arrived
		if second == nil {
			t.Fatal("racing Subscribe returned no subscriber")
		}
		if got := hub.SubscriberCount(source.gallery.ID); got != 1 {
			t.Fatalf("SubscriberCount = %d with one live viewer, want 1", got)
		}

		recvEvent(t, second) // snapshot
		hub.Publish(source.gallery.ID, galleries.Delta{Type: galleries.DeltaInsert, Item: photoAt("c", 3)})
		got := recvEvent(t, second)
		if got.Type != EventInsert || got.Item.ID != "c" {
			t.Fatalf("published delta did not reach the racing viewer: %s %v", got.Type, got.Item)
		}
		second.Close()
	}
}
