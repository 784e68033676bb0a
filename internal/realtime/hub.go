package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/domain/galleries"
)

// EventType discriminates the frames sent to gallery viewers.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventInsert   EventType = "insert"
	EventUpdate   EventType = "update"
	EventDelete   EventType = "delete"
	EventStats    EventType = "stats"
)

// Event is one frame on a viewer's stream. A subscriber always receives a
// snapshot frame first, then incremental frames in publish order.
type Event struct {
	Type  EventType             `json:"type"`
	Items []galleries.MediaItem `json:"items,omitempty"`
	Item  *galleries.MediaItem  `json:"item,omitempty"`
	Stats *Stats                `json:"stats,omitempty"`
}

// Snapshotter provides the authoritative state used to seed a room when its
// first viewer connects and to reconcile stats afterwards.
type Snapshotter interface {
	GetGallery(ctx context.Context, id string) (*galleries.Gallery, error)
	ListAllMedia(ctx context.Context, galleryID string) ([]galleries.MediaItem, error)
}

const (
	// roomQueueSize bounds the per-gallery delta backlog. Publish never
	// blocks the upload path; a full queue drops the delta and the next
	// reconcile pass heals the stats.
	roomQueueSize = 256

	// subscriberQueueSize bounds one viewer's unsent frames. A viewer that
	// cannot drain this many frames is dropped rather than stalling the room.
	subscriberQueueSize = 64

	snapshotLimit     = 100
	reconcileInterval = 30 * time.Second
)

// Hub fans confirmed media writes out to gallery viewers. One room per
// gallery with live viewers; each room dispatches from a single goroutine so
// every subscriber observes deltas in the order their writes were confirmed.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	source Snapshotter
	logger zerolog.Logger

	stopReconcile chan struct{}
	wg            sync.WaitGroup
}

func NewHub(source Snapshotter, logger zerolog.Logger) *Hub {
	h := &Hub{
		rooms:         make(map[string]*room),
		source:        source,
		logger:        logger,
		stopReconcile: make(chan struct{}),
	}
	h.wg.Add(1)
	go h.reconcileLoop()
	return h
}

type room struct {
	galleryID   string
	deltas      chan galleries.Delta
	subscribers map[*Subscriber]struct{}
	cache       *Cache
	mu          sync.Mutex
}

// Subscriber is one connected viewer's ordered event queue.
type Subscriber struct {
	galleryID string
	events    chan Event
	hub       *Hub
	closeOnce sync.Once
}

// Events is the stream the transport drains. It is closed when the subscriber
// is dropped or unsubscribed.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Close detaches the subscriber from its room.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

// Publish queues a delta for the gallery's viewers. Never blocks: with no
// room open (nobody watching) the delta is discarded, and with a full room
// queue it is dropped and counted on the logs.
func (h *Hub) Publish(galleryID string, delta galleries.Delta) {
	h.mu.Lock()
	r, ok := h.rooms[galleryID]
	if !ok {
		h.mu.Unlock()
		return
	}
	select {
	case r.deltas <- delta:
	default:
		h.logger.Warn().Str("gallery_id", galleryID).Msg("realtime queue full, delta dropped")
	}
	h.mu.Unlock()
}

// Subscribe attaches a viewer to a gallery and seeds it with a snapshot
// event. The room is created, and its cache loaded from the source, when the
// first viewer arrives.
func (h *Hub) Subscribe(ctx context.Context, galleryID string) (*Subscriber, error) {
	for {
		h.mu.Lock()
		r, ok := h.rooms[galleryID]
		h.mu.Unlock()

		if !ok {
			seeded, err := h.seedRoom(ctx, galleryID)
			if err != nil {
				return nil, err
			}
			r = seeded
		}

		sub := &Subscriber{
			galleryID: galleryID,
			events:    make(chan Event, subscriberQueueSize),
			hub:       h,
		}

		// Registration holds h.mu so teardown cannot interleave. If the last
		// viewer tore the room down between the lookup above and here, this
		// room is detached; start over and seed a fresh one.
		h.mu.Lock()
		if h.rooms[galleryID] != r {
			h.mu.Unlock()
			continue
		}
		r.mu.Lock()
		r.subscribers[sub] = struct{}{}
		items, stats := r.cache.Snapshot(snapshotLimit)
		r.mu.Unlock()
		h.mu.Unlock()

		// The snapshot goes through the same queue as deltas, so the subscriber
		// cannot see a delta that predates its snapshot.
		sub.events <- Event{Type: EventSnapshot, Items: items, Stats: &stats}
		return sub, nil
	}
}

// seedRoom loads authoritative state and starts the room's dispatch
// goroutine. Racing subscribers converge on whichever room lands first.
func (h *Hub) seedRoom(ctx context.Context, galleryID string) (*room, error) {
	gallery, err := h.source.GetGallery(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	items, err := h.source.ListAllMedia(ctx, galleryID)
	if err != nil {
		return nil, err
	}

	cache := NewCache()
	for _, item := range items {
		cache.Apply(galleries.Delta{Type: galleries.DeltaInsert, Item: item})
	}
	cache.Reconcile(Stats{
		TotalPhotos:       gallery.TotalPhotos,
		TotalVideos:       gallery.TotalVideos,
		TotalContributors: gallery.TotalContributors,
	})

	r := &room{
		galleryID:   galleryID,
		deltas:      make(chan galleries.Delta, roomQueueSize),
		subscribers: make(map[*Subscriber]struct{}),
		cache:       cache,
	}

	h.mu.Lock()
	if existing, ok := h.rooms[galleryID]; ok {
		h.mu.Unlock()
		return existing, nil
	}
	h.rooms[galleryID] = r
	h.mu.Unlock()

	h.wg.Add(1)
	go h.dispatch(r)
	return r, nil
}

// dispatch is the room's single consumer: it applies each delta to the cache
// and fans it out, preserving per-gallery ordering for every subscriber.
func (h *Hub) dispatch(r *room) {
	defer h.wg.Done()
	for delta := range r.deltas {
		event := Event{Type: EventType(delta.Type)}
		item := delta.Item
		event.Item = &item

		r.mu.Lock()
		r.cache.Apply(delta)
		var slow []*Subscriber
		for sub := range r.subscribers {
			select {
			case sub.events <- event:
			default:
				slow = append(slow, sub)
			}
		}
		r.mu.Unlock()

		for _, sub := range slow {
			h.logger.Warn().Str("gallery_id", r.galleryID).Msg("dropping slow realtime subscriber")
			h.unsubscribe(sub)
		}
	}
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	r, ok := h.rooms[sub.galleryID]
	if !ok {
		h.mu.Unlock()
		sub.closeOnce.Do(func() { close(sub.events) })
		return
	}

	r.mu.Lock()
	if _, present := r.subscribers[sub]; present {
		delete(r.subscribers, sub)
	}
	empty := len(r.subscribers) == 0
	r.mu.Unlock()

	if empty {
		// Last viewer gone: tear the room down. The dispatch goroutine
		// drains the channel and exits.
		delete(h.rooms, sub.galleryID)
		close(r.deltas)
	}
	h.mu.Unlock()

	sub.closeOnce.Do(func() { close(sub.events) })
}

// reconcileLoop periodically pushes authoritative stats into every open room
// so derived counters cannot drift for long-lived viewers.
func (h *Hub) reconcileLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.reconcile()
		case <-h.stopReconcile:
			return
		}
	}
}

func (h *Hub) reconcile() {
	h.mu.Lock()
	open := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		open = append(open, r)
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, r := range open {
		gallery, err := h.source.GetGallery(ctx, r.galleryID)
		if err != nil {
			h.logger.Warn().Err(err).Str("gallery_id", r.galleryID).Msg("stats reconcile failed")
			continue
		}
		stats := Stats{
			TotalPhotos:       gallery.TotalPhotos,
			TotalVideos:       gallery.TotalVideos,
			TotalContributors: gallery.TotalContributors,
		}
		event := Event{Type: EventStats, Stats: &stats}

		r.mu.Lock()
		r.cache.Reconcile(stats)
		for sub := range r.subscribers {
			select {
			case sub.events <- event:
			default:
				// Stats frames are droppable; the next tick resends.
			}
		}
		r.mu.Unlock()
	}
}

// SubscriberCount reports live viewers for a gallery.
func (h *Hub) SubscriberCount(galleryID string) int {
	h.mu.Lock()
	r, ok := h.rooms[galleryID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// Shutdown closes all rooms and stops the reconcile loop.
func (h *Hub) Shutdown() {
	close(h.stopReconcile)

	h.mu.Lock()
	for id, r := range h.rooms {
		r.mu.Lock()
		for sub := range r.subscribers {
			sub.closeOnce.Do(func() { close(sub.events) })
		}
		r.subscribers = make(map[*Subscriber]struct{})
		r.mu.Unlock()
		delete(h.rooms, id)
		close(r.deltas)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
