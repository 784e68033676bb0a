package realtime

import (
	"sort"

	"github.com/snaproll/server/internal/domain/galleries"
)

// Cache holds one gallery's media ordered newest-first, maintained by applying
// deltas as they are dispatched. New subscribers are seeded from it so they
// see a consistent snapshot plus every later delta, in order.
type Cache struct {
	items []galleries.MediaItem
	ids   map[string]bool
	less  func(a, b galleries.MediaItem) bool

	stats Stats
}

// Stats mirrors the gallery counters that viewers display live.
type Stats struct {
	TotalPhotos       int `json:"totalPhotos"`
	TotalVideos       int `json:"totalVideos"`
	TotalContributors int `json:"totalContributors"`
}

func NewCache() *Cache {
	return &Cache{
		ids:  make(map[string]bool),
		less: galleries.Less(galleries.SortNewest),
	}
}

// Seed replaces the cache contents with an authoritative snapshot. Items must
// already be in newest-first order.
func (c *Cache) Seed(items []galleries.MediaItem, stats Stats) {
	c.items = append(c.items[:0], items...)
	c.ids = make(map[string]bool, len(items))
	for _, item := range items {
		c.ids[item.ID] = true
	}
	c.stats = stats
}

// Apply folds one delta into the cache. Duplicate inserts are ignored by id,
// so a replayed delta cannot produce a doubled item.
func (c *Cache) Apply(delta galleries.Delta) {
	switch delta.Type {
	case galleries.DeltaInsert:
		if c.ids[delta.Item.ID] {
			return
		}
		pos := sort.Search(len(c.items), func(i int) bool {
			return c.less(delta.Item, c.items[i])
		})
		c.items = append(c.items, galleries.MediaItem{})
		copy(c.items[pos+1:], c.items[pos:])
		c.items[pos] = delta.Item
		c.ids[delta.Item.ID] = true
		c.bumpStats(delta.Item.Kind, 1)

	case galleries.DeltaUpdate:
		for i := range c.items {
			if c.items[i].ID == delta.Item.ID {
				c.items[i] = delta.Item
				return
			}
		}

	case galleries.DeltaDelete:
		for i := range c.items {
			if c.items[i].ID != delta.Item.ID {
				continue
			}
			c.items = append(c.items[:i], c.items[i+1:]...)
			delete(c.ids, delta.Item.ID)
			c.bumpStats(delta.Item.Kind, -1)
			return
		}
	}
}

func (c *Cache) bumpStats(kind galleries.MediaKind, delta int) {
	if kind == galleries.KindVideo {
		c.stats.TotalVideos += delta
	} else {
		c.stats.TotalPhotos += delta
	}
}

// Reconcile replaces the derived stats with authoritative counters. Applied
// periodically so drift from missed deltas heals instead of accumulating.
func (c *Cache) Reconcile(stats Stats) {
	c.stats = stats
}

// Snapshot returns up to limit newest items and the current stats. The slice
// is a copy; callers may hold it across later Applies.
func (c *Cache) Snapshot(limit int) ([]galleries.MediaItem, Stats) {
	n := len(c.items)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]galleries.MediaItem, n)
	copy(out, c.items[:n])
	return out, c.stats
}

func (c *Cache) Len() int {
	return len(c.items)
}
