package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

const cachePrefix = "cache/"

// CacheRecordName returns the backend record name for a collection's cache.
func CacheRecordName(tag types.Tag, id types.CollectionID) string {
	return cachePrefix + string(tag) + "/" + string(id)
}

func parseCacheRecordName(name string) (types.Tag, types.CollectionID, bool) {
	rest, ok := strings.CutPrefix(name, cachePrefix)
	if !ok {
		return "", "", false
	}
	tag, id, ok := strings.Cut(rest, "/")
	if !ok || tag == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return types.Tag(tag), types.CollectionID(id), true
}

// CacheStore is the local, grow-only record of which items each collection
// holds, keyed by tag then collection. Merge is its only mutation.
type CacheStore struct {
	backend Backend
	log     logging.Interface

	mu    sync.RWMutex
	tags  map[types.Tag]map[types.CollectionID]*Set[types.ItemID]
	dirty map[string]struct{}
}

// NewCacheStore creates an empty cache persisted through backend.
func NewCacheStore(backend Backend, log logging.Interface) *CacheStore {
	return &CacheStore{
		backend: backend,
		log:     logging.OrDiscard(log),
		tags:    make(map[types.Tag]map[types.CollectionID]*Set[types.ItemID]),
		dirty:   make(map[string]struct{}),
	}
}

// Load reads every cache record from the backend and unions it into memory.
// Missing or unparsable records load as empty sets and are logged as warnings.
func (c *CacheStore) Load(ctx context.Context) error {
	names, err := c.backend.List(ctx, cachePrefix)
	if err != nil {
		return fmt.Errorf("failed to list cache records: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range names {
		tag, id, ok := parseCacheRecordName(name)
		if !ok {
			c.log.Warnf("ignoring unexpected cache record %q", name)
			continue
		}

		items, err := c.backend.Read(ctx, name)
		if err != nil {
			c.log.Warnf("cache for %s/%s is unreadable, treating as empty: %v", tag, id, err)
			items = nil
		}
		c.setLocked(tag, id).Add(fromStrings[types.ItemID](items)...)
	}
	return nil
}

// Save writes the full current state. It is safe to call repeatedly; the
// backend unions, so a save never shrinks a persisted record.
func (c *CacheStore) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for tag, collections := range c.tags {
		for id, set := range collections {
			if set.Len() == 0 {
				continue
			}
			name := CacheRecordName(tag, id)
			if err := c.backend.Write(ctx, name, toStrings(set.Sorted())); err != nil {
				errs = append(errs, fmt.Errorf("failed to save cache for %s/%s: %w", tag, id, err))
				continue
			}
			delete(c.dirty, name)
		}
	}
	return errors.Join(errs...)
}

// Merge unions items into the cached set for (tag, id) and returns how many
// were new.
func (c *CacheStore) Merge(tag types.Tag, id types.CollectionID, items ...types.ItemID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := c.setLocked(tag, id).Add(items...)
	if added > 0 {
		c.dirty[CacheRecordName(tag, id)] = struct{}{}
	}
	return added
}

// Dirty reports whether members were merged since the last successful Save.
func (c *CacheStore) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dirty) > 0
}

// Count returns the number of cached items for (tag, id).
func (c *CacheStore) Count(tag types.Tag, id types.CollectionID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tags[tag][id].Len()
}

// Contains reports whether item is cached for (tag, id).
func (c *CacheStore) Contains(tag types.Tag, id types.CollectionID, item types.ItemID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tags[tag][id].Contains(item)
}

// Items returns the cached items for (tag, id) in ascending order.
func (c *CacheStore) Items(tag types.Tag, id types.CollectionID) []types.ItemID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tags[tag][id].Sorted()
}

// UnionForTag returns the union of every collection's cached items for tag.
func (c *CacheStore) UnionForTag(tag types.Tag) *Set[types.ItemID] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	union := NewSet[types.ItemID]()
	for _, set := range c.tags[tag] {
		union.Union(set)
	}
	return union
}

// Tags returns the cached tags in ascending order.
func (c *CacheStore) Tags() []types.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tags := make([]types.Tag, 0, len(c.tags))
	for tag := range c.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Collections returns the cached collections of tag in ascending order.
func (c *CacheStore) Collections(tag types.Tag) []types.CollectionID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]types.CollectionID, 0, len(c.tags[tag]))
	for id := range c.tags[tag] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *CacheStore) setLocked(tag types.Tag, id types.CollectionID) *Set[types.ItemID] {
	collections, ok := c.tags[tag]
	if !ok {
		collections = make(map[types.CollectionID]*Set[types.ItemID])
		c.tags[tag] = collections
	}
	set, ok := collections[id]
	if !ok {
		set = NewSet[types.ItemID]()
		collections[id] = set
	}
	return set
}
