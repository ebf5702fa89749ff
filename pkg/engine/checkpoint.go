package engine

import (
	"context"

	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/store"
)

// Checkpointer flushes the cache every interval successful placements.
type Checkpointer struct {
	cache    *store.CacheStore
	interval int
	pending  int
	log      logging.Interface
}

// NewCheckpointer creates a checkpointer for cache.
func NewCheckpointer(cache *store.CacheStore, interval int, log logging.Interface) *Checkpointer {
	if interval < 1 {
		interval = 1
	}
	return &Checkpointer{
		cache:    cache,
		interval: interval,
		log:      logging.OrDiscard(log),
	}
}

// Tick records one successful placement and saves when the interval is
// reached. The save runs even if ctx is already cancelled.
func (c *Checkpointer) Tick(ctx context.Context) {
	c.pending++
	if c.pending < c.interval {
		return
	}
	c.save(ctx, "checkpoint")
}

// Flush saves if anything changed since the last save.
func (c *Checkpointer) Flush(ctx context.Context) error {
	if !c.cache.Dirty() {
		return nil
	}
	return c.save(ctx, "final save")
}

func (c *Checkpointer) save(ctx context.Context, what string) error {
	if err := c.cache.Save(context.WithoutCancel(ctx)); err != nil {
		c.log.Errorf("%s failed: %v", what, err)
		return err
	}
	c.pending = 0
	c.log.Debugf("%s written", what)
	return nil
}
