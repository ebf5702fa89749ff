package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/store"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// ContainerSync reads a collection's authoritative membership.
type ContainerSync struct {
	listing  Listing
	opts     SyncOptions
	capacity int
	log      logging.Interface
	now      func() time.Time
}

// NewContainerSync creates a syncer for collections of the given capacity.
func NewContainerSync(listing Listing, opts SyncOptions, capacity int, log logging.Interface) *ContainerSync {
	return &ContainerSync{
		listing:  listing,
		opts:     opts,
		capacity: capacity,
		log:      logging.OrDiscard(log),
		now:      time.Now,
	}
}

// Sync returns the collection's members. When the membership structure
// never loads it returns an error wrapping ErrSyncFailed and never an empty
// set. Otherwise it keeps rendering until the visible count holds steady
// for StableProbes probes, the Budget runs out, or the count passes
// capacity plus OverCapacityMargin.
func (c *ContainerSync) Sync(ctx context.Context, s session.Session, id types.CollectionID) (*store.Set[types.ItemID], error) {
	err := c.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := c.listing.Open(ctx, s, id, c.opts.LoadTimeout)
		if err != nil && attempt > 1 {
			c.log.Debugf("collection %s load attempt %d: %v", id, attempt, err)
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: collection %s: %w", ErrSyncFailed, id, err)
	}

	var (
		items    = store.NewSet[types.ItemID]()
		last     = -1
		stable   = 0
		limit    = c.capacity + c.opts.OverCapacityMargin
		deadline = c.now().Add(c.opts.Budget)
		probes   = 0
	)

	for stable < c.opts.StableProbes && c.now().Before(deadline) {
		if err := c.listing.Render(ctx, s); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: collection %s render: %w", ErrSyncFailed, id, err)
		}
		if err := retry.Sleep(ctx, c.opts.ProbeInterval); err != nil {
			return nil, err
		}

		visible, err := c.listing.Visible(ctx, s)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: collection %s read: %w", ErrSyncFailed, id, err)
		}
		probes++

		items = store.NewSet(visible...)
		count := items.Len()
		if count > limit {
			c.log.Debugf("collection %s: %d items exceeds capacity, stopping early", id, count)
			break
		}

		if count == last {
			stable++
		} else {
			stable = 0
		}
		last = count
	}

	// A budget shorter than one probe still yields a reading.
	if probes == 0 {
		visible, err := c.listing.Visible(ctx, s)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: collection %s read: %w", ErrSyncFailed, id, err)
		}
		items = store.NewSet(visible...)
	}

	c.log.Debugf("collection %s: %d items after %d probes", id, items.Len(), probes)
	return items, nil
}
