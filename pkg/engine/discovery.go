package engine

import (
	"context"
	"errors"

	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/metrics"
	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/store"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// Discovery finds items a tag's collections do not hold yet.
type Discovery struct {
	lister  Lister
	opts    DiscoveryOptions
	log     logging.Interface
	metrics *metrics.Metrics
}

// NewDiscovery creates a discovery walker.
func NewDiscovery(lister Lister, opts DiscoveryOptions, log logging.Interface, m *metrics.Metrics) *Discovery {
	return &Discovery{
		lister:  lister,
		opts:    opts,
		log:     logging.OrDiscard(log),
		metrics: m,
	}
}

// Discover walks the listing from page 1 and returns unknown ids, most
// recent first, without duplicates. It stops after MaxEmptyPages pages in
// a row without a new id, after MaxPages pages, at the end of the listing
// or when a page times out. A page that keeps failing after retries ends
// the walk too. Cancellation returns what was found so far along with the
// context error.
func (d *Discovery) Discover(ctx context.Context, s session.Session, tag types.Tag, known *store.Set[types.ItemID]) ([]types.ItemID, error) {
	var (
		found []types.ItemID
		seen  = store.NewSet[types.ItemID]()
		empty int
	)

	for page := 1; page <= d.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		ids, err := d.listPage(ctx, s, tag, page)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return found, ctx.Err()
		case errors.Is(err, ErrListingEnd):
			d.log.Debugf("%s page %d: end of listing", tag, page)
			return d.done(tag, found), nil
		case errors.Is(err, ErrPageTimeout):
			d.log.Warnf("%s page %d: timed out loading, stopping discovery", tag, page)
			return d.done(tag, found), nil
		default:
			d.log.Warnf("%s page %d: %v, stopping discovery", tag, page, err)
			return d.done(tag, found), nil
		}
		d.metrics.PageListed(tag)

		fresh := 0
		for _, id := range ids {
			if id == "" || known.Contains(id) || seen.Contains(id) {
				continue
			}
			seen.Add(id)
			found = append(found, id)
			fresh++
		}

		if fresh == 0 {
			empty++
			d.log.Debugf("%s page %d: no new items (%d/%d consecutive)", tag, page, empty, d.opts.MaxEmptyPages)
			if empty >= d.opts.MaxEmptyPages {
				break
			}
			continue
		}

		empty = 0
		d.log.Debugf("%s page %d: %d new items", tag, page, fresh)
	}

	return d.done(tag, found), nil
}

func (d *Discovery) listPage(ctx context.Context, s session.Session, tag types.Tag, page int) ([]types.ItemID, error) {
	var ids []types.ItemID
	err := d.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		ids, err = d.lister.ListPage(ctx, s, tag, page)
		if errors.Is(err, ErrListingEnd) || errors.Is(err, ErrPageTimeout) {
			return retry.Permanent(err)
		}
		if err != nil && attempt > 1 {
			d.log.Debugf("%s page %d attempt %d: %v", tag, page, attempt, err)
		}
		return err
	})
	return ids, err
}

func (d *Discovery) done(tag types.Tag, found []types.ItemID) []types.ItemID {
	d.metrics.ItemsDiscovered(tag, len(found))
	d.log.Infof("%s: %d new items found", tag, len(found))
	return found
}
