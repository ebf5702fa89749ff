package workshop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// BrowserLister reads listing pages through a browser session.
type BrowserLister struct {
	urls        URLs
	pageTimeout time.Duration
}

var _ engine.Lister = (*BrowserLister)(nil)

// NewBrowserLister creates a lister that waits up to pageTimeout for items.
func NewBrowserLister(urls URLs, pageTimeout time.Duration) *BrowserLister {
	return &BrowserLister{urls: urls, pageTimeout: pageTimeout}
}

// ListPage loads one listing page and returns its item ids in display
// order.
func (l *BrowserLister) ListPage(ctx context.Context, s session.Session, tag types.Tag, page int) ([]types.ItemID, error) {
	if err := s.Navigate(ctx, l.urls.ListingPage(tag, page)); err != nil {
		return nil, err
	}

	marker, err := s.QueryAll(ctx, selNoItems)
	if err != nil {
		return nil, err
	}
	if len(marker) > 0 {
		return nil, engine.ErrListingEnd
	}

	if err := s.WaitFor(ctx, selItemLink, l.pageTimeout); err != nil {
		if errors.Is(err, session.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s page %d", engine.ErrPageTimeout, tag, page)
		}
		return nil, err
	}

	links, err := s.QueryAll(ctx, selItemLink)
	if err != nil {
		return nil, err
	}
	return hrefIDs(ctx, links)
}

// hrefIDs extracts item ids from link elements, skipping links without one.
func hrefIDs(ctx context.Context, links []session.Element) ([]types.ItemID, error) {
	ids := make([]types.ItemID, 0, len(links))
	for _, link := range links {
		href, err := link.Attribute(ctx, "href")
		if err != nil {
			return nil, err
		}
		if id := types.ItemIDFromURL(href); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
