package workshop

import (
	"context"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// CollectionPage reads a collection's lazily loaded member list.
type CollectionPage struct {
	urls URLs
}

var _ engine.Listing = (*CollectionPage)(nil)

func NewCollectionPage(urls URLs) *CollectionPage {
	return &CollectionPage{urls: urls}
}

func (c *CollectionPage) Open(ctx context.Context, s session.Session, id types.CollectionID, timeout time.Duration) error {
	if err := s.Navigate(ctx, c.urls.DetailsPage(string(id))); err != nil {
		return err
	}
	return s.WaitFor(ctx, selCollectionChildren, timeout)
}

func (c *CollectionPage) Render(ctx context.Context, s session.Session) error {
	return s.Render(ctx)
}

func (c *CollectionPage) Visible(ctx context.Context, s session.Session) ([]types.ItemID, error) {
	links, err := s.QueryAll(ctx, selCollectionItem)
	if err != nil {
		return nil, err
	}
	return hrefIDs(ctx, links)
}
