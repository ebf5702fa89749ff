package workshop

import (
	"context"
	"fmt"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// Adder drives the "Add to Collection" dialog on an item page.
type Adder struct {
	urls        URLs
	waitTimeout time.Duration
	settle      time.Duration
}

var _ engine.Placer = (*Adder)(nil)

// NewAdder creates an adder. waitTimeout bounds each dialog step; settle is
// the pause after confirming so Steam can process the change.
func NewAdder(urls URLs, waitTimeout, settle time.Duration) *Adder {
	return &Adder{urls: urls, waitTimeout: waitTimeout, settle: settle}
}

// Place opens the item's dialog and ticks the collection's checkbox. When
// the checkbox is already ticked the item is a member and nothing is
// submitted.
func (a *Adder) Place(ctx context.Context, s session.Session, item types.ItemID, id types.CollectionID) (bool, error) {
	if err := s.Navigate(ctx, a.urls.DetailsPage(string(item))); err != nil {
		return false, err
	}
	if err := s.Click(ctx, selAddToCollection, a.waitTimeout); err != nil {
		return false, fmt.Errorf("open add dialog: %w", err)
	}
	if err := s.WaitFor(ctx, selAddDialog, a.waitTimeout); err != nil {
		return false, fmt.Errorf("add dialog: %w", err)
	}

	checkbox := collectionCheckbox(string(id))
	if err := s.WaitFor(ctx, checkbox, a.waitTimeout); err != nil {
		return false, fmt.Errorf("collection %s not offered: %w", id, err)
	}
	boxes, err := s.QueryAll(ctx, checkbox)
	if err != nil {
		return false, err
	}
	if len(boxes) == 0 {
		return false, fmt.Errorf("collection %s not offered", id)
	}

	checked, err := boxes[0].Checked(ctx)
	if err != nil {
		return false, err
	}
	if checked {
		return true, nil
	}
	if err := boxes[0].Click(ctx); err != nil {
		return false, fmt.Errorf("tick collection %s: %w", id, err)
	}

	if err := s.Click(ctx, selDialogConfirm, a.waitTimeout); err != nil {
		return false, fmt.Errorf("confirm dialog: %w", err)
	}
	if err := retry.Sleep(ctx, a.settle); err != nil {
		return false, err
	}
	return false, nil
}
