package workshop

import (
	"context"
	"fmt"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// Subscriber subscribes the signed-in account to every item of a
// collection using the "Add Only" option.
type Subscriber struct {
	urls        URLs
	waitTimeout time.Duration
	log         logging.Interface
}

func NewSubscriber(urls URLs, waitTimeout time.Duration, log logging.Interface) *Subscriber {
	return &Subscriber{urls: urls, waitTimeout: waitTimeout, log: logging.OrDiscard(log)}
}

// SubscribeAll clicks "Subscribe to all" and confirms with "Add Only". A
// missing button usually means the account is already subscribed or not
// signed in.
func (sub *Subscriber) SubscribeAll(ctx context.Context, s session.Session, id types.CollectionID) error {
	if err := s.Navigate(ctx, sub.urls.DetailsPage(string(id))); err != nil {
		return err
	}
	if err := s.Click(ctx, selSubscribeAll, sub.waitTimeout); err != nil {
		return fmt.Errorf("subscribe button not found (already subscribed or not signed in?): %w", err)
	}
	if err := s.WaitFor(ctx, selModal, sub.waitTimeout); err != nil {
		return fmt.Errorf("subscribe dialog: %w", err)
	}

	if err := s.Click(ctx, selAddOnly, sub.waitTimeout); err != nil {
		sub.log.Debugf("add only button not found, trying fallback selector: %v", err)
		if err := s.Click(ctx, selAddOnlyLegacy, sub.waitTimeout); err != nil {
			return fmt.Errorf("add only button not found: %w", err)
		}
	}

	sub.log.Infof("subscribed to collection %s", id)
	return nil
}
