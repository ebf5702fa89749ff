package engine

import (
	"context"
	"fmt"

	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// AddOperation places items with bounded retries.
type AddOperation struct {
	placer Placer
	opts   AddOptions
	log    logging.Interface
}

// NewAddOperation wraps placer with the retry policy in opts.
func NewAddOperation(placer Placer, opts AddOptions, log logging.Interface) *AddOperation {
	return &AddOperation{
		placer: placer,
		opts:   opts,
		log:    logging.OrDiscard(log),
	}
}

// Add reports whether item ended up in the collection. It never returns an
// error and recovers from a panicking Placer. An item the remote already
// shows as a member counts as success.
func (a *AddOperation) Add(ctx context.Context, s session.Session, item types.ItemID, id types.CollectionID) bool {
	var already bool
	err := a.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		already, err = a.place(ctx, s, item, id)
		if err != nil && attempt > 1 {
			a.log.Debugf("add %s to %s attempt %d: %v", item, id, attempt, err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warnf("failed to add %s to %s: %v", item, id, err)
		}
		return false
	}

	if already {
		a.log.Debugf("%s already in %s", item, id)
	}
	return true
}

func (a *AddOperation) place(ctx context.Context, s session.Session, item types.ItemID, id types.CollectionID) (already bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("placement panicked: %v", r)
		}
	}()
	return a.placer.Place(ctx, s, item, id)
}
