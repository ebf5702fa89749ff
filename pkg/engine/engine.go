// Package engine synchronizes capacity-bounded collections with a growing
// workshop catalog.
//
// A run walks every configured tag: it reconciles the local cache with the
// collections' authoritative membership, discovers items the cache does not
// know yet, and places each one into the first collection with room. Full
// collections are locked permanently. Progress is checkpointed so an
// interrupted run loses at most a few placements.
//
// The engine talks to the remote site only through the ports below; the
// Steam implementations live in package workshop.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

var (
	// ErrSyncFailed means a collection's membership never loaded. It is
	// distinct from a successful sync that found nothing.
	ErrSyncFailed = errors.New("collection sync failed")

	// ErrPageTimeout means a listing page never showed its items.
	// Discovery treats it as the end of the listing.
	ErrPageTimeout = errors.New("listing page timed out")

	// ErrListingEnd is returned by a Lister past the last listing page.
	ErrListingEnd = errors.New("end of listing")

	// ErrNoTarget means every collection of a tag is locked or full.
	ErrNoTarget = errors.New("no collection with remaining capacity")
)

// Lister reads one page of a tag's recency-sorted listing.
type Lister interface {
	// ListPage returns the item ids on page (1-based) in display order.
	// It returns ErrListingEnd past the last page and ErrPageTimeout when
	// the page never rendered.
	ListPage(ctx context.Context, s session.Session, tag types.Tag, page int) ([]types.ItemID, error)
}

// Listing reads a collection's lazily rendered membership.
type Listing interface {
	// Open loads the collection page and waits up to timeout for the
	// membership structure.
	Open(ctx context.Context, s session.Session, id types.CollectionID, timeout time.Duration) error

	// Render asks the page to reveal more members.
	Render(ctx context.Context, s session.Session) error

	// Visible returns the members rendered so far.
	Visible(ctx context.Context, s session.Session) ([]types.ItemID, error)
}

// Placer performs one remote placement attempt.
type Placer interface {
	// Place adds item to the collection. already reports that the remote
	// showed the item as a member before anything was submitted.
	Place(ctx context.Context, s session.Session, item types.ItemID, id types.CollectionID) (already bool, err error)
}

// Publisher records a run's additions in version control.
type Publisher interface {
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}
