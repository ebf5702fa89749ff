package engine

import (
	"fmt"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// Policy names a target selection strategy.
type Policy string

const (
	// PolicyFirstFit fills collections strictly in declared order.
	PolicyFirstFit Policy = "first-fit"
	// PolicyMostRemaining picks the collection with the most headroom.
	// Ties go to the earlier collection.
	PolicyMostRemaining Policy = "most-remaining"
)

// Candidate is one collection as seen by a Selector.
type Candidate struct {
	ID     types.CollectionID
	Count  int
	Locked bool
}

// Selector picks the collection the next item goes into.
type Selector interface {
	// Select returns the index of the chosen candidate or -1 when none
	// has room below capacity.
	Select(candidates []Candidate, capacity int) int
}

// NewSelector returns the selector for policy. The empty policy is
// first-fit.
func NewSelector(policy Policy) (Selector, error) {
	switch policy {
	case "", PolicyFirstFit:
		return firstFit{}, nil
	case PolicyMostRemaining:
		return mostRemaining{}, nil
	default:
		return nil, fmt.Errorf("invalid selection policy: %s (must be '%s' or '%s')", policy, PolicyFirstFit, PolicyMostRemaining)
	}
}

type firstFit struct{}

func (firstFit) Select(candidates []Candidate, capacity int) int {
	for i, c := range candidates {
		if !c.Locked && c.Count < capacity {
			return i
		}
	}
	return -1
}

type mostRemaining struct{}

func (mostRemaining) Select(candidates []Candidate, capacity int) int {
	best, bestRoom := -1, 0
	for i, c := range candidates {
		if c.Locked {
			continue
		}
		if room := capacity - c.Count; room > bestRoom {
			best, bestRoom = i, room
		}
	}
	return best
}
