package engine

import (
	"fmt"
	"strings"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// DefaultMessagePrefix starts every publish commit message.
const DefaultMessagePrefix = "update: "

// Addition is the number of items a run placed into one collection.
type Addition struct {
	Tag        types.Tag          `json:"tag"`
	Collection types.CollectionID `json:"collection"`
	Count      int                `json:"count"`
}

// Additions tallies placements per collection in order of first addition.
type Additions struct {
	entries []Addition
	index   map[types.CollectionID]int
}

// Record counts one placement.
func (a *Additions) Record(tag types.Tag, id types.CollectionID) {
	if a.index == nil {
		a.index = make(map[types.CollectionID]int)
	}
	if i, ok := a.index[id]; ok {
		a.entries[i].Count++
		return
	}
	a.index[id] = len(a.entries)
	a.entries = append(a.entries, Addition{Tag: tag, Collection: id, Count: 1})
}

// Total returns the number of placements recorded.
func (a *Additions) Total() int {
	total := 0
	for _, e := range a.entries {
		total += e.Count
	}
	return total
}

// Entries returns a copy of the tallies in first-addition order.
func (a *Additions) Entries() []Addition {
	return append([]Addition(nil), a.entries...)
}

// Message renders "<prefix>tag:collection+n ..." for a commit.
func (a *Additions) Message(prefix string) string {
	parts := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		parts = append(parts, fmt.Sprintf("%s:%s+%d", e.Tag, e.Collection, e.Count))
	}
	return prefix + strings.Join(parts, " ")
}
