package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

type scriptedPlacer struct {
	results []error
	already bool
	panics  bool
	calls   int
}

func (p *scriptedPlacer) Place(context.Context, session.Session, types.ItemID, types.CollectionID) (bool, error) {
	p.calls++
	if p.panics {
		panic("stale element")
	}
	if len(p.results) == 0 {
		return p.already, nil
	}
	err := p.results[0]
	p.results = p.results[1:]
	return p.already, err
}

func TestAddOperation_Add(t *testing.T) {
	flaky := errors.New("dialog never opened")
	tests := []struct {
		name      string
		placer    *scriptedPlacer
		want      bool
		wantCalls int
	}{
		{name: "first try", placer: &scriptedPlacer{}, want: true, wantCalls: 1},
		{name: "succeeds on third", placer: &scriptedPlacer{results: []error{flaky, flaky}}, want: true, wantCalls: 3},
		{name: "gives up after three", placer: &scriptedPlacer{results: []error{flaky, flaky, flaky, flaky}}, want: false, wantCalls: 3},
		{name: "already a member", placer: &scriptedPlacer{already: true}, want: true, wantCalls: 1},
		{name: "panic is contained", placer: &scriptedPlacer{panics: true}, want: false, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add := NewAddOperation(tt.placer, AddOptions{Retry: retry.Policy{Attempts: 3}}, nil)
			got := add.Add(context.Background(), &fakeSession{}, "item", "A")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, tt.placer.calls)
		})
	}
}
