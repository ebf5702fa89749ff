package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

const tracks = types.Tag("Tracks")

func tracksPlan(ids ...types.CollectionID) []types.TagPlan {
	return []types.TagPlan{{Tag: tracks, Collections: ids}}
}

func countBy(placements []placement) map[types.CollectionID]int {
	out := make(map[types.CollectionID]int)
	for _, p := range placements {
		out[p.target]++
	}
	return out
}

func TestRunner_FillsNearlyFullCollectionThenSpills(t *testing.T) {
	h := newHarness(t)
	h.remote.fill("A", "a", 970)
	h.lister.pages[tracks] = [][]types.ItemID{ids("n", 15)}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	placements := h.placer.placements()
	require.Len(t, placements, 15)
	for i, p := range placements {
		assert.Equal(t, ids("n", 15)[i], p.item, "discovery order is placement order")
	}
	assert.Equal(t, map[types.CollectionID]int{"A": 9, "B": 6}, countBy(placements))

	assert.True(t, h.locks.IsLocked("A"))
	assert.False(t, h.locks.IsLocked("B"))
	assert.Equal(t, 979, h.cache.Count(tracks, "A"))
	assert.Equal(t, 6, h.cache.Count(tracks, "B"))
	assert.Greater(t, h.remote.syncs["A"], 1, "near-capacity target is re-synced")

	require.Len(t, summary.Tags, 1)
	assert.Equal(t, 15, summary.Tags[0].Discovered)
	assert.Equal(t, 15, summary.Tags[0].Added)
	assert.Equal(t, []types.CollectionID{"A"}, summary.Tags[0].Locked)
	assert.Equal(t, 15, summary.Total)
	assert.False(t, summary.Interrupted)

	assert.Equal(t, 1, h.publisher.staged)
	assert.Equal(t, []string{"update: Tracks:A+9 Tracks:B+6"}, h.publisher.commits)
	assert.Equal(t, 1, h.publisher.pushed)
	assert.True(t, summary.Published)

	h.reopen()
	assert.Equal(t, 979, h.cache.Count(tracks, "A"))
	assert.Equal(t, 6, h.cache.Count(tracks, "B"))
	assert.True(t, h.locks.IsLocked("A"))
}

func TestRunner_FirstFitOrdering(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 5
	h.opts.RevalidateThreshold = 0
	h.remote.fill("A", "a", 3)
	h.lister.pages[tracks] = [][]types.ItemID{{"a", "b", "c"}}

	_, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []placement{
		{item: "a", target: "A"},
		{item: "b", target: "A"},
		{item: "c", target: "B"},
	}, h.placer.placements())
	assert.True(t, h.locks.IsLocked("A"))
}

func TestRunner_MostRemainingPolicy(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 10
	h.opts.RevalidateThreshold = 0
	h.opts.Policy = PolicyMostRemaining
	h.remote.fill("A", "a", 8)
	h.remote.fill("B", "b", 2)
	h.lister.pages[tracks] = [][]types.ItemID{{"x"}}

	_, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []placement{{item: "x", target: "B"}}, h.placer.placements())
}

func TestRunner_LockedCollectionIsNeverTouched(t *testing.T) {
	h := newHarness(t)
	_, err := h.locks.Lock(context.Background(), "A")
	require.NoError(t, err)
	h.remote.fill("A", "a", 1)
	h.lister.pages[tracks] = [][]types.ItemID{{"x", "y"}}

	_, err = h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.Equal(t, 0, h.remote.syncs["A"], "locked collections are not synced")
	assert.Equal(t, map[types.CollectionID]int{"B": 2}, countBy(h.placer.placements()))
}

func TestRunner_LockSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 3
	h.remote.fill("A", "a", 1)
	h.lister.pages[tracks] = [][]types.ItemID{{"x1", "x2", "x3"}}

	_, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)
	require.True(t, h.locks.IsLocked("A"))

	h.reopen()
	assert.True(t, h.locks.IsLocked("A"))

	h.placer.placed = nil
	h.lister.pages[tracks] = [][]types.ItemID{{"y1", "x1", "x2", "x3"}}
	_, err = h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []placement{{item: "y1", target: "B"}}, h.placer.placements())
}

func TestRunner_RediscoveryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.lister.pages[tracks] = [][]types.ItemID{{"x1", "x2"}, {"x3"}}

	first, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)
	assert.Equal(t, 3, first.Total)

	h.reopen()
	calls := h.placer.calls
	second, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)

	assert.Equal(t, 0, second.Total)
	assert.Equal(t, calls, h.placer.calls, "known items are never placed again")
	assert.Len(t, h.publisher.commits, 1, "no publish without additions")
	assert.False(t, second.Published)
}

func TestRunner_SyncFailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	h.cache.Merge(tracks, "A", "c1", "c2", "c3")
	require.NoError(t, h.cache.Save(context.Background()))
	h.remote.broken["A"] = true

	summary, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)

	assert.Equal(t, []types.ItemID{"c1", "c2", "c3"}, h.cache.Items(tracks, "A"))
	require.Len(t, summary.Tags, 1)
	assert.Equal(t, []types.CollectionID{"A"}, summary.Tags[0].SyncFailures)
}

func TestRunner_EmptySyncNeverShrinksCache(t *testing.T) {
	h := newHarness(t)
	h.cache.Merge(tracks, "A", "c1", "c2")
	require.NoError(t, h.cache.Save(context.Background()))

	_, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)

	h.reopen()
	assert.Equal(t, 2, h.cache.Count(tracks, "A"))
}

func TestRunner_NoTargetSkipsTag(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 2
	h.remote.fill("A", "a", 2)
	h.remote.fill("B", "b", 3)
	h.lister.pages[tracks] = [][]types.ItemID{{"x"}}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.Equal(t, 0, h.placer.calls)
	assert.Equal(t, 0, h.lister.calls)
	assert.True(t, h.locks.IsLocked("A"))
	assert.True(t, h.locks.IsLocked("B"))
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, h.publisher.commits)
}

func TestRunner_FailedAddLeavesItemUnknown(t *testing.T) {
	h := newHarness(t)
	h.placer.fail["x2"] = true
	h.lister.pages[tracks] = [][]types.ItemID{{"x1", "x2", "x3"}}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.True(t, h.cache.Contains(tracks, "A", "x1"))
	assert.False(t, h.cache.Contains(tracks, "A", "x2"))
	assert.False(t, h.cache.Contains(tracks, "B", "x2"), "a failed item is not retried elsewhere")
	assert.True(t, h.cache.Contains(tracks, "A", "x3"))
	assert.Equal(t, 5, h.placer.calls, "three attempts for the failing item")
	assert.Equal(t, 1, summary.Tags[0].Failed)
	assert.Equal(t, 2, summary.Total)
}

func TestRunner_InterruptCheckpointsAndPublishesOnce(t *testing.T) {
	h := newHarness(t)
	h.lister.pages[tracks] = [][]types.ItemID{{"x1", "x2", "x3"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.placer.after = func(placement) { cancel() }

	summary, err := h.runner().Run(ctx, tracksPlan("A"))
	require.NoError(t, err)

	assert.True(t, summary.Interrupted)
	assert.True(t, summary.Tags[0].Abandoned)
	assert.Equal(t, 2, summary.Tags[0].Deferred)
	assert.Equal(t, []string{"update: Tracks:A+1"}, h.publisher.commits)

	h.reopen()
	assert.Equal(t, []types.ItemID{"x1"}, h.cache.Items(tracks, "A"))
}

func TestRunner_CancelledBeforeStartSkipsTags(t *testing.T) {
	h := newHarness(t)
	h.lister.pages[tracks] = [][]types.ItemID{{"x1"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.runner().Run(ctx, tracksPlan("A"))
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		return
	}
	assert.Empty(t, summary.Tags)
	assert.Empty(t, h.publisher.commits)
}

func TestRunner_SessionOpenFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.factory.err = errors.New("browser missing")

	summary, err := h.runner().Run(context.Background(), tracksPlan("A"))
	assert.Nil(t, summary)
	assert.ErrorContains(t, err, "browser missing")
}

func TestRunner_PublishFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.publisher.stageErr = errors.New("not a git repository")
	h.lister.pages[tracks] = [][]types.ItemID{{"x1"}}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)

	assert.False(t, summary.Published)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "not a git repository")
}

func TestRunner_WithoutAutoPush(t *testing.T) {
	h := newHarness(t)
	h.opts.AutoPush = false
	h.lister.pages[tracks] = [][]types.ItemID{{"x1"}}

	_, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)

	assert.Len(t, h.publisher.commits, 1)
	assert.Equal(t, 0, h.publisher.pushed)
}

func TestRunner_WritesReport(t *testing.T) {
	h := newHarness(t)
	h.opts.ReportDir = filepath.Join(h.dir, "runs")
	h.lister.pages[tracks] = [][]types.ItemID{{"x1"}}

	_, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)

	entries, err := os.ReadDir(h.opts.ReportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(h.opts.ReportDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total": 1`)
}

func TestRunner_ParallelWorkers(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 5
	h.opts.Workers = 3
	h.remote.fill("A", "a", 3)
	h.lister.pages[tracks] = [][]types.ItemID{ids("i", 6)}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.Equal(t, map[types.CollectionID]int{"A": 2, "B": 4}, countBy(h.placer.placements()))
	assert.Equal(t, 4, h.factory.count(), "primary session plus one per worker")
	for _, s := range h.factory.opened {
		assert.True(t, s.closed)
	}

	assert.True(t, h.locks.IsLocked("A"))
	assert.False(t, h.locks.IsLocked("B"))
	assert.Equal(t, 5, h.cache.Count(tracks, "A"))
	assert.Equal(t, 4, h.cache.Count(tracks, "B"))
	assert.Equal(t, 6, summary.Total)
	assert.Len(t, h.publisher.commits, 1)
}

func TestRunner_ParallelDefersOverflow(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 2
	h.opts.Workers = 2
	h.lister.pages[tracks] = [][]types.ItemID{ids("i", 3)}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Tags[0].Deferred)
	assert.True(t, h.locks.IsLocked("A"))
}

func TestRunner_ParallelFailureKeepsFirstFitOrder(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 5
	h.opts.Workers = 2
	h.remote.fill("A", "a", 3)
	h.placer.fail["i1"] = true
	h.lister.pages[tracks] = [][]types.ItemID{ids("i", 6)}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	placements := h.placer.placements()
	assert.Equal(t, map[types.CollectionID]int{"A": 2, "B": 3}, countBy(placements))
	lastA, firstB := -1, len(placements)
	for i, p := range placements {
		if p.target == "A" {
			lastA = i
		} else if i < firstB {
			firstB = i
		}
	}
	assert.Less(t, lastA, firstB, "B receives nothing while A has room")

	assert.True(t, h.cache.Contains(tracks, "A", "i3"), "room left by the failed add is reused")
	assert.False(t, h.cache.Contains(tracks, "A", "i1"))
	assert.False(t, h.cache.Contains(tracks, "B", "i1"))
	assert.Equal(t, 5, h.cache.Count(tracks, "A"))
	assert.True(t, h.locks.IsLocked("A"))
	assert.Equal(t, 1, summary.Tags[0].Failed)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 3, h.factory.count(), "workers are kept across waves")
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(Deps{}, DefaultOptions())
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.Policy = "random"
	_, err = NewRunner(Deps{}, opts)
	assert.ErrorContains(t, err, "selection policy")
}

func TestRunner_RevalidationDetectsDriftAndLocks(t *testing.T) {
	h := newHarness(t)
	h.opts.Capacity = 20
	h.remote.fill("A", "a", 14)
	h.lister.pages[tracks] = [][]types.ItemID{{"x1", "x2"}}
	h.placer.after = func(p placement) {
		if p.item == "x1" {
			h.remote.fill("A", "ext", 10)
		}
	}

	summary, err := h.runner().Run(context.Background(), tracksPlan("A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []types.CollectionID{"A"}, summary.Tags[0].Drift)
	assert.True(t, h.locks.IsLocked("A"))
	assert.Equal(t, 25, h.cache.Count(tracks, "A"))
	assert.Equal(t, []placement{
		{item: "x1", target: "A"},
		{item: "x2", target: "B"},
	}, h.placer.placements())
}
