package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelansari/steam-workshop-collection/pkg/store"
)

func TestAdditions(t *testing.T) {
	var a Additions
	assert.Equal(t, 0, a.Total())
	assert.Equal(t, "update: ", a.Message(DefaultMessagePrefix))

	a.Record("Characters", "3531743955")
	a.Record("Vehicles", "3444831495")
	a.Record("Characters", "3531743955")
	a.Record("Characters", "3445105194")

	assert.Equal(t, 4, a.Total())
	assert.Equal(t, "update: Characters:3531743955+2 Vehicles:3444831495+1 Characters:3445105194+1", a.Message(DefaultMessagePrefix))
	assert.Equal(t, []Addition{
		{Tag: "Characters", Collection: "3531743955", Count: 2},
		{Tag: "Vehicles", Collection: "3444831495", Count: 1},
		{Tag: "Characters", Collection: "3445105194", Count: 1},
	}, a.Entries())
}

func TestCheckpointer(t *testing.T) {
	dir := t.TempDir()
	backend, err := store.NewFileBackend(dir)
	require.NoError(t, err)
	cache := store.NewCacheStore(backend, nil)
	cp := NewCheckpointer(cache, 2, nil)

	reload := func() *store.CacheStore {
		c := store.NewCacheStore(backend, nil)
		require.NoError(t, c.Load(context.Background()))
		return c
	}

	ctx, cancel := context.WithCancel(context.Background())
	cache.Merge(tracks, "A", "1")
	cp.Tick(ctx)
	assert.Equal(t, 0, reload().Count(tracks, "A"), "below interval nothing is written")

	cancel()
	cache.Merge(tracks, "A", "2")
	cp.Tick(ctx)
	assert.Equal(t, 2, reload().Count(tracks, "A"), "checkpoint runs on a cancelled context")
	assert.False(t, cache.Dirty())

	require.NoError(t, cp.Flush(ctx))
	cache.Merge(tracks, "A", "3")
	require.NoError(t, cp.Flush(ctx))
	assert.Equal(t, 3, reload().Count(tracks, "A"))
	assert.FileExists(t, filepath.Join(dir, "cache", "Tracks", "A.json"))
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	summary := &Summary{
		RunID:      "abc",
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
	}

	path, err := WriteReport(dir, summary)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260102T030405Z-abc.json"), path)
	assert.Equal(t, time.Minute, summary.Duration())
}

func TestLatestReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")

	_, _, err := LatestReport(dir)
	assert.ErrorIs(t, err, ErrNoReport)

	older := &Summary{RunID: "a", StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Total: 1}
	newer := &Summary{RunID: "b", StartedAt: time.Date(2026, 1, 3, 3, 4, 5, 0, time.UTC), Total: 7}
	_, err = WriteReport(dir, newer)
	require.NoError(t, err)
	_, err = WriteReport(dir, older)
	require.NoError(t, err)

	got, path, err := LatestReport(dir)
	require.NoError(t, err)
	assert.Equal(t, "b", got.RunID)
	assert.Equal(t, 7, got.Total)
	assert.Equal(t, filepath.Join(dir, "20260103T030405Z-b.json"), path)
}
