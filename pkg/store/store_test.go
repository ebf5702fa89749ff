package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

type backendCase struct {
	name string
	open func(t *testing.T) Backend
}

func backends() []backendCase {
	return []backendCase{
		{
			name: "json",
			open: func(t *testing.T) Backend {
				b, err := NewFileBackend(t.TempDir())
				require.NoError(t, err)
				return b
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Backend {
				b, err := OpenSQLiteBackend(filepath.Join(t.TempDir(), "state.db"))
				require.NoError(t, err)
				t.Cleanup(func() { b.Close() })
				return b
			},
		},
	}
}

func TestSet(t *testing.T) {
	s := NewSet[types.ItemID]("b", "a")
	assert.Equal(t, 2, s.Len())

	assert.Equal(t, 1, s.Add("a", "c", ""))
	assert.Equal(t, []types.ItemID{"a", "b", "c"}, s.Sorted())
	assert.True(t, s.Contains("c"))
	assert.False(t, s.Contains("d"))

	clone := s.Clone()
	clone.Add("d")
	assert.False(t, s.Contains("d"), "clone must be independent")

	other := NewSet[types.ItemID]("c", "e")
	assert.Equal(t, 1, s.Union(other))
	assert.Equal(t, 0, s.Union(nil))

	var nilSet *Set[types.ItemID]
	assert.Equal(t, 0, nilSet.Len())
	assert.False(t, nilSet.Contains("a"))
}

func TestBackend_ReadWriteList(t *testing.T) {
	ctx := context.Background()
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.open(t)

			items, err := b.Read(ctx, "cache/Vehicles/1")
			require.NoError(t, err)
			assert.Empty(t, items, "missing record reads as empty")

			require.NoError(t, b.Write(ctx, "cache/Vehicles/1", []string{"30", "10", "20"}))
			items, err = b.Read(ctx, "cache/Vehicles/1")
			require.NoError(t, err)
			assert.Equal(t, []string{"10", "20", "30"}, items)

			// A write with fewer ids unions instead of replacing
			require.NoError(t, b.Write(ctx, "cache/Vehicles/1", []string{"40"}))
			items, err = b.Read(ctx, "cache/Vehicles/1")
			require.NoError(t, err)
			assert.Equal(t, []string{"10", "20", "30", "40"}, items)

			require.NoError(t, b.Write(ctx, "cache/Tracks/2", []string{"1"}))
			require.NoError(t, b.Write(ctx, LocksRecordName, []string{"9"}))

			names, err := b.List(ctx, "cache/")
			require.NoError(t, err)
			assert.Equal(t, []string{"cache/Tracks/2", "cache/Vehicles/1"}, names)

			names, err = b.List(ctx, "nothing/")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestFileBackend_CorruptAndNumericRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "cache", "Vehicles")
	require.NoError(t, os.MkdirAll(path, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(path, "1.json"), []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(path, "2.json"), []byte(`[3444831495, "77"]`), 0600))

	_, err = b.Read(ctx, "cache/Vehicles/1")
	assert.ErrorIs(t, err, ErrCorruptRecord)

	items, err := b.Read(ctx, "cache/Vehicles/2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"3444831495", "77"}, items)

	// Writing over a corrupt record replaces it with the given ids
	require.NoError(t, b.Write(ctx, "cache/Vehicles/1", []string{"5"}))
	items, err = b.Read(ctx, "cache/Vehicles/1")
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, items)
}

func TestCacheStore_LoadMergeSave(t *testing.T) {
	ctx := context.Background()
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.open(t)

			cache := NewCacheStore(b, nil)
			require.NoError(t, cache.Load(ctx))
			assert.False(t, cache.Dirty())

			assert.Equal(t, 2, cache.Merge("Vehicles", "A", "1", "2"))
			assert.Equal(t, 1, cache.Merge("Vehicles", "A", "2", "3"))
			assert.Equal(t, 1, cache.Merge("Vehicles", "B", "3"))
			assert.Equal(t, 0, cache.Merge("Vehicles", "B"))
			assert.True(t, cache.Dirty())

			assert.Equal(t, 3, cache.Count("Vehicles", "A"))
			assert.True(t, cache.Contains("Vehicles", "B", "3"))
			assert.Equal(t, []types.ItemID{"1", "2", "3"}, cache.UnionForTag("Vehicles").Sorted())
			assert.Equal(t, 0, cache.UnionForTag("Tracks").Len())

			require.NoError(t, cache.Save(ctx))
			assert.False(t, cache.Dirty())
			require.NoError(t, cache.Save(ctx), "save is repeatable")

			reloaded := NewCacheStore(b, nil)
			require.NoError(t, reloaded.Load(ctx))
			assert.Equal(t, []types.ItemID{"1", "2", "3"}, reloaded.Items("Vehicles", "A"))
			assert.Equal(t, []types.ItemID{"3"}, reloaded.Items("Vehicles", "B"))
			assert.Equal(t, []types.Tag{"Vehicles"}, reloaded.Tags())
			assert.Equal(t, []types.CollectionID{"A", "B"}, reloaded.Collections("Vehicles"))
		})
	}
}

func TestCacheStore_SaveNeverShrinks(t *testing.T) {
	ctx := context.Background()
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.open(t)
			require.NoError(t, b.Write(ctx, CacheRecordName("Vehicles", "A"), []string{"1", "2", "3"}))

			// A cache that only knows a subset must not erase the rest on save
			cache := NewCacheStore(b, nil)
			cache.Merge("Vehicles", "A", "4")
			require.NoError(t, cache.Save(ctx))

			items, err := b.Read(ctx, CacheRecordName("Vehicles", "A"))
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "2", "3", "4"}, items)
		})
	}
}

func TestCacheStore_LoadCorruptRecordIsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	require.NoError(t, b.Write(ctx, CacheRecordName("Characters", "good"), []string{"1"}))
	badDir := filepath.Join(dir, "cache", "Characters")
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "bad.json"), []byte(`{"oops": true}`), 0600))

	warnings := &warnRecorder{}
	cache := NewCacheStore(b, warnings)
	require.NoError(t, cache.Load(ctx))

	assert.Equal(t, 1, cache.Count("Characters", "good"))
	assert.Equal(t, 0, cache.Count("Characters", "bad"))
	assert.Len(t, warnings.warnings, 1)
}

func TestLockRegistry(t *testing.T) {
	ctx := context.Background()
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.open(t)

			locks := NewLockRegistry(b)
			require.NoError(t, locks.Load(ctx))
			assert.False(t, locks.IsLocked("A"))

			added, err := locks.Lock(ctx, "A")
			require.NoError(t, err)
			assert.True(t, added)

			added, err = locks.Lock(ctx, "A")
			require.NoError(t, err)
			assert.False(t, added, "second lock is a no-op")

			// Persisted immediately: a fresh registry sees the lock without any save call
			fresh := NewLockRegistry(b)
			require.NoError(t, fresh.Load(ctx))
			assert.True(t, fresh.IsLocked("A"))

			_, err = fresh.Lock(ctx, "B")
			require.NoError(t, err)
			assert.Equal(t, []types.CollectionID{"A", "B"}, fresh.Locked())
		})
	}
}

func TestLockRegistry_CorruptIsError(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LocksRecordName+".json"), []byte("garbage"), 0600))

	err = NewLockRegistry(b).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenBackend("", dir)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	b, err = OpenBackend(BackendSQLite, dir)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	_, err = OpenBackend("redis", dir)
	assert.Error(t, err)
}

type warnRecorder struct {
	warnings []string
}

func (w *warnRecorder) Debugf(string, ...interface{}) {}
func (w *warnRecorder) Infof(string, ...interface{})  {}
func (w *warnRecorder) Warnf(format string, v ...interface{}) {
	w.warnings = append(w.warnings, format)
}
func (w *warnRecorder) Errorf(string, ...interface{}) {}
