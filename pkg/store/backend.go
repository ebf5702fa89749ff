// Package store persists what the synchronizer knows: the cached membership
// of every collection and the registry of permanently locked collections.
//
// Every persisted record is a grow-only list of ids. Backends enforce this at
// the write boundary: Write unions the given ids with whatever the record
// already holds, so no save can ever shrink a record.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrCorruptRecord is returned by Backend.Read for records that exist but
// cannot be parsed. Callers treat such records as empty.
var ErrCorruptRecord = errors.New("corrupt record")

// Backend is durable storage for named grow-only id lists.
// Record names are slash-separated, e.g. "cache/Vehicles/3444831495".
type Backend interface {
	// Read returns the ids stored under name. A missing record is (nil, nil).
	Read(ctx context.Context, name string) ([]string, error)

	// Write unions items into the record stored under name.
	Write(ctx context.Context, name string, items []string) error

	// List returns the names of all records starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// FileBackend stores each record as a sorted, indented JSON array in
// <root>/<name>.json.
type FileBackend struct {
	root string
	mu   sync.Mutex
}

// NewFileBackend creates a file backend rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileBackend{root: dir}, nil
}

// Root returns the directory records are stored under.
func (b *FileBackend) Root() string {
	return b.root
}

func (b *FileBackend) path(name string) string {
	return filepath.Join(b.root, filepath.FromSlash(name)+".json")
}

// Read loads a record. Numeric ids are accepted and converted to strings.
func (b *FileBackend) Read(_ context.Context, name string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(name)
}

func (b *FileBackend) read(name string) ([]string, error) {
	data, err := os.ReadFile(b.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read record %s: %w", name, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, name, err)
	}

	items := make([]string, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case string:
			items = append(items, id)
		case json.Number:
			items = append(items, id.String())
		default:
			return nil, fmt.Errorf("%w: %s: unexpected value %v", ErrCorruptRecord, name, v)
		}
	}
	return items, nil
}

// Write merges items into the record and rewrites it atomically.
func (b *FileBackend) Write(_ context.Context, name string, items []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := NewSet(items...)
	existing, err := b.read(name)
	if err != nil && !errors.Is(err, ErrCorruptRecord) {
		return err
	}
	merged.Add(existing...)

	path := b.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(merged.Sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", name, err)
	}

	// Temp file + rename so a crash never leaves a half-written record
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, append(data, '\n'), 0600); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp record: %w", err)
	}
	return nil
}

// List walks the directory for prefix and returns the record names found.
func (b *FileBackend) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := filepath.Join(b.root, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
	var names []string
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, ".json"))
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}
