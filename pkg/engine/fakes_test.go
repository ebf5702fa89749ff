package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/store"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

type fakeSession struct {
	closed bool
}

func (s *fakeSession) Navigate(context.Context, string) error { return nil }
func (s *fakeSession) WaitFor(context.Context, string, time.Duration) error {
	return nil
}
func (s *fakeSession) Render(context.Context) error { return nil }
func (s *fakeSession) QueryAll(context.Context, string) ([]session.Element, error) {
	return nil, nil
}
func (s *fakeSession) Click(context.Context, string, time.Duration) error { return nil }
func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeFactory struct {
	mu     sync.Mutex
	opened []*fakeSession
	err    error
}

func (f *fakeFactory) Open(context.Context) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSession{}
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

// fakeLister serves fixed pages per tag. Pages past the end report
// ErrListingEnd unless a page error is configured.
type fakeLister struct {
	pages  map[types.Tag][][]types.ItemID
	errs   map[int]error
	calls  int
	before func(page int)
}

func (l *fakeLister) ListPage(ctx context.Context, _ session.Session, tag types.Tag, page int) ([]types.ItemID, error) {
	l.calls++
	if l.before != nil {
		l.before(page)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := l.errs[page]; ok {
		return nil, err
	}
	pages := l.pages[tag]
	if page > len(pages) {
		return nil, ErrListingEnd
	}
	return pages[page-1], nil
}

// fakeRemote is the shared remote state behind fakeListing and fakePlacer.
type fakeRemote struct {
	mu       sync.Mutex
	members  map[types.CollectionID][]types.ItemID
	broken   map[types.CollectionID]bool
	step     int
	revealed int
	current  types.CollectionID
	syncs    map[types.CollectionID]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		members: make(map[types.CollectionID][]types.ItemID),
		broken:  make(map[types.CollectionID]bool),
		syncs:   make(map[types.CollectionID]int),
		step:    250,
	}
}

func (r *fakeRemote) fill(id types.CollectionID, prefix string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i <= n; i++ {
		r.members[id] = append(r.members[id], types.ItemID(fmt.Sprintf("%s%d", prefix, i)))
	}
}

func (r *fakeRemote) count(id types.CollectionID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[id])
}

// fakeListing reveals a collection step items per Render.
type fakeListing struct {
	remote *fakeRemote
}

func (l fakeListing) Open(_ context.Context, _ session.Session, id types.CollectionID, _ time.Duration) error {
	r := l.remote
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs[id]++
	if r.broken[id] {
		return session.ErrTimeout
	}
	r.current = id
	r.revealed = 0
	return nil
}

func (l fakeListing) Render(context.Context, session.Session) error {
	r := l.remote
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revealed += r.step
	return nil
}

func (l fakeListing) Visible(context.Context, session.Session) ([]types.ItemID, error) {
	r := l.remote
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.members[r.current]
	n := min(r.revealed, len(members))
	return append([]types.ItemID(nil), members[:n]...), nil
}

type placement struct {
	item   types.ItemID
	target types.CollectionID
}

// fakePlacer appends to the remote state. Items in fail never succeed.
type fakePlacer struct {
	remote *fakeRemote
	fail   map[types.ItemID]bool
	after  func(placement)

	mu     sync.Mutex
	placed []placement
	calls  int
}

func (p *fakePlacer) Place(_ context.Context, _ session.Session, item types.ItemID, id types.CollectionID) (bool, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.fail[item] {
		return false, errors.New("add button never appeared")
	}

	p.remote.mu.Lock()
	p.remote.members[id] = append(p.remote.members[id], item)
	p.remote.mu.Unlock()

	p.mu.Lock()
	p.placed = append(p.placed, placement{item: item, target: id})
	p.mu.Unlock()

	if p.after != nil {
		p.after(placement{item: item, target: id})
	}
	return false, nil
}

func (p *fakePlacer) placements() []placement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]placement(nil), p.placed...)
}

type fakePublisher struct {
	staged   int
	commits  []string
	pushed   int
	stageErr error
}

func (p *fakePublisher) StageAll(context.Context) error {
	p.staged++
	return p.stageErr
}

func (p *fakePublisher) Commit(_ context.Context, message string) error {
	p.commits = append(p.commits, message)
	return nil
}

func (p *fakePublisher) Push(context.Context) error {
	p.pushed++
	return nil
}

// fastOptions returns production semantics with every wait removed.
func fastOptions() Options {
	opts := DefaultOptions()
	opts.Discovery.Retry = retry.Policy{Attempts: 2}
	opts.Sync.Retry = retry.Policy{Attempts: 1}
	opts.Sync.ProbeInterval = 0
	opts.Sync.StableProbes = 1
	opts.Sync.Budget = 10 * time.Second
	opts.Add.Retry = retry.Policy{Attempts: 3}
	opts.Add.Pace = 0
	return opts
}

type harness struct {
	t         *testing.T
	dir       string
	backend   store.Backend
	cache     *store.CacheStore
	locks     *store.LockRegistry
	remote    *fakeRemote
	lister    *fakeLister
	placer    *fakePlacer
	factory   *fakeFactory
	publisher *fakePublisher
	opts      Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		t:         t,
		dir:       dir,
		remote:    newFakeRemote(),
		lister:    &fakeLister{pages: make(map[types.Tag][][]types.ItemID)},
		factory:   &fakeFactory{},
		publisher: &fakePublisher{},
		opts:      fastOptions(),
	}
	h.placer = &fakePlacer{remote: h.remote, fail: make(map[types.ItemID]bool)}
	h.reopen()
	return h
}

// reopen loads the cache and lock registry from disk, as a new process
// would.
func (h *harness) reopen() {
	h.t.Helper()
	backend, err := store.NewFileBackend(h.dir)
	require.NoError(h.t, err)
	h.backend = backend
	h.cache = store.NewCacheStore(backend, nil)
	h.locks = store.NewLockRegistry(backend)
	require.NoError(h.t, h.cache.Load(context.Background()))
	require.NoError(h.t, h.locks.Load(context.Background()))
}

func (h *harness) runner() *Runner {
	h.t.Helper()
	r, err := NewRunner(Deps{
		Sessions:  h.factory,
		Lister:    h.lister,
		Listing:   fakeListing{remote: h.remote},
		Placer:    h.placer,
		Publisher: h.publisher,
		Cache:     h.cache,
		Locks:     h.locks,
	}, h.opts)
	require.NoError(h.t, err)
	return r
}

func ids(prefix string, n int) []types.ItemID {
	out := make([]types.ItemID, n)
	for i := range out {
		out[i] = types.ItemID(fmt.Sprintf("%s%d", prefix, i+1))
	}
	return out
}
