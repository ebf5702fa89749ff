package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/metrics"
	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/store"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// Deps are the collaborators a Runner drives.
type Deps struct {
	Sessions session.Factory
	Lister   Lister
	Listing  Listing
	Placer   Placer
	// Publisher is optional. Nil skips publishing.
	Publisher Publisher

	Cache *store.CacheStore
	Locks *store.LockRegistry

	Log     logging.Interface
	Metrics *metrics.Metrics
}

// Runner executes synchronization runs.
type Runner struct {
	deps     Deps
	opts     Options
	log      logging.Interface
	selector Selector

	discovery *Discovery
	sync      *ContainerSync
	add       *AddOperation

	now func() time.Time
}

// NewRunner validates opts and wires the engine components.
func NewRunner(deps Deps, opts Options) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session factory is required")
	case deps.Lister == nil || deps.Listing == nil || deps.Placer == nil:
		return nil, fmt.Errorf("lister, listing and placer are required")
	case deps.Cache == nil || deps.Locks == nil:
		return nil, fmt.Errorf("cache and lock registry are required")
	}

	selector, err := NewSelector(opts.Policy)
	if err != nil {
		return nil, err
	}

	log := logging.OrDiscard(deps.Log)
	return &Runner{
		deps:      deps,
		opts:      opts,
		log:       log,
		selector:  selector,
		discovery: NewDiscovery(deps.Lister, opts.Discovery, log, deps.Metrics),
		sync:      NewContainerSync(deps.Listing, opts.Sync, opts.Capacity, log),
		add:       NewAddOperation(deps.Placer, opts.Add, log),
		now:       time.Now,
	}, nil
}

// run carries the mutable state of one Run call.
type run struct {
	additions  Additions
	checkpoint *Checkpointer
}

// tagRun is the per-tag view used by the placement loop.
type tagRun struct {
	plan   types.TagPlan
	result *TagResult
}

// Run synchronizes every tag in plans, in order. Tags are isolated: a
// failure in one is recorded and the next tag proceeds. Only failing to
// open the primary session is returned as an error.
//
// Cancelling ctx abandons the current tag. The cache is still flushed and
// additions made so far are still published, on a context detached from
// ctx.
func (r *Runner) Run(ctx context.Context, plans []types.TagPlan) (*Summary, error) {
	summary := &Summary{
		RunID:     logging.GetRunID(),
		StartedAt: r.now(),
	}
	state := &run{
		checkpoint: NewCheckpointer(r.deps.Cache, r.opts.SaveInterval, r.log),
	}

	opened := false
	err := session.With(ctx, r.deps.Sessions, func(s session.Session) error {
		opened = true
		for _, plan := range plans {
			if ctx.Err() != nil {
				break
			}
			summary.Tags = append(summary.Tags, r.runTag(ctx, s, plan, state))
		}
		return nil
	})
	if err != nil {
		if !opened {
			return nil, err
		}
		r.log.Warnf("%v", err)
	}

	r.finish(ctx, summary, state)
	return summary, nil
}

func (r *Runner) finish(ctx context.Context, summary *Summary, state *run) {
	detached := context.WithoutCancel(ctx)

	if err := state.checkpoint.Flush(detached); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	}

	summary.Additions = state.additions.Entries()
	summary.Total = state.additions.Total()
	summary.Interrupted = errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded)

	if summary.Total > 0 && r.deps.Publisher != nil {
		summary.Message = state.additions.Message(r.opts.MessagePrefix)
		if err := r.publish(detached, summary.Message); err != nil {
			r.log.Errorf("publish failed: %v", err)
			summary.Errors = append(summary.Errors, err.Error())
		} else {
			summary.Published = true
		}
	}

	summary.FinishedAt = r.now()
	if r.opts.ReportDir != "" {
		if path, err := WriteReport(r.opts.ReportDir, summary); err != nil {
			r.log.Warnf("failed to write run report: %v", err)
		} else {
			r.log.Debugf("run report written to %s", path)
		}
	}
}

func (r *Runner) publish(ctx context.Context, message string) error {
	if err := r.deps.Publisher.StageAll(ctx); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	if err := r.deps.Publisher.Commit(ctx, message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if !r.opts.AutoPush {
		return nil
	}
	if err := r.deps.Publisher.Push(ctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func (r *Runner) runTag(ctx context.Context, s session.Session, plan types.TagPlan, state *run) TagResult {
	result := TagResult{Tag: plan.Tag}
	t := &tagRun{plan: plan, result: &result}

	r.log.Infof("%s: syncing %d collections", plan.Tag, len(plan.Collections))
	for _, id := range plan.Collections {
		if r.deps.Locks.IsLocked(id) {
			continue
		}
		if _, err := r.syncInto(ctx, s, t, id); err != nil {
			if ctx.Err() != nil {
				result.Abandoned = true
				return result
			}
		}
	}
	r.lockFull(ctx, t)

	if r.target(t) < 0 {
		r.log.Infof("%s: %v, skipping discovery", plan.Tag, ErrNoTarget)
		return result
	}

	known := r.deps.Cache.UnionForTag(plan.Tag)
	items, err := r.discovery.Discover(ctx, s, plan.Tag, known)
	result.Discovered = len(items)
	if err != nil {
		result.Abandoned = true
		result.Deferred = len(items)
		return result
	}
	if len(items) == 0 {
		return result
	}

	if r.opts.Workers > 1 {
		r.placeParallel(ctx, s, t, items, state)
	} else {
		r.placeSequential(ctx, s, t, items, state)
	}
	return result
}

// syncInto reads a collection's authoritative membership, merges it into
// the cache and returns the remote count. A failed sync leaves the cache
// untouched.
func (r *Runner) syncInto(ctx context.Context, s session.Session, t *tagRun, id types.CollectionID) (int, error) {
	tag := t.plan.Tag
	before := r.deps.Cache.Count(tag, id)

	items, err := r.sync.Sync(ctx, s, id)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warnf("%s/%s: %v, keeping %d cached items", tag, id, err, before)
			r.deps.Metrics.SyncFailed(tag, id)
			t.result.SyncFailures = append(t.result.SyncFailures, id)
		}
		return 0, err
	}

	added := r.deps.Cache.Merge(tag, id, items.Sorted()...)
	count := r.deps.Cache.Count(tag, id)
	r.deps.Metrics.SetCollectionItems(tag, id, count)
	r.log.Debugf("%s/%s: %d remote items, %d new to cache, %d known", tag, id, items.Len(), added, count)
	return items.Len(), nil
}

// lockFull locks every unlocked collection of the tag whose known count
// reached capacity.
func (r *Runner) lockFull(ctx context.Context, t *tagRun) {
	for _, id := range t.plan.Collections {
		if r.deps.Locks.IsLocked(id) {
			continue
		}
		if r.deps.Cache.Count(t.plan.Tag, id) >= r.opts.Capacity {
			r.lock(ctx, t, id)
		}
	}
}

func (r *Runner) lock(ctx context.Context, t *tagRun, id types.CollectionID) {
	locked, err := r.deps.Locks.Lock(context.WithoutCancel(ctx), id)
	if err != nil {
		r.log.Errorf("%s/%s: %v", t.plan.Tag, id, err)
	}
	if locked {
		r.log.Infof("%s/%s: locked at %d items", t.plan.Tag, id, r.deps.Cache.Count(t.plan.Tag, id))
		r.deps.Metrics.CollectionLocked(t.plan.Tag)
		t.result.Locked = append(t.result.Locked, id)
	}
}

func (r *Runner) candidates(t *tagRun) []Candidate {
	out := make([]Candidate, len(t.plan.Collections))
	for i, id := range t.plan.Collections {
		out[i] = Candidate{
			ID:     id,
			Count:  r.deps.Cache.Count(t.plan.Tag, id),
			Locked: r.deps.Locks.IsLocked(id),
		}
	}
	return out
}

// target returns the index of the next collection to fill, or -1.
func (r *Runner) target(t *tagRun) int {
	return r.selector.Select(r.candidates(t), r.opts.Capacity)
}

func (r *Runner) placeSequential(ctx context.Context, s session.Session, t *tagRun, items []types.ItemID, state *run) {
	tag := t.plan.Tag

	for i, item := range items {
		if ctx.Err() != nil {
			t.result.Abandoned = true
			t.result.Deferred += len(items) - i
			return
		}

		r.lockFull(ctx, t)
		idx := r.target(t)
		if idx < 0 {
			r.log.Warnf("%s: %v, %d items deferred", tag, ErrNoTarget, len(items)-i)
			t.result.Deferred += len(items) - i
			return
		}
		id := t.plan.Collections[idx]

		if !r.add.Add(ctx, s, item, id) {
			if ctx.Err() != nil {
				t.result.Abandoned = true
				t.result.Deferred += len(items) - i
				return
			}
			t.result.Failed++
			r.deps.Metrics.AddFailed(tag, id)
			continue
		}

		r.placed(ctx, t, item, id, state)
		_ = retry.Sleep(ctx, r.opts.Add.Pace)

		count := r.deps.Cache.Count(tag, id)
		if count >= r.opts.Capacity {
			r.lock(ctx, t, id)
			continue
		}
		if r.opts.Capacity-count <= r.opts.RevalidateThreshold && ctx.Err() == nil {
			r.revalidate(ctx, s, t, id)
		}
	}
}

// placed records a successful placement.
func (r *Runner) placed(ctx context.Context, t *tagRun, item types.ItemID, id types.CollectionID, state *run) {
	tag := t.plan.Tag
	r.deps.Cache.Merge(tag, id, item)
	state.additions.Record(tag, id)
	t.result.Added++

	count := r.deps.Cache.Count(tag, id)
	r.deps.Metrics.ItemAdded(tag, id)
	r.deps.Metrics.SetCollectionItems(tag, id, count)
	r.log.Debugf("%s/%s: added %s (%d/%d)", tag, id, item, count, r.opts.Capacity)

	state.checkpoint.Tick(ctx)
}

// revalidate re-syncs a nearly full target and locks it when the
// authoritative view shows it full. The known count never drops below what
// the cache already proves.
func (r *Runner) revalidate(ctx context.Context, s session.Session, t *tagRun, id types.CollectionID) {
	tag := t.plan.Tag
	live := r.deps.Cache.Count(tag, id)

	r.log.Debugf("%s/%s: near capacity, re-syncing", tag, id)
	remote, err := r.syncInto(ctx, s, t, id)
	if err != nil {
		return
	}
	if drift := remote - live; drift > r.opts.RevalidateThreshold || -drift > r.opts.RevalidateThreshold {
		r.log.Warnf("%s/%s: capacity drift, remote shows %d items, expected %d", tag, id, remote, live)
		t.result.Drift = append(t.result.Drift, id)
	}
	if r.deps.Cache.Count(tag, id) >= r.opts.Capacity {
		r.lock(ctx, t, id)
	}
}
