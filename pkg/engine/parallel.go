package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// job is one planned placement. The target is fixed at planning time.
type job struct {
	item   types.ItemID
	target types.CollectionID
}

type jobResult struct {
	job
	ok bool
}

// plan assigns targets to the leading items by simulating the selector over
// the current counts. A wave ends with the item that fills its target, so
// the next collection is only planned once the filled one has been re-synced
// and failed placements have released their room. Items that find no room
// are returned as deferred.
func (r *Runner) plan(t *tagRun, items []types.ItemID) (jobs []job, rest []types.ItemID, deferred int) {
	candidates := r.candidates(t)
	for i, item := range items {
		idx := r.selector.Select(candidates, r.opts.Capacity)
		if idx < 0 {
			return jobs, nil, len(items) - i
		}
		jobs = append(jobs, job{item: item, target: candidates[idx].ID})
		candidates[idx].Count++
		if candidates[idx].Count >= r.opts.Capacity {
			return jobs, items[i+1:], 0
		}
	}
	return jobs, nil, 0
}

// placeParallel drains planned waves with a pool of workers, each holding
// its own session. Results are merged here, on the calling goroutine. After
// every wave the touched collections are re-synced on the primary session
// before lock decisions and the next wave are made.
func (r *Runner) placeParallel(ctx context.Context, s session.Session, t *tagRun, items []types.ItemID, state *run) {
	tag := t.plan.Tag

	r.lockFull(ctx, t)
	if r.target(t) < 0 {
		t.result.Deferred += len(items)
		r.log.Warnf("%s: %v, %d items deferred", tag, ErrNoTarget, len(items))
		return
	}

	queue := make(chan job, len(items))
	results := make(chan jobResult, len(items))
	workers := min(r.opts.Workers, len(items))
	r.log.Infof("%s: placing %d items with %d workers", tag, len(items), workers)

	var g errgroup.Group
	for w := 1; w <= workers; w++ {
		g.Go(func() error {
			err := session.With(ctx, r.deps.Sessions, func(ws session.Session) error {
				for {
					var j job
					select {
					case <-ctx.Done():
						return nil
					case next, open := <-queue:
						if !open || ctx.Err() != nil {
							return nil
						}
						j = next
					}
					ok := r.add.Add(ctx, ws, j.item, j.target)
					results <- jobResult{job: j, ok: ok}
					if ok {
						_ = retry.Sleep(ctx, r.opts.Add.Pace)
					}
				}
			})
			if err != nil {
				r.log.Errorf("%s: worker %d: %v", tag, w, err)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()
	defer close(queue)

	pending := items
	for len(pending) > 0 && ctx.Err() == nil {
		r.lockFull(ctx, t)
		jobs, rest, deferred := r.plan(t, pending)
		if deferred > 0 {
			t.result.Deferred += deferred
			r.log.Warnf("%s: %v, %d items deferred", tag, ErrNoTarget, deferred)
		}
		if len(jobs) == 0 {
			pending = nil
			break
		}
		pending = rest

		if !r.drain(ctx, s, t, jobs, queue, results, state) {
			t.result.Deferred += len(pending)
			pending = nil
			break
		}
	}

	if ctx.Err() != nil {
		t.result.Deferred += len(pending)
		t.result.Abandoned = true
	}
	r.lockFull(ctx, t)
}

// drain queues one wave, merges its results and re-syncs the touched
// collections. It returns false when no worker is left to take jobs.
func (r *Runner) drain(ctx context.Context, s session.Session, t *tagRun, jobs []job, queue chan<- job, results <-chan jobResult, state *run) bool {
	tag := t.plan.Tag
	for _, j := range jobs {
		queue <- j
	}

	touched := make(map[types.CollectionID]struct{})
	processed := 0
	alive := true
	for processed < len(jobs) {
		res, ok := <-results
		if !ok {
			alive = false
			break
		}
		processed++
		if !res.ok {
			if ctx.Err() != nil {
				t.result.Deferred++
				continue
			}
			t.result.Failed++
			r.deps.Metrics.AddFailed(tag, res.target)
			continue
		}
		touched[res.target] = struct{}{}
		r.placed(ctx, t, res.item, res.target, state)
	}

	if rest := len(jobs) - processed; rest > 0 {
		t.result.Deferred += rest
		if ctx.Err() == nil {
			r.log.Warnf("%s: %d planned items were not attempted", tag, rest)
		}
	}

	if ctx.Err() == nil {
		for _, id := range t.plan.Collections {
			if _, ok := touched[id]; ok {
				_, _ = r.syncInto(ctx, s, t, id)
			}
		}
	}
	return alive
}
