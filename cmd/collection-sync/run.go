package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/metrics"
	"github.com/adelansari/steam-workshop-collection/pkg/publish"
	"github.com/adelansari/steam-workshop-collection/pkg/workshop"
)

func runCmd(v *viper.Viper) *cobra.Command {
	var noPublish, noPush bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronize every configured tag",
		Long: `Run syncs each tag in configured order:
- reads the current membership of every unlocked collection
- locks collections that reached capacity
- discovers listing items not yet in any of the tag's collections
- adds them, newest first, to the first collection with room

Cache changes are checkpointed while running and flushed on exit, including
on Ctrl-C. When publishing is enabled the additions are committed (and
pushed) with a message such as "update: Tracks:3445118133+9".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, v, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			if noPush {
				a.cfg.Publish.AutoPush = false
			}
			return a.run(ctx, v, !noPublish && a.cfg.Publish.Enabled)
		},
	}

	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "skip committing cache changes")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "commit cache changes without pushing")

	return cmd
}

func (a *app) run(ctx context.Context, v *viper.Viper, publishEnabled bool) error {
	tags, err := selectedTags(v, a.cfg)
	if err != nil {
		return err
	}

	a.printer.Header(fmt.Sprintf("collection-sync %s", version))
	a.printer.Infof("Run ID: %s", logging.GetRunID())
	a.printer.Infof("State: %s (%s)", a.cfg.Storage.StateDir, a.cfg.Storage.Backend)
	a.printer.Verbosef("Tags: %d, capacity %s, policy %s, workers %d",
		len(tags), humanize.Comma(int64(a.cfg.Capacity)), a.cfg.SelectionPolicy, a.cfg.Parallel.Workers)

	m := metrics.New()
	stopMetrics := a.serveMetrics(m)
	defer stopMetrics()

	manager, stopBrowser, err := a.startBrowser()
	if err != nil {
		return err
	}
	defer stopBrowser()

	deps := engine.Deps{
		Sessions: manager,
		Lister:   a.lister(),
		Listing:  workshop.NewCollectionPage(a.cfg.URLs),
		Placer:   workshop.NewAdder(a.cfg.URLs, a.cfg.Add.WaitTimeout, a.cfg.Add.Settle),
		Cache:    a.cache,
		Locks:    a.locks,
		Log:      a.log,
		Metrics:  m,
	}
	if publishEnabled {
		if p := a.publisher(ctx); p != nil {
			deps.Publisher = p
		}
	}

	runner, err := engine.NewRunner(deps, a.cfg.EngineOptions())
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx, tags.Plans())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	a.recordGauges(m)
	if err := m.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.printer.Warnf("%v", err)
	}

	printSummary(a.printer, summary)
	if summary.Interrupted {
		return fmt.Errorf("run interrupted")
	}
	return nil
}

// publisher returns a git publisher staging only the state records under
// the state directory, or nil when the repository or state directory are unusable.
func (a *app) publisher(ctx context.Context) engine.Publisher {
	p := publish.NewGitPublisher(a.cfg.Publish.RepoDir, a.cfg.Publish.Config)
	if err := p.CheckRepository(ctx); err != nil {
		a.printer.Warnf("publishing disabled: %v", err)
		return nil
	}
	if err := p.Restrict(a.cfg.Storage.StateDir); err != nil {
		a.printer.Warnf("publishing disabled: %v", err)
		return nil
	}
	if err := p.Exclude(a.cfg.Unpublished()...); err != nil {
		a.printer.Warnf("publishing disabled: %v", err)
		return nil
	}
	return p
}

// serveMetrics exposes m on the configured listen address until the
// returned function is called.
func (a *app) serveMetrics(m *metrics.Metrics) func() {
	if a.cfg.Metrics.Listen == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warnf("metrics server: %v", err)
		}
	}()
	a.printer.Verbosef("Serving metrics on %s/metrics", a.cfg.Metrics.Listen)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// recordGauges publishes the cached membership count of every collection.
func (a *app) recordGauges(m *metrics.Metrics) {
	for _, plan := range a.cfg.Tags {
		for _, id := range plan.Collections {
			m.SetCollectionItems(plan.Tag, id, a.cache.Count(plan.Tag, id))
		}
	}
}

func printSummary(p *logging.Printer, s *engine.Summary) {
	p.Section("Summary")
	for _, t := range s.Tags {
		line := fmt.Sprintf("%s: %d discovered, %d added", t.Tag, t.Discovered, t.Added)
		if t.Failed > 0 {
			line += fmt.Sprintf(", %d failed", t.Failed)
		}
		if t.Deferred > 0 {
			line += fmt.Sprintf(", %d deferred", t.Deferred)
		}
		p.Infof("%s", line)
		for _, id := range t.Locked {
			p.Verbosef("%s: locked %s", t.Tag, id)
		}
		for _, id := range t.SyncFailures {
			p.Warnf("%s: could not read collection %s", t.Tag, id)
		}
		for _, id := range t.Drift {
			p.Warnf("%s: collection %s drifted from the cache", t.Tag, id)
		}
		if t.Abandoned {
			p.Warnf("%s: interrupted", t.Tag)
		}
	}

	for _, e := range s.Errors {
		p.Errorf("%s", e)
	}

	switch {
	case s.Total == 0:
		p.Successf("Nothing new to add (%s)", s.Duration().Round(time.Second))
	case s.Published:
		p.Successf("Added %s items in %s, committed %q", humanize.Comma(int64(s.Total)), s.Duration().Round(time.Second), s.Message)
	default:
		p.Successf("Added %s items in %s", humanize.Comma(int64(s.Total)), s.Duration().Round(time.Second))
	}
}
