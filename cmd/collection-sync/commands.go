package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adelansari/steam-workshop-collection/pkg/config"
	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
	"github.com/adelansari/steam-workshop-collection/pkg/workshop"
)

func discoverCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <tag>",
		Short: "List new items for a tag without adding them",
		Long: `Discover walks the tag's listing and prints the items that are not in any of
its cached collections, newest first. Nothing is added and the cache is not
written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, v, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			tags, err := a.cfg.Tags.Select([]string{args[0]})
			if err != nil {
				return err
			}

			discovery := engine.NewDiscovery(a.lister(), a.cfg.EngineOptions().Discovery, a.log, nil)
			discover := func(s session.Session) error {
				for _, plan := range tags {
					a.printer.Section(string(plan.Tag))
					found, err := discovery.Discover(ctx, s, plan.Tag, a.cache.UnionForTag(plan.Tag))
					for _, id := range found {
						fmt.Fprintln(cmd.OutOrStdout(), id)
					}
					a.printer.Successf("%d new items", len(found))
					if err != nil {
						return err
					}
				}
				return nil
			}

			if a.cfg.Discovery.Mode == config.DiscoveryHTTP {
				return discover(nil)
			}

			manager, stop, err := a.startBrowser()
			if err != nil {
				return err
			}
			defer stop()
			return session.With(ctx, manager, discover)
		},
	}
}

func lockCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <collection-id>",
		Short: "Mark a collection as full so it is never written again",
		Long: `Lock records a configured collection in the lock registry. Locked collections
are skipped by every later run. Locks are permanent; remove the entry from
the registry by hand to undo one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, v, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			id := types.CollectionID(args[0])
			tag, ok := a.cfg.Tags.Find(id)
			if !ok {
				return fmt.Errorf("collection %s is not configured for any tag", id)
			}

			added, err := a.locks.Lock(ctx, id)
			if err != nil {
				return err
			}
			if !added {
				a.printer.Infof("%s (%s) is already locked", id, tag)
				return nil
			}
			a.printer.Successf("Locked %s (%s)", id, tag)
			return nil
		},
	}
}

func subscribeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <collection-id>",
		Short: "Subscribe the signed-in account to every item of a collection",
		Long: `Subscribe opens the collection page with the configured browser profile and
subscribes to all of its items using the "Add Only" option, leaving existing
subscriptions in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, v, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			manager, stop, err := a.startBrowser()
			if err != nil {
				return err
			}
			defer stop()

			id := types.CollectionID(args[0])
			sub := workshop.NewSubscriber(a.cfg.URLs, a.cfg.Add.WaitTimeout, a.log)
			if err := session.With(ctx, manager, func(s session.Session) error {
				return sub.SubscribeAll(ctx, s, id)
			}); err != nil {
				return err
			}
			a.printer.Successf("Subscribed to %s", id)
			return nil
		},
	}
}

func configCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Config prints the configuration after defaults, the config file, environment variables and flags are applied.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
