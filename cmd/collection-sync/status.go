package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adelansari/steam-workshop-collection/pkg/engine"
)

func statusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached collection fill levels and the last run",
		Long: `Status reads the local cache and lock registry only. It does not open a
browser, so counts reflect the last successful sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), v, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			tags, err := selectedTags(v, a.cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, plan := range tags {
				fmt.Fprintf(out, "%s\n", color.New(color.Bold).Sprint(plan.Tag))
				for _, id := range plan.Collections {
					count := a.cache.Count(plan.Tag, id)
					remaining := a.cfg.Capacity - count
					if remaining < 0 {
						remaining = 0
					}
					fmt.Fprintf(out, "  %-12s %7s / %s  %s\n",
						id,
						humanize.Comma(int64(count)),
						humanize.Comma(int64(a.cfg.Capacity)),
						collectionState(a.locks.IsLocked(id), remaining))
				}
			}

			return printLastRun(out, filepath.Join(a.cfg.Storage.StateDir, "runs"))
		},
	}
}

func collectionState(locked bool, remaining int) string {
	switch {
	case locked:
		return color.New(color.FgBlue).Sprint("LOCKED")
	case remaining == 0:
		return color.New(color.FgYellow).Sprint("FULL")
	default:
		return color.New(color.FgGreen).Sprintf("%s free", humanize.Comma(int64(remaining)))
	}
}

func printLastRun(out io.Writer, dir string) error {
	s, _, err := engine.LatestReport(dir)
	if errors.Is(err, engine.ErrNoReport) {
		fmt.Fprintln(out, "\nNo runs recorded yet.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nLast run %s (%s): %d added", humanize.Time(s.FinishedAt), s.RunID, s.Total)
	if s.Interrupted {
		fmt.Fprint(out, ", interrupted")
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(out, ", %d errors", len(s.Errors))
	}
	fmt.Fprintln(out)
	return nil
}
