// Package main provides collection-sync, which keeps Steam Workshop
// collections filled with the newest items of each configured tag.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cancel()
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "collection-sync",
		Short:   "Fill Steam Workshop collections with the newest tagged items",
		Version: version,
		Long: `collection-sync discovers the newest Workshop items of every configured tag
and adds them to that tag's collections, filling each collection up to its
capacity before moving to the next. Collections that reach capacity are
locked and never touched again.

Membership is cached under the state directory so interrupted runs resume
without re-adding anything, and the additions of a run can be committed and
pushed to git.`,
		SilenceUsage: true,
	}

	bindFlags(v, rootCmd)

	rootCmd.AddCommand(runCmd(v))
	rootCmd.AddCommand(statusCmd(v))
	rootCmd.AddCommand(discoverCmd(v))
	rootCmd.AddCommand(lockCmd(v))
	rootCmd.AddCommand(subscribeCmd(v))
	rootCmd.AddCommand(configCmd(v))

	return rootCmd
}
