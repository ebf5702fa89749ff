package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/adelansari/steam-workshop-collection/pkg/browser"
	"github.com/adelansari/steam-workshop-collection/pkg/config"
	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/store"
	"github.com/adelansari/steam-workshop-collection/pkg/workshop"
)

const envPrefix = "COLLECTION_SYNC"

// Viper keys shared by every command. Each is bound to a persistent flag
// and to COLLECTION_SYNC_<KEY>.
const (
	keyConfig    = "config"
	keyStateDir  = "state-dir"
	keyBackend   = "backend"
	keyHeadless  = "headless"
	keyVerbosity = "verbosity"
	keyWorkers   = "workers"
	keyTags      = "tags"
	keyDiscovery = "discovery-mode"
	keyProfile   = "profile-dir"
)

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP(keyConfig, "c", "", "path to the YAML configuration file")
	flags.String(keyStateDir, "", "directory holding the cache, lock registry and run reports")
	flags.String(keyBackend, "", "state backend: json or sqlite")
	flags.Bool(keyHeadless, true, "run the browser without a window")
	flags.StringP(keyVerbosity, "v", "", "console verbosity: quiet, normal, verbose or debug")
	flags.Int(keyWorkers, 0, "parallel placement workers")
	flags.StringSlice(keyTags, nil, "only sync tags matching these glob patterns")
	flags.String(keyDiscovery, "", "listing discovery: browser or http")
	flags.String(keyProfile, "", "persistent browser profile directory holding the signed-in account")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range []string{keyConfig, keyStateDir, keyBackend, keyHeadless, keyVerbosity, keyWorkers, keyTags, keyDiscovery, keyProfile} {
		mustBindFlag(v, key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, "-", "_")), flags.Lookup(key))
	}
}

func mustBindFlag(v *viper.Viper, key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

// loadConfig reads the configuration file named by the config key and
// applies flag and environment overrides on top of it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString(keyConfig))
	if err != nil {
		return nil, err
	}

	if v.IsSet(keyStateDir) {
		cfg.Storage.StateDir = v.GetString(keyStateDir)
	}
	if v.IsSet(keyBackend) {
		cfg.Storage.Backend = v.GetString(keyBackend)
	}
	if v.IsSet(keyHeadless) {
		cfg.Browser.Headless = v.GetBool(keyHeadless)
	}
	if v.IsSet(keyVerbosity) {
		cfg.Logging.Verbosity = v.GetString(keyVerbosity)
	}
	if v.IsSet(keyWorkers) {
		cfg.Parallel.Workers = v.GetInt(keyWorkers)
	}
	if v.IsSet(keyDiscovery) {
		cfg.Discovery.Mode = config.DiscoveryMode(v.GetString(keyDiscovery))
	}
	if v.IsSet(keyProfile) {
		cfg.Browser.UserDataDir = v.GetString(keyProfile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// selectedTags returns the tags chosen by the tags key.
func selectedTags(v *viper.Viper, cfg *config.Config) (config.Tags, error) {
	var patterns []string
	for _, p := range v.GetStringSlice(keyTags) {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return cfg.Tags.Select(patterns)
}

// app holds what every command needs: the effective configuration, the
// console printer, the run log and the persisted state.
type app struct {
	cfg     *config.Config
	printer *logging.Printer
	log     logging.Interface
	fileLog *logging.Logger

	backend store.Backend
	cache   *store.CacheStore
	locks   *store.LockRegistry
}

// openApp loads configuration and state. The lock registry must load: a
// corrupt registry could let a full collection be written again.
func openApp(ctx context.Context, v *viper.Viper, out io.Writer) (*app, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Verbosity)
	if err != nil {
		return nil, err
	}
	printer := logging.NewPrinterTo(out, level)

	logging.SetLogDirectory(cfg.LogDir())
	fileLog, logErr := logging.NewLogger("sync")
	if logErr != nil {
		printer.Warnf("file logging unavailable: %v", logErr)
	}

	a := &app{
		cfg:     cfg,
		printer: printer,
		log:     logging.Multi(fileLog, printer),
		fileLog: fileLog,
	}

	a.backend, err = store.OpenBackend(cfg.Storage.Backend, cfg.Storage.StateDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	a.cache = store.NewCacheStore(a.backend, a.log)
	if err := a.cache.Load(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	a.locks = store.NewLockRegistry(a.backend)
	if err := a.locks.Load(ctx); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Warnf("failed to close state backend: %v", err)
		}
	}
	if a.fileLog != nil {
		_ = a.fileLog.Close()
	}
}

// lister returns the listing reader for the configured discovery mode.
func (a *app) lister() engine.Lister {
	if a.cfg.Discovery.Mode == config.DiscoveryHTTP {
		return workshop.NewHTTPLister(a.cfg.URLs, nil, a.cfg.Discovery.PageTimeout)
	}
	return workshop.NewBrowserLister(a.cfg.URLs, a.cfg.Discovery.PageTimeout)
}

// startBrowser installs and launches the browser driver. The returned
// function shuts it down.
func (a *app) startBrowser() (*browser.Manager, func(), error) {
	manager := browser.NewManager(a.cfg.Browser)
	a.printer.Step("Starting browser")
	if err := manager.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return manager, func() {
		if err := manager.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warnf("browser shutdown: %v", err)
		}
	}, nil
}
