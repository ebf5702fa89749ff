// Package config loads and validates the YAML configuration of a sync run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adelansari/steam-workshop-collection/pkg/browser"
	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/logging"
	"github.com/adelansari/steam-workshop-collection/pkg/publish"
	"github.com/adelansari/steam-workshop-collection/pkg/retry"
	"github.com/adelansari/steam-workshop-collection/pkg/store"
	"github.com/adelansari/steam-workshop-collection/pkg/workshop"
)

// DiscoveryMode selects how listing pages are read.
type DiscoveryMode string

const (
	// DiscoveryBrowser reads listing pages in the browser session
	DiscoveryBrowser DiscoveryMode = "browser"
	// DiscoveryHTTP fetches server-rendered listing pages directly
	DiscoveryHTTP DiscoveryMode = "http"
)

// Config is the full configuration of a sync run.
type Config struct {
	// Capacity is the hard item limit of every collection
	Capacity int `yaml:"capacity" json:"capacity"`

	// Tags maps each tag to its collections in fill priority order
	Tags Tags `yaml:"tags" json:"tags"`

	URLs workshop.URLs `yaml:"urls" json:"urls"`

	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Add       AddConfig       `yaml:"add" json:"add"`

	// RevalidateThreshold is the remaining headroom at which a target is
	// re-synced before more placements
	RevalidateThreshold int `yaml:"revalidate_threshold" json:"revalidate_threshold"`

	// SaveInterval is the number of placements between cache checkpoints
	SaveInterval int `yaml:"save_interval" json:"save_interval"`

	// SelectionPolicy is first-fit or most-remaining
	SelectionPolicy engine.Policy `yaml:"selection_policy" json:"selection_policy"`

	Browser  browser.Options `yaml:"browser" json:"browser"`
	Storage  StorageConfig   `yaml:"storage" json:"storage"`
	Publish  PublishConfig   `yaml:"publish" json:"publish"`
	Parallel ParallelConfig  `yaml:"parallel" json:"parallel"`
	Metrics  MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging  LoggingConfig   `yaml:"logging" json:"logging"`

	// Path is the file the configuration was loaded from, if any
	Path string `yaml:"-" json:"-"`
}

// DiscoveryConfig tunes the listing walk.
type DiscoveryConfig struct {
	Mode          DiscoveryMode `yaml:"mode" json:"mode"`
	MaxEmptyPages int           `yaml:"max_empty_pages" json:"max_empty_pages"`
	MaxPages      int           `yaml:"max_pages" json:"max_pages"`
	PageTimeout   time.Duration `yaml:"page_timeout" json:"page_timeout"`
	Retry         retry.Policy  `yaml:"retry" json:"retry"`
}

// SyncConfig tunes collection membership reads.
type SyncConfig struct {
	LoadTimeout        time.Duration `yaml:"load_timeout" json:"load_timeout"`
	StableProbes       int           `yaml:"stable_probes" json:"stable_probes"`
	Budget             time.Duration `yaml:"budget" json:"budget"`
	ProbeInterval      time.Duration `yaml:"probe_interval" json:"probe_interval"`
	OverCapacityMargin int           `yaml:"over_capacity_margin" json:"over_capacity_margin"`
	Retry              retry.Policy  `yaml:"retry" json:"retry"`
}

// AddConfig tunes remote placement.
type AddConfig struct {
	Attempts    int           `yaml:"attempts" json:"attempts"`
	Delay       time.Duration `yaml:"delay" json:"delay"`
	WaitTimeout time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	Settle      time.Duration `yaml:"settle" json:"settle"`
	Pace        time.Duration `yaml:"pace" json:"pace"`
}

// StorageConfig selects where the cache and lock registry live.
type StorageConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	StateDir string `yaml:"state_dir" json:"state_dir"`
}

// PublishConfig controls committing cache changes after a run.
type PublishConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	AutoPush       bool   `yaml:"auto_push" json:"auto_push"`
	MessagePrefix  string `yaml:"message_prefix" json:"message_prefix"`
	RepoDir        string `yaml:"repo_dir" json:"repo_dir"`
	publish.Config `yaml:",inline"`
}

// ParallelConfig controls the worker pool.
type ParallelConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	// Textfile is written at the end of every run when set
	Textfile string `yaml:"textfile" json:"textfile"`
	// Listen serves /metrics while a run is in progress when set
	Listen string `yaml:"listen" json:"listen"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
	// Dir holds the per-run log files. Empty means <state_dir>/logs.
	Dir string `yaml:"dir" json:"dir"`
}

// DefaultConfig returns a default configuration for the Steam collections
// this tool was built for.
func DefaultConfig() *Config {
	opts := engine.DefaultOptions()
	return &Config{
		Capacity: engine.DefaultCapacity,
		Tags: Tags{
			{Tag: "Characters", Collections: ids("3445105194", "3531743955")},
			{Tag: "Vehicles", Collections: ids("3444831495")},
			{Tag: "Tracks", Collections: ids("3445118133")},
			{Tag: "Wheels", Collections: ids("3530392942")},
		},
		URLs: workshop.DefaultURLs(),
		Discovery: DiscoveryConfig{
			Mode:          DiscoveryBrowser,
			MaxEmptyPages: opts.Discovery.MaxEmptyPages,
			MaxPages:      opts.Discovery.MaxPages,
			PageTimeout:   opts.Discovery.PageTimeout,
			Retry:         opts.Discovery.Retry,
		},
		Sync: SyncConfig{
			LoadTimeout:        opts.Sync.LoadTimeout,
			StableProbes:       opts.Sync.StableProbes,
			Budget:             opts.Sync.Budget,
			ProbeInterval:      opts.Sync.ProbeInterval,
			OverCapacityMargin: opts.Sync.OverCapacityMargin,
			Retry:              opts.Sync.Retry,
		},
		Add: AddConfig{
			Attempts:    opts.Add.Retry.Attempts,
			Delay:       opts.Add.Retry.Delay,
			WaitTimeout: 12 * time.Second,
			Settle:      500 * time.Millisecond,
			Pace:        opts.Add.Pace,
		},
		RevalidateThreshold: engine.DefaultRevalidateThreshold,
		SaveInterval:        engine.DefaultSaveInterval,
		SelectionPolicy:     engine.PolicyFirstFit,
		Browser:             browser.DefaultOptions(),
		Storage: StorageConfig{
			Backend:  store.BackendJSON,
			StateDir: "data",
		},
		Publish: PublishConfig{
			Enabled:       true,
			AutoPush:      true,
			MessagePrefix: engine.DefaultMessagePrefix,
			RepoDir:       ".",
			Config: publish.Config{
				Remote:  "origin",
				Timeout: publish.DefaultTimeout,
			},
		},
		Parallel: ParallelConfig{Workers: 1},
		Logging:  LoggingConfig{Verbosity: "normal"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Path = path
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be positive")
	}
	if err := c.Tags.Validate(); err != nil {
		return err
	}
	if err := c.URLs.Validate(); err != nil {
		return fmt.Errorf("invalid urls: %w", err)
	}

	switch c.Discovery.Mode {
	case DiscoveryBrowser, DiscoveryHTTP:
	default:
		return fmt.Errorf("invalid discovery mode: %s (must be 'browser' or 'http')", c.Discovery.Mode)
	}

	switch c.Storage.Backend {
	case store.BackendJSON, store.BackendSQLite:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be '%s' or '%s')", c.Storage.Backend, store.BackendJSON, store.BackendSQLite)
	}
	if strings.TrimSpace(c.Storage.StateDir) == "" {
		return fmt.Errorf("state directory is required")
	}

	if c.Add.Attempts < 1 {
		return fmt.Errorf("add attempts must be at least 1")
	}
	if c.Add.Delay < 0 || c.Add.WaitTimeout < 0 || c.Add.Settle < 0 || c.Add.Pace < 0 {
		return fmt.Errorf("add delays cannot be negative")
	}
	if c.Sync.LoadTimeout <= 0 || c.Sync.Budget <= 0 || c.Discovery.PageTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if _, err := logging.ParseLevel(c.Logging.Verbosity); err != nil {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return c.EngineOptions().Validate()
}

// EngineOptions maps the configuration onto engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Capacity:            c.Capacity,
		RevalidateThreshold: c.RevalidateThreshold,
		SaveInterval:        c.SaveInterval,
		Policy:              c.SelectionPolicy,
		Workers:             c.Parallel.Workers,
		AutoPush:            c.Publish.AutoPush,
		MessagePrefix:       c.Publish.MessagePrefix,
		ReportDir:           c.ReportDir(),
		Discovery: engine.DiscoveryOptions{
			MaxEmptyPages: c.Discovery.MaxEmptyPages,
			MaxPages:      c.Discovery.MaxPages,
			PageTimeout:   c.Discovery.PageTimeout,
			Retry:         c.Discovery.Retry,
		},
		Sync: engine.SyncOptions{
			LoadTimeout:        c.Sync.LoadTimeout,
			StableProbes:       c.Sync.StableProbes,
			Budget:             c.Sync.Budget,
			ProbeInterval:      c.Sync.ProbeInterval,
			OverCapacityMargin: c.Sync.OverCapacityMargin,
			Retry:              c.Sync.Retry,
		},
		Add: engine.AddOptions{
			Retry: retry.Policy{
				Attempts: c.Add.Attempts,
				Delay:    c.Add.Delay,
				Strategy: retry.StrategyFixed,
			},
			Pace: c.Add.Pace,
		},
	}
}

// LogDir returns the directory for per-run log files.
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return filepath.Join(c.Storage.StateDir, "logs")
}

// ReportDir returns the directory for run reports.
func (c *Config) ReportDir() string {
	return filepath.Join(c.Storage.StateDir, "runs")
}

// Unpublished returns the paths under the state directory that hold local
// diagnostics and must never be committed.
func (c *Config) Unpublished() []string {
	return []string{c.LogDir(), c.ReportDir()}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
