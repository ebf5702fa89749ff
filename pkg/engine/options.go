package engine

import (
	"fmt"
	"time"

	"github.com/adelansari/steam-workshop-collection/pkg/retry"
)

const (
	// DefaultCapacity is the hard item limit of one collection.
	DefaultCapacity = 979

	// DefaultRevalidateThreshold is the remaining headroom at which a
	// target is re-synced before more placements go into it.
	DefaultRevalidateThreshold = 5

	// DefaultSaveInterval is the number of successful placements between
	// cache checkpoints.
	DefaultSaveInterval = 5
)

// DiscoveryOptions tunes the listing walk.
type DiscoveryOptions struct {
	MaxEmptyPages int
	MaxPages      int
	PageTimeout   time.Duration
	Retry         retry.Policy
}

// SyncOptions tunes collection membership reads.
type SyncOptions struct {
	LoadTimeout   time.Duration
	StableProbes  int
	Budget        time.Duration
	ProbeInterval time.Duration
	// OverCapacityMargin stops probing once the count exceeds capacity by
	// this much.
	OverCapacityMargin int
	Retry              retry.Policy
}

// AddOptions tunes remote placement.
type AddOptions struct {
	Retry retry.Policy
	// Pace is the pause after every successful placement.
	Pace time.Duration
}

// Options configures a Runner.
type Options struct {
	Capacity            int
	RevalidateThreshold int
	SaveInterval        int
	Policy              Policy
	Workers             int
	AutoPush            bool
	MessagePrefix       string
	// ReportDir receives one JSON report per run. Empty disables reports.
	ReportDir string

	Discovery DiscoveryOptions
	Sync      SyncOptions
	Add       AddOptions
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		Capacity:            DefaultCapacity,
		RevalidateThreshold: DefaultRevalidateThreshold,
		SaveInterval:        DefaultSaveInterval,
		Policy:              PolicyFirstFit,
		Workers:             1,
		AutoPush:            true,
		MessagePrefix:       DefaultMessagePrefix,
		Discovery: DiscoveryOptions{
			MaxEmptyPages: 3,
			MaxPages:      100,
			PageTimeout:   10 * time.Second,
			Retry:         retry.Policy{Attempts: 2, Delay: 2 * time.Second, Strategy: retry.StrategyFixed},
		},
		Sync: SyncOptions{
			LoadTimeout:        20 * time.Second,
			StableProbes:       3,
			Budget:             60 * time.Second,
			ProbeInterval:      500 * time.Millisecond,
			OverCapacityMargin: 0,
			Retry:              retry.Policy{Attempts: 2, Delay: 2 * time.Second, Strategy: retry.StrategyFixed},
		},
		Add: AddOptions{
			Retry: retry.Policy{Attempts: 3, Delay: 2 * time.Second, Strategy: retry.StrategyFixed},
			Pace:  300 * time.Millisecond,
		},
	}
}

// Validate reports configuration mistakes.
func (o Options) Validate() error {
	if o.Capacity < 1 {
		return fmt.Errorf("capacity must be positive")
	}
	if o.RevalidateThreshold < 0 {
		return fmt.Errorf("revalidate threshold cannot be negative")
	}
	if o.SaveInterval < 1 {
		return fmt.Errorf("save interval must be at least 1")
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if _, err := NewSelector(o.Policy); err != nil {
		return err
	}
	if o.Discovery.MaxEmptyPages < 1 || o.Discovery.MaxPages < 1 {
		return fmt.Errorf("discovery page limits must be positive")
	}
	if o.Sync.StableProbes < 1 {
		return fmt.Errorf("stable probes must be at least 1")
	}
	if o.Sync.OverCapacityMargin < 0 {
		return fmt.Errorf("over-capacity margin cannot be negative")
	}
	for name, p := range map[string]interface{ Validate() error }{
		"discovery": o.Discovery.Retry,
		"sync":      o.Sync.Retry,
		"add":       o.Add.Retry,
	} {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s retry: %w", name, err)
		}
	}
	return nil
}
