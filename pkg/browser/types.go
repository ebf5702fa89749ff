package browser

import "time"

const (
	// DefaultViewportWidth is the default browser viewport width in pixels.
	DefaultViewportWidth = 1920

	// DefaultViewportHeight is the default browser viewport height in pixels.
	DefaultViewportHeight = 1080

	// DefaultTimeout is the default timeout for page operations.
	DefaultTimeout = 30 * time.Second
)

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Options configures the sessions a Manager opens.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool `yaml:"headless"`

	// UserDataDir is a persistent Chromium profile directory. Empty means a
	// throwaway profile per session.
	UserDataDir string `yaml:"user_data_dir"`

	// Channel selects a branded browser build such as "msedge" or "chrome".
	Channel string `yaml:"channel"`

	// BlockImages aborts image requests to cut page weight
	BlockImages bool `yaml:"block_images"`

	// Viewport sets the initial viewport size
	Viewport Viewport `yaml:"viewport"`

	// Timeout is the default timeout for navigation and actions
	Timeout time.Duration `yaml:"timeout"`

	// SkipInstall skips downloading the driver and browsers on Initialize
	SkipInstall bool `yaml:"skip_install"`
}

// DefaultOptions returns headless options with images blocked.
func DefaultOptions() Options {
	return Options{
		Headless:    true,
		BlockImages: true,
		Viewport: Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		},
		Timeout: DefaultTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

func millis(d time.Duration) *float64 {
	ms := float64(d.Milliseconds())
	return &ms
}
