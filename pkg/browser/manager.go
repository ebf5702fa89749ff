package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/adelansari/steam-workshop-collection/pkg/session"
)

// ErrNotInitialized is returned by Open before Initialize succeeded.
var ErrNotInitialized = errors.New("browser manager not initialized")

// Manager owns the Playwright instance and every session it opened.
type Manager struct {
	mu          sync.Mutex
	opts        Options
	playwright  *playwright.Playwright
	sessions    map[*Session]struct{}
	persistent  *Session
	stateDir    string
	initialized bool
}

var _ session.Factory = (*Manager)(nil)

// NewManager creates a manager. Call Initialize before opening sessions.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts.withDefaults(),
		sessions: make(map[*Session]struct{}),
	}
}

// Initialize installs (unless skipped) and starts the Playwright driver.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if !m.opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	return nil
}

// Open launches a new session.
func (m *Manager) Open(ctx context.Context) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}

	var (
		s   *Session
		err error
	)
	if m.opts.UserDataDir != "" && m.persistent == nil {
		s, err = m.openPersistent()
		if err == nil {
			m.persistent = s
		}
	} else {
		s, err = m.openIsolated()
	}
	if err != nil {
		return nil, err
	}

	s.release = m.forget
	m.sessions[s] = struct{}{}
	return s, nil
}

func (m *Manager) openPersistent() (*Session, error) {
	if err := os.MkdirAll(m.opts.UserDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(m.opts.Headless),
		Viewport: &playwright.Size{
			Width:  m.opts.Viewport.Width,
			Height: m.opts.Viewport.Height,
		},
	}
	if m.opts.Channel != "" {
		launchOpts.Channel = playwright.String(m.opts.Channel)
	}

	bctx, err := m.playwright.Chromium.LaunchPersistentContext(m.opts.UserDataDir, launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser with profile %s: %w", m.opts.UserDataDir, err)
	}

	return m.newSession(nil, bctx)
}

func (m *Manager) openIsolated() (*Session, error) {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.opts.Headless),
	}
	if m.opts.Channel != "" {
		launchOpts.Channel = playwright.String(m.opts.Channel)
	}

	browser, err := m.playwright.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.opts.Viewport.Width,
			Height: m.opts.Viewport.Height,
		},
	}
	if statePath, err := m.exportStorageState(); err != nil {
		_ = browser.Close()
		return nil, err
	} else if statePath != "" {
		contextOpts.StorageStatePath = playwright.String(statePath)
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	return m.newSession(browser, bctx)
}

// exportStorageState writes the persistent session's cookies and local
// storage to a file so isolated sessions start logged in.
func (m *Manager) exportStorageState() (string, error) {
	if m.persistent == nil {
		return "", nil
	}
	if m.stateDir == "" {
		dir, err := os.MkdirTemp("", "collection-sync-state-")
		if err != nil {
			return "", fmt.Errorf("failed to create storage state directory: %w", err)
		}
		m.stateDir = dir
	}

	path := filepath.Join(m.stateDir, "storage.json")
	if _, err := m.persistent.context.StorageState(path); err != nil {
		return "", fmt.Errorf("failed to export storage state: %w", err)
	}
	return path, nil
}

func (m *Manager) newSession(browser playwright.Browser, bctx playwright.BrowserContext) (*Session, error) {
	if m.opts.BlockImages {
		err := bctx.Route("**/*", func(route playwright.Route) {
			if route.Request().ResourceType() == "image" {
				_ = route.Abort()
				return
			}
			_ = route.Continue()
		})
		if err != nil {
			closeAll(nil, bctx, browser)
			return nil, fmt.Errorf("failed to install image filter: %w", err)
		}
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		p, err := bctx.NewPage()
		if err != nil {
			closeAll(nil, bctx, browser)
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
		page = p
	}

	page.SetDefaultTimeout(*millis(m.opts.Timeout))

	return &Session{
		browser: browser,
		context: bctx,
		page:    page,
		timeout: m.opts.Timeout,
	}, nil
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, s)
	if m.persistent == s {
		m.persistent = nil
	}
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every open session and stops Playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		m.initialized = false
	}
	if m.stateDir != "" {
		_ = os.RemoveAll(m.stateDir)
		m.stateDir = ""
	}

	return errors.Join(errs...)
}

func closeAll(page playwright.Page, bctx playwright.BrowserContext, browser playwright.Browser) []error {
	var errs []error
	if page != nil {
		if err := page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if bctx != nil {
		if err := bctx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
