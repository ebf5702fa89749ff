package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/adelansari/steam-workshop-collection/pkg/session"
)

// scrollScript reveals lazily rendered children by jumping to the page end.
const scrollScript = "window.scrollTo(0, document.body.scrollHeight)"

// Session is one Chromium page and the resources behind it.
type Session struct {
	browser playwright.Browser // nil for persistent-profile sessions
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration

	release   func(*Session)
	closeOnce sync.Once
	closeErr  error
}

var _ session.Session = (*Session)(nil)

// Navigate loads url and waits for the DOM to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(s.timeout),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, translate(err))
	}
	return nil
}

// WaitFor waits for selector to be attached to the DOM.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, translate(err))
	}
	return nil
}

// Render scrolls to the bottom of the page.
func (s *Session) Render(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.page.Evaluate(scrollScript); err != nil {
		return fmt.Errorf("scroll failed: %w", translate(err))
	}
	return nil
}

// QueryAll returns handles for every element matching selector.
func (s *Session) QueryAll(ctx context.Context, selector string) ([]session.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handles, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query %q failed: %w", selector, translate(err))
	}

	elements := make([]session.Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, element{handle: h})
	}
	return elements, nil
}

// Click waits until selector is actionable and clicks it.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.page.Click(selector, playwright.PageClickOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, translate(err))
	}
	return nil
}

// Close releases the page, its context and, for isolated sessions, the
// browser process.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.browser == nil {
			// Closing a persistent context closes its pages and the browser.
			errs = closeAll(nil, s.context, nil)
		} else {
			errs = closeAll(s.page, s.context, s.browser)
		}

		var kept []error
		for _, err := range errs {
			if !errors.Is(err, playwright.ErrTargetClosed) {
				kept = append(kept, err)
			}
		}
		if len(kept) > 0 {
			s.closeErr = fmt.Errorf("errors closing session: %w", errors.Join(kept...))
		}

		if s.release != nil {
			s.release(s)
		}
	})
	return s.closeErr
}

type element struct {
	handle playwright.ElementHandle
}

func (e element) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := e.handle.GetAttribute(name)
	if err != nil {
		return "", translate(err)
	}
	return v, nil
}

func (e element) Checked(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, err := e.handle.IsChecked()
	if err != nil {
		return false, translate(err)
	}
	return v, nil
}

func (e element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(e.handle.Click())
}

// translate maps Playwright timeouts onto session.ErrTimeout while keeping
// the original error in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", session.ErrTimeout, err)
	}
	return err
}
