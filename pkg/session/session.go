// Package session defines the capability the synchronizer needs from an
// automated UI session, independent of the automation library behind it.
//
// A Session is an explicit handle: it is acquired once per run (or once per
// worker) and passed into every collaborator call. With guarantees release
// on every exit path.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a waited-for page condition never appears.
var ErrTimeout = errors.New("timed out waiting for page condition")

// Element is a node found on the current page.
type Element interface {
	Attribute(ctx context.Context, name string) (string, error)
	Checked(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
}

// Session is one automated UI session.
type Session interface {
	// Navigate loads url in the session's page.
	Navigate(ctx context.Context, url string) error

	// WaitFor blocks until selector matches an element or timeout elapses,
	// in which case the error wraps ErrTimeout.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// Render triggers incremental rendering of lazily revealed content.
	Render(ctx context.Context) error

	// QueryAll returns every element matching selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Click waits for selector to become clickable and clicks it.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Factory creates sessions.
type Factory interface {
	Open(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Session, error)

// Open calls f.
func (f FactoryFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}

// With opens a session, runs fn with it and closes it afterwards, including
// when fn returns an error or panics.
func With(ctx context.Context, factory Factory, fn func(Session) error) (err error) {
	s, err := factory.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close session: %w", closeErr)
		}
	}()

	return fn(s)
}
