package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	closed int
}

func (s *stubSession) Navigate(context.Context, string) error               { return nil }
func (s *stubSession) WaitFor(context.Context, string, time.Duration) error { return nil }
func (s *stubSession) Render(context.Context) error                         { return nil }
func (s *stubSession) QueryAll(context.Context, string) ([]Element, error)  { return nil, nil }
func (s *stubSession) Click(context.Context, string, time.Duration) error   { return nil }
func (s *stubSession) Close() error                                         { s.closed++; return nil }

func TestWith_ClosesOnEveryPath(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		s := &stubSession{}
		err := With(ctx, FactoryFunc(func(context.Context) (Session, error) { return s, nil }), func(Session) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.closed)
	})

	t.Run("error", func(t *testing.T) {
		s := &stubSession{}
		errRun := errors.New("run failed")
		err := With(ctx, FactoryFunc(func(context.Context) (Session, error) { return s, nil }), func(Session) error {
			return errRun
		})
		assert.ErrorIs(t, err, errRun)
		assert.Equal(t, 1, s.closed)
	})

	t.Run("panic", func(t *testing.T) {
		s := &stubSession{}
		assert.Panics(t, func() {
			_ = With(ctx, FactoryFunc(func(context.Context) (Session, error) { return s, nil }), func(Session) error {
				panic("boom")
			})
		})
		assert.Equal(t, 1, s.closed)
	})

	t.Run("open failure", func(t *testing.T) {
		errOpen := errors.New("no browser")
		called := false
		err := With(ctx, FactoryFunc(func(context.Context) (Session, error) { return nil, errOpen }), func(Session) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, errOpen)
		assert.False(t, called)
	})
}
