// Package retry provides the single retry policy used by every remote call
// site: listing page loads, collection syncs and add operations.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Strategy selects how the delay between attempts evolves.
type Strategy string

const (
	// StrategyFixed waits the same Delay between every attempt.
	StrategyFixed Strategy = "fixed"
	// StrategyExponential doubles the delay after each attempt, capped at MaxDelay.
	StrategyExponential Strategy = "exponential"
)

// Policy describes a bounded retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int `yaml:"attempts" json:"attempts"`
	// Delay is the wait between attempts (initial wait for exponential).
	Delay time.Duration `yaml:"delay" json:"delay"`
	// Strategy is fixed (default) or exponential.
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	// MaxDelay caps exponential growth. Zero means no cap.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
}

// Once is a policy that never retries.
var Once = Policy{Attempts: 1}

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Validate reports configuration mistakes.
func (p Policy) Validate() error {
	if p.Attempts < 0 {
		return fmt.Errorf("attempts cannot be negative")
	}
	if p.Delay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	switch p.Strategy {
	case "", StrategyFixed, StrategyExponential:
	default:
		return fmt.Errorf("invalid retry strategy: %s (must be 'fixed' or 'exponential')", p.Strategy)
	}
	return nil
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done. The last attempt's error is returned.
func (p Policy) Do(ctx context.Context, fn Func) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := fn(ctx, attempt); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
	)
	return err
}

func (p Policy) backOff() backoff.BackOff {
	if p.Strategy != StrategyExponential {
		return backoff.NewConstantBackOff(p.Delay)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	return b
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Sleep waits for d or until ctx is done. It returns ctx.Err() when ctx is
// done, including for a non-positive d.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
