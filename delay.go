package weather

import (
	"context"
	"time"
)

// Delayer suspends the caller. Implementations must return early with the
// context error when ctx is done.
type Delayer interface {
	Delay(ctx context.Context, d time.Duration) error
}

// DelayFunc adapts a function to the Delayer interface.
type DelayFunc func(ctx context.Context, d time.Duration) error

func (f DelayFunc) Delay(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Sleep is the wall clock Delayer.
var Sleep Delayer = DelayFunc(sleep)

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
