package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// PollTimeoutErr terminates a polling auto sign-in whose ceiling elapsed
// before the account was confirmed.
var PollTimeoutErr = errors.New("auto sign-in polling timed out")

// poll runs fn once per interval until it reports done, returns an error, or
// the accumulated elapsed time reaches ceiling. The task self-reports elapsed
// time through its tick count; callers never do their own clock arithmetic.
// Cancellation is internal only: ctx, a terminal fn result, or the ceiling.
func poll(ctx context.Context, interval, ceiling time.Duration, fn func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var elapsed time.Duration
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			elapsed += interval
			done, err := fn(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			if elapsed >= ceiling {
				return PollTimeoutErr
			}
		}
	}
}
