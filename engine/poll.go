package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrWaitTimeout is returned by WaitUntil when its ceiling is exceeded.
var ErrWaitTimeout = errors.New("engine: wait ceiling exceeded")

// Poll evaluates cond immediately and then every interval until it returns
// true, the timeout elapses (ErrWaitTimeout) or ctx is done (ctx.Err()).
//
// Errors from cond are treated as "not yet": pages mid-navigation routinely
// fail queries. The last such error is attached to ErrWaitTimeout.
func Poll(ctx context.Context, cond Condition, timeout, interval time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond(waitCtx)
		switch {
		case err == nil && ok:
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			slog.Debug("poll condition failed, retrying", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", ErrWaitTimeout, lastErr)
			}
			return ErrWaitTimeout
		case <-ticker.C:
		}
	}
}
