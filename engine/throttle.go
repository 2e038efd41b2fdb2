package engine

import (
	"context"

	"golang.org/x/time/rate"
)

// NewLimiter builds a per-worker navigation limiter. It returns nil (no
// throttling) when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// throttledSession delays every navigation until the limiter grants a token.
type throttledSession struct {
	Session
	limiter *rate.Limiter
}

// Throttle wraps s so that Navigate waits on limiter first. A nil limiter
// returns s unchanged.
func Throttle(s Session, limiter *rate.Limiter) Session {
	if limiter == nil {
		return s
	}
	return &throttledSession{Session: s, limiter: limiter}
}

func (t *throttledSession) Navigate(ctx context.Context, url string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Session.Navigate(ctx, url)
}
