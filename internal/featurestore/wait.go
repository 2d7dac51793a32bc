package featurestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitReachable probes s with exponential backoff until it answers or
// maxElapsed passes. Stores without a Ping method are reported reachable.
// Request-time lookups are never retried; this only runs at startup.
func WaitReachable(ctx context.Context, s Store, maxElapsed time.Duration, logger *slog.Logger) error {
	p, ok := s.(Pinger)
	if !ok {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return p.Ping(pingCtx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("feature store not reachable yet",
			slog.String("backend", s.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", next),
			slog.String("error", err.Error()))
	})
}
