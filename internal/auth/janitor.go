package auth

import (
	"context"
	"log/slog"
	"time"
)

const janitorInterval = time.Hour

// UnverifiedPurger deletes unverified accounts created before a cutoff.
type UnverifiedPurger interface {
	DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartJanitor runs a background goroutine that periodically removes
// accounts left unverified for longer than ttl.
func StartJanitor(ctx context.Context, repo UnverifiedPurger, ttl time.Duration) {
	if ttl <= 0 {
		slog.Info("Unverified account janitor disabled")
		return
	}
	ticker := time.NewTicker(janitorInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Unverified account janitor started", "interval", janitorInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				purgeUnverified(ctx, repo, ttl, time.Now())
			case <-ctx.Done():
				slog.Info("Unverified account janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func purgeUnverified(ctx context.Context, repo UnverifiedPurger, ttl time.Duration, now time.Time) int64 {
	deleted, err := repo.DeleteUnverifiedBefore(ctx, now.Add(-ttl))
	if err != nil {
		slog.Error("Janitor failed to delete unverified accounts", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("Janitor removed unverified accounts", "count", deleted)
	}
	return deleted
}
