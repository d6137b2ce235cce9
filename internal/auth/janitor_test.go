package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubPurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (s *stubPurger) DeleteUnverifiedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.n, s.err
}

func TestPurgeUnverified(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &stubPurger{n: 3}

	got := purgeUnverified(context.Background(), p, 7*24*time.Hour, now)
	assert.Equal(t, int64(3), got)
	assert.Equal(t, now.Add(-7*24*time.Hour), p.cutoff)

	p.err = errors.New("db down")
	assert.Zero(t, purgeUnverified(context.Background(), p, time.Hour, now))
}

func TestStartJanitor_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	StartJanitor(ctx, &stubPurger{}, time.Hour)
	StartJanitor(ctx, &stubPurger{}, 0)
	cancel()
}
