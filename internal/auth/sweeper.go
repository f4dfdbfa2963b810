// AngelaMos | 2026
// sweeper.go

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Sweeper prunes expired refresh and action tokens on an interval so
// the token tables do not grow without bound.
type Sweeper struct {
	refresh   Repository
	actions   ActionTokenRepository
	interval  time.Duration
	logger    *slog.Logger
	started   time.Time
	lastSweep atomic.Int64
}

func NewSweeper(
	refresh Repository,
	actions ActionTokenRepository,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		refresh:  refresh,
		actions:  actions,
		interval: interval,
		logger:   logger,
		started:  time.Now(),
	}
}

// Run blocks until the context is cancelled. Intended to be launched in
// its own goroutine at startup.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Ready feeds the readiness endpoint. A sweeper that has not completed
// a clean pass within two intervals is stalled, usually because the
// database stopped answering.
func (s *Sweeper) Ready(_ context.Context) error {
	reference := s.started
	if ns := s.lastSweep.Load(); ns != 0 {
		reference = time.Unix(0, ns)
	}

	if stale := time.Since(reference); stale > 2*s.interval {
		return fmt.Errorf("last sweep %s ago", stale.Round(time.Second))
	}
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	refreshDeleted, refreshErr := s.refresh.DeleteExpired(ctx)
	if refreshErr != nil {
		s.logger.Error("sweep refresh tokens", "error", refreshErr)
	}

	actionDeleted, actionErr := s.actions.DeleteExpired(ctx)
	if actionErr != nil {
		s.logger.Error("sweep action tokens", "error", actionErr)
	}

	// Only a clean pass counts as progress for the readiness check.
	if refreshErr == nil && actionErr == nil {
		s.lastSweep.Store(time.Now().UnixNano())
	}

	if refreshDeleted > 0 || actionDeleted > 0 {
		s.logger.Info("expired tokens pruned",
			"refresh_tokens", refreshDeleted,
			"action_tokens", actionDeleted,
		)
	}
}
