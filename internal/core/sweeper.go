package core

import (
	"context"
	"log/slog"
	"time"

	"yappuccino/server/internal/metrics"
)

// Sweeper demotes users who stay quiet too long. Candidates are
// selected and flipped inside one directory critical section; the
// resulting broadcasts happen after release.
type Sweeper struct {
	dir       *Directory
	router    *Router
	interval  time.Duration
	threshold time.Duration
}

// NewSweeper returns a sweeper that checks every interval and demotes
// ACTIVE users idle for at least threshold.
func NewSweeper(dir *Directory, router *Router, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{dir: dir, router: router, interval: interval, threshold: threshold}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("inactivity sweeper started", "interval", s.interval, "threshold", s.threshold)
	for {
		select {
		case <-ctx.Done():
			slog.Info("inactivity sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	for _, name := range s.dir.DemoteIdle(s.threshold) {
		metrics.SweeperDemotions.Inc()
		slog.Info("user marked inactive", "user", name, "threshold", s.threshold)
		s.router.BroadcastPresence(name, StateInactive)
	}
}
