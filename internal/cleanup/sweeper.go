package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// OverdueMarker persists the overdue status for checklists past their due date
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int, error)
}

// Sweeper periodically materializes the overdue status
type Sweeper struct {
	marker   OverdueMarker
	interval time.Duration
}

// NewSweeper creates a new overdue sweeper
func NewSweeper(marker OverdueMarker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Sweeper{
		marker:   marker,
		interval: interval,
	}
}

// Start begins the sweeper in a goroutine
func (s *Sweeper) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run sweeps immediately and then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	slog.Info("overdue sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("overdue sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs a single pass
func (s *Sweeper) sweep(ctx context.Context) {
	slog.Debug("running overdue sweep")

	n, err := s.marker.MarkOverdue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("overdue sweep failed", "error", err, "marked", n)
		return
	}

	if n > 0 {
		slog.Info("checklists marked overdue", "count", n)
	}
}
