package order

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper expires stale pending orders. No stock is restored because
// pending orders never held any; abandonment just closes the payment window.
type Sweeper struct {
	repo     Repository
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(repo Repository, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("pending order sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("pending order sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep marks every pending order past its expiry as abandoned and returns
// how many rows changed. Terminal rows are never touched, so a payment that
// settled just before the sweep keeps its outcome.
func (s *Sweeper) Sweep() (int64, error) {
	swept, err := s.repo.MarkPendingAbandoned(time.Now())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Info("pending orders abandoned", "count", swept)
	}
	return swept, nil
}
