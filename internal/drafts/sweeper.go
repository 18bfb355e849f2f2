package drafts

import (
	"context"
	"time"

	"github.com/wolfman30/guarded-reply/pkg/logging"
)

type expirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically expires drafts nobody reviewed in time.
type Sweeper struct {
	store    expirer
	interval time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

func NewSweeper(store expirer, interval time.Duration, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{store: store, interval: interval, logger: logger, now: time.Now}
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.sweep(ctx)
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

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.store.ExpireStale(ctx, s.now())
	if err != nil {
		s.logger.Error("draft sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired stale drafts", "count", n)
	}
}
