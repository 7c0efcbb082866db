package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/model"
)

// DefaultSweepInterval is how often expired groups are removed.
const DefaultSweepInterval = 6 * time.Hour

// Sweep removes every group dated strictly before today from every location
// and returns how many were removed. Groups dated today or later are left
// alone, and locations are kept even when they end up empty.
//
// Each location is handled in two phases, collecting the expired ids and
// then deleting them, so the group map is not mutated while being ranged
// over.
func (d *Directory) Sweep(ctx context.Context, today model.Date) (int, error) {
	if err := d.acquire(ctx); err != nil {
		return 0, err
	}
	defer d.release()

	removed := 0
	d.store.each(func(l *location) {
		var expired []uuid.UUID
		for id, g := range l.groups {
			if g.Date.Before(today) {
				expired = append(expired, id)
			}
		}
		for _, id := range expired {
			delete(l.groups, id)
		}
		removed += len(expired)
	})

	d.metrics.Swept(removed)
	return removed, nil
}

// Sweeper runs Directory.Sweep on a fixed interval until stopped.
// Missed ticks are not caught up.
type Sweeper struct {
	dir      *Directory
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper for dir. A non-positive interval falls back
// to DefaultSweepInterval.
func NewSweeper(dir *Directory, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		dir:      dir,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once immediately and then on every tick, blocking until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", slog.Duration("interval", s.interval))
	s.sweepOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		}
	}
}

// Start runs the sweeper in its own goroutine. It stops when ctx is
// cancelled or Stop is called. Calling Start on a running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Stop cancels a started sweeper and waits for its goroutine to exit.
// A stopped sweeper can be started again.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.cancel = nil
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()
	today := s.dir.today()

	removed, err := s.dir.Sweep(ctx, today)
	if err != nil {
		s.logger.Warn("expiry sweep skipped", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("expiry sweep finished",
		slog.String("today", today.String()),
		slog.Int("removed", removed),
		slog.Duration("took", time.Since(start)),
	)
}
