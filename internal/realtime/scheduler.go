package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Refresher reloads and republishes the dashboard snapshot.
type Refresher interface {
	Refresh(ctx context.Context, trigger Signal) error
}

// Fan runs every notifier and forwards their signals to out until ctx is
// done. A notifier that fails to start is logged and does not stop the rest.
func Fan(ctx context.Context, logger *slog.Logger, out chan<- Signal, notifiers ...Notifier) error {
	if logger == nil {
		logger = slog.Default()
	}

	var g errgroup.Group
	for _, n := range notifiers {
		n := n
		g.Go(func() error {
			err := n.Run(ctx, out)
			if err != nil {
				logger.ErrorContext(ctx, "notifier stopped", "notifier", n.Name(), "error", err)
			}
			return err
		})
	}
	return g.Wait()
}

// Scheduler runs one full refresh per signal. Refreshes are neither coalesced
// nor cancelled by newer signals; whichever finishes last publishes last.
type Scheduler struct {
	refresher Refresher
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

func NewScheduler(refresher Refresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{refresher: refresher, logger: logger}
}

// Run consumes signals until ctx is done or the channel closes, then waits
// for in-flight refreshes.
func (s *Scheduler) Run(ctx context.Context, signals <-chan Signal) {
	defer s.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			s.Dispatch(ctx, sig)
		}
	}
}

// Dispatch starts a refresh for sig without waiting for it.
func (s *Scheduler) Dispatch(ctx context.Context, sig Signal) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.refresh(ctx, sig)
	}()
}

// Wait blocks until every dispatched refresh has finished.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

func (s *Scheduler) refresh(ctx context.Context, sig Signal) {
	start := time.Now()
	err := s.refresher.Refresh(ctx, sig)
	attrs := []any{
		"trigger_id", sig.ID,
		"origin", string(sig.Origin),
		"table", string(sig.Table),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh failed", append(attrs, "error", err)...)
		return
	}
	s.logger.DebugContext(ctx, "refresh completed", attrs...)
}
