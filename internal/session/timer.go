package session

import (
	"context"
	"time"

	"github.com/arjunrm/scamshield/internal/logging"
)

// Sweeper periodically ends sessions that have gone idle. One sweeper
// runs per server process.
type Sweeper struct {
	mgr    *Manager
	every  time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates an idle-session sweeper that scans every interval.
func NewSweeper(mgr *Manager, every time.Duration) *Sweeper {
	if every <= 0 {
		every = 10 * time.Second
	}
	return &Sweeper{mgr: mgr, every: every}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.mgr.EndIdle(ctx); n > 0 {
					logging.L(ctx).Info("idle sessions ended", "count", n)
				}
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}
