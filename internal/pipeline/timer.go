package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mwilder/fraudscore/internal/model"
)

// Timer periodically drains the unscored backlog. Each tick calls RunOnce
// until the backlog is empty. Disabled unless the server configures a
// positive interval; scoring then happens only on explicit requests.
type Timer struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a background scoring timer.
func NewTimer(service *Service, interval time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the drain loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.drain(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

// drain scores until the backlog is empty or an error makes progress
// impossible. A malformed transaction at the head of the queue would be
// reselected forever, so it ends the tick as well.
func (t *Timer) drain(ctx context.Context) {
	for {
		_, err := t.service.RunOnce(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNoNewTransaction):
			return
		case errors.Is(err, model.ErrModelUnavailable):
			return
		default:
			var malformed *MalformedError
			if errors.As(err, &malformed) {
				t.logger.Warn("drain stopped at malformed transaction",
					"trans_num", malformed.TransNum)
				return
			}
			t.logger.Error("drain aborted", "error", err)
			return
		}
	}
}
