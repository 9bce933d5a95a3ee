package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickInterval is the fill cadence.
const TickInterval = time.Second

// FillTimer calls tick at a fixed cadence until stopped. Ticks run one at a time on the
// timer's goroutine, so a slow tick delays the next one instead of queueing it.
type FillTimer struct {
	clock    clockwork.Clock
	interval time.Duration
	tick     func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewFillTimer(clock clockwork.Clock, interval time.Duration, tick func(ctx context.Context)) *FillTimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = TickInterval
	}
	return &FillTimer{clock: clock, interval: interval, tick: tick}
}

// Start stops any running instance first, so at most one exists.
func (t *FillTimer) Start(parent context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	ticker := t.clock.NewTicker(t.interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				t.tick(ctx)
			}
		}
	}()
}

// Stop returns once the timer goroutine has exited; no tick runs after it returns.
func (t *FillTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *FillTimer) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel, t.done = nil, nil
}

func (t *FillTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
