package proactive

import (
	"context"
	"fmt"
	"time"
)

// DefaultInterval is how often the scheduler runs a pass.
const DefaultInterval = 5 * time.Minute

// Ticker is the subset of time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Start launches the periodic loop. Calling Start while the loop runs is a
// no-op. The loop ends when ctx is cancelled or Stop is called; it may be
// started again afterwards.
func (e *Engine) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("proactive: interval must be positive (got %s)", interval)
	}

	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.loopActiveLocked() {
		e.logger.Debug("proactive: scheduler already running")
		return nil
	}

	if e.cancelLoop != nil {
		e.cancelLoop() // release the context of a loop that ended on its own
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancelLoop = cancel
	e.loopDone = done
	go e.loop(loopCtx, e.newTicker(interval), done)

	e.logger.Info("proactive: scheduler started", "interval", interval)
	return nil
}

// Stop ends the loop and waits for it to exit. A tick already in flight
// keeps running; use Drain to wait for it. Stop on a stopped engine is a
// no-op.
func (e *Engine) Stop() {
	e.schedMu.Lock()
	cancel, done := e.cancelLoop, e.loopDone
	e.cancelLoop, e.loopDone = nil, nil
	e.schedMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("proactive: scheduler stopped")
}

// Drain stops the loop and blocks until any in-flight tick finishes or ctx
// expires.
func (e *Engine) Drain(ctx context.Context) error {
	e.Stop()

	idle := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		e.logger.Warn("proactive: drain timed out with a tick in flight")
		return ctx.Err()
	}
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.loopActiveLocked()
}

// loopActiveLocked reports whether a loop was started and has not exited,
// which also covers a loop ended by its parent context. Requires schedMu.
func (e *Engine) loopActiveLocked() bool {
	if e.loopDone == nil {
		return false
	}
	select {
	case <-e.loopDone:
		return false
	default:
		return true
	}
}

func (e *Engine) loop(ctx context.Context, t Ticker, done chan struct{}) {
	defer close(done)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			e.dispatchTick(ctx)
		}
	}
}

// dispatchTick runs a pass in the background unless the previous one is
// still going, in which case this tick is skipped. The pass outlives Stop so
// a half-finished generation still lands in the queue.
func (e *Engine) dispatchTick(ctx context.Context) {
	if !e.ticking.CompareAndSwap(false, true) {
		e.skippedTicks.Add(1)
		e.metrics.skipped.Add(ctx, 1)
		e.logger.Warn("proactive: previous tick still running, skipping")
		return
	}

	e.inflight.Add(1)
	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.tickTimeout)
	go func() {
		defer e.inflight.Done()
		defer e.ticking.Store(false)
		defer cancel()
		e.Tick(tickCtx)
	}()
}
