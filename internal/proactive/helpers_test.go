package proactive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/rules"
	"github.com/ashita-ai/xiaoban/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeStatuses serves a fixed event list the way the real stores do.
type fakeStatuses struct {
	mu       sync.Mutex
	events   []model.StatusEvent // ascending
	activity time.Time
	err      error
}

func (f *fakeStatuses) add(typ model.StatusType, detail string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, model.StatusEvent{Type: typ, Detail: detail, RecordedAt: at, Source: model.SourceCommand})
}

func (f *fakeStatuses) StatusesBetween(_ context.Context, from, to time.Time) ([]model.StatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.StatusEvent
	for _, ev := range f.events {
		if !ev.RecordedAt.Before(from) && ev.RecordedAt.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStatuses) RecentStatuses(_ context.Context, limit int) ([]model.StatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.StatusEvent
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.events[i])
	}
	return out, nil
}

func (f *fakeStatuses) LastActivity(_ context.Context, _ string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return time.Time{}, f.err
	}
	if f.activity.IsZero() {
		return time.Time{}, storage.ErrNotFound
	}
	return f.activity, nil
}

// fakeGenerator returns a canned reply or error and records prompts.
type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	block   chan struct{} // when non-nil, Generate waits for it to close
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	reply, err, block := g.reply, g.err, g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

var errGeneratorDown = errors.New("generator down")

type fakePusher struct {
	mu      sync.Mutex
	bodies  []string
	titles  []string
	ctxErrs []error
}

func (p *fakePusher) Broadcast(ctx context.Context, title, body string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titles = append(p.titles, title)
	p.bodies = append(p.bodies, body)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return 1
}

func (p *fakePusher) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.bodies...)
}

// fakeTicker lets tests fire ticks by hand.
type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *tickerFactory) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *tickerFactory) last() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[len(f.tickers)-1]
}

// alwaysRule is a periodic rule with no hour filter, so its condition holds
// at any time.
func alwaysRule(id string, prob float64, cooldown time.Duration) rules.Rule {
	return rules.Rule{
		ID:          id,
		Name:        id,
		Enabled:     true,
		Probability: prob,
		Cooldown:    cooldown,
		Condition:   rules.TimePeriodic{},
		PromptHint:  "say hi",
	}
}

type engineFixture struct {
	engine   *Engine
	clock    *fakeClock
	statuses *fakeStatuses
	gen      *fakeGenerator
	pusher   *fakePusher
	tickers  *tickerFactory
}

func newFixture(t *testing.T, rs []rules.Rule, now time.Time, mutate ...func(*Options)) *engineFixture {
	t.Helper()
	fx := &engineFixture{
		clock:    newFakeClock(now),
		statuses: &fakeStatuses{},
		gen:      &fakeGenerator{reply: "早呀～"},
		pusher:   &fakePusher{},
		tickers:  &tickerFactory{},
	}
	opts := Options{
		Rules:     rs,
		Statuses:  fx.statuses,
		Generator: fx.gen,
		Pusher:    fx.pusher,
		Location:  now.Location(),
		Clock:     fx.clock.Now,
		NewTicker: fx.tickers.New,
		Logger:    discardLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(context.Background(), opts)
	require.NoError(t, err)
	fx.engine = e
	t.Cleanup(e.Stop)
	return fx
}
