// Package proactive decides when the companion should message the user
// unprompted. An Engine walks an ordered rule set against the user's recent
// activity, gates each candidate by cooldown and probability, asks a text
// generator for the message, and hands the result to the pending queue and
// web push.
package proactive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/rules"
	"github.com/ashita-ai/xiaoban/internal/service/llm"
	"github.com/ashita-ai/xiaoban/internal/storage"
	"github.com/ashita-ai/xiaoban/internal/telemetry"
)

// DefaultPushTitle is the notification title used when none is configured.
const DefaultPushTitle = "AI 陪伴助手"

// StatusSource is the read side of the status store the engine consults.
type StatusSource interface {
	// StatusesBetween returns events in [from, to), ascending by time.
	StatusesBetween(ctx context.Context, from, to time.Time) ([]model.StatusEvent, error)
	// RecentStatuses returns the latest events, newest first.
	RecentStatuses(ctx context.Context, limit int) ([]model.StatusEvent, error)
	// LastActivity returns storage.ErrNotFound when the user was never seen.
	LastActivity(ctx context.Context, userID string) (time.Time, error)
}

// Pusher fans a notification out to every subscribed device and returns how
// many deliveries succeeded.
type Pusher interface {
	Broadcast(ctx context.Context, title, body string) int
}

// Firing is the outcome of a pass that produced a message.
type Firing struct {
	RuleID   string    `json:"rule_id"`
	RuleName string    `json:"rule_name"`
	Message  string    `json:"message"`
	FiredAt  time.Time `json:"fired_at"`
}

// Options configures an Engine. Rules, Statuses and Generator are required.
type Options struct {
	Rules     []rules.Rule
	Statuses  StatusSource
	Generator llm.Generator
	Cooldowns CooldownStore // nil keeps cooldowns in memory only
	Pusher    Pusher        // nil disables web push
	Queue     *Queue        // nil creates one with QueueCapacity

	QueueCapacity     int
	UserID            string
	PersonaName       string
	PushTitle         string
	Location          *time.Location
	GenerationTimeout time.Duration
	TickTimeout       time.Duration

	Clock     func() time.Time
	Rand      rand.Source
	NewTicker func(time.Duration) Ticker
	Logger    *slog.Logger
}

// Engine evaluates proactive rules. It is safe for concurrent use; passes
// are serialized so a rule cannot fire twice inside one cooldown window.
type Engine struct {
	rules     []rules.Rule
	statuses  StatusSource
	cooldowns *Tracker
	gate      *Gate
	synth     *Synthesizer
	queue     *Queue
	pusher    Pusher
	pushTitle string
	userID    string
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *engineMetrics

	mu sync.Mutex // held for a whole evaluation pass

	schedMu     sync.Mutex
	cancelLoop  context.CancelFunc
	loopDone    chan struct{}
	newTicker   func(time.Duration) Ticker
	tickTimeout time.Duration
	ticking     atomic.Bool
	inflight    sync.WaitGroup

	ticks         atomic.Int64
	skippedTicks  atomic.Int64
	fired         atomic.Int64
	synthFailures atomic.Int64
}

// New builds an engine. The rule set is validated and copied; persisted
// cooldowns are loaded from opts.Cooldowns.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if err := rules.Validate(opts.Rules); err != nil {
		return nil, err
	}
	if opts.Statuses == nil {
		return nil, errors.New("proactive: status source is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("proactive: generator is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	queue := opts.Queue
	if queue == nil {
		queue = NewQueue(opts.QueueCapacity)
	}
	userID := opts.UserID
	if userID == "" {
		userID = model.DefaultUserID
	}
	title := opts.PushTitle
	if title == "" {
		title = DefaultPushTitle
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = newTimeTicker
	}
	tickTimeout := opts.TickTimeout
	if tickTimeout <= 0 {
		tickTimeout = 2 * time.Minute
	}

	e := &Engine{
		rules:       append([]rules.Rule(nil), opts.Rules...),
		statuses:    opts.Statuses,
		cooldowns:   NewTracker(ctx, opts.Cooldowns, logger),
		gate:        NewGate(opts.Rand),
		synth:       NewSynthesizer(opts.Generator, opts.PersonaName, opts.GenerationTimeout, loc, logger),
		queue:       queue,
		pusher:      opts.Pusher,
		pushTitle:   title,
		userID:      userID,
		loc:         loc,
		now:         clock,
		logger:      logger,
		tracer:      telemetry.Tracer("xiaoban/proactive"),
		newTicker:   newTicker,
		tickTimeout: tickTimeout,
	}
	e.metrics = newEngineMetrics(e)
	return e, nil
}

// Tick runs one scheduled pass. A produced message is enqueued for the chat
// surface and pushed to subscribed devices.
func (e *Engine) Tick(ctx context.Context) (Firing, bool) {
	e.ticks.Add(1)
	e.metrics.ticks.Add(ctx, 1)

	f, ok := e.evaluate(ctx)
	if !ok {
		return Firing{}, false
	}
	e.queue.Put(f.Message)
	e.push(ctx, f)
	return f, true
}

// FireNow runs one pass on demand. A produced message is pushed but not
// enqueued; the caller shows it directly.
func (e *Engine) FireNow(ctx context.Context) (Firing, bool) {
	f, ok := e.evaluate(ctx)
	if !ok {
		return Firing{}, false
	}
	e.push(ctx, f)
	return f, true
}

// TakePending removes the oldest queued message without blocking.
func (e *Engine) TakePending() (string, bool) {
	return e.queue.TryTake()
}

// push outlives the caller's context: once the cooldown is recorded the
// firing counts, so a disconnecting HTTP client must not cancel delivery.
func (e *Engine) push(ctx context.Context, f Firing) {
	if e.pusher == nil {
		return
	}
	sent := e.pusher.Broadcast(context.WithoutCancel(ctx), e.pushTitle, f.Message)
	e.logger.Info("proactive: push delivered", "rule_id", f.RuleID, "sent", sent)
}

// evaluate walks the rules in order and returns the first that fires. The
// mutex spans the walk and the cooldown write so concurrent passes observe
// each other's firings.
func (e *Engine) evaluate(ctx context.Context) (Firing, bool) {
	ctx, span := e.tracer.Start(ctx, "proactive.evaluate")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().In(e.loc)
	h := e.loadHistory(ctx, now)

	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		if e.cooldowns.CoolingDown(r.ID, r.Cooldown, now) {
			continue
		}
		if !conditionHolds(r.Condition, now, h) {
			continue
		}
		if !e.gate.ShouldFire(r) {
			e.logger.Debug("proactive: condition held, probability gate declined", "rule_id", r.ID)
			continue
		}
		msg, ok := e.synth.Synthesize(ctx, r, h.today)
		if !ok {
			e.synthFailures.Add(1)
			e.metrics.synthFailures.Add(ctx, 1)
			continue
		}

		e.cooldowns.RecordFiring(ctx, r.ID, now)
		e.fired.Add(1)
		e.metrics.recordFired(ctx, r.ID)
		span.SetAttributes(attribute.String("proactive.rule_id", r.ID))
		e.logger.Info("proactive: rule fired", "rule_id", r.ID, "rule_name", r.Name)
		return Firing{RuleID: r.ID, RuleName: r.Name, Message: msg, FiredAt: now}, true
	}
	return Firing{}, false
}

// loadHistory reads the status view for one pass. Read failures are logged
// and degrade to empty data; a store outage must not stop the scheduler.
func (e *Engine) loadHistory(ctx context.Context, now time.Time) history {
	var h history
	from, to := DayBounds(now, e.loc)

	today, err := e.statuses.StatusesBetween(ctx, from, to)
	if err != nil {
		e.readFailed(ctx, "today's statuses", err)
	}
	h.today = today

	recent, err := e.statuses.RecentStatuses(ctx, recentMoodWindow)
	if err != nil {
		e.readFailed(ctx, "recent statuses", err)
	}
	h.recent = recent

	last, err := e.statuses.LastActivity(ctx, e.userID)
	switch {
	case err == nil:
		h.lastActivity = last
	case !errors.Is(err, storage.ErrNotFound):
		e.readFailed(ctx, "last activity", err)
	}
	return h
}

func (e *Engine) readFailed(ctx context.Context, what string, err error) {
	trace.SpanFromContext(ctx).SetStatus(codes.Error, fmt.Sprintf("read %s", what))
	e.logger.Warn("proactive: read "+what+" failed, treating as empty", "error", err)
}

// Location returns the zone the engine evaluates local-time conditions in.
func (e *Engine) Location() *time.Location { return e.loc }

// RuleState describes one rule and its cooldown for display.
type RuleState struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Kind            rules.Kind      `json:"kind"`
	Enabled         bool            `json:"enabled"`
	Probability     float64         `json:"probability"`
	CooldownMinutes int             `json:"cooldown_minutes"`
	Params          rules.Condition `json:"params"`
	PromptHint      string          `json:"prompt_hint"`
	LastFiredAt     *time.Time      `json:"last_fired_at,omitempty"`
	CoolingUntil    *time.Time      `json:"cooling_until,omitempty"`
}

// Rules returns the rule set in evaluation order with cooldown state.
func (e *Engine) Rules() []RuleState {
	now := e.now()
	out := make([]RuleState, 0, len(e.rules))
	for _, r := range e.rules {
		st := RuleState{
			ID:              r.ID,
			Name:            r.Name,
			Kind:            r.Kind(),
			Enabled:         r.Enabled,
			Probability:     r.Probability,
			CooldownMinutes: int(r.Cooldown / time.Minute),
			Params:          r.Condition,
			PromptHint:      r.PromptHint,
		}
		if last, ok := e.cooldowns.LastFired(r.ID); ok {
			st.LastFiredAt = &last
			if until := last.Add(r.Cooldown); now.Before(until) {
				st.CoolingUntil = &until
			}
		}
		out = append(out, st)
	}
	return out
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Running           bool  `json:"running"`
	Ticks             int64 `json:"ticks"`
	SkippedTicks      int64 `json:"skipped_ticks"`
	Fired             int64 `json:"fired"`
	SynthesisFailures int64 `json:"synthesis_failures"`
	Pending           int   `json:"pending"`
	Dropped           int64 `json:"dropped"`
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Running:           e.Running(),
		Ticks:             e.ticks.Load(),
		SkippedTicks:      e.skippedTicks.Load(),
		Fired:             e.fired.Load(),
		SynthesisFailures: e.synthFailures.Load(),
		Pending:           e.queue.Len(),
		Dropped:           e.queue.Dropped(),
	}
}
