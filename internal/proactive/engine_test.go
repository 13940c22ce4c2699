package proactive

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/rules"
)

func TestNewRejectsInvalidRules(t *testing.T) {
	_, err := New(context.Background(), Options{
		Rules:     []rules.Rule{alwaysRule("r", 2, 0)},
		Statuses:  &fakeStatuses{},
		Generator: &fakeGenerator{},
	})
	require.ErrorIs(t, err, rules.ErrInvalidRule)

	_, err = New(context.Background(), Options{Rules: rules.Default(), Generator: &fakeGenerator{}})
	require.Error(t, err)
}

func TestFireNowFirstMatchingRuleWins(t *testing.T) {
	first := rules.Rule{
		ID: "wake", Name: "wake", Enabled: true, Probability: 1,
		Condition: rules.TimeNoWake{WakeDeadlineHour: 9},
	}
	second := rules.Rule{
		ID: "study", Name: "study", Enabled: true, Probability: 1,
		Condition: rules.StudyLong{StudyMinutes: 120},
	}
	fx := newFixture(t, []rules.Rule{first, second}, at(10, 0))

	for range 10 {
		f, ok := fx.engine.FireNow(context.Background())
		require.True(t, ok)
		assert.Equal(t, "wake", f.RuleID)
		fx.clock.Advance(time.Minute)
	}
}

func TestFireNowAtMostOnePerPass(t *testing.T) {
	fx := newFixture(t, []rules.Rule{
		alwaysRule("a", 1, time.Hour),
		alwaysRule("b", 1, time.Hour),
	}, at(12, 0))

	f, ok := fx.engine.FireNow(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", f.RuleID)
	assert.Equal(t, 1, fx.gen.calls())

	_, bCooling := fx.engine.cooldowns.LastFired("b")
	assert.False(t, bCooling, "later rules are not evaluated after a firing")

	f, ok = fx.engine.FireNow(context.Background())
	require.True(t, ok)
	assert.Equal(t, "b", f.RuleID, "a is cooling down, so b fires next")
}

func TestCooldownEnforcement(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, 30*time.Minute)}, at(12, 0))
	ctx := context.Background()

	_, ok := fx.engine.FireNow(ctx)
	require.True(t, ok)

	fx.clock.Set(at(12, 29))
	_, ok = fx.engine.FireNow(ctx)
	assert.False(t, ok, "T+(C-1) is still cooling down")

	fx.clock.Set(at(12, 31))
	_, ok = fx.engine.FireNow(ctx)
	assert.True(t, ok, "T+(C+1) may fire again")
}

func TestProbabilityZeroNeverFires(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 0, 0)}, at(12, 0))
	for range 1000 {
		_, ok := fx.engine.FireNow(context.Background())
		require.False(t, ok)
	}
	assert.Equal(t, 0, fx.gen.calls(), "a gated-out rule never reaches the generator")
}

func TestProbabilityOneAlwaysFires(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, 0)}, at(12, 0))
	for range 1000 {
		_, ok := fx.engine.FireNow(context.Background())
		require.True(t, ok)
	}
}

func TestDisabledRuleNeverFires(t *testing.T) {
	r := alwaysRule("r", 1, 0)
	r.Enabled = false
	fx := newFixture(t, []rules.Rule{r}, at(12, 0))

	_, ok := fx.engine.FireNow(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 0, fx.gen.calls())
}

func TestSynthesisFailureRecordsNoCooldown(t *testing.T) {
	for _, tc := range []struct {
		name  string
		reply string
		err   error
	}{
		{"error", "", errGeneratorDown},
		{"empty", "  ", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, time.Hour)}, at(12, 0))
			fx.gen.reply, fx.gen.err = tc.reply, tc.err

			_, ok := fx.engine.FireNow(context.Background())
			require.False(t, ok)
			_, recorded := fx.engine.cooldowns.LastFired("r")
			assert.False(t, recorded)

			fx.gen.reply, fx.gen.err = "好了", nil
			f, ok := fx.engine.FireNow(context.Background())
			require.True(t, ok, "the rule is still eligible right after a failed attempt")
			assert.Equal(t, "好了", f.Message)
			assert.Equal(t, int64(1), fx.engine.Stats().SynthesisFailures)
		})
	}
}

// sequenceGenerator fails for the first rule's prompt and succeeds after.
type sequenceGenerator struct {
	replies []string
	errs    []error
	n       int
}

func (g *sequenceGenerator) Generate(context.Context, string) (string, error) {
	i := g.n
	g.n++
	return g.replies[i], g.errs[i]
}

func TestSynthesisFailureContinuesToNextRule(t *testing.T) {
	gen := &sequenceGenerator{
		replies: []string{"", "第二条"},
		errs:    []error{errors.New("boom"), nil},
	}
	fx := newFixture(t, []rules.Rule{
		alwaysRule("a", 1, time.Hour),
		alwaysRule("b", 1, time.Hour),
	}, at(12, 0), func(o *Options) { o.Generator = gen })

	f, ok := fx.engine.FireNow(context.Background())
	require.True(t, ok)
	assert.Equal(t, "b", f.RuleID)
	assert.Equal(t, "第二条", f.Message)
}

func TestFireNowPushesButDoesNotEnqueue(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, 0)}, at(12, 0))

	f, ok := fx.engine.FireNow(context.Background())
	require.True(t, ok)
	assert.Equal(t, []string{f.Message}, fx.pusher.sent())
	assert.Equal(t, DefaultPushTitle, fx.pusher.titles[0])

	_, pending := fx.engine.TakePending()
	assert.False(t, pending)
}

func TestTickEnqueuesAndPushes(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, time.Hour)}, at(12, 0))

	_, ok := fx.engine.Tick(context.Background())
	require.True(t, ok)

	msg, ok := fx.engine.TakePending()
	require.True(t, ok)
	assert.Equal(t, "早呀～", msg)
	assert.Len(t, fx.pusher.sent(), 1)

	_, ok = fx.engine.Tick(context.Background())
	assert.False(t, ok)
	assert.Equal(t, int64(2), fx.engine.Stats().Ticks)
	assert.Equal(t, int64(1), fx.engine.Stats().Fired)
}

func TestConcurrentTickAndFireNowFireOnce(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, time.Hour)}, at(12, 0))
	ctx := context.Background()

	const passes = 50
	var fired atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range passes {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := fx.engine.Tick(ctx); ok {
				fired.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			if _, ok := fx.engine.FireNow(ctx); ok {
				fired.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), fired.Load(), "one firing per cooldown window across both triggers")
	assert.Equal(t, 1, fx.gen.calls())
	assert.Len(t, fx.pusher.sent(), 1)
	assert.Equal(t, int64(1), fx.engine.Stats().Fired)
}

func TestPushSurvivesCancelledCaller(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, time.Hour)}, at(12, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := fx.engine.FireNow(ctx)
	require.True(t, ok)

	fx.pusher.mu.Lock()
	defer fx.pusher.mu.Unlock()
	require.Len(t, fx.pusher.ctxErrs, 1)
	assert.NoError(t, fx.pusher.ctxErrs[0], "delivery runs on a context the caller cannot cancel")
}

func TestNoWakeScenario(t *testing.T) {
	noWake := rules.Rule{
		ID: "no_wake_9am", Name: "早上没起床", Enabled: true, Probability: 1,
		Cooldown:   60 * time.Minute,
		Condition:  rules.TimeNoWake{WakeDeadlineHour: 9},
		PromptHint: "用户还没报告起床",
	}
	fx := newFixture(t, []rules.Rule{noWake}, at(10, 0))
	fx.statuses.add(model.StatusDrink, "", at(8, 0))
	ctx := context.Background()

	f, ok := fx.engine.FireNow(ctx)
	require.True(t, ok)
	assert.NotEmpty(t, f.Message)

	fx.clock.Set(at(10, 5))
	_, ok = fx.engine.FireNow(ctx)
	assert.False(t, ok)

	fx.clock.Set(at(11, 5))
	f, ok = fx.engine.FireNow(ctx)
	require.True(t, ok)
	assert.NotEmpty(t, f.Message)

	fx.statuses.add(model.StatusWake, "", at(11, 10))
	fx.clock.Set(at(12, 30))
	_, ok = fx.engine.FireNow(ctx)
	assert.False(t, ok, "a wake event today clears the condition")
}

func TestYesterdaysWakeDoesNotCount(t *testing.T) {
	fx := newFixture(t, []rules.Rule{{
		ID: "w", Name: "w", Enabled: true, Probability: 1,
		Condition: rules.TimeNoWake{WakeDeadlineHour: 9},
	}}, at(10, 0))
	fx.statuses.add(model.StatusWake, "", at(7, 0).AddDate(0, 0, -1))

	_, ok := fx.engine.FireNow(context.Background())
	assert.True(t, ok)
}

func TestPromptCarriesTodaysStatuses(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("r", 1, 0)}, at(12, 0))
	fx.statuses.add(model.StatusMealLunch, "牛肉面", at(11, 45))

	_, ok := fx.engine.FireNow(context.Background())
	require.True(t, ok)
	assert.Contains(t, fx.gen.prompts[0], "11:45 meal_lunch: 牛肉面")
}

func TestIdleUsesLastActivity(t *testing.T) {
	idle := rules.Rule{
		ID: "idle", Name: "idle", Enabled: true, Probability: 1,
		Condition: rules.TimeIdle{IdleMinutes: 30},
	}
	fx := newFixture(t, []rules.Rule{idle}, at(12, 0))

	_, ok := fx.engine.FireNow(context.Background())
	assert.False(t, ok, "no recorded activity")

	fx.statuses.activity = at(11, 0)
	_, ok = fx.engine.FireNow(context.Background())
	assert.True(t, ok)
}

func TestStatusReadFailureDegradesToEmpty(t *testing.T) {
	fx := newFixture(t, []rules.Rule{
		{ID: "mood", Name: "mood", Enabled: true, Probability: 1, Condition: rules.MoodBad{BadKeywords: []string{"累"}}},
		alwaysRule("fallback", 1, 0),
	}, at(12, 0))
	fx.statuses.err = errors.New("db down")

	f, ok := fx.engine.FireNow(context.Background())
	require.True(t, ok)
	assert.Equal(t, "fallback", f.RuleID)
}

func TestCooldownSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trigger_history.json")
	rs := []rules.Rule{alwaysRule("r", 1, time.Hour)}
	withFile := func(o *Options) { o.Cooldowns = NewFileCooldownStore(path) }

	fx := newFixture(t, rs, at(12, 0), withFile)
	_, ok := fx.engine.FireNow(context.Background())
	require.True(t, ok)

	restarted := newFixture(t, rs, at(12, 30), withFile)
	_, ok = restarted.engine.FireNow(context.Background())
	assert.False(t, ok, "cooldown persisted across engine instances")

	restarted.clock.Set(at(13, 0))
	_, ok = restarted.engine.FireNow(context.Background())
	assert.True(t, ok)
}

func TestRulesReportsCooldownState(t *testing.T) {
	fx := newFixture(t, []rules.Rule{alwaysRule("a", 1, time.Hour), alwaysRule("b", 1, time.Hour)}, at(12, 0))
	_, ok := fx.engine.FireNow(context.Background())
	require.True(t, ok)

	states := fx.engine.Rules()
	require.Len(t, states, 2)
	assert.Equal(t, "a", states[0].ID)
	assert.Equal(t, rules.KindTimePeriodic, states[0].Kind)
	assert.Equal(t, 60, states[0].CooldownMinutes)
	require.NotNil(t, states[0].CoolingUntil)
	assert.True(t, states[0].CoolingUntil.Equal(at(13, 0)))
	assert.Nil(t, states[1].LastFiredAt)
}
