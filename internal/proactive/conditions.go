package proactive

import (
	"slices"
	"strings"
	"time"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/rules"
)

// recentMoodWindow is how many of the latest events the mood rule inspects.
const recentMoodWindow = 5

// history is the read-only view of user activity a single evaluation pass
// works from. today is ascending by RecordedAt; recent is newest first.
type history struct {
	today        []model.StatusEvent
	recent       []model.StatusEvent
	lastActivity time.Time // zero when no activity was ever recorded
}

// conditionHolds reports whether the rule's factual trigger holds at now.
// It has no side effects. Kinds it does not recognise evaluate to false.
func conditionHolds(cond rules.Condition, now time.Time, h history) bool {
	holds, _ := evaluateCondition(cond, now, h)
	return holds
}

// evaluateCondition also reports whether the condition kind was handled, so
// tests can assert that every kind has a real branch.
func evaluateCondition(cond rules.Condition, now time.Time, h history) (holds, handled bool) {
	switch c := cond.(type) {
	case rules.TimeIdle:
		return idleFor(c, now, h), true
	case rules.TimeNoWake:
		return noWakeBy(c, now, h), true
	case rules.TimePeriodic:
		return len(c.Hours) == 0 || slices.Contains(c.Hours, now.Hour()), true
	case rules.StudyLong:
		return studyingFor(c, now, h), true
	case rules.MoodBad:
		return moodIsBad(c, h), true
	case rules.SpecialDate:
		return slices.Contains(c.Dates, now.Format("01-02")), true
	default:
		return false, false
	}
}

func idleFor(c rules.TimeIdle, now time.Time, h history) bool {
	if h.lastActivity.IsZero() {
		return false
	}
	return now.Sub(h.lastActivity) >= time.Duration(c.IdleMinutes)*time.Minute
}

func noWakeBy(c rules.TimeNoWake, now time.Time, h history) bool {
	if now.Hour() < c.WakeDeadlineHour {
		return false
	}
	for _, ev := range h.today {
		if ev.Type == model.StatusWake {
			return false
		}
	}
	return true
}

// studyingFor walks today's events newest first and stops at the first study
// boundary. Only an open study_start counts.
func studyingFor(c rules.StudyLong, now time.Time, h history) bool {
	for i := len(h.today) - 1; i >= 0; i-- {
		switch h.today[i].Type {
		case model.StatusStudyEnd:
			return false
		case model.StatusStudyStart:
			return now.Sub(h.today[i].RecordedAt) >= time.Duration(c.StudyMinutes)*time.Minute
		}
	}
	return false
}

func moodIsBad(c rules.MoodBad, h history) bool {
	window := h.recent
	if len(window) > recentMoodWindow {
		window = window[:recentMoodWindow]
	}
	for _, ev := range window {
		if ev.Type != model.StatusMood || ev.Detail == "" {
			continue
		}
		for _, kw := range c.BadKeywords {
			if strings.Contains(ev.Detail, kw) {
				return true
			}
		}
	}
	return false
}

// DayBounds returns the half-open local calendar day [from, to) containing t.
func DayBounds(t time.Time, loc *time.Location) (from, to time.Time) {
	t = t.In(loc)
	from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}
