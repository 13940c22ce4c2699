// Package rules defines the catalogue of proactive-message trigger rules.
//
// A Rule is immutable once loaded. Its Condition is a closed set of
// kind-specific parameter structs; the proactive engine switches on the
// concrete type to evaluate it.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidRule is wrapped by every validation failure.
var ErrInvalidRule = errors.New("rules: invalid rule")

// Kind names a condition variant. The string form is used in rule files and logs.
type Kind string

const (
	KindTimeIdle        Kind = "time_idle"
	KindTimeNoWake      Kind = "time_no_wake"
	KindTimePeriodic    Kind = "time_periodic"
	KindStatusStudyLong Kind = "status_study_long"
	KindStatusMoodBad   Kind = "status_mood_bad"
	KindSpecialDate     Kind = "special_date"
)

// Kinds lists every condition kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindTimeIdle,
		KindTimeNoWake,
		KindTimePeriodic,
		KindStatusStudyLong,
		KindStatusMoodBad,
		KindSpecialDate,
	}
}

// Condition is implemented only by the parameter structs in this package.
type Condition interface {
	Kind() Kind
	validate() error
}

// TimeIdle holds when the user has been silent for at least IdleMinutes.
type TimeIdle struct {
	IdleMinutes int `yaml:"idle_minutes" json:"idle_minutes"`
}

// TimeNoWake holds when the local hour has reached WakeDeadlineHour and no
// wake event was recorded today.
type TimeNoWake struct {
	WakeDeadlineHour int `yaml:"wake_deadline_hour" json:"wake_deadline_hour"`
}

// TimePeriodic holds during the listed local hours, or always when Hours is empty.
// Spacing between firings comes from the rule's cooldown.
type TimePeriodic struct {
	Hours []int `yaml:"hours" json:"hours,omitempty"`
}

// StudyLong holds when an unterminated study session has run for StudyMinutes.
type StudyLong struct {
	StudyMinutes int `yaml:"study_minutes" json:"study_minutes"`
}

// MoodBad holds when a recent mood event mentions one of BadKeywords.
// Matching is a case-sensitive substring test.
type MoodBad struct {
	BadKeywords []string `yaml:"bad_keywords" json:"bad_keywords"`
}

// SpecialDate holds on any of the listed dates, written as "MM-DD".
type SpecialDate struct {
	Dates []string `yaml:"dates" json:"dates"`
}

func (TimeIdle) Kind() Kind     { return KindTimeIdle }
func (TimeNoWake) Kind() Kind   { return KindTimeNoWake }
func (TimePeriodic) Kind() Kind { return KindTimePeriodic }
func (StudyLong) Kind() Kind    { return KindStatusStudyLong }
func (MoodBad) Kind() Kind      { return KindStatusMoodBad }
func (SpecialDate) Kind() Kind  { return KindSpecialDate }

func (c TimeIdle) validate() error {
	if c.IdleMinutes <= 0 {
		return fmt.Errorf("idle_minutes must be positive")
	}
	return nil
}

func (c TimeNoWake) validate() error {
	if c.WakeDeadlineHour < 0 || c.WakeDeadlineHour > 23 {
		return fmt.Errorf("wake_deadline_hour must be in 0..23")
	}
	return nil
}

func (c TimePeriodic) validate() error {
	for _, h := range c.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("hours entries must be in 0..23 (got %d)", h)
		}
	}
	return nil
}

func (c StudyLong) validate() error {
	if c.StudyMinutes <= 0 {
		return fmt.Errorf("study_minutes must be positive")
	}
	return nil
}

func (c MoodBad) validate() error {
	if len(c.BadKeywords) == 0 {
		return fmt.Errorf("bad_keywords must not be empty")
	}
	for _, k := range c.BadKeywords {
		if k == "" {
			return fmt.Errorf("bad_keywords must not contain empty strings")
		}
	}
	return nil
}

var monthDay = regexp.MustCompile(`^(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`)

func (c SpecialDate) validate() error {
	if len(c.Dates) == 0 {
		return fmt.Errorf("dates must not be empty")
	}
	for _, d := range c.Dates {
		if !monthDay.MatchString(d) {
			return fmt.Errorf("dates entry %q is not MM-DD", d)
		}
	}
	return nil
}

// Rule is one proactive trigger.
type Rule struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Enabled     bool          `json:"enabled"`
	Probability float64       `json:"probability"`
	Cooldown    time.Duration `json:"-"`
	Condition   Condition     `json:"params"`
	PromptHint  string        `json:"prompt_hint"`
}

// Kind returns the rule's condition kind.
func (r Rule) Kind() Kind {
	if r.Condition == nil {
		return ""
	}
	return r.Condition.Kind()
}

// Validate checks a single rule.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if r.Probability < 0 || r.Probability > 1 {
		return fmt.Errorf("%w: %s: probability must be in [0,1] (got %v)", ErrInvalidRule, r.ID, r.Probability)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("%w: %s: cooldown must not be negative", ErrInvalidRule, r.ID)
	}
	if r.Condition == nil {
		return fmt.Errorf("%w: %s: condition is required", ErrInvalidRule, r.ID)
	}
	if err := r.Condition.validate(); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalidRule, r.ID, err)
	}
	return nil
}

// Validate checks every rule and that ids are unique across the set.
func Validate(set []Rule) error {
	seen := make(map[string]bool, len(set))
	for _, r := range set {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// Default returns the built-in catalogue. The returned slice is a fresh copy.
func Default() []Rule {
	return []Rule{
		{
			ID:          "idle_30min",
			Name:        "用户空闲30分钟问候",
			Enabled:     true,
			Probability: 0.5,
			Cooldown:    120 * time.Minute,
			Condition:   TimeIdle{IdleMinutes: 30},
			PromptHint:  "用户有一段时间没说话了，发一条轻松的问候，问问他在做什么。",
		},
		{
			ID:          "no_wake_9am",
			Name:        "9点还没起床提醒",
			Enabled:     true,
			Probability: 0.8,
			Cooldown:    60 * time.Minute,
			Condition:   TimeNoWake{WakeDeadlineHour: 9},
			PromptHint:  "已经上午了用户还没记录起床，温柔地问候一下，看看他是否还在睡。",
		},
		{
			ID:          "study_2h",
			Name:        "学习2小时提醒休息",
			Enabled:     true,
			Probability: 0.9,
			Cooldown:    30 * time.Minute,
			Condition:   StudyLong{StudyMinutes: 120},
			PromptHint:  "用户已经学习很长时间了，提醒他休息一下，保护眼睛。",
		},
		{
			ID:          "mood_care",
			Name:        "负面情绪关心",
			Enabled:     true,
			Probability: 0.95,
			Cooldown:    180 * time.Minute,
			Condition:   MoodBad{BadKeywords: []string{"紧张", "焦虑", "难过", "累", "烦"}},
			PromptHint:  "用户最近记录了负面情绪，主动关心一下他的状态。",
		},
	}
}
