package rules

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to file entries that omit a field.
const (
	DefaultProbability     = 0.7
	DefaultCooldownMinutes = 60
)

type fileDoc struct {
	Rules []fileRule `yaml:"rules"`
}

type fileRule struct {
	ID              string    `yaml:"id"`
	Name            string    `yaml:"name"`
	Kind            Kind      `yaml:"kind"`
	Enabled         *bool     `yaml:"enabled"`
	Probability     *float64  `yaml:"probability"`
	CooldownMinutes *int      `yaml:"cooldown_minutes"`
	Params          yaml.Node `yaml:"params"`
	PromptHint      string    `yaml:"prompt_hint"`
}

// LoadFile reads a YAML rule catalogue. Rules keep file order, which is also
// their evaluation order.
//
//	rules:
//	  - id: no_wake_9am
//	    name: 9点还没起床提醒
//	    kind: time_no_wake
//	    probability: 0.8
//	    cooldown_minutes: 60
//	    params: {wake_deadline_hour: 9}
//	    prompt_hint: ...
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML rule catalogue and validates it.
func Parse(data []byte) ([]Rule, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("rules: decode: %w", err)
	}

	out := make([]Rule, 0, len(doc.Rules))
	for i, fr := range doc.Rules {
		r, err := fr.toRule()
		if err != nil {
			return nil, fmt.Errorf("rules: entry %d: %w", i, err)
		}
		out = append(out, r)
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (fr fileRule) toRule() (Rule, error) {
	cond, err := decodeCondition(fr.Kind, &fr.Params)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{
		ID:          fr.ID,
		Name:        fr.Name,
		Enabled:     true,
		Probability: DefaultProbability,
		Cooldown:    DefaultCooldownMinutes * time.Minute,
		Condition:   cond,
		PromptHint:  fr.PromptHint,
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	if fr.Enabled != nil {
		r.Enabled = *fr.Enabled
	}
	if fr.Probability != nil {
		r.Probability = *fr.Probability
	}
	if fr.CooldownMinutes != nil {
		r.Cooldown = time.Duration(*fr.CooldownMinutes) * time.Minute
	}
	return r, nil
}

// decodeCondition builds the kind-specific params, starting from the same
// defaults the built-in catalogue uses.
func decodeCondition(kind Kind, params *yaml.Node) (Condition, error) {
	var target Condition
	switch kind {
	case KindTimeIdle:
		c := TimeIdle{IdleMinutes: 30}
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		target = c
	case KindTimeNoWake:
		c := TimeNoWake{WakeDeadlineHour: 9}
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		target = c
	case KindTimePeriodic:
		var c TimePeriodic
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		target = c
	case KindStatusStudyLong:
		c := StudyLong{StudyMinutes: 120}
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		target = c
	case KindStatusMoodBad:
		var c MoodBad
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		target = c
	case KindSpecialDate:
		var c SpecialDate
		if err := decodeParams(params, &c); err != nil {
			return nil, err
		}
		target = c
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, kind)
	}
	return target, nil
}

func decodeParams(node *yaml.Node, into any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if err := node.Decode(into); err != nil {
		return fmt.Errorf("%w: params: %w", ErrInvalidRule, err)
	}
	return nil
}
