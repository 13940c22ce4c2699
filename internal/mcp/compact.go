package mcp

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/xiaoban/internal/model"
)

const maxDetailLen = 200

// compactStatus returns a token-friendly view of an event for agent
// consumption: no UUID, local clock time, truncated detail.
func compactStatus(ev model.StatusEvent) map[string]any {
	m := map[string]any{
		"type":   ev.Type,
		"time":   ev.RecordedAt.Format("15:04"),
		"source": ev.Source,
	}
	if ev.Detail != "" {
		m["detail"] = truncate(ev.Detail, maxDetailLen)
	}
	return m
}

func compactStatuses(events []model.StatusEvent) []map[string]any {
	out := make([]map[string]any, len(events))
	for i, ev := range events {
		out[i] = compactStatus(ev)
	}
	return out
}

// summarizeDay renders a one-line overview of today's timeline, such as
// "woke 07:40; studying since 09:00; 1 mood note".
func summarizeDay(events []model.StatusEvent) string {
	if len(events) == 0 {
		return "nothing recorded today"
	}
	var parts []string
	var studyingSince string
	moods := 0
	for _, ev := range events {
		switch ev.Type {
		case model.StatusWake:
			parts = append(parts, "woke "+ev.RecordedAt.Format("15:04"))
		case model.StatusSleep:
			parts = append(parts, "slept "+ev.RecordedAt.Format("15:04"))
		case model.StatusStudyStart:
			studyingSince = ev.RecordedAt.Format("15:04")
		case model.StatusStudyEnd:
			studyingSince = ""
		case model.StatusMood:
			moods++
		}
	}
	if studyingSince != "" {
		parts = append(parts, "studying since "+studyingSince)
	}
	if moods > 0 {
		parts = append(parts, fmt.Sprintf("%d mood note(s)", moods))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d event(s) recorded", len(events))
	}
	return strings.Join(parts, "; ")
}

// truncate shortens s to at most maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
