package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusType is the category of a recorded life event.
type StatusType string

const (
	StatusWake   StatusType = "wake"
	StatusSleep  StatusType = "sleep"
	StatusShower StatusType = "shower"

	StatusMealBreakfast StatusType = "meal_breakfast"
	StatusMealLunch     StatusType = "meal_lunch"
	StatusMealDinner    StatusType = "meal_dinner"
	StatusDrink         StatusType = "drink"

	StatusStudyStart StatusType = "study_start"
	StatusStudyEnd   StatusType = "study_end"

	StatusOut  StatusType = "out"
	StatusBack StatusType = "back"

	StatusMood StatusType = "mood"
	StatusNote StatusType = "note"
)

// Status sources.
const (
	SourceCommand = "command"
	SourceAI      = "ai"
)

// MaxStatusDetailLen bounds the free-text detail stored with a status event.
const MaxStatusDetailLen = 2000

var statusTypes = []StatusType{
	StatusWake, StatusSleep, StatusShower,
	StatusMealBreakfast, StatusMealLunch, StatusMealDinner, StatusDrink,
	StatusStudyStart, StatusStudyEnd,
	StatusOut, StatusBack,
	StatusMood, StatusNote,
}

// StatusTypes returns every known status type in display order.
func StatusTypes() []StatusType {
	return slices.Clone(statusTypes)
}

// Valid reports whether t is a known status type.
func (t StatusType) Valid() bool {
	return slices.Contains(statusTypes, t)
}

// StatusEvent is a single recorded life event. Read-only to the proactive engine.
type StatusEvent struct {
	ID         uuid.UUID  `json:"id"`
	Type       StatusType `json:"status_type"`
	Detail     string     `json:"detail,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
	Source     string     `json:"source"`
}

// RecordStatusRequest is the request body for POST /v1/status.
type RecordStatusRequest struct {
	StatusType StatusType `json:"status_type"`
	Detail     string     `json:"detail,omitempty"`
	Source     string     `json:"source,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// Validate checks the request and fills in the default source.
func (r *RecordStatusRequest) Validate() error {
	if !r.StatusType.Valid() {
		return fmt.Errorf("unknown status_type %q", r.StatusType)
	}
	if len(r.Detail) > MaxStatusDetailLen {
		return fmt.Errorf("detail exceeds maximum length of %d bytes", MaxStatusDetailLen)
	}
	switch r.Source {
	case "":
		r.Source = SourceCommand
	case SourceCommand, SourceAI:
	default:
		return fmt.Errorf("source must be %q or %q", SourceCommand, SourceAI)
	}
	return nil
}

// simpleCommands map a single command word to its status type.
var simpleCommands = map[string]StatusType{
	"wake":   StatusWake,
	"sleep":  StatusSleep,
	"shower": StatusShower,
	"drink":  StatusDrink,
	"out":    StatusOut,
	"back":   StatusBack,
	"mood":   StatusMood,
	"note":   StatusNote,
}

var mealSubcommands = map[string]StatusType{
	"breakfast": StatusMealBreakfast,
	"lunch":     StatusMealLunch,
	"dinner":    StatusMealDinner,
}

var studySubcommands = map[string]StatusType{
	"start": StatusStudyStart,
	"end":   StatusStudyEnd,
}

// ParseStatusCommand maps a quick status command such as "study start" or
// "mood 有点焦虑" to a status type. Words after the command (and its
// subcommand, for meal and study) become the detail text.
func ParseStatusCommand(args []string) (StatusType, string, error) {
	if len(args) == 0 {
		return "", "", fmt.Errorf("status command is empty")
	}
	cmd := strings.ToLower(strings.TrimPrefix(args[0], "/"))
	rest := args[1:]

	if t, ok := simpleCommands[cmd]; ok {
		return t, strings.Join(rest, " "), nil
	}

	var subs map[string]StatusType
	switch cmd {
	case "meal":
		subs = mealSubcommands
	case "study":
		subs = studySubcommands
	default:
		return "", "", fmt.Errorf("unknown status command %q", args[0])
	}
	if len(rest) == 0 {
		return "", "", fmt.Errorf("%s requires a subcommand (%s)", cmd, subcommandList(subs))
	}
	t, ok := subs[strings.ToLower(rest[0])]
	if !ok {
		return "", "", fmt.Errorf("unknown %s subcommand %q (want %s)", cmd, rest[0], subcommandList(subs))
	}
	return t, strings.Join(rest[1:], " "), nil
}

func subcommandList(subs map[string]StatusType) string {
	return strings.Join(slices.Sorted(maps.Keys(subs)), "|")
}
