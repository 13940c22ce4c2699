package proactive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/rules"
	"github.com/ashita-ai/xiaoban/internal/service/llm"
)

// DefaultPersonaName is the assistant's name as it appears in prompts.
const DefaultPersonaName = "小伴"

// promptStatusWindow is how many of today's latest events go into the prompt.
const promptStatusWindow = 5

const noStatusToday = "今日暂无记录"

// Synthesizer turns a fired rule into a short chat message via a text
// generator. Failures are reported, never raised.
type Synthesizer struct {
	gen     llm.Generator
	persona string
	timeout time.Duration
	loc     *time.Location
	logger  *slog.Logger
}

// NewSynthesizer creates a synthesizer. A zero timeout means only the caller's
// context bounds generation.
func NewSynthesizer(gen llm.Generator, persona string, timeout time.Duration, loc *time.Location, logger *slog.Logger) *Synthesizer {
	if persona == "" {
		persona = DefaultPersonaName
	}
	if loc == nil {
		loc = time.Local
	}
	return &Synthesizer{gen: gen, persona: persona, timeout: timeout, loc: loc, logger: logger}
}

// Synthesize generates the message for r. ok is false when the generator
// errored or produced nothing usable.
func (s *Synthesizer) Synthesize(ctx context.Context, r rules.Rule, today []model.StatusEvent) (msg string, ok bool) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(s.persona, r, today, s.loc)
	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("proactive: message synthesis failed", "rule_id", r.ID, "error", err)
		return "", false
	}
	msg = cleanMessage(out)
	if msg == "" {
		s.logger.Warn("proactive: synthesizer returned empty message", "rule_id", r.ID)
		return "", false
	}
	return msg, true
}

// BuildPrompt renders the generation prompt for a fired rule. today must be
// ascending by time; only its last few entries are shown.
func BuildPrompt(persona string, r rules.Rule, today []model.StatusEvent, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是\"%s\"，用户的 AI 陪伴助手。现在需要主动发一条消息给用户。\n\n", persona)
	fmt.Fprintf(&b, "## 触发原因\n%s\n\n", r.Name)
	fmt.Fprintf(&b, "## 消息风格指导\n%s\n\n", r.PromptHint)
	fmt.Fprintf(&b, "## 用户今日状态\n%s\n\n", renderStatuses(today, loc))
	b.WriteString("## 要求\n")
	b.WriteString("- 消息要简短自然，像朋友发微信一样\n")
	b.WriteString("- 可以用 emoji\n")
	b.WriteString("- 不要太正式或客套\n")
	b.WriteString("- 1-2 句话即可\n\n")
	b.WriteString("请直接输出消息内容，不要加任何前缀或解释：\n")
	return b.String()
}

func renderStatuses(today []model.StatusEvent, loc *time.Location) string {
	if len(today) == 0 {
		return noStatusToday
	}
	if len(today) > promptStatusWindow {
		today = today[len(today)-promptStatusWindow:]
	}
	lines := make([]string, 0, len(today))
	for _, ev := range today {
		lines = append(lines, fmt.Sprintf("- %s %s: %s", ev.RecordedAt.In(loc).Format("15:04"), ev.Type, ev.Detail))
	}
	return strings.Join(lines, "\n")
}

// cleanMessage trims whitespace and a single pair of wrapping quotes, which
// chat models sometimes add despite the instructions.
func cleanMessage(s string) string {
	s = strings.TrimSpace(s)
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"「", "」"}} {
		if len(s) > len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			s = strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
			break
		}
	}
	return s
}
