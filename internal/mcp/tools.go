package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/xiaoban/internal/model"
)

const errProactiveDisabled = "proactive engine is disabled"

func (s *Server) registerTools() {
	// xiaoban_record_status: append a life-status event.
	s.mcpServer.AddTool(
		mcplib.NewTool("xiaoban_record_status",
			mcplib.WithDescription(`Record what the user is doing right now.

WHEN TO USE: Whenever the user mentions a change in their day: waking up,
going to sleep, a meal, starting or finishing study, going out or coming
back, or how they feel. Proactive messages are chosen from these records,
so a missing "wake" or "study_end" leads to the wrong kind of care.

EXAMPLE: The user says "刚起床" → status_type="wake".
The user says "好烦啊，考试要挂了" → status_type="mood", detail="考试压力大，很烦".`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("status_type",
				mcplib.Description("One of: "+strings.Join(statusTypeNames(), ", ")),
				mcplib.Enum(statusTypeNames()...),
				mcplib.Required(),
			),
			mcplib.WithString("detail",
				mcplib.Description("Optional free text, e.g. the mood in the user's own words"),
			),
			mcplib.WithString("source",
				mcplib.Description(`"ai" when inferred from conversation (default), "command" when the user explicitly reported it`),
				mcplib.Enum(model.SourceAI, model.SourceCommand),
			),
		),
		s.handleRecordStatus,
	)

	// xiaoban_status_today: today's timeline.
	s.mcpServer.AddTool(
		mcplib.NewTool("xiaoban_status_today",
			mcplib.WithDescription("List the user's status events recorded today, oldest first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleStatusToday,
	)

	// xiaoban_rules: proactive rule catalogue with cooldown state.
	s.mcpServer.AddTool(
		mcplib.NewTool("xiaoban_rules",
			mcplib.WithDescription("List the proactive messaging rules, when each last fired, and whether it is cooling down."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleRules,
	)

	// xiaoban_fire_now: run one evaluation pass immediately.
	s.mcpServer.AddTool(
		mcplib.NewTool("xiaoban_fire_now",
			mcplib.WithDescription(`Evaluate the proactive rules right now and, if one fires, return the generated message.

The message is also pushed to the user's subscribed browsers. Rules in
cooldown never fire, so calling this repeatedly is safe.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handleFireNow,
	)

	// xiaoban_take_pending: pop one queued proactive message.
	s.mcpServer.AddTool(
		mcplib.NewTool("xiaoban_take_pending",
			mcplib.WithDescription("Take the oldest proactive message queued by the scheduler, if any. Each message is returned once."),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleTakePending,
	)
}

func (s *Server) handleRecordStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.RecordStatusRequest{
		StatusType: model.StatusType(request.GetString("status_type", "")),
		Detail:     request.GetString("detail", ""),
		Source:     request.GetString("source", model.SourceAI),
	}
	ev, err := s.statusSvc.Record(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to record status: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"status": "recorded",
		"event":  compactStatus(ev),
	}), nil
}

func (s *Server) handleStatusToday(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	events, err := s.statusSvc.Today(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to read today's statuses: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"events":  compactStatuses(events),
		"total":   len(events),
		"summary": summarizeDay(events),
	}), nil
}

func (s *Server) handleRules(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.engine == nil {
		return errorResult(errProactiveDisabled), nil
	}
	return jsonResult(map[string]any{"rules": s.engine.Rules()}), nil
}

func (s *Server) handleFireNow(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.engine == nil {
		return errorResult(errProactiveDisabled), nil
	}
	f, ok := s.engine.FireNow(ctx)
	if !ok {
		return jsonResult(model.FireResponse{Fired: false}), nil
	}
	return jsonResult(model.FireResponse{Fired: true, RuleID: f.RuleID, Message: f.Message}), nil
}

func (s *Server) handleTakePending(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.engine == nil {
		return errorResult(errProactiveDisabled), nil
	}
	msg, ok := s.engine.TakePending()
	return jsonResult(model.PendingResponse{Pending: ok, Message: msg}), nil
}

func statusTypeNames() []string {
	types := model.StatusTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
