package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// companion-setup: system prompt snippet for the chat agent.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("companion-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining how to keep xiaoban's status timeline current"),
			mcplib.WithArgument("persona_name",
				mcplib.ArgumentDescription("Name the companion uses for itself (default 小伴)"),
			),
		),
		s.handleCompanionSetupPrompt,
	)

	// check-in: ask the agent to compose a check-in based on today's timeline.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("check-in",
			mcplib.WithPromptDescription("Compose a short caring check-in using today's status timeline"),
		),
		s.handleCheckInPrompt,
	)
}

func (s *Server) handleCompanionSetupPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	name := request.Params.Arguments["persona_name"]
	if name == "" {
		name = "小伴"
	}
	return &mcplib.GetPromptResult{
		Description: "xiaoban status tracking workflow",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`你是"%s"，用户的 AI 陪伴助手。你可以使用 xiaoban 工具记录用户的日常状态。

## 何时记录
当用户提到以下情况时，调用 xiaoban_record_status：
- 起床 (wake)、睡觉 (sleep)、洗澡 (shower)
- 早餐/午餐/晚餐 (meal_breakfast / meal_lunch / meal_dinner)、喝水 (drink)
- 开始学习 (study_start)、结束学习 (study_end)
- 出门 (out)、回来 (back)
- 情绪变化 (mood，detail 写下用户的原话或概括)

## 为什么重要
主动关怀消息是根据这些记录触发的：没有 wake 记录会被认为还没起床，
没有 study_end 记录会被认为一直在学习。

## 其他工具
- xiaoban_status_today：查看今天的状态时间线
- xiaoban_take_pending：取出排队中的主动消息，在合适的时候转达给用户`, name),
				},
			},
		},
	}, nil
}

func (s *Server) handleCheckInPrompt(ctx context.Context, _ mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	events, err := s.statusSvc.Today(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: check-in: %w", err)
	}
	return &mcplib.GetPromptResult{
		Description: "Compose a check-in from today's timeline",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`用户今天的状态：%s

请根据这些状态，用一两句温暖自然的话问候用户。不要列举记录，不要说教。`, summarizeDay(events)),
				},
			},
		},
	}, nil
}
