// Package mcp implements the Model Context Protocol server for xiaoban.
//
// The MCP server lets the companion's chat agent drive the same operations
// as the HTTP API: record what the user is doing, read today's timeline,
// inspect the proactive rules, and trigger or collect proactive messages.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/xiaoban/internal/proactive"
	"github.com/ashita-ai/xiaoban/internal/service/status"
)

// Proactive is the subset of *proactive.Engine exposed over MCP.
type Proactive interface {
	FireNow(ctx context.Context) (proactive.Firing, bool)
	TakePending() (string, bool)
	Rules() []proactive.RuleState
}

// Server wraps the MCP server with xiaoban's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	statusSvc *status.Service
	engine    Proactive
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools,
// and prompts. engine may be nil when the proactive engine is disabled; the
// proactive tools then report an error result.
func New(statusSvc *status.Service, engine Proactive, logger *slog.Logger, version string) *Server {
	s := &Server{
		statusSvc: statusSvc,
		engine:    engine,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"xiaoban",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions("xiaoban tracks the user's daily status and sends caring proactive messages. "+
			"Record status changes with xiaoban_record_status as the user mentions them."),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
