package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	uriStatusToday = "xiaoban://status/today"
	uriRules       = "xiaoban://rules"
)

func (s *Server) registerResources() {
	// xiaoban://status/today: today's status timeline.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriStatusToday,
			"Today's Status",
			mcplib.WithResourceDescription("Status events the user recorded today"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatusTodayResource,
	)

	// xiaoban://rules: proactive rule catalogue.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriRules,
			"Proactive Rules",
			mcplib.WithResourceDescription("Proactive messaging rules and their cooldown state"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRulesResource,
	)
}

func (s *Server) handleStatusTodayResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	events, err := s.statusSvc.Today(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: status today: %w", err)
	}
	return jsonResource(request.Params.URI, compactStatuses(events))
}

func (s *Server) handleRulesResource(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("mcp: rules: %s", errProactiveDisabled)
	}
	return jsonResource(request.Params.URI, s.engine.Rules())
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
