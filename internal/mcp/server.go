// Package mcp exposes the diagnosis pipeline as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
	"github.com/cvd-expert-server/internal/history"
	"github.com/cvd-expert-server/internal/service"
)

// Diagnoser runs the case pipeline.
type Diagnoser interface {
	Diagnose(ctx context.Context, raw map[string]any) (*domain.DiagnosisReport, error)
}

// HistoryReader returns recent diagnosis records, newest first.
type HistoryReader interface {
	QueryRecent(ctx context.Context, limit int, filter history.Filter) []history.Record
}

// KnowledgeReporter answers knowledge-base introspection.
type KnowledgeReporter interface {
	Stats() (domain.KnowledgeStats, error)
	Descriptions() map[string]service.FieldDescription
}

// Dependencies are the collaborators behind the tools.
type Dependencies struct {
	Diagnosis Diagnoser
	History   HistoryReader
	Knowledge KnowledgeReporter
	Scores    service.ScoreCalculator
}

// Server is the MCP server with the CVD tools registered.
type Server struct {
	mcpServer    *mcp.Server
	deps         Dependencies
	defaultLimit int
	logger       *logrus.Logger
	tools        []*mcp.Tool
}

// NewServer creates the server and registers every tool.
func NewServer(cfg *domain.Config, deps Dependencies, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}
	if serverInfo.Name == "" {
		serverInfo.Name = "cvd-expert-server"
	}

	s := &Server{
		mcpServer:    mcp.NewServer(serverInfo, nil),
		deps:         deps,
		defaultLimit: cfg.History.DefaultLimit,
		logger:       logger,
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = history.DefaultLimit
	}
	s.registerTools()
	return s
}

func (s *Server) register(tool *mcp.Tool, handler mcp.ToolHandler) {
	s.mcpServer.AddTool(tool, s.logged(tool.Name, handler))
	s.tools = append(s.tools, tool)
	s.logger.WithField("tool_name", tool.Name).Debug("Registered MCP tool")
}

// Tools lists the registered tool definitions.
func (s *Server) Tools() []*mcp.Tool {
	return s.tools
}

// Run serves MCP over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithField("tools", len(s.tools)).Info("Starting MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server failed: %w", err)
	}
	return nil
}

// logged wraps a handler with a debug log and panic recovery.
func (s *Server) logged(name string, handler mcp.ToolHandler) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(logrus.Fields{"tool": name, "panic": r}).Error("Tool handler panicked")
				result, err = errorResult(fmt.Errorf("internal error in %s", name)), nil
			}
		}()
		s.logger.WithField("tool", name).Debug("Handling MCP tool call")
		return handler(ctx, req)
	}
}

// decodeArgs unmarshals tool arguments; absent arguments decode as empty.
func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil
}

// errorResult reports a tool-level failure to the model rather than as a
// protocol error.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func objectSchema(description string, props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: description,
		Properties:  props,
		Required:    required,
	}
}
