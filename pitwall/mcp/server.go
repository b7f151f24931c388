// Package mcp serves the capability registry over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/pitwall/pitwall"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness"
	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

// HealthCheckTool is registered alongside the capabilities.
const HealthCheckTool = "health_check"

// Capabilities is the capability table the server exposes.
type Capabilities interface {
	Tools() []ports.Tool
}

// Handlers runs capability calls for the MCP server.
type Handlers struct {
	executor *harness.Executor
	logger   zerolog.Logger
	now      func() time.Time
	count    int
}

// NewServer registers every capability plus health_check. Calls run on
// executor, so they get the same argument validation and timeouts as chat.
func NewServer(caps Capabilities, executor *harness.Executor, version string, logger zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		internal.DefaultAppName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	tools := caps.Tools()
	h := &Handlers{
		executor: executor,
		logger:   logger.With().Str("component", "mcp").Logger(),
		now:      time.Now,
		count:    len(tools),
	}

	for _, t := range tools {
		s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), json.RawMessage(t.Schema())), h.capability(t))
	}
	s.AddTool(mcp.NewTool(HealthCheckTool,
		mcp.WithDescription("Report whether the race-engineer server is up and how many capabilities it serves."),
	), h.HandleHealth)

	return s
}

// Run serves over stdio until the client disconnects.
func Run(caps Capabilities, executor *harness.Executor, version string, logger zerolog.Logger) error {
	return server.ServeStdio(NewServer(caps, executor, version, logger))
}

func (h *Handlers) capability(t ports.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := req.GetArguments()
		if params == nil {
			params = map[string]any{}
		}
		args, err := json.Marshal(params)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res := h.executor.Execute(ctx, t, ports.ToolCall{
			ID:   "mcp_" + uuid.NewString(),
			Name: t.Name(),
			Args: args,
		})
		if res.Kind != ports.ResultSuccess {
			h.logger.Warn().Err(res.Err).Str("tool", t.Name()).Str("result", res.Kind.String()).Msg("tool call did not succeed")
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

// HandleHealth handles the health_check tool call.
func (h *Handlers) HandleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(map[string]any{
		"status":       "ok",
		"timestamp":    h.now().UTC().Format(time.RFC3339),
		"capabilities": h.count,
	})
}
