// Package mcp exposes the Human Pages hiring protocol as MCP tools. Every
// tool is a synchronous call to the collaborator REST API; the server keeps
// no state of its own and takes credentials as tool arguments.
package mcp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/human-pages-ai/humanpages/client"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/telemetry"
)

const (
	serverName    = "humanpages"
	serverVersion = "1.0.0"
)

const instructions = `Hire real people for tasks an agent cannot do alone.
Register with register_agent, activate (request_activation_code + verify_social_activation, or get_payment_activation + verify_payment_activation), then search_humans and create_job_offer, or post a listing with create_listing.
Pass agent_key on every authenticated call. Failures start with an error code such as AGENT_PENDING or RATE_LIMITED.`

// Server wraps the mcp-go server and the collaborator client behind it.
type Server struct {
	mcpServer *server.MCPServer
	api       *client.Client
	log       *slog.Logger
	ops       map[string]operation
}

// NewServer registers every tool against api.
func NewServer(api *client.Client, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		mcpServer: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		api: api,
		log: log.With("component", "mcp"),
		ops: make(map[string]operation),
	}
	for _, op := range operations() {
		s.ops[op.tool.Name] = op
		s.mcpServer.AddTool(op.tool, s.handler(op))
	}
	return s
}

// MCPServer returns the underlying server for transport setup.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Call dispatches a tool by name. Unknown names are an INVALID_INPUT failure.
func (s *Server) Call(ctx context.Context, req mcp.CallToolRequest) *mcp.CallToolResult {
	op, ok := s.ops[req.Params.Name]
	if !ok {
		return failure(hiring.Invalid("name", "unknown tool %q", req.Params.Name))
	}
	res, _ := s.handler(op)(ctx, req)
	return res
}

func (s *Server) handler(op operation) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := op.invoke(ctx, s.api, req)
		code := "OK"
		if err != nil {
			code = string(hiring.CodeOf(err))
		}
		telemetry.ToolCalls.WithLabelValues(op.tool.Name, code).Inc()
		s.log.Info("tool call", "tool", op.tool.Name, "code", code, "duration", time.Since(start))
		if err != nil {
			return failure(err), nil
		}
		return res.render(), nil
	}
}

// ServeStdio serves MCP over stdin/stdout until ctx ends or stdin closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// HTTPHandler serves the streamable HTTP transport at /mcp next to
// /healthz and /metrics.
func (s *Server) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	r.Mount("/metrics", telemetry.Handler())
	r.Handle("/mcp", server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath("/mcp")))
	return r
}
