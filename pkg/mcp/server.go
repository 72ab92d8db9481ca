// Package mcp implements a Model Context Protocol server exposing the merged
// fuzzing session state as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/testrun"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "fuzzdash"
	// serverVersion is the MCP server implementation version.
	serverVersion = "1.0.0"

	// toolCount is the expected number of registered tools.
	toolCount = 2
)

// SessionView is the read surface the MCP tools expose. A live session being
// fed from a websocket must be wrapped so that reads and event application
// do not race; see ServerDeps.Locker.
type SessionView interface {
	Tests() []*testrun.Test
	Test(id string) *testrun.Test
}

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// View is the session state queried by the tools. Required.
	View SessionView

	// Locker is held for the duration of each tool call when non-nil.
	// Required when the view is mutated concurrently with tool calls.
	Locker sync.Locker

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with fuzzdash tool registrations.
type Server struct {
	inner  *mcpsdk.Server
	view   SessionView
	locker sync.Locker
	tracer trace.Tracer
	mu     sync.RWMutex
	tools  []string
}

// NewServer creates a new MCP server with all fuzzdash tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		opts,
	)

	srv := &Server{
		inner:  inner,
		view:   deps.View,
		locker: deps.Locker,
		tracer: deps.Tracer,
		tools:  make([]string, 0, toolCount),
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	err := s.inner.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// registerTools adds all fuzzdash MCP tools to the server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameStatus,
		Description: statusToolDescription,
	}, withTracing(s.tracer, ToolNameStatus, s.handleStatus))

	s.trackTool(ToolNameStatus)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameTimeline,
		Description: timelineToolDescription,
	}, withTracing(s.tracer, ToolNameTimeline, s.handleTimeline))

	s.trackTool(ToolNameTimeline)
}

func (s *Server) handleStatus(
	_ context.Context, _ *mcpsdk.CallToolRequest, _ StatusInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.locker != nil {
		s.locker.Lock()
		defer s.locker.Unlock()
	}

	now := time.Now().UTC()
	tests := s.view.Tests()

	out := StatusOutput{Tests: make([]TestStatus, 0, len(tests))}

	for _, tr := range tests {
		status := TestStatus{
			TestID:               tr.ID(),
			Status:               string(tr.Status(now)),
			Inputs:               tr.Inputs(),
			Behaviors:            tr.Behaviors(),
			Fingerprints:         tr.Fingerprints(),
			InputsSinceDiscovery: tr.InputsSinceNewBehavior(),
			Failures:             len(tr.Failures()),
		}

		if linear := tr.Linear(); len(linear) > 0 {
			status.LastReport = linear[len(linear)-1].Timestamp
		}

		out.Tests = append(out.Tests, status)
	}

	return jsonResult(out)
}

func (s *Server) handleTimeline(
	_ context.Context, _ *mcpsdk.CallToolRequest, input TimelineInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.TestID == "" {
		return errorResult(ErrEmptyTestID)
	}

	if s.locker != nil {
		s.locker.Lock()
		defer s.locker.Unlock()
	}

	tr := s.view.Test(input.TestID)
	if tr == nil {
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownTest, input.TestID))
	}

	linear := tr.Linear()
	prefix := tr.CountsPrefix(time.Time{})

	points := make([]TimelinePoint, len(linear))
	for i, r := range linear {
		points[i] = TimelinePoint{
			Time:         r.TimestampMono,
			WorkerID:     r.WorkerID,
			Phase:        string(r.Phase),
			Inputs:       prefix[i].Sum(),
			Behaviors:    r.Behaviors,
			Fingerprints: r.Fingerprints,
		}
	}

	if input.Tail > 0 && input.Tail < len(points) {
		points = points[len(points)-input.Tail:]
	}

	return jsonResult(TimelineOutput{TestID: input.TestID, Points: points})
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		// Include trace_id in response when span is sampled.
		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	statusToolDescription = "Summarize every test observed on the fuzzing feed: " +
		"derived status, cumulative inputs, behaviors, fingerprints, and " +
		"inputs executed since the last new behavior."

	timelineToolDescription = "Return the merged, time-ordered report timeline for one test. " +
		"Accepts a test_id and an optional tail limit."
)
