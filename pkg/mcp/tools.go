package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool name constants.
const (
	ToolNameStatus   = "fuzzdash_status"
	ToolNameTimeline = "fuzzdash_timeline"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyTestID indicates the test_id parameter is empty.
	ErrEmptyTestID = errors.New("test_id parameter is required and must not be empty")
	// ErrUnknownTest indicates the test identifier was never observed.
	ErrUnknownTest = errors.New("unknown test")
)

// Input types (auto-generate JSON schemas via struct tags).

// StatusInput is the input schema for the fuzzdash_status tool.
type StatusInput struct{}

// TimelineInput is the input schema for the fuzzdash_timeline tool.
type TimelineInput struct {
	TestID string `json:"test_id"        jsonschema:"identifier of the test to inspect"`
	Tail   int    `json:"tail,omitempty" jsonschema:"return only the newest N timeline points (default: all)"`
}

// Output types.

// TestStatus summarizes one test for the status tool.
type TestStatus struct {
	TestID               string    `json:"test_id"`
	Status               string    `json:"status"`
	Inputs               int       `json:"inputs"`
	Behaviors            int       `json:"behaviors"`
	Fingerprints         int       `json:"fingerprints"`
	InputsSinceDiscovery int       `json:"inputs_since_discovery"`
	Failures             int       `json:"failures"`
	LastReport           time.Time `json:"last_report,omitzero"`
}

// StatusOutput is the structured output of the fuzzdash_status tool.
type StatusOutput struct {
	Tests []TestStatus `json:"tests"`
}

// TimelinePoint is one merged-sequence entry for the timeline tool.
type TimelinePoint struct {
	Time         time.Time `json:"time"`
	WorkerID     string    `json:"worker_id"`
	Phase        string    `json:"phase"`
	Inputs       int       `json:"inputs"`
	Behaviors    int       `json:"behaviors"`
	Fingerprints int       `json:"fingerprints"`
}

// TimelineOutput is the structured output of the fuzzdash_timeline tool.
type TimelineOutput struct {
	TestID string          `json:"test_id"`
	Points []TimelinePoint `json:"points"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
