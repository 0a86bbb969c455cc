package runner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/toolkit"
	"github.com/kestrelab/agentloop/internal/types"
	"github.com/kestrelab/agentloop/tools"
)

// trackingToolkit counts session lifecycle calls.
type trackingToolkit struct {
	creates atomic.Int32
	closes  atomic.Int32
}

func (tk *trackingToolkit) CreateSession(ctx context.Context, _ testContext) (toolkit.Session[testContext], error) {
	tk.creates.Add(1)
	return &trackingSession{tk: tk}, nil
}

type trackingSession struct {
	tk *trackingToolkit
}

func (s *trackingSession) SystemPrompt() string { return "" }

func (s *trackingSession) Tools() ([]tools.Tool[testContext], error) { return nil, nil }

func (s *trackingSession) Close(ctx context.Context) error {
	s.tk.closes.Add(1)
	return nil
}

type testContext struct {
	approved *atomic.Bool
}

func newAgent(m model.LanguageModel, toolList ...tools.Tool[testContext]) *Agent[testContext] {
	return &Agent[testContext]{
		Name:         "test",
		Model:        m,
		Instructions: Instructions[testContext]{OfString: "Be terse."},
		Tools:        toolList,
		MaxTurns:     5,
	}
}

func weatherTool() tools.Tool[testContext] {
	type args struct {
		City string `json:"city"`
	}
	return tools.New("get_weather", "Returns the weather for a city.",
		func(ctx context.Context, a args, _ testContext) (tools.Result, error) {
			return tools.TextResult("sunny in " + a.City), nil
		})
}

func TestRunToolRoundTrip(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "get_weather", `{"city":"Boston"}`)),
		textResponse("It is sunny in Boston."),
	}}
	agent := newAgent(m, weatherTool())

	resp, err := Run(context.Background(), agent, testContext{}, Input{OfString: "Weather in Boston?"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := resp.Text(); got != "It is sunny in Boston." {
		t.Fatalf("unexpected final text: %q", got)
	}
	if resp.Turns != 2 {
		t.Fatalf("expected 2 turns, got %d", resp.Turns)
	}

	// assistant(tool call), tool result, assistant(final)
	if len(resp.NewItems) != 3 {
		t.Fatalf("expected 3 new items, got %d", len(resp.NewItems))
	}
	toolMsg := resp.NewItems[1]
	if toolMsg.Role != types.Tool {
		t.Fatalf("expected tool message second, got role %q", toolMsg.Role)
	}
	result := toolMsg.Parts[0].OfToolResult
	if result == nil || result.ToolCallID != "call_1" || result.IsError {
		t.Fatalf("unexpected tool result: %+v", toolMsg.Parts[0])
	}
	if got := types.TextContent(result.Content); got != "sunny in Boston" {
		t.Fatalf("unexpected tool result text: %q", got)
	}

	// The second model call must have seen the tool result.
	second := m.inputs[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != types.Tool {
		t.Fatalf("second model call did not end with the tool result, got %q", last.Role)
	}
}

func TestRunExceedsTurnBudget(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "get_weather", `{"city":"Boston"}`)),
	}}
	agent := newAgent(m, weatherTool())
	agent.MaxTurns = 3

	resp, err := Run(context.Background(), agent, testContext{}, Input{OfString: "loop forever"})
	var budgetErr *MaxTurnsError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected MaxTurnsError, got %v", err)
	}
	if budgetErr.Turns != 3 {
		t.Fatalf("unexpected budget in error: %d", budgetErr.Turns)
	}
	if m.calls != 3 {
		t.Fatalf("expected exactly 3 model calls, got %d", m.calls)
	}
	if resp == nil || resp.Turns != 3 {
		t.Fatalf("partial response should report 3 turns, got %+v", resp)
	}
	if len(resp.NewItems) != 6 {
		t.Fatalf("expected 6 accumulated items on failure, got %d", len(resp.NewItems))
	}
}

func TestParallelToolCallsPreserveRequestOrder(t *testing.T) {
	// The first-requested tool finishes last; results must still come
	// back in request order.
	release := make(chan struct{})
	slow := tools.Tool[testContext]{
		Name:        "get_weather",
		Description: "slow",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, _ json.RawMessage, _ testContext) (tools.Result, error) {
			<-release
			return tools.TextResult("sunny"), nil
		},
	}
	fast := tools.Tool[testContext]{
		Name:        "get_stock_price",
		Description: "fast",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, _ json.RawMessage, _ testContext) (tools.Result, error) {
			close(release)
			return tools.TextResult("42.00"), nil
		},
	}

	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(
			call("call_1", "get_weather", `{}`),
			call("call_2", "get_stock_price", `{}`),
		),
		textResponse("done"),
	}}
	agent := newAgent(m, slow, fast)

	resp, err := Run(context.Background(), agent, testContext{}, Input{OfString: "both please"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var results []*types.ToolResultPart
	for _, item := range resp.NewItems {
		if item.Role != types.Tool {
			continue
		}
		results = append(results, item.Parts[0].OfToolResult)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 tool results, got %d", len(results))
	}
	if results[0].ToolCallID != "call_1" || results[1].ToolCallID != "call_2" {
		t.Fatalf("results out of request order: %s then %s", results[0].ToolCallID, results[1].ToolCallID)
	}
}

func TestUnknownToolContinuesWithErrorResult(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "get_forecast", `{}`)),
		textResponse("never heard of it"),
	}}
	agent := newAgent(m, weatherTool())

	resp, err := Run(context.Background(), agent, testContext{}, Input{OfString: "hi"})
	if err != nil {
		t.Fatalf("unknown tool should not be fatal: %v", err)
	}
	result := resp.NewItems[1].Parts[0].OfToolResult
	if !result.IsError {
		t.Fatalf("expected error-flagged result, got %+v", result)
	}
	if got := types.TextContent(result.Content); !strings.Contains(got, "get_forecast") {
		t.Fatalf("error result should name the unknown tool: %q", got)
	}
}

func TestToolErrorResultDoesNotHaltRun(t *testing.T) {
	failing := tools.Tool[testContext]{
		Name:        "get_weather",
		Description: "always degraded",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, _ json.RawMessage, _ testContext) (tools.Result, error) {
			return tools.Errorf("station offline"), nil
		},
	}
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "get_weather", `{}`)),
		textResponse("could not check"),
	}}
	agent := newAgent(m, failing)

	resp, err := Run(context.Background(), agent, testContext{}, Input{OfString: "hi"})
	if err != nil {
		t.Fatalf("error-flagged result should not halt the run: %v", err)
	}
	if !resp.NewItems[1].Parts[0].OfToolResult.IsError {
		t.Fatalf("expected error flag on tool result")
	}
}

var errApprovalRequired = errors.New("approval required")

func approvalTool() tools.Tool[testContext] {
	return tools.Tool[testContext]{
		Name:        "delete_everything",
		Description: "needs sign-off",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, _ json.RawMessage, tc testContext) (tools.Result, error) {
			if tc.approved != nil && tc.approved.Load() {
				return tools.TextResult("deleted"), nil
			}
			return tools.Result{}, errApprovalRequired
		},
	}
}

func TestToolFaultHaltsRunAndPreservesCause(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "delete_everything", `{}`)),
		textResponse("done"),
	}}
	agent := newAgent(m, approvalTool())

	resp, err := Run(context.Background(), agent, testContext{approved: &atomic.Bool{}}, Input{OfString: "go"})
	var fault *ToolFaultError
	if !errors.As(err, &fault) {
		t.Fatalf("expected ToolFaultError, got %v", err)
	}
	if fault.ToolName != "delete_everything" || fault.ToolCallID != "call_1" {
		t.Fatalf("unexpected fault fields: %+v", fault)
	}
	if !errors.Is(err, errApprovalRequired) {
		t.Fatalf("fault should preserve the underlying cause")
	}
	// The assistant message that requested the call is still available.
	if len(resp.NewItems) != 1 || resp.NewItems[0].Role != types.Assistant {
		t.Fatalf("partial items missing on failure: %+v", resp.NewItems)
	}
}

func TestFaultedRunResumesWithMutatedContext(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "delete_everything", `{}`)),
		textResponse("all clean"),
	}}
	agent := newAgent(m, approvalTool())

	approved := &atomic.Bool{}
	tc := testContext{approved: approved}
	resp, err := Run(context.Background(), agent, tc, Input{OfString: "go"})
	if err == nil {
		t.Fatalf("expected fault on first attempt")
	}

	approved.Store(true)
	m.calls = 0
	resp2, err := Run(context.Background(), agent, tc, Input{OfItems: append(resp.NewItems, types.NewUserMessage("approved, continue"))})
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if resp2.Text() != "all clean" {
		t.Fatalf("unexpected resumed answer: %q", resp2.Text())
	}
}

func TestRunRequiresTurnBudgetAndModel(t *testing.T) {
	agent := newAgent(&scriptedModel{responses: []*model.Response{textResponse("hi")}})
	agent.MaxTurns = 0
	if _, err := Run(context.Background(), agent, testContext{}, Input{OfString: "hi"}); err == nil {
		t.Fatalf("expected error for missing turn budget")
	}

	agent = newAgent(nil)
	if _, err := Run(context.Background(), agent, testContext{}, Input{OfString: "hi"}); err == nil {
		t.Fatalf("expected error for missing model")
	}
}

func TestModelErrorIsFatal(t *testing.T) {
	m := &scriptedModel{} // no scripted responses: Generate fails
	agent := newAgent(m, weatherTool())

	resp, err := Run(context.Background(), agent, testContext{}, Input{OfString: "hi"})
	if err == nil {
		t.Fatalf("expected model error to halt the run")
	}
	if resp == nil || len(resp.NewItems) != 0 || resp.Turns != 0 {
		t.Fatalf("expected empty partial response, got %+v", resp)
	}
}

func TestToolkitToolsMergeAfterStatics(t *testing.T) {
	stock := tools.Tool[testContext]{
		Name:        "get_stock_price",
		Description: "from toolkit",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, _ json.RawMessage, _ testContext) (tools.Result, error) {
			return tools.TextResult("42.00"), nil
		},
	}
	override := tools.Tool[testContext]{
		Name:        "get_weather",
		Description: "toolkit override",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, _ json.RawMessage, _ testContext) (tools.Result, error) {
			return tools.TextResult("cloudy"), nil
		},
	}

	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "get_weather", `{}`)),
		textResponse("done"),
	}}
	agent := newAgent(m, weatherTool())
	agent.Toolkits = []toolkit.Toolkit[testContext]{
		&toolkit.Static[testContext]{
			Prompt:   "Use tools wisely.",
			ToolList: []tools.Tool[testContext]{stock, override},
		},
	}

	resp, err := Run(context.Background(), agent, testContext{}, Input{OfString: "hi"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	in := m.inputs[0]
	if in.System != "Be terse.\n\nUse tools wisely." {
		t.Fatalf("prompt fragments not joined: %q", in.System)
	}
	// The overriding toolkit tool keeps the static registration's slot.
	if len(in.Tools) != 2 {
		t.Fatalf("expected 2 tool specs, got %d", len(in.Tools))
	}
	if in.Tools[0].Name != "get_weather" || in.Tools[0].Description != "toolkit override" {
		t.Fatalf("collision did not resolve to the later tool in place: %+v", in.Tools[0])
	}
	if in.Tools[1].Name != "get_stock_price" {
		t.Fatalf("unexpected second spec: %+v", in.Tools[1])
	}

	// Execution uses the overriding tool too.
	result := resp.NewItems[1].Parts[0].OfToolResult
	if got := types.TextContent(result.Content); got != "cloudy" {
		t.Fatalf("expected override to execute, got %q", got)
	}
}

func TestCancellationStopsRunAndClosesSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := tools.Tool[testContext]{
		Name:        "get_weather",
		Description: "blocks until cancelled",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, _ json.RawMessage, _ testContext) (tools.Result, error) {
			<-ctx.Done()
			return tools.Result{}, ctx.Err()
		},
	}
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse(call("call_1", "get_weather", `{}`)),
	}}
	tk := &trackingToolkit{}
	agent := newAgent(m, blocking)
	agent.Toolkits = []toolkit.Toolkit[testContext]{tk}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Run(ctx, agent, testContext{}, Input{OfString: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if tk.closes.Load() != 1 {
		t.Fatalf("toolkit session not closed on cancellation, closes=%d", tk.closes.Load())
	}
}
