// Package runner drives a language model through a multi-turn, tool-using
// conversation: it resolves the turn's instructions and tools, calls the
// model, executes requested tools concurrently, folds the results back
// into the transcript and repeats until the model stops requesting tools
// or the turn budget runs out.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelab/agentloop/internal/accumulator"
	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/types"
	"github.com/kestrelab/agentloop/tools"
)

// run is the turn loop shared by the blocking and streaming paths. When
// emit is non-nil every model fragment and finalized item is forwarded
// through it. The returned Response is always non-nil so accumulated
// items survive a fatal error.
func (s *Session[C]) run(ctx context.Context, in Input, emit func(Event)) (*Response, error) {
	items := in.conversation()
	resp := &Response{}
	logger := s.logger.With("run_id", uuid.NewString())
	logger.Info("starting run",
		"model", s.agent.Model.Name(),
		"max_turns", s.agent.MaxTurns,
		"input_items", len(items),
		"streaming", emit != nil)

	for turn := 0; ; turn++ {
		if turn >= s.agent.MaxTurns {
			logger.Warn("turn budget exhausted", "turns", turn)
			return resp, &MaxTurnsError{Turns: s.agent.MaxTurns}
		}
		if err := ctx.Err(); err != nil {
			return resp, err
		}

		system, toolSet, specs, err := s.resolveTurn(ctx)
		if err != nil {
			return resp, err
		}

		input := &model.Input{
			System:      system,
			Messages:    items,
			Tools:       specs,
			Temperature: s.agent.Temperature,
			TopP:        s.agent.TopP,
			MaxTokens:   s.agent.MaxTokens,
		}

		logger.Debug("calling model", "turn", turn, "num_tools", len(specs), "num_items", len(items))
		var content []types.Part
		var usage model.Usage
		if emit == nil {
			mresp, err := s.agent.Model.Generate(ctx, input)
			if err != nil {
				return resp, fmt.Errorf("model call: %w", err)
			}
			content, usage = mresp.Content, mresp.Usage
		} else {
			content, usage, err = s.streamTurn(ctx, input, emit)
			if err != nil {
				return resp, err
			}
		}
		resp.Usage.Add(usage)
		resp.Turns++

		calls := types.ToolCalls(content)
		for _, call := range calls {
			// A provider that omits call ids still needs stable ones to
			// pair calls with results on the next turn. Assigned before the
			// assistant message is built: items are immutable once emitted.
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
		}

		msg := types.NewAssistantMessage(content)
		items = append(items, msg)
		resp.NewItems = append(resp.NewItems, msg)
		if emit != nil {
			emit(itemEvent(msg))
		}

		if len(calls) == 0 {
			logger.Info("run complete", "turns", resp.Turns, "content_parts", len(content))
			resp.Content = content
			return resp, nil
		}

		logger.Debug("dispatching tool calls", "turn", turn, "num_calls", len(calls))
		results, err := s.dispatch(ctx, calls, toolSet)
		if err != nil {
			return resp, err
		}
		for _, result := range results {
			m := types.NewToolMessage(result)
			items = append(items, m)
			resp.NewItems = append(resp.NewItems, m)
			if emit != nil {
				emit(itemEvent(m))
			}
		}
	}
}

// resolveTurn gathers this turn's system prompt and merged tool set from
// the static configuration and every toolkit session. Static tools come
// first, then toolkits in configuration order; a later tool with an
// already-seen name replaces the earlier one in place, so the model-facing
// order stays deterministic.
func (s *Session[C]) resolveTurn(ctx context.Context) (string, map[string]tools.Tool[C], []model.ToolSpec, error) {
	prompt, err := s.agent.Instructions.resolve(ctx, s.tc)
	if err != nil {
		return "", nil, nil, fmt.Errorf("resolving instructions: %w", err)
	}
	prompts := make([]string, 0, 1+len(s.toolkits))
	if prompt != "" {
		prompts = append(prompts, prompt)
	}

	var order []string
	toolSet := make(map[string]tools.Tool[C])
	add := func(list []tools.Tool[C]) {
		for _, t := range list {
			if _, seen := toolSet[t.Name]; !seen {
				order = append(order, t.Name)
			}
			toolSet[t.Name] = t
		}
	}
	add(s.agent.Tools)
	for _, ts := range s.toolkits {
		if p := ts.SystemPrompt(); p != "" {
			prompts = append(prompts, p)
		}
		list, err := ts.Tools()
		if err != nil {
			return "", nil, nil, fmt.Errorf("resolving toolkit tools: %w", err)
		}
		add(list)
	}

	specs := make([]model.ToolSpec, 0, len(order))
	for _, name := range order {
		t := toolSet[name]
		specs = append(specs, model.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return strings.Join(prompts, "\n\n"), toolSet, specs, nil
}

// streamTurn consumes one model stream, forwarding every fragment to the
// caller exactly once in arrival order while the accumulator rebuilds the
// turn's finished parts.
func (s *Session[C]) streamTurn(ctx context.Context, in *model.Input, emit func(Event)) ([]types.Part, model.Usage, error) {
	st, err := s.agent.Model.Stream(ctx, in)
	if err != nil {
		return nil, model.Usage{}, fmt.Errorf("model call: %w", err)
	}
	defer st.Close()

	acc := accumulator.New()
	var usage model.Usage
	for st.Next() {
		partial := st.Current()
		if partial.Usage != nil {
			usage = *partial.Usage
		}
		if partial.Delta != nil {
			if err := acc.Add(*partial.Delta); err != nil {
				return nil, usage, err
			}
		}
		emit(partialEvent(partial))
	}
	if err := st.Err(); err != nil {
		return nil, usage, fmt.Errorf("model stream: %w", err)
	}
	parts, err := acc.Parts()
	if err != nil {
		return nil, usage, err
	}
	return parts, usage, nil
}

type toolOutcome struct {
	result tools.Result
	fault  error
}

// dispatch executes every tool call of one turn concurrently, then folds
// the outcomes back in request order regardless of completion order. An
// unknown tool name becomes an error-flagged result and the run goes on;
// a tool returning an error halts the run with a ToolFaultError (the
// lowest-indexed fault wins when several calls fail at once).
func (s *Session[C]) dispatch(ctx context.Context, calls []*types.ToolCallPart, toolSet map[string]tools.Tool[C]) ([]types.Part, error) {
	outcomes := make([]toolOutcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		tool, ok := toolSet[call.Name]
		if !ok {
			s.logger.Warn("model requested unknown tool", "tool_name", call.Name)
			outcomes[i].result = tools.Errorf("unknown tool %q", call.Name)
			continue
		}
		wg.Add(1)
		go func(i int, call *types.ToolCallPart, tool tools.Tool[C]) {
			defer wg.Done()
			result, err := tool.Execute(ctx, call.Args, s.tc)
			if err != nil {
				outcomes[i].fault = &ToolFaultError{ToolName: call.Name, ToolCallID: call.ID, Err: err}
				return
			}
			outcomes[i].result = result
		}(i, call, tool)
	}
	wg.Wait()

	results := make([]types.Part, len(calls))
	for i, call := range calls {
		if outcomes[i].fault != nil {
			return nil, outcomes[i].fault
		}
		results[i] = types.NewToolResultPart(call.ID, call.Name, outcomes[i].result.Content, outcomes[i].result.IsError)
	}
	return results, nil
}
