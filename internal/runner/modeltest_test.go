package runner

import (
	"context"
	"fmt"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/types"
)

// scriptedModel plays back canned turns. Generate consumes one response
// per call; Stream consumes one delta script per call. A model that runs
// out of script repeats its last entry, which makes "always requests a
// tool" models trivial to express.
type scriptedModel struct {
	responses []*model.Response
	scripts   [][]model.Partial
	calls     int
	inputs    []*model.Input
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Generate(ctx context.Context, in *model.Input) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.inputs = append(m.inputs, in)
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("scripted model has no responses")
	}
	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	return m.responses[i], nil
}

func (m *scriptedModel) Stream(ctx context.Context, in *model.Input) (model.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.inputs = append(m.inputs, in)
	if len(m.scripts) == 0 {
		return nil, fmt.Errorf("scripted model has no stream scripts")
	}
	i := m.calls
	if i >= len(m.scripts) {
		i = len(m.scripts) - 1
	}
	m.calls++
	return &scriptedStream{partials: m.scripts[i]}, nil
}

type scriptedStream struct {
	partials []model.Partial
	pos      int
	closed   bool
}

func (s *scriptedStream) Next() bool {
	if s.closed || s.pos >= len(s.partials) {
		return false
	}
	s.pos++
	return true
}

func (s *scriptedStream) Current() model.Partial { return s.partials[s.pos-1] }

func (s *scriptedStream) Err() error { return nil }

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// textResponse is a final answer with no tool calls.
func textResponse(text string) *model.Response {
	return &model.Response{
		Content: []types.Part{types.NewTextPart(text)},
		Usage:   model.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// toolCallResponse requests the named tools in order.
func toolCallResponse(calls ...*types.ToolCallPart) *model.Response {
	parts := make([]types.Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, types.Part{OfToolCall: call})
	}
	return &model.Response{Content: parts, Usage: model.Usage{InputTokens: 10, OutputTokens: 5}}
}

func call(id, name, args string) *types.ToolCallPart {
	return &types.ToolCallPart{ID: id, Name: name, Args: []byte(args)}
}
