// Package anthropicmsg adapts the Anthropic messages API to the canonical
// language-model port.
package anthropicmsg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/types"
)

// defaultMaxTokens applies when the caller does not set a budget; the
// messages API requires one.
const defaultMaxTokens = 4096

// Model implements model.LanguageModel over the Anthropic messages API.
type Model struct {
	client anthropic.Client
	name   string
}

// New creates a Model for the given model identifier.
func New(name string, opts ...option.RequestOption) *Model {
	return &Model{client: anthropic.NewClient(opts...), name: name}
}

// Name implements model.LanguageModel.
func (m *Model) Name() string { return m.name }

// Generate implements model.LanguageModel.
func (m *Model) Generate(ctx context.Context, in *model.Input) (*model.Response, error) {
	msg, err := m.client.Messages.New(ctx, m.params(in))
	if err != nil {
		return nil, err
	}

	var content []types.Part
	for _, block := range msg.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, types.NewTextPart(block.Text))
		case anthropic.ThinkingBlock:
			content = append(content, types.NewReasoningPart(block.Thinking, block.Signature))
		case anthropic.ToolUseBlock:
			content = append(content, types.NewToolCallPart(block.ID, block.Name, json.RawMessage(block.JSON.Input.Raw())))
		}
	}
	return &model.Response{
		Content: content,
		Usage: model.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

// Stream implements model.LanguageModel. Anthropic indexes every content
// block explicitly, so block indexes map straight onto part indexes.
func (m *Model) Stream(ctx context.Context, in *model.Input) (model.Stream, error) {
	inner := m.client.Messages.NewStreaming(ctx, m.params(in))
	return &messageStream{inner: inner}, nil
}

func (m *Model) params(in *model.Input) anthropic.MessageNewParams {
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		MaxTokens: maxTokens,
		Messages:  convertMessages(in.Messages),
	}
	if in.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: in.System}}
	}
	if in.Temperature != nil {
		params.Temperature = anthropic.Float(*in.Temperature)
	}
	if in.TopP != nil {
		params.TopP = anthropic.Float(*in.TopP)
	}
	for _, spec := range in.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: inputSchema(spec.Parameters),
		}})
	}
	return params
}

// inputSchema lifts a JSON-Schema object into the typed wire form, which
// wants properties and required split out.
func inputSchema(parameters map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := parameters["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := parameters["required"]; ok {
		schema.Required = toStringSlice(req)
	}
	return schema
}

func toStringSlice(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// convertMessages maps the canonical transcript to wire messages. Tool
// results travel as user-role messages of tool_result blocks.
func convertMessages(messages []types.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.User:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text())))
		case types.Assistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Parts {
				switch {
				case part.OfText != nil:
					blocks = append(blocks, anthropic.NewTextBlock(part.OfText.Text))
				case part.OfToolCall != nil:
					call := part.OfToolCall
					blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Args, call.Name))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case types.Tool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Parts {
				result := part.OfToolResult
				if result == nil {
					continue
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(
					result.ToolCallID,
					types.TextContent(result.Content),
					result.IsError,
				))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return out
}

// messageStream translates message stream events into canonical partials.
type messageStream struct {
	inner   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	queue   []model.Partial
	current model.Partial
	usage   model.Usage
}

func (s *messageStream) Next() bool {
	if len(s.queue) > 0 {
		s.current, s.queue = s.queue[0], s.queue[1:]
		return true
	}
	for s.inner.Next() {
		s.enqueue(s.inner.Current())
		if len(s.queue) > 0 {
			s.current, s.queue = s.queue[0], s.queue[1:]
			return true
		}
	}
	return false
}

func (s *messageStream) enqueue(event anthropic.MessageStreamEventUnion) {
	switch event := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		s.usage.InputTokens = event.Message.Usage.InputTokens
	case anthropic.ContentBlockStartEvent:
		index := int(event.Index)
		switch block := event.ContentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			s.push(types.NewTextDelta(types.Index(index), block.Text))
		case anthropic.ThinkingBlock:
			s.push(types.NewReasoningDelta(types.Index(index), block.Thinking, ""))
		case anthropic.ToolUseBlock:
			s.push(types.NewToolCallDelta(types.Index(index), block.ID, block.Name, ""))
		}
	case anthropic.ContentBlockDeltaEvent:
		index := int(event.Index)
		switch delta := event.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			s.push(types.NewTextDelta(types.Index(index), delta.Text))
		case anthropic.ThinkingDelta:
			s.push(types.NewReasoningDelta(types.Index(index), delta.Thinking, ""))
		case anthropic.SignatureDelta:
			s.push(types.NewReasoningDelta(types.Index(index), "", delta.Signature))
		case anthropic.InputJSONDelta:
			s.push(types.NewToolCallDelta(types.Index(index), "", "", delta.PartialJSON))
		}
	case anthropic.MessageDeltaEvent:
		s.usage.OutputTokens = event.Usage.OutputTokens
		usage := s.usage
		s.queue = append(s.queue, model.Partial{Usage: &usage})
	}
}

func (s *messageStream) push(delta types.PartDelta) {
	s.queue = append(s.queue, model.Partial{Delta: &delta})
}

func (s *messageStream) Current() model.Partial { return s.current }

func (s *messageStream) Err() error {
	if err := s.inner.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}

func (s *messageStream) Close() error { return s.inner.Close() }
