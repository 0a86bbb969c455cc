// Package openaichat adapts the OpenAI chat completions API to the
// canonical language-model port.
package openaichat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/types"
)

// Model implements model.LanguageModel over a chat completions endpoint.
type Model struct {
	client openai.Client
	name   string
}

// New creates a Model for the given model identifier. Request options are
// passed through to the SDK client, e.g. option.WithBaseURL for
// OpenAI-compatible servers.
func New(name string, opts ...option.RequestOption) *Model {
	return &Model{client: openai.NewClient(opts...), name: name}
}

// Name implements model.LanguageModel.
func (m *Model) Name() string { return m.name }

// Generate implements model.LanguageModel.
func (m *Model) Generate(ctx context.Context, in *model.Input) (*model.Response, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.params(in))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &model.RefusalError{Model: m.name, Reason: "response contained no choices"}
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, &model.RefusalError{Model: m.name, Reason: msg.Refusal}
	}

	var content []types.Part
	if msg.Content != "" {
		content = append(content, types.NewTextPart(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		content = append(content, types.NewToolCallPart(
			call.ID,
			call.Function.Name,
			json.RawMessage(call.Function.Arguments),
		))
	}
	return &model.Response{
		Content: content,
		Usage: model.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Stream implements model.LanguageModel.
func (m *Model) Stream(ctx context.Context, in *model.Input) (model.Stream, error) {
	params := m.params(in)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}
	inner := m.client.Chat.Completions.NewStreaming(ctx, params)
	return &chatStream{
		model:       m.name,
		inner:       inner,
		toolIndexes: map[int64]int{},
	}, nil
}

func (m *Model) params(in *model.Input) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openai.SystemMessage(in.System))
	}
	for _, msg := range in.Messages {
		messages = append(messages, convertMessage(msg)...)
	}

	oaiTools := make([]openai.ChatCompletionToolParam, 0, len(in.Tools))
	for _, spec := range in.Tools {
		oaiTools = append(oaiTools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.Parameters),
			},
		})
	}

	params := openai.ChatCompletionNewParams{
		Model:    m.name,
		Messages: messages,
		Tools:    oaiTools,
	}
	if in.Temperature != nil {
		params.Temperature = openai.Float(*in.Temperature)
	}
	if in.TopP != nil {
		params.TopP = openai.Float(*in.TopP)
	}
	if in.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(in.MaxTokens)
	}
	return params
}

// convertMessage maps one canonical message to wire messages. Tool
// messages fan out to one wire message per tool-result part, keyed by the
// originating call id.
func convertMessage(msg types.Message) []openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case types.User:
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(msg.Text())}
	case types.Assistant:
		out := openai.AssistantMessage(msg.Text())
		var calls []openai.ChatCompletionMessageToolCallParam
		for _, call := range types.ToolCalls(msg.Parts) {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(call.Args),
				},
			})
		}
		if len(calls) > 0 {
			out.OfAssistant.ToolCalls = calls
		}
		return []openai.ChatCompletionMessageParamUnion{out}
	case types.Tool:
		var out []openai.ChatCompletionMessageParamUnion
		for _, part := range msg.Parts {
			result := part.OfToolResult
			if result == nil {
				continue
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					ToolCallID: result.ToolCallID,
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(types.TextContent(result.Content)),
					},
				},
			})
		}
		return out
	}
	return nil
}

// chatStream translates chat completion chunks into canonical partials.
// OpenAI numbers tool calls independently of the content stream, so both
// are remapped onto one shared index space: the text stream claims an
// index when its first fragment arrives, and each provider tool index is
// assigned the next free canonical index on first sight.
type chatStream struct {
	model string
	inner *ssestream.Stream[openai.ChatCompletionChunk]

	queue       []model.Partial
	current     model.Partial
	textIndex   *int
	toolIndexes map[int64]int
	nextIndex   int
	err         error
}

func (s *chatStream) Next() bool {
	if len(s.queue) > 0 {
		s.current, s.queue = s.queue[0], s.queue[1:]
		return true
	}
	if s.err != nil {
		return false
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

func (s *chatStream) enqueue(chunk openai.ChatCompletionChunk) {
	if len(chunk.Choices) > 0 {
		delta := chunk.Choices[0].Delta
		if delta.Refusal != "" {
			s.err = &model.RefusalError{Model: s.model, Reason: delta.Refusal}
			return
		}
		if delta.Content != "" {
			if s.textIndex == nil {
				idx := s.nextIndex
				s.nextIndex++
				s.textIndex = &idx
			}
			s.queue = append(s.queue, model.Partial{
				Delta: deltaPtr(types.NewTextDelta(s.textIndex, delta.Content)),
			})
		}
		for _, call := range delta.ToolCalls {
			idx, ok := s.toolIndexes[call.Index]
			if !ok {
				idx = s.nextIndex
				s.nextIndex++
				s.toolIndexes[call.Index] = idx
			}
			s.queue = append(s.queue, model.Partial{
				Delta: deltaPtr(types.NewToolCallDelta(types.Index(idx), call.ID, call.Function.Name, call.Function.Arguments)),
			})
		}
	}
	if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		s.queue = append(s.queue, model.Partial{
			Usage: &model.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			},
		})
	}
}

func (s *chatStream) Current() model.Partial { return s.current }

func (s *chatStream) Err() error {
	if s.err != nil {
		return s.err
	}
	if err := s.inner.Err(); err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}

func (s *chatStream) Close() error { return s.inner.Close() }

func deltaPtr(d types.PartDelta) *types.PartDelta { return &d }
