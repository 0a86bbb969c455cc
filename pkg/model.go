package agents

import (
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/provider/anthropicmsg"
	"github.com/kestrelab/agentloop/internal/provider/openaichat"
	"github.com/kestrelab/agentloop/internal/types"
)

// The model port, re-exported so callers can implement LanguageModel for
// providers this module does not ship an adapter for.
type (
	ModelInput    = model.Input
	ModelResponse = model.Response
	ModelPartial  = model.Partial
	ModelStream   = model.Stream
	ModelUsage    = model.Usage
	ToolSpec      = model.ToolSpec

	TextPart       = types.TextPart
	ToolCallPart   = types.ToolCallPart
	ToolResultPart = types.ToolResultPart

	PartDelta          = types.PartDelta
	TextPartDelta      = types.TextPartDelta
	ToolCallPartDelta  = types.ToolCallPartDelta
	AudioPartDelta     = types.AudioPartDelta
	ReasoningPartDelta = types.ReasoningPartDelta
)

// NewTextPart builds a text content part.
func NewTextPart(text string) Part {
	return types.NewTextPart(text)
}

// NewToolCallPart builds a tool-call content part.
func NewToolCallPart(id, name string, args []byte) Part {
	return types.NewToolCallPart(id, name, args)
}

// NewTextDelta builds a text delta at the given index; pass nil for
// backends that do not number text fragments.
func NewTextDelta(index *int, text string) PartDelta {
	return types.NewTextDelta(index, text)
}

// NewToolCallDelta builds a tool-call delta at the given index.
func NewToolCallDelta(index *int, id, name, args string) PartDelta {
	return types.NewToolCallDelta(index, id, name, args)
}

// DeltaIndex returns a pointer to i, for building deltas with literal
// indexes.
func DeltaIndex(i int) *int {
	return types.Index(i)
}

// NewOpenAIModel creates a LanguageModel over the OpenAI chat completions
// API. Request options pass through to the SDK client, e.g.
// option.WithBaseURL for OpenAI-compatible servers.
func NewOpenAIModel(name string, opts ...openaioption.RequestOption) LanguageModel {
	return openaichat.New(name, opts...)
}

// NewAnthropicModel creates a LanguageModel over the Anthropic messages
// API.
func NewAnthropicModel(name string, opts ...anthropicoption.RequestOption) LanguageModel {
	return anthropicmsg.New(name, opts...)
}
