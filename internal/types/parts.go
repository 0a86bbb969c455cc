package types

import "encoding/json"

// PartType identifies the variant held by a Part or PartDelta.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeToolCall   PartType = "tool_call"
	PartTypeToolResult PartType = "tool_result"
	PartTypeAudio      PartType = "audio"
	PartTypeImage      PartType = "image"
	PartTypeReasoning  PartType = "reasoning"
)

// Part is one unit of model or tool content. Exactly one of the Of fields
// is populated.
type Part struct {
	OfText       *TextPart       `json:"text,omitempty"`
	OfToolCall   *ToolCallPart   `json:"tool_call,omitempty"`
	OfToolResult *ToolResultPart `json:"tool_result,omitempty"`
	OfAudio      *AudioPart      `json:"audio,omitempty"`
	OfImage      *ImagePart      `json:"image,omitempty"`
	OfReasoning  *ReasoningPart  `json:"reasoning,omitempty"`
}

// TextPart is plain text content.
type TextPart struct {
	Text string `json:"text"`
}

// ToolCallPart is a model request to invoke a named tool. Args holds the
// structured arguments as serialized JSON.
type ToolCallPart struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResultPart carries the outcome of one tool call back to the model.
// IsError marks a tool-reported failure that the conversation continues
// through.
type ToolResultPart struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty"`
	Content    []Part `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// AudioPart is audio content with an optional transcript.
type AudioPart struct {
	Data       []byte `json:"data,omitempty"`
	Format     string `json:"format,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ImagePart is image content.
type ImagePart struct {
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ReasoningPart is provider thinking/reasoning content.
type ReasoningPart struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// Type reports which variant the part holds.
func (p Part) Type() PartType {
	switch {
	case p.OfText != nil:
		return PartTypeText
	case p.OfToolCall != nil:
		return PartTypeToolCall
	case p.OfToolResult != nil:
		return PartTypeToolResult
	case p.OfAudio != nil:
		return PartTypeAudio
	case p.OfImage != nil:
		return PartTypeImage
	case p.OfReasoning != nil:
		return PartTypeReasoning
	}
	return ""
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{OfText: &TextPart{Text: text}}
}

// NewToolCallPart creates a tool-call part.
func NewToolCallPart(id, name string, args json.RawMessage) Part {
	return Part{OfToolCall: &ToolCallPart{ID: id, Name: name, Args: args}}
}

// NewToolResultPart creates a tool-result part.
func NewToolResultPart(toolCallID, toolName string, content []Part, isError bool) Part {
	return Part{OfToolResult: &ToolResultPart{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    content,
		IsError:    isError,
	}}
}

// NewReasoningPart creates a reasoning part.
func NewReasoningPart(text, signature string) Part {
	return Part{OfReasoning: &ReasoningPart{Text: text, Signature: signature}}
}

// NewImagePart creates an image part.
func NewImagePart(data []byte, mimeType string) Part {
	return Part{OfImage: &ImagePart{Data: data, MimeType: mimeType}}
}

// NewAudioPart creates an audio part.
func NewAudioPart(data []byte, format string) Part {
	return Part{OfAudio: &AudioPart{Data: data, Format: format}}
}

// TextContent joins the text of every text part in parts.
func TextContent(parts []Part) string {
	var out string
	for _, p := range parts {
		if p.OfText != nil {
			out += p.OfText.Text
		}
	}
	return out
}

// ToolCalls returns every tool-call part in parts, preserving order.
func ToolCalls(parts []Part) []*ToolCallPart {
	var calls []*ToolCallPart
	for _, p := range parts {
		if p.OfToolCall != nil {
			calls = append(calls, p.OfToolCall)
		}
	}
	return calls
}
