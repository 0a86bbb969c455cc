package types

// Role identifies the author of a message.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	Tool      Role = "tool"
)

// Message is one conversation item: a role plus an ordered list of content
// parts. Messages are immutable once appended to a run's transcript.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewUserMessage creates a user message with a single text part.
func NewUserMessage(text string) Message {
	return Message{Role: User, Parts: []Part{NewTextPart(text)}}
}

// NewAssistantMessage creates an assistant message from finished parts.
func NewAssistantMessage(parts []Part) Message {
	return Message{Role: Assistant, Parts: parts}
}

// NewToolMessage creates a tool message carrying a single tool-result part.
func NewToolMessage(result Part) Message {
	return Message{Role: Tool, Parts: []Part{result}}
}

// Text joins the message's text parts.
func (m Message) Text() string {
	return TextContent(m.Parts)
}
