package types

// PartDelta is a partial, type-matching fragment of a Part observed during
// streaming. Index is the position of the part being built within the
// current model turn; some backends omit it for some part types, in which
// case Index is nil and the accumulator resolves the target part itself.
type PartDelta struct {
	Index *int

	OfText      *TextPartDelta
	OfToolCall  *ToolCallPartDelta
	OfAudio     *AudioPartDelta
	OfReasoning *ReasoningPartDelta
}

// TextPartDelta is a fragment of a text part.
type TextPartDelta struct {
	Text string
}

// ToolCallPartDelta is a fragment of a tool-call part. Args carries a
// fragment of the serialized argument text; ID and Name arrive at most once
// per part.
type ToolCallPartDelta struct {
	ID   string
	Name string
	Args string
}

// AudioPartDelta is a fragment of an audio part.
type AudioPartDelta struct {
	Data       []byte
	Format     string
	Transcript string
}

// ReasoningPartDelta is a fragment of a reasoning part.
type ReasoningPartDelta struct {
	Text      string
	Signature string
}

// Type reports which part variant the delta targets.
func (d PartDelta) Type() PartType {
	switch {
	case d.OfText != nil:
		return PartTypeText
	case d.OfToolCall != nil:
		return PartTypeToolCall
	case d.OfAudio != nil:
		return PartTypeAudio
	case d.OfReasoning != nil:
		return PartTypeReasoning
	}
	return ""
}

// NewTextDelta creates a text delta at the given index. Pass a nil index
// for backends that do not number text fragments.
func NewTextDelta(index *int, text string) PartDelta {
	return PartDelta{Index: index, OfText: &TextPartDelta{Text: text}}
}

// NewToolCallDelta creates a tool-call delta at the given index.
func NewToolCallDelta(index *int, id, name, args string) PartDelta {
	return PartDelta{Index: index, OfToolCall: &ToolCallPartDelta{ID: id, Name: name, Args: args}}
}

// NewReasoningDelta creates a reasoning delta at the given index.
func NewReasoningDelta(index *int, text, signature string) PartDelta {
	return PartDelta{Index: index, OfReasoning: &ReasoningPartDelta{Text: text, Signature: signature}}
}

// Index returns a pointer to i, for building deltas with literal indexes.
func Index(i int) *int {
	return &i
}
