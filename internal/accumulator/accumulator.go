// Package accumulator reassembles finished content parts from the partial
// fragments a streaming backend emits. Fragments sharing an index merge in
// arrival order; fragments without an index are matched to an open in-flight
// part of the same type, lowest index first.
package accumulator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kestrelab/agentloop/internal/types"
)

// InvariantError reports an unrecoverable desynchronization with the
// streaming source, such as two part types claiming the same index.
type InvariantError struct {
	Index int
	Got   types.PartType
	Want  types.PartType
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("accumulator: conflicting part types at index %d: stream sent %q into an open %q part", e.Index, e.Got, e.Want)
}

// ArgumentError reports tool-call argument text that did not parse as JSON
// once the part was finalized.
type ArgumentError struct {
	Index    int
	ToolName string
	Args     string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("accumulator: tool call %q at index %d finalized with invalid argument JSON: %.80q", e.ToolName, e.Index, e.Args)
}

// pending is one in-progress part. String fields concatenate across deltas;
// ID and Name are set by the first non-empty fragment that carries them.
type pending struct {
	typ        types.PartType
	closed     bool
	text       strings.Builder
	args       strings.Builder
	id         string
	name       string
	signature  string
	transcript strings.Builder
	data       []byte
	format     string
}

// A tool-call part stays open until both its id and name have been
// observed. Any other part stays open until a part of a different type
// starts at a higher index (tracked via the closed flag).
func (p *pending) open() bool {
	if p.typ == types.PartTypeToolCall {
		return p.id == "" || p.name == ""
	}
	return !p.closed
}

// Accumulator merges an ordered sequence of part deltas. The zero value is
// not usable; call New.
type Accumulator struct {
	parts    map[int]*pending
	maxIndex int
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{parts: map[int]*pending{}, maxIndex: -1}
}

// Add merges one delta. Deltas for one index must arrive in order relative
// to each other; deltas for distinct indexes may interleave arbitrarily.
func (a *Accumulator) Add(delta types.PartDelta) error {
	typ := delta.Type()
	if typ == "" {
		return fmt.Errorf("accumulator: delta carries no variant")
	}

	var index int
	if delta.Index != nil {
		index = *delta.Index
	} else {
		index = a.resolveIndex(typ)
	}

	part, ok := a.parts[index]
	if !ok {
		part = &pending{typ: typ}
		a.parts[index] = part
		if index > a.maxIndex {
			a.maxIndex = index
		}
		// A part is sealed once a different-type part exists at a higher
		// index: starting this part seals the lower ones, and if the new
		// part arrived out of order below an existing different-type part
		// it starts sealed itself. Sealed parts no longer attract
		// index-less fragments.
		for i, other := range a.parts {
			if i == index || other.typ == typ {
				continue
			}
			if i < index {
				other.closed = true
			} else {
				part.closed = true
			}
		}
	} else if part.typ != typ {
		return &InvariantError{Index: index, Got: typ, Want: part.typ}
	}

	switch {
	case delta.OfText != nil:
		part.text.WriteString(delta.OfText.Text)
	case delta.OfToolCall != nil:
		d := delta.OfToolCall
		if d.ID != "" && part.id == "" {
			part.id = d.ID
		}
		if d.Name != "" && part.name == "" {
			part.name = d.Name
		}
		part.args.WriteString(d.Args)
	case delta.OfReasoning != nil:
		d := delta.OfReasoning
		part.text.WriteString(d.Text)
		if d.Signature != "" {
			part.signature = d.Signature
		}
	case delta.OfAudio != nil:
		d := delta.OfAudio
		part.data = append(part.data, d.Data...)
		part.transcript.WriteString(d.Transcript)
		if d.Format != "" {
			part.format = d.Format
		}
	}
	return nil
}

// resolveIndex assigns an index to a delta that arrived without one. The
// lowest open in-flight part of a compatible type wins; if none is open the
// delta starts a new part after the highest index seen so far. Scanning in
// ascending index order keeps the rule deterministic when two parts of the
// same type stream concurrently.
func (a *Accumulator) resolveIndex(typ types.PartType) int {
	indexes := make([]int, 0, len(a.parts))
	for i := range a.parts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		part := a.parts[i]
		if part.typ == typ && part.open() {
			return i
		}
	}
	return a.maxIndex + 1
}

// Parts finalizes every in-flight part and returns them ordered by index,
// regardless of the order fragments arrived in. Tool-call argument text is
// parsed here; text that is not valid JSON is an error, never an empty
// value.
func (a *Accumulator) Parts() ([]types.Part, error) {
	indexes := make([]int, 0, len(a.parts))
	for i := range a.parts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]types.Part, 0, len(indexes))
	for _, i := range indexes {
		part := a.parts[i]
		switch part.typ {
		case types.PartTypeText:
			out = append(out, types.NewTextPart(part.text.String()))
		case types.PartTypeReasoning:
			out = append(out, types.NewReasoningPart(part.text.String(), part.signature))
		case types.PartTypeAudio:
			out = append(out, types.Part{OfAudio: &types.AudioPart{
				Data:       part.data,
				Format:     part.format,
				Transcript: part.transcript.String(),
			}})
		case types.PartTypeToolCall:
			args := part.args.String()
			if args == "" {
				args = "{}"
			}
			if !gjson.Valid(args) {
				return nil, &ArgumentError{Index: i, ToolName: part.name, Args: args}
			}
			out = append(out, types.NewToolCallPart(part.id, part.name, json.RawMessage(args)))
		}
	}
	return out, nil
}
