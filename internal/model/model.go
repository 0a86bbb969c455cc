// Package model defines the language-model port the run loop drives. One
// implementation exists per provider; the loop never sees wire formats,
// only canonical messages, parts and deltas.
package model

import (
	"context"
	"fmt"

	"github.com/kestrelab/agentloop/internal/types"
)

// ToolSpec is the declaration of a callable tool as presented to the
// model. Parameters is a JSON-Schema-shaped object and is opaque to the
// run loop.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Input is one canonical model request: resolved system prompt, the
// transcript so far, the turn's tool set and sampling parameters.
type Input struct {
	System      string
	Messages    []types.Message
	Tools       []ToolSpec
	Temperature *float64
	TopP        *float64
	MaxTokens   int64
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
}

// Response is the finished output of one blocking model call.
type Response struct {
	Content []types.Part
	Usage   Usage
}

// Partial is one streamed fragment: a content delta, a usage report, or
// both. End of stream is signalled by the stream itself, not a sentinel.
type Partial struct {
	Delta *types.PartDelta
	Usage *Usage
}

// Stream yields Partials until the model turn completes. The usual
// consumption pattern follows the SSE stream iterators of the provider
// SDKs:
//
//	for stream.Next() {
//		partial := stream.Current()
//		...
//	}
//	if err := stream.Err(); err != nil { ... }
type Stream interface {
	Next() bool
	Current() Partial
	Err() error
	Close() error
}

// LanguageModel is the capability a provider adapter supplies.
type LanguageModel interface {
	// Name identifies the backing model, for logs and events.
	Name() string
	// Generate performs one blocking call.
	Generate(ctx context.Context, in *Input) (*Response, error)
	// Stream performs one streaming call.
	Stream(ctx context.Context, in *Input) (Stream, error)
}

// RefusalError reports that the model declined to answer or produced
// output the adapter could not translate. It is fatal to a run.
type RefusalError struct {
	Model  string
	Reason string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("model %s refused to respond: %s", e.Model, e.Reason)
}
