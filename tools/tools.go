// Package tools defines the executable functions an agent can hand to the
// model, and helpers for deriving their JSON-Schema parameters from Go
// argument structs.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrelab/agentloop/internal/types"
)

// Result is the outcome a tool reports back into the conversation.
// IsError marks a recoverable failure: the run continues and the model
// sees the error content. A tool that instead returns a Go error from
// Execute halts the whole run.
type Result struct {
	Content []types.Part
	IsError bool
}

// TextResult wraps plain text as a successful result.
func TextResult(text string) Result {
	return Result{Content: []types.Part{types.NewTextPart(text)}}
}

// JSONResult marshals v and wraps it as a successful result. Marshal
// failures come back as an error-flagged result rather than halting the
// run.
func JSONResult(v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Errorf("marshaling tool result: %v", err)
	}
	return TextResult(string(data))
}

// Errorf formats an error-flagged text result.
func Errorf(format string, args ...any) Result {
	return Result{
		Content: []types.Part{types.NewTextPart(fmt.Sprintf(format, args...))},
		IsError: true,
	}
}

// Tool describes one executable function. C is the caller-defined context
// value threaded unchanged through every execution in a run.
type Tool[C any] struct {
	// Name must be unique within one turn's tool set.
	Name string
	// Description tells the model when to call the tool.
	Description string
	// Parameters is a JSON-Schema object describing the arguments.
	Parameters map[string]any
	// Execute runs the tool. Returning a Result with IsError set feeds a
	// recoverable failure back to the model; returning a non-nil error is
	// fatal to the run and is how approval-gated tools interrupt it.
	Execute func(ctx context.Context, args json.RawMessage, tc C) (Result, error)
}

// New builds a Tool whose parameter schema is reflected from the argument
// struct A. Arguments that fail to unmarshal produce an error-flagged
// result, not a fatal fault.
func New[C, A any](name, description string, fn func(ctx context.Context, args A, tc C) (Result, error)) Tool[C] {
	return Tool[C]{
		Name:        name,
		Description: description,
		Parameters:  Schema[A](),
		Execute: func(ctx context.Context, raw json.RawMessage, tc C) (Result, error) {
			var args A
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return Errorf("invalid arguments for tool %s: %v", name, err), nil
				}
			}
			return fn(ctx, args, tc)
		},
	}
}
