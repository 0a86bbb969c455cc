// Package agents is the public surface of the runtime. It re-exports the
// internal packages' types so callers import one package for the common
// path: configure an Agent, then Run or RunStream it.
package agents

import (
	"context"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/runner"
	"github.com/kestrelab/agentloop/internal/toolkit"
	"github.com/kestrelab/agentloop/internal/types"
	"github.com/kestrelab/agentloop/tools"
)

type (
	Agent[C any]        = runner.Agent[C]
	Instructions[C any] = runner.Instructions[C]
	Input               = runner.Input
	Response            = runner.Response
	StreamResponse      = runner.StreamResponse
	Event               = runner.Event
	Session[C any]      = runner.Session[C]

	MaxTurnsError  = runner.MaxTurnsError
	ToolFaultError = runner.ToolFaultError
	RefusalError   = model.RefusalError

	Tool[C any]           = tools.Tool[C]
	ToolResult            = tools.Result
	Toolkit[C any]        = toolkit.Toolkit[C]
	ToolkitSession[C any] = toolkit.Session[C]
	StaticToolkit[C any]  = toolkit.Static[C]
	MCPToolkit[C any]     = toolkit.MCP[C]

	LanguageModel = model.LanguageModel
	Message       = types.Message
	Part          = types.Part
	Role          = types.Role
)

// UserMessage builds a user message with a single text part.
func UserMessage(text string) Message {
	return types.NewUserMessage(text)
}

// StringInstructions builds a fixed instruction set.
func StringInstructions[C any](s string) Instructions[C] {
	return Instructions[C]{OfString: s}
}

// FuncInstructions builds an instruction set re-resolved from the caller
// context every turn.
func FuncInstructions[C any](fn func(ctx context.Context, tc C) (string, error)) Instructions[C] {
	return Instructions[C]{OfFunc: fn}
}

// Run executes the agent to completion and returns the final response.
func Run[C any](ctx context.Context, agent *Agent[C], tc C, in Input) (*Response, error) {
	return runner.Run(ctx, agent, tc, in)
}

// RunStream executes the agent, streaming partial, item and terminal
// events.
func RunStream[C any](ctx context.Context, agent *Agent[C], tc C, in Input) *StreamResponse {
	return runner.RunStream(ctx, agent, tc, in)
}

// NewSession opens a reusable run session whose toolkit sessions persist
// across Run calls until Close.
func NewSession[C any](ctx context.Context, agent *Agent[C], tc C) (*Session[C], error) {
	return runner.NewSession(ctx, agent, tc)
}
