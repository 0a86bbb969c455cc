package runner

import (
	"context"
	"log/slog"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/toolkit"
	"github.com/kestrelab/agentloop/internal/types"
	"github.com/kestrelab/agentloop/tools"
)

// Instructions is the agent's fixed instruction set. Exactly one field
// should be populated; OfFunc receives the caller context value and is
// re-resolved every turn.
type Instructions[C any] struct {
	OfString string
	OfFunc   func(ctx context.Context, tc C) (string, error)
}

func (ins Instructions[C]) resolve(ctx context.Context, tc C) (string, error) {
	if ins.OfFunc != nil {
		return ins.OfFunc(ctx, tc)
	}
	return ins.OfString, nil
}

// Agent is the immutable configuration a run executes against. It is
// created once and read-only during runs; concurrent runs of one agent
// are independent.
type Agent[C any] struct {
	Name         string
	Model        model.LanguageModel
	Instructions Instructions[C]

	// Tools are always available. Toolkits contribute per-session tool
	// sets and prompt fragments resolved fresh each turn; on a name
	// collision the later registration wins, statics first, then
	// toolkits in configuration order.
	Tools    []tools.Tool[C]
	Toolkits []toolkit.Toolkit[C]

	// MaxTurns bounds the number of model calls per run. It is required;
	// there is no default that allows unbounded looping.
	MaxTurns int

	Temperature *float64
	TopP        *float64
	MaxTokens   int64

	Logger *slog.Logger
}

func (a *Agent[C]) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Input is the starting data for one run: prior conversation items and
// fresh input. OfString, when set, is appended after OfItems as a user
// message.
type Input struct {
	OfString string
	OfItems  []types.Message
}

func (in Input) conversation() []types.Message {
	items := make([]types.Message, 0, len(in.OfItems)+1)
	items = append(items, in.OfItems...)
	if in.OfString != "" {
		items = append(items, types.NewUserMessage(in.OfString))
	}
	return items
}

// Run executes the agent to completion against a fresh session: toolkit
// sessions are created before the first turn and closed on every exit
// path. The caller context value tc is threaded unchanged to every tool
// and toolkit call.
//
// On a fatal error the returned Response is non-nil and still carries the
// items produced before the failure.
func Run[C any](ctx context.Context, agent *Agent[C], tc C, in Input) (*Response, error) {
	s, err := NewSession(ctx, agent, tc)
	if err != nil {
		return nil, err
	}
	defer s.Close(ctx)
	return s.Run(ctx, in)
}

// RunStream is Run's streaming form. The returned StreamResponse yields
// partial events for every model fragment, item events as conversation
// items finalize, and exactly one terminal response or error event.
func RunStream[C any](ctx context.Context, agent *Agent[C], tc C, in Input) *StreamResponse {
	sr := newStreamResponse()
	go func() {
		s, err := NewSession(ctx, agent, tc)
		if err != nil {
			sr.finish(&Response{}, err)
			return
		}
		resp, runErr := s.run(ctx, in, sr.emit)
		// Sessions close before the terminal event surfaces, even on
		// cancellation.
		closeErr := s.Close(ctx)
		if runErr == nil {
			runErr = closeErr
		}
		sr.finish(resp, runErr)
	}()
	return sr
}
