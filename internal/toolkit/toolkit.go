// Package toolkit lets the tool set and system prompt offered to the model
// change between turns. A toolkit produces one session per run session;
// the session answers prompt and tool queries without blocking and is
// closed exactly once when the owning run session ends.
package toolkit

import (
	"context"

	"github.com/kestrelab/agentloop/tools"
)

// Toolkit creates a session scoped to one caller context value. Session
// creation is the only point where blocking setup work (connecting,
// initial listings) may happen.
type Toolkit[C any] interface {
	CreateSession(ctx context.Context, tc C) (Session[C], error)
}

// Session exposes the current prompt fragment and tool set for each turn.
// Both queries must be non-blocking; a session may change its answers
// between turns as a side effect of tool execution or of out-of-band
// notifications.
type Session[C any] interface {
	// SystemPrompt returns the session's prompt fragment, or "".
	SystemPrompt() string
	// Tools returns the current tool set. A session whose backing state
	// failed to refresh returns the refresh error here rather than stale
	// data.
	Tools() ([]tools.Tool[C], error)
	// Close releases the session's resources. It is idempotent and safe
	// to call on a session whose creation only partially completed.
	Close(ctx context.Context) error
}

// Static is a toolkit whose prompt and tools never change. Its sessions
// hold no resources.
type Static[C any] struct {
	Prompt   string
	ToolList []tools.Tool[C]
}

// CreateSession implements Toolkit.
func (s *Static[C]) CreateSession(ctx context.Context, tc C) (Session[C], error) {
	return &staticSession[C]{prompt: s.Prompt, tools: s.ToolList}, nil
}

type staticSession[C any] struct {
	prompt string
	tools  []tools.Tool[C]
}

func (s *staticSession[C]) SystemPrompt() string { return s.prompt }

func (s *staticSession[C]) Tools() ([]tools.Tool[C], error) { return s.tools, nil }

func (s *staticSession[C]) Close(ctx context.Context) error { return nil }

// Func adapts a session-constructor function into a Toolkit.
type Func[C any] func(ctx context.Context, tc C) (Session[C], error)

// CreateSession implements Toolkit.
func (f Func[C]) CreateSession(ctx context.Context, tc C) (Session[C], error) {
	return f(ctx, tc)
}
