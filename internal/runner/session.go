package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelab/agentloop/internal/toolkit"
)

// Session binds an agent to one caller context value and owns the toolkit
// sessions for as long as the caller keeps it open. Reusing a Session
// across Run calls preserves toolkit state (tools unlocked by earlier
// turns, remote listings) between them.
type Session[C any] struct {
	agent  *Agent[C]
	tc     C
	logger *slog.Logger

	toolkits []toolkit.Session[C]

	closeOnce sync.Once
	closeErr  error
}

// NewSession validates the agent configuration and creates every toolkit
// session in configuration order. If any creation fails, the sessions
// already created are closed before the error is returned.
func NewSession[C any](ctx context.Context, agent *Agent[C], tc C) (*Session[C], error) {
	if agent.Model == nil {
		return nil, errors.New("runner: agent has no model")
	}
	if agent.MaxTurns <= 0 {
		return nil, errors.New("runner: agent MaxTurns must be positive")
	}

	s := &Session[C]{
		agent:  agent,
		tc:     tc,
		logger: agent.logger().With("agent_name", agent.Name, "session_id", uuid.NewString()),
	}
	for _, tk := range agent.Toolkits {
		ts, err := tk.CreateSession(ctx, tc)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("runner: creating toolkit session: %w", err)
		}
		s.toolkits = append(s.toolkits, ts)
	}
	return s, nil
}

// Close releases every toolkit session. It is idempotent; later calls
// return the first result.
func (s *Session[C]) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, ts := range s.toolkits {
			if err := ts.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Run executes one blocking run on this session.
func (s *Session[C]) Run(ctx context.Context, in Input) (*Response, error) {
	return s.run(ctx, in, nil)
}

// RunStream executes one streaming run on this session. The session is
// not closed when the run ends; the caller owns it.
func (s *Session[C]) RunStream(ctx context.Context, in Input) *StreamResponse {
	sr := newStreamResponse()
	go func() {
		sr.finish(s.run(ctx, in, sr.emit))
	}()
	return sr
}
