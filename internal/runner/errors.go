package runner

import "fmt"

// MaxTurnsError reports a run that was still requesting tools when the
// configured turn budget ran out. Distinct from a tool fault so callers
// can tell "ran out of turns" from "a tool broke".
type MaxTurnsError struct {
	Turns int
}

func (e *MaxTurnsError) Error() string {
	return fmt.Sprintf("run exceeded the maximum of %d turns", e.Turns)
}

// ToolFaultError reports a tool whose Execute returned an error, as
// opposed to an error-flagged result. It halts the run and preserves the
// cause, so callers can match on it — for example to detect an
// approval-required condition, obtain approval, and resume with the items
// accumulated so far.
type ToolFaultError struct {
	ToolName   string
	ToolCallID string
	Err        error
}

func (e *ToolFaultError) Error() string {
	return fmt.Sprintf("tool %s (call %s) faulted: %v", e.ToolName, e.ToolCallID, e.Err)
}

func (e *ToolFaultError) Unwrap() error { return e.Err }
