package runner

import (
	"sync"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/types"
)

// Response is the outcome of one run. On success Content holds the final
// assistant output; on failure Content is nil but NewItems still holds
// every item appended before the failure, so callers can inspect or
// resume.
type Response struct {
	// Content is the final assistant turn's parts.
	Content []types.Part
	// NewItems are the conversation items this run produced, in order.
	// The caller owns feeding them into the next run's input.
	NewItems []types.Message
	// Usage is the summed token accounting across every model call.
	Usage model.Usage
	// Turns is the number of model calls made.
	Turns int
}

// Text joins the final content's text parts.
func (r *Response) Text() string {
	return types.TextContent(r.Content)
}

// StreamResponse is the caller's handle on a streaming run. Events arrive
// on Events in emission order and end with exactly one terminal event:
// either a response or an error.
type StreamResponse struct {
	events chan Event

	mu    sync.Mutex
	items []types.Message
	final *Response
	err   error
	done  chan struct{}
}

func newStreamResponse() *StreamResponse {
	return &StreamResponse{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Events returns the run's event channel. It is closed after the terminal
// event.
func (sr *StreamResponse) Events() <-chan Event {
	return sr.events
}

// Wait drains any unread events and blocks until the run terminates,
// returning the terminal response or error. On error the returned
// response still carries the items produced before the failure.
func (sr *StreamResponse) Wait() (*Response, error) {
	for range sr.events {
	}
	<-sr.done
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.final, sr.err
}

// Items returns the conversation items finalized so far.
func (sr *StreamResponse) Items() []types.Message {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	out := make([]types.Message, len(sr.items))
	copy(out, sr.items)
	return out
}

// emit forwards an event to the caller, tracking finalized items.
func (sr *StreamResponse) emit(ev Event) {
	if item, ok := ev.Item(); ok {
		sr.mu.Lock()
		sr.items = append(sr.items, *item)
		sr.mu.Unlock()
	}
	sr.events <- ev
}

// finish records the terminal state, emits the terminal event and closes
// the stream.
func (sr *StreamResponse) finish(resp *Response, err error) {
	sr.mu.Lock()
	sr.final = resp
	sr.err = err
	sr.mu.Unlock()
	if err != nil {
		sr.events <- errorEvent(err)
	} else {
		sr.events <- responseEvent(resp)
	}
	close(sr.events)
	close(sr.done)
}
