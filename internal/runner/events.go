package runner

import (
	"time"

	"github.com/kestrelab/agentloop/internal/model"
	"github.com/kestrelab/agentloop/internal/types"
)

// Event is one streamed occurrence during a run. Exactly one Of field is
// populated: a partial content delta, a finalized conversation item, the
// terminal response, or the terminal error. After an OfResponse or
// OfError event the stream ends.
type Event struct {
	Timestamp  time.Time
	OfPartial  *model.Partial
	OfItem     *types.Message
	OfResponse *Response
	OfError    error
}

// Partial returns the content delta carried by the event if present.
func (e *Event) Partial() (*model.Partial, bool) {
	return e.OfPartial, e.OfPartial != nil
}

// Item returns the finalized conversation item carried by the event if
// present.
func (e *Event) Item() (*types.Message, bool) {
	return e.OfItem, e.OfItem != nil
}

// Response returns the terminal response carried by the event if present.
func (e *Event) Response() (*Response, bool) {
	return e.OfResponse, e.OfResponse != nil
}

// Err returns the terminal error carried by the event if present.
func (e *Event) Err() (error, bool) {
	return e.OfError, e.OfError != nil
}

func partialEvent(p model.Partial) Event {
	return Event{OfPartial: &p, Timestamp: time.Now()}
}

func itemEvent(item types.Message) Event {
	return Event{OfItem: &item, Timestamp: time.Now()}
}

func responseEvent(resp *Response) Event {
	return Event{OfResponse: resp, Timestamp: time.Now()}
}

func errorEvent(err error) Event {
	return Event{OfError: err, Timestamp: time.Now()}
}
