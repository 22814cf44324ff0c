package event

import (
	"time"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
	"github.com/LeonardoBeccarini/smartcrop/internal/model/messages"
)

// Kind tells which payload of an Event is set.
type Kind string

const (
	KindSample Kind = "sample"
	KindAlert  Kind = "alert"
	KindState  Kind = "state"
)

// Event is one core notification on its way to the sinks.
type Event struct {
	Kind  Kind
	Seq   uint64
	Entry entities.HistoryEntry
	Alert entities.Alert
	State messages.StateChangeEvent
}

// Time is the instant the event refers to.
func (e Event) Time() time.Time {
	switch e.Kind {
	case KindSample:
		return e.Entry.Timestamp
	case KindAlert:
		return e.Alert.Time
	default:
		return e.State.Timestamp
	}
}

// Sink consumes events off the dispatcher goroutine. Errors are logged and
// counted by the dispatcher, never returned to the core.
type Sink interface {
	Name() string
	Handle(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	ID string
	Fn func(Event) error
}

func (s SinkFunc) Name() string          { return s.ID }
func (s SinkFunc) Handle(ev Event) error { return s.Fn(ev) }
