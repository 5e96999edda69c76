package pipeline

import (
	"sync"

	"github.com/tvmlabs/tonctl/internal/logz"
)

// Event is a tagged progress notification emitted by the orchestrator.
// Observers subscribe independently of the call flow; emitting never blocks
// and never affects the call outcome.
type Event interface {
	eventName() string
}

// MessageSent fires the moment the network first accepts a message.
type MessageSent struct {
	MessageID string
}

func (MessageSent) eventName() string { return "message_sent" }

// CallConfirmed fires when a synchronous call's transaction is located.
type CallConfirmed struct {
	MessageID string
	TxHash    string
	ExitCode  int32
}

func (CallConfirmed) eventName() string { return "call_confirmed" }

// ReplayStarted fires when an execution failure arms the diagnostic replay.
type ReplayStarted struct {
	MessageID string
	ExitCode  int32
}

func (ReplayStarted) eventName() string { return "replay_started" }

// ReplayFinished fires after the replay wrote its trace, or failed trying.
type ReplayFinished struct {
	MessageID string
	TracePath string
	Err       error
}

func (ReplayFinished) eventName() string { return "replay_finished" }

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events to the logger, for debugging observers.
type LogSink struct {
	Logger *logz.Logger
}

func (s LogSink) Emit(ev Event) {
	if s.Logger != nil {
		s.Logger.Debug("event %s: %+v", ev.eventName(), ev)
	}
}

// Bus fans events out to subscribed channels. Subscribers that fall behind
// lose events rather than stalling the call.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new observer channel.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs = append(b.subs, ch)
	return ch
}

// Emit delivers ev to every subscriber without blocking.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
