package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"spool/internal/logging"
)

// Channel names. Per-job channels come from JobChannel.
const (
	ChannelQueue = "queue"
	ChannelAuth  = "auth"
)

// Event names carried on the wire.
const (
	EventFetchProgress     = "fetch-progress"
	EventTranscodeProgress = "transcode-progress"
	EventJobState          = "job-state"
	EventQueueDrained      = "queue-drained"
	EventAuthPrompt        = "auth-prompt"
	EventAuthState         = "auth-state"
)

// JobChannel returns the per-job channel name.
func JobChannel(jobID int64) string {
	return fmt.Sprintf("job/%d", jobID)
}

// Event is one published update.
type Event struct {
	Channel       string
	CorrelationID string
	Name          string
	Payload       any
	At            time.Time
}

// Handler receives events synchronously on the publisher's goroutine. It
// must not block.
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Bus fans published events out to per-channel subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	logger *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger.With(logging.String(logging.FieldComponent, "bus")),
	}
}

// NewCorrelationID returns a fresh correlation identifier for a publish
// sequence.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Publish delivers an event to every subscriber of the channel. Handlers
// run on the caller's goroutine; panics in one handler do not stop
// delivery to the rest.
func (b *Bus) Publish(channel, correlationID, name string, payload any) {
	event := Event{
		Channel:       channel,
		CorrelationID: correlationID,
		Name:          name,
		Payload:       payload,
		At:            time.Now(),
	}

	b.mu.RLock()
	snapshot := make([]subscription, len(b.subs[channel]))
	copy(snapshot, b.subs[channel])
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event handler panicked",
				logging.String("channel", event.Channel),
				logging.String(logging.FieldEventType, event.Name),
				logging.String("panic", fmt.Sprint(r)))
		}
	}()
	sub.handler(event)
}

// Subscribe registers a handler for a channel and returns its unsubscribe
// handle. Calling the handle more than once is harmless.
func (b *Bus) Subscribe(channel string, handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	sub := subscription{id: uuid.NewString(), handler: handler}

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i := range subs {
			if subs[i].id == sub.id {
				b.subs[channel] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
	}
}

// SubscriberCount reports live registrations for a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
