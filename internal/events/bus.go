// Package events carries conversation lifecycle notifications over an
// in-process watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TopicConversation carries every conversation event.
const TopicConversation = "conversation"

// Type names a conversation event.
type Type string

const (
	TypeSessionCreated Type = "session.created"
	TypeTurnAppended   Type = "turn.appended"
	TypeUpstreamFailed Type = "upstream.failed"
)

// Event is the payload published on TopicConversation.
type Event struct {
	Type       Type      `json:"type"`
	SessionID  string    `json:"sessionId,omitempty"`
	Country    string    `json:"country,omitempty"`
	TurnCount  int       `json:"turnCount,omitempty"`
	AnswerSize int       `json:"answerSize,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher is the narrow interface the chat service depends on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus owns the pub/sub and a router that fans events out to handlers.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger watermill.LoggerAdapter
}

// NewBus creates a bus whose internal logging goes to logger.
func NewBus(logger zerolog.Logger) (*Bus, error) {
	adapter := NewZerologAdapter(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, adapter)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 5 * time.Second,
	}, adapter)
	if err != nil {
		return nil, errors.Wrap(err, "create event router")
	}

	return &Bus{pubsub: pubsub, router: router, logger: adapter}, nil
}

// Publish encodes ev and publishes it. A nil bus discards events.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if b == nil {
		return nil
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", string(ev.Type))
	if ev.SessionID != "" {
		msg.Metadata.Set("session_id", ev.SessionID)
	}

	return b.pubsub.Publish(TopicConversation, msg)
}

// Handle registers fn to receive every event. Must be called before Run.
func (b *Bus) Handle(name string, fn func(Event) error) {
	b.router.AddNoPublisherHandler(name, TopicConversation, b.pubsub, func(msg *message.Message) error {
		ev, err := Decode(msg)
		if err != nil {
			// Undecodable payloads are acked; redelivery cannot fix them.
			b.logger.Error("dropping undecodable event", err, watermill.LogFields{"message_id": msg.UUID})
			return nil
		}
		return fn(ev)
	})
}

// Subscribe returns a raw subscription, mostly useful in tests.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicConversation)
}

// Run blocks until ctx is done or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once handlers are subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Close stops the router and the pub/sub.
func (b *Bus) Close() error {
	routerErr := b.router.Close()
	pubsubErr := b.pubsub.Close()
	if routerErr != nil {
		return errors.Wrap(routerErr, "close event router")
	}
	if pubsubErr != nil {
		return errors.Wrap(pubsubErr, "close pubsub")
	}
	return nil
}

// Decode unmarshals a message produced by Publish.
func Decode(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	return ev, nil
}

// LogHandler writes each event to logger.
func LogHandler(logger zerolog.Logger) func(Event) error {
	return func(ev Event) error {
		entry := logger.Info()
		if ev.Type == TypeUpstreamFailed {
			entry = logger.Warn()
		}
		entry = entry.Str("event", string(ev.Type)).Str("session_id", ev.SessionID)
		if ev.Country != "" {
			entry = entry.Str("country", ev.Country)
		}
		if ev.TurnCount > 0 {
			entry = entry.Int("turns", ev.TurnCount)
		}
		if ev.AnswerSize > 0 {
			entry = entry.Int("answer_bytes", ev.AnswerSize)
		}
		if ev.Error != "" {
			entry = entry.Str("error", ev.Error)
		}
		entry.Msg("conversation event")
		return nil
	}
}
