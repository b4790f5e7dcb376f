// Package chat submits user messages to the model and records the resulting
// turns.
package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/events"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/ai"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

var (
	ErrEmptyMessage   = errors.New("message is required")
	ErrUnknownCountry = errors.New("unknown country")
)

// Conversant opens a model conversation for a session.
type Conversant interface {
	Converse(ctx context.Context, req ai.ConverseRequest) (*ai.Conversation, error)
}

// SubmitRequest is one message typed by the user.
type SubmitRequest struct {
	Message    string
	Transcript []chat.Turn
	Country    string
	SessionID  string
}

// SubmitResult is the state to render after a submission. On failure it is
// populated only when the session was already resolved.
type SubmitResult struct {
	Transcript []chat.Turn
	SessionID  string
	Turn       chat.Turn
	Created    bool
}

type submitOptions struct {
	onSession func(sessionID string, created bool)
	onPrefix  func(prefix string)
}

// SubmitOption customises a single Submit call.
type SubmitOption func(*submitOptions)

// WithSessionHandler is called once the session is resolved, before any
// prefix arrives.
func WithSessionHandler(fn func(sessionID string, created bool)) SubmitOption {
	return func(o *submitOptions) {
		o.onSession = fn
	}
}

// WithPrefixHandler receives every cumulative prefix as it streams in.
func WithPrefixHandler(fn func(prefix string)) SubmitOption {
	return func(o *submitOptions) {
		o.onPrefix = fn
	}
}

// Service ties the country catalogue, the model driver and the session store
// together.
type Service struct {
	driver    Conversant
	sessions  session.Store
	countries country.Store
	events    events.Publisher
	locks     *sessionLocks
}

// NewService wires a chat service. publisher may be nil.
func NewService(driver Conversant, sessions session.Store, countries country.Store, publisher events.Publisher) *Service {
	return &Service{
		driver:    driver,
		sessions:  sessions,
		countries: countries,
		events:    publisher,
		locks:     newSessionLocks(),
	}
}

// Countries lists the selectable countries.
func (s *Service) Countries() []country.Country {
	return s.countries.List()
}

// Submit sends req.Message to the model, waits for the complete answer and
// appends the turn. Nothing is appended when the model call fails; once the
// session is resolved the result still carries its id and stored transcript.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, opts ...SubmitOption) (SubmitResult, error) {
	var options submitOptions
	for _, opt := range opts {
		opt(&options)
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return SubmitResult{}, ErrEmptyMessage
	}
	selected, ok := s.countries.Find(req.Country)
	if !ok {
		return SubmitResult{}, errors.Wrapf(ErrUnknownCountry, "%q", req.Country)
	}
	if err := session.ValidateID(req.SessionID); err != nil {
		return SubmitResult{}, err
	}

	// Resolve first so a failed model call still reports the session it
	// created; a retry with that id then lands on the same record.
	resolved, created, err := s.sessions.GetOrCreate(ctx, req.SessionID, req.Transcript)
	if err != nil {
		return SubmitResult{}, err
	}
	defer s.locks.lock(resolved.ID)()

	if created {
		s.publish(ctx, events.Event{Type: events.TypeSessionCreated, SessionID: resolved.ID, Country: selected.Label})
	}
	if options.onSession != nil {
		options.onSession(resolved.ID, created)
	}

	failed := func(err error) (SubmitResult, error) {
		s.publishFailure(ctx, resolved.ID, selected, err)
		return SubmitResult{
			Transcript: resolved.Transcript.Turns(),
			SessionID:  resolved.ID,
			Created:    created,
		}, err
	}

	conv, err := s.driver.Converse(ctx, ai.ConverseRequest{
		Country:   selected.Label,
		Question:  message,
		SessionID: resolved.ID,
	})
	if err != nil {
		return failed(err)
	}
	defer conv.Close()

	var final string
	for prefix, err := range conv.Prefixes() {
		if err != nil {
			return failed(err)
		}
		final = prefix
		if options.onPrefix != nil {
			options.onPrefix(prefix)
		}
	}

	turn := chat.NewTurn(message, final)
	sess, err := s.sessions.Append(ctx, resolved.ID, turn)
	if err != nil {
		return SubmitResult{SessionID: resolved.ID, Created: created}, errors.Wrap(err, "append turn")
	}

	transcript := sess.Transcript.Turns()
	s.publish(ctx, events.Event{
		Type:       events.TypeTurnAppended,
		SessionID:  sess.ID,
		Country:    selected.Label,
		TurnCount:  len(transcript),
		AnswerSize: len(final),
	})

	return SubmitResult{
		Transcript: transcript,
		SessionID:  sess.ID,
		Turn:       turn,
		Created:    created,
	}, nil
}

// Transcript returns the stored turns for sessionID.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	if sessionID == "" {
		return nil, session.ErrNotFound
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Transcript.Turns(), nil
}

func (s *Service) publishFailure(ctx context.Context, sessionID string, selected country.Country, err error) {
	if !errors.Is(err, ai.ErrUpstreamUnavailable) {
		return
	}
	s.publish(ctx, events.Event{
		Type:      events.TypeUpstreamFailed,
		SessionID: sessionID,
		Country:   selected.Label,
		Error:     err.Error(),
	})
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).Str("component", "chat").Str("event", string(ev.Type)).Msg("publish event failed")
	}
}
