// Package ai drives a single model exchange for a chat session.
package ai

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/config"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

// SystemPrompt is rendered with the selected country before every call.
const SystemPrompt = "You are a helpful chatbot in {country}."

const defaultTimeout = 60 * time.Second

// Options bound a single model call.
type Options struct {
	Timeout          time.Duration
	HistoryMaxTurns  int
	HistoryMaxTokens int
	Counter          TokenCounter
}

// OptionsFromConfig maps the AI configuration onto Options.
func OptionsFromConfig(cfg config.AIConfig) Options {
	return Options{
		Timeout:          cfg.Timeout,
		HistoryMaxTurns:  cfg.HistoryMaxTurns,
		HistoryMaxTokens: cfg.HistoryMaxTokens,
	}
}

// ConverseRequest carries one user message. Transcript only seeds a session
// that does not exist yet; a known session keeps its stored transcript.
type ConverseRequest struct {
	Country    string
	Question   string
	Transcript []chat.Turn
	SessionID  string
}

// Service turns a request into a streamed model response.
type Service struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	sessions session.Store
	opts     Options
}

// NewService compiles the prompt chain around chatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, sessions session.Store, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Counter == nil && opts.HistoryMaxTokens > 0 {
		opts.Counter = NewTokenCounter()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(SystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{question}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile chat chain")
	}

	return &Service{
		chain:    runnable,
		sessions: sessions,
		opts:     opts,
	}, nil
}

// Converse resolves the session, opens the model stream and returns the
// conversation to be drained by the caller. The model is invoked once; the
// transcript is not modified here.
func (s *Service) Converse(ctx context.Context, req ConverseRequest) (*Conversation, error) {
	sess, created, err := s.sessions.GetOrCreate(ctx, req.SessionID, req.Transcript)
	if err != nil {
		return nil, err
	}

	turns := windowTurns(sess.Transcript.Turns(), s.opts.HistoryMaxTurns, s.opts.HistoryMaxTokens, s.opts.Counter)
	input := map[string]any{
		"country":  strings.TrimSpace(req.Country),
		"history":  historyMessages(turns),
		"question": req.Question,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	stream, err := s.chain.Stream(callCtx, input)
	if err != nil {
		classified := classify(callCtx, ctx, "open stream", err)
		cancel()
		log.Warn().Err(err).Str("component", "ai").Str("session_id", sess.ID).Msg("model stream failed to open")
		return nil, classified
	}

	log.Debug().
		Str("component", "ai").
		Str("session_id", sess.ID).
		Bool("created", created).
		Int("history_turns", len(turns)).
		Msg("model stream opened")

	return newConversation(ctx, callCtx, cancel, sess, created, stream), nil
}
