package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/atlas-chat/backend/internal/llm/fake"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/ai"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

func newAskSession(t *testing.T, incremental bool) (*askSession, *bytes.Buffer) {
	t.Helper()
	store := session.NewMemoryStore()
	driver, err := ai.NewService(context.Background(), &fake.ChatModel{Reply: fake.Echo}, store, ai.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	return &askSession{
		chat:        chat.NewService(driver, store, country.NewMemoryStore(country.Seed()), nil),
		out:         &out,
		country:     "USA",
		incremental: incremental,
	}, &out
}

func TestAskREPLKeepsSession(t *testing.T) {
	s, out := newAskSession(t, false)

	require.NoError(t, s.repl(context.Background(), strings.NewReader("Hello\n\nWhat did I just say?\n")))

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "[session "), "only the first message creates a session")
	assert.Contains(t, text, "You said: Hello")
	assert.Contains(t, text, "You said: What did I just say?")
	assert.NotEmpty(t, s.sessionID)
}

func TestAskIncrementalPrintsAnswerOnce(t *testing.T) {
	s, out := newAskSession(t, true)

	require.NoError(t, s.ask(context.Background(), "Hola amigo"))
	assert.Equal(t, 1, strings.Count(out.String(), "You said: Hola amigo"))
}

func TestAskUnknownCountry(t *testing.T) {
	s, _ := newAskSession(t, false)
	s.country = "Atlantis"

	assert.ErrorIs(t, s.ask(context.Background(), "Hi"), chat.ErrUnknownCountry)
}

func TestAskKeepsSessionAfterFailure(t *testing.T) {
	chatModel := &fake.ChatModel{OpenErr: errors.New("connection refused")}
	store := session.NewMemoryStore()
	driver, err := ai.NewService(context.Background(), chatModel, store, ai.Options{})
	require.NoError(t, err)
	s := &askSession{
		chat:    chat.NewService(driver, store, country.NewMemoryStore(country.Seed()), nil),
		out:     &bytes.Buffer{},
		country: "USA",
	}

	assert.ErrorIs(t, s.ask(context.Background(), "Hello"), ai.ErrUpstreamUnavailable)
	failedID := s.sessionID
	require.NotEmpty(t, failedID)

	chatModel.OpenErr = nil
	chatModel.Reply = fake.Echo
	require.NoError(t, s.ask(context.Background(), "Hello"))
	assert.Equal(t, failedID, s.sessionID)
	assert.Equal(t, 1, store.Len())
}
