// Package fake provides a scripted eino chat model for tests.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel streams scripted chunks and records every input it receives.
type ChatModel struct {
	// Chunks is the reply used when Reply is nil.
	Chunks []string
	// Reply computes the chunks from the prompt.
	Reply func(input []*schema.Message) []string
	// OpenErr fails the call before any chunk is produced.
	OpenErr error
	// StreamErr is sent after the chunks instead of a clean end.
	StreamErr error
	// Delay is waited before each chunk; the call context cancels it.
	Delay time.Duration

	mu    sync.Mutex
	calls [][]*schema.Message
}

var _ model.ChatModel = (*ChatModel)(nil)

// Generate returns the concatenated reply.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.record(input)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return schema.AssistantMessage(strings.Join(m.chunksFor(input), ""), nil), nil
}

// Stream pipes the reply one chunk at a time.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	chunks := m.chunksFor(input)
	sr, sw := schema.Pipe[*schema.Message](len(chunks) + 1)

	go func() {
		defer sw.Close()
		for _, chunk := range chunks {
			if m.Delay > 0 {
				select {
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				case <-time.After(m.Delay):
				}
			}
			if closed := sw.Send(schema.AssistantMessage(chunk, nil), nil); closed {
				return
			}
		}
		if m.StreamErr != nil {
			sw.Send(nil, m.StreamErr)
		}
	}()

	return sr, nil
}

func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

// Calls returns the prompts received so far, oldest first.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

// LastCall returns the most recent prompt, or nil.
func (m *ChatModel) LastCall() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

func (m *ChatModel) record(input []*schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]*schema.Message(nil), input...))
}

func (m *ChatModel) chunksFor(input []*schema.Message) []string {
	if m.Reply != nil {
		return m.Reply(input)
	}
	return m.Chunks
}

// Echo replies with the latest user message split into words.
func Echo(input []*schema.Message) []string {
	var last string
	for _, msg := range input {
		if msg.Role == schema.User {
			last = msg.Content
		}
	}
	words := strings.SplitAfter("You said: "+last, " ")
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
