package ai

import (
	"context"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
)

var errClosed = errors.New("conversation closed before completion")

// Conversation is a single, non-restartable model response. Each Recv yields
// the full text produced so far, so every value extends the previous one.
type Conversation struct {
	SessionID string
	Created   bool
	Session   *chat.Session

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	stream *schema.StreamReader[*schema.Message]

	text      strings.Builder
	done      bool
	err       error
	closeOnce sync.Once
}

func newConversation(parent, ctx context.Context, cancel context.CancelFunc, sess *chat.Session, created bool, stream *schema.StreamReader[*schema.Message]) *Conversation {
	return &Conversation{
		SessionID: sess.ID,
		Created:   created,
		Session:   sess,
		parent:    parent,
		ctx:       ctx,
		cancel:    cancel,
		stream:    stream,
	}
}

// Recv returns the next cumulative prefix. It returns io.EOF once the model
// has finished, and the terminal error on every call after a failure.
func (c *Conversation) Recv() (string, error) {
	if c.done {
		if c.err != nil {
			return "", c.err
		}
		return "", io.EOF
	}

	for {
		chunk, err := c.stream.Recv()
		if errors.Is(err, io.EOF) {
			if c.text.Len() == 0 {
				c.finish(&UpstreamError{Op: "stream", Err: errEmptyResponse})
				return "", c.err
			}
			c.finish(nil)
			return "", io.EOF
		}
		if err != nil {
			c.finish(classify(c.ctx, c.parent, "stream", err))
			return "", c.err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		c.text.WriteString(chunk.Content)
		return c.text.String(), nil
	}
}

// Prefixes adapts Recv to a range-over-func sequence. A failure is yielded
// once as the final element.
func (c *Conversation) Prefixes() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			prefix, err := c.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(prefix, nil) {
				return
			}
		}
	}
}

// Drain consumes the remaining prefixes and returns the last one.
func (c *Conversation) Drain() (string, error) {
	var last string
	for prefix, err := range c.Prefixes() {
		if err != nil {
			return "", err
		}
		last = prefix
	}
	return last, nil
}

// Close releases the stream and the call deadline. Safe to call repeatedly.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		c.stream.Close()
		c.cancel()
	})
	if !c.done {
		c.done = true
		c.err = errClosed
	}
}

func (c *Conversation) finish(err error) {
	c.done = true
	c.err = err
	c.closeOnce.Do(func() {
		c.stream.Close()
		c.cancel()
	})

	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.Str("component", "ai").
		Str("session_id", c.SessionID).
		Int("response_length", c.text.Len()).
		Msg("model stream finished")
}
