package ai

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
)

func makeTurns(n int) []chat.Turn {
	turns := make([]chat.Turn, n)
	for i := range turns {
		turns[i] = chat.Turn{Question: strings.Repeat("q", 8), Answer: strings.Repeat("a", 8)}
	}
	return turns
}

func TestWindowTurns(t *testing.T) {
	turns := makeTurns(10)
	turns[9].Question = "latest"

	t.Run("no limits", func(t *testing.T) {
		assert.Len(t, windowTurns(turns, 0, 0, nil), 10)
	})

	t.Run("turn limit keeps newest", func(t *testing.T) {
		got := windowTurns(turns, 3, 0, nil)
		assert.Len(t, got, 3)
		assert.Equal(t, "latest", got[2].Question)
	})

	t.Run("token limit drops whole turns", func(t *testing.T) {
		// Each full turn costs 4 tokens with the heuristic counter.
		got := windowTurns(turns, 0, 9, HeuristicCounter{})
		assert.Len(t, got, 2)
		assert.Equal(t, "latest", got[1].Question)
	})

	t.Run("newest turn kept when it alone exceeds the budget", func(t *testing.T) {
		big := append(makeTurns(2), chat.Turn{Question: "Hello", Answer: strings.Repeat("word ", 5000)})
		got := windowTurns(big, 20, 4000, HeuristicCounter{})
		assert.Len(t, got, 1)
		assert.Equal(t, "Hello", got[0].Question)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, windowTurns(nil, 5, 5, HeuristicCounter{}))
	})
}

func TestHistoryMessagesAlternate(t *testing.T) {
	msgs := historyMessages([]chat.Turn{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}})

	roles := make([]schema.RoleType, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []schema.RoleType{schema.User, schema.Assistant, schema.User, schema.Assistant}, roles)
	assert.Equal(t, "a2", msgs[3].Content)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 2, EstimateTokens("日本"))
}

func TestTokenCounterCountsText(t *testing.T) {
	counter := NewTokenCounter()
	assert.Positive(t, counter.Count("Hello from the chatbot"))
	assert.Zero(t, counter.Count(""))
}
