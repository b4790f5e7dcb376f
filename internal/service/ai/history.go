package ai

import (
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
)

// windowTurns keeps the most recent turns that fit both limits. A limit of
// zero or less disables it. Whole turns are dropped so the replayed history
// always alternates user/assistant; the newest turn is always kept, even when
// it alone exceeds the token budget.
func windowTurns(turns []chat.Turn, maxTurns, maxTokens int, counter TokenCounter) []chat.Turn {
	if len(turns) == 0 {
		return nil
	}
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	if maxTokens <= 0 || counter == nil {
		return turns
	}

	start := len(turns)
	total := 0
	for i := len(turns) - 1; i >= 0; i-- {
		cost := counter.Count(turns[i].Question) + counter.Count(turns[i].Answer)
		if total+cost > maxTokens {
			break
		}
		total += cost
		start = i
	}
	if start == len(turns) {
		start = len(turns) - 1
	}
	return turns[start:]
}

func historyMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns)*2)
	for _, msg := range chat.Messages(turns) {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
