package chat

import "time"

// Role names used when a transcript is replayed to the model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn pairs one user message with the assistant's response.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// NewTurn stamps a turn with the current UTC time.
func NewTurn(question, answer string) Turn {
	return Turn{Question: question, Answer: answer, CreatedAt: time.Now().UTC()}
}

// Message is a single role-tagged utterance derived from a turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Messages flattens turns into alternating user/assistant messages.
func Messages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns)*2)
	for _, t := range turns {
		out = append(out,
			Message{Role: RoleUser, Content: t.Question},
			Message{Role: RoleAssistant, Content: t.Answer},
		)
	}
	return out
}
