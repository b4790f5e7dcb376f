package chat

import (
	"encoding/json"
	"sync"
)

// Transcript is the append-only, chronologically ordered history of a session.
// It is safe for concurrent use.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewTranscript copies turns into a fresh transcript.
func NewTranscript(turns ...Turn) *Transcript {
	t := &Transcript{turns: make([]Turn, 0, len(turns)+8)}
	t.turns = append(t.turns, turns...)
	return t
}

// Append adds a turn at the end and returns the new length.
func (t *Transcript) Append(turn Turn) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
	return len(t.turns)
}

// Turns returns a snapshot copy of the turns.
func (t *Transcript) Turns() []Turn {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len reports the number of turns.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

func (t *Transcript) MarshalJSON() ([]byte, error) {
	turns := t.Turns()
	if turns == nil {
		turns = []Turn{}
	}
	return json.Marshal(turns)
}

func (t *Transcript) UnmarshalJSON(data []byte) error {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	t.mu.Lock()
	t.turns = turns
	t.mu.Unlock()
	return nil
}
