package chat

import "time"

// Session associates a session identifier with its transcript.
type Session struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Version    int64       `json:"version"`
	Transcript *Transcript `json:"transcript"`
}

// NewSession returns a session whose transcript starts with a copy of seed.
func NewSession(id string, seed []Turn, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
		Transcript: NewTranscript(seed...),
	}
}
