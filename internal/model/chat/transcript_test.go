package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAppendKeepsPrefix(t *testing.T) {
	tr := NewTranscript(NewTurn("a", "1"), NewTurn("b", "2"))
	before := tr.Turns()

	n := tr.Append(NewTurn("c", "3"))

	require.Equal(t, len(before)+1, n)
	after := tr.Turns()
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, "c", after[len(after)-1].Question)
}

func TestTranscriptSnapshotIsolation(t *testing.T) {
	tr := NewTranscript(NewTurn("a", "1"))
	snap := tr.Turns()
	snap[0].Answer = "mutated"

	require.Equal(t, 1, tr.Len())
	assert.Equal(t, "1", tr.Turns()[0].Answer)
}

func TestNewTranscriptCopiesSeed(t *testing.T) {
	seed := []Turn{NewTurn("a", "1")}
	tr := NewTranscript(seed...)
	seed[0].Question = "changed"

	assert.Equal(t, "a", tr.Turns()[0].Question)
}

func TestTranscriptJSONRoundTrip(t *testing.T) {
	tr := NewTranscript(NewTurn("Hello", "Hi there"))
	data, err := json.Marshal(tr)
	require.NoError(t, err)

	var decoded Transcript
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Len())

	empty, err := json.Marshal(NewTranscript())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty))
}

func TestMessagesAlternateRoles(t *testing.T) {
	msgs := Messages([]Turn{NewTurn("q1", "a1"), NewTurn("q2", "a2")})
	require.Len(t, msgs, 4)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "q2", msgs[2].Content)
	assert.Equal(t, "a2", msgs[3].Content)
}
